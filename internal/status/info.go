package status

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Info is the site description pushed by the server. Values keep their JSON
// shape.
type Info map[string]any

// Lookup resolves a dotted key such as "database.db_url" and renders the
// value for display: arrays are joined with ", " and null shows as "None".
func (i Info) Lookup(key string) (string, bool) {
	var cur any = map[string]any(i)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = m[part]; !ok {
			return "", false
		}
	}
	return render(cur), true
}

func render(v any) string {
	switch v := v.(type) {
	case nil:
		return "None"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = render(e)
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// SiteStatus is the state of the site's process.
type SiteStatus struct {
	Running     bool            `json:"running"`
	Starting    bool            `json:"starting"`
	StartTime   json.RawMessage `json:"start_time"`
	RunShExists bool            `json:"run_sh_exists"`
}

// Started parses StartTime, which the server sends either as milliseconds
// since the epoch or as an RFC 3339 string.
func (s SiteStatus) Started() (time.Time, bool) {
	if len(s.StartTime) == 0 || string(s.StartTime) == "null" {
		return time.Time{}, false
	}
	var ms float64
	if err := json.Unmarshal(s.StartTime, &ms); err == nil {
		return time.UnixMilli(int64(ms)), true
	}
	var str string
	if err := json.Unmarshal(s.StartTime, &str); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Text is the one-line process state shown in the status bar.
func (s SiteStatus) Text() string {
	switch {
	case s.Running && s.Starting:
		return "Shutting down"
	case s.Running:
		if t, ok := s.Started(); ok {
			return "Running since " + t.Local().Format("3:04:05 PM on 1/2/2006")
		}
		return "Running"
	case s.Starting:
		return "Starting"
	default:
		return "Stopped"
	}
}
