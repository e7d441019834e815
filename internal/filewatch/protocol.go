package filewatch

import (
	"encoding/json"
	"fmt"

	"director-console/internal/filetree"
)

type watchRequest struct {
	Action string `json:"action"`
	Path   string `json:"path"`
}

// message is the union of every frame the file-watch server sends.
type message struct {
	Event     string `json:"event"`
	Fname     string `json:"fname"`
	Filetype  string `json:"filetype"`
	Mode      uint32 `json:"mode"`
	Dest      string `json:"dest"`
	Error     string `json:"error"`
	Heartbeat int    `json:"heartbeat"`
}

// decode turns a text frame into a tree event. Heartbeats decode to nil.
func decode(data []byte) (filetree.Event, error) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode file event: %w", err)
	}
	switch m.Event {
	case "create":
		return filetree.Create{Info: filetree.Info{
			Path:   m.Fname,
			Kind:   filetree.ParseKind(m.Filetype),
			Mode:   m.Mode,
			Target: m.Dest,
		}}, nil
	case "delete":
		return filetree.Delete{Path: m.Fname}, nil
	case "update":
		return filetree.Update{Path: m.Fname, Mode: m.Mode}, nil
	case "error":
		return filetree.Error{Path: m.Fname, Message: m.Error}, nil
	case "":
		if m.Heartbeat != 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("frame without event: %s", data)
	default:
		return nil, fmt.Errorf("unknown file event %q", m.Event)
	}
}

func eventName(ev filetree.Event) string {
	switch ev.(type) {
	case filetree.Create:
		return "create"
	case filetree.Delete:
		return "delete"
	case filetree.Update:
		return "update"
	case filetree.Error:
		return "error"
	default:
		return "unknown"
	}
}
