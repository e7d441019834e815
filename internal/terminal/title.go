package terminal

// titleScanner picks window-title changes (OSC 0 and OSC 2) out of the
// output stream. Sequences may be split across frames.
type titleScanner struct {
	state int
	num   []byte
	text  []byte
}

const (
	stGround = iota
	stEsc
	stOSCNum
	stOSCText
	stOSCEsc
)

const maxTitleLen = 512

// Scan feeds p and returns the last complete title found in it, if any.
func (s *titleScanner) Scan(p []byte) (title string, ok bool) {
	for _, c := range p {
		switch s.state {
		case stGround:
			if c == 0x1b {
				s.state = stEsc
			}
		case stEsc:
			if c == ']' {
				s.state = stOSCNum
				s.num = s.num[:0]
			} else {
				s.state = stGround
			}
		case stOSCNum:
			switch {
			case c >= '0' && c <= '9':
				s.num = append(s.num, c)
			case c == ';':
				s.state = stOSCText
				s.text = s.text[:0]
			default:
				s.state = stGround
			}
		case stOSCText:
			switch {
			case c == 0x07:
				if t, match := s.finish(); match {
					title, ok = t, true
				}
			case c == 0x1b:
				s.state = stOSCEsc
			case len(s.text) >= maxTitleLen:
				s.state = stGround
			default:
				s.text = append(s.text, c)
			}
		case stOSCEsc:
			if c == '\\' {
				if t, match := s.finish(); match {
					title, ok = t, true
				}
			} else {
				s.state = stGround
			}
		}
	}
	return title, ok
}

func (s *titleScanner) finish() (string, bool) {
	s.state = stGround
	switch string(s.num) {
	case "0", "2":
		return string(s.text), true
	}
	return "", false
}
