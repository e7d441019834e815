package sqlconsole

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"unicode"
)

// Prompt is printed before every statement.
const Prompt = "SQL> "

const (
	keyCtrlC     = 0x03
	keyCtrlD     = 0x04
	keyBackspace = 0x7f
	keyCtrlH     = 0x08
	keyEscape    = 0x1b
)

// Run is an interactive loop over a terminal in raw mode: in yields key
// presses and out receives the echo and query output. Up and down arrows
// browse the history. It returns on ctrl-d at an empty line, on EOF or when
// ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	r := bufio.NewReader(in)
	var line []rune

	redraw := func() {
		io.WriteString(out, "\r\x1b[K"+Prompt+string(line))
	}
	redraw()

	for {
		if ctx.Err() != nil {
			return nil
		}
		key, _, err := r.ReadRune()
		if errors.Is(err, io.EOF) {
			io.WriteString(out, "\r\n")
			return nil
		}
		if err != nil {
			return err
		}

		switch key {
		case '\r', '\n':
			sql := strings.TrimSpace(string(line))
			io.WriteString(out, "\r\n")
			line = line[:0]
			if sql != "" {
				result, _ := c.Submit(ctx, sql)
				io.WriteString(out, crlf(result))
			}
			redraw()
		case keyCtrlC:
			line = line[:0]
			io.WriteString(out, "^C\r\n")
			redraw()
		case keyCtrlD:
			if len(line) == 0 {
				io.WriteString(out, "\r\n")
				return nil
			}
		case keyBackspace, keyCtrlH:
			if len(line) > 0 {
				line = line[:len(line)-1]
				redraw()
			}
		case keyEscape:
			final, err := readArrow(r)
			if err != nil {
				return nil
			}
			switch final {
			case 'A':
				if s, ok := c.Up(string(line)); ok {
					line = []rune(s)
					redraw()
				}
			case 'B':
				if s, ok := c.Down(); ok {
					line = []rune(s)
					redraw()
				}
			}
		default:
			if unicode.IsPrint(key) {
				line = append(line, key)
				io.WriteString(out, string(key))
			}
		}
	}
}

// readArrow consumes the rest of an escape sequence and returns its final
// byte for CSI and SS3 sequences.
func readArrow(r *bufio.Reader) (rune, error) {
	b, _, err := r.ReadRune()
	if err != nil {
		return 0, err
	}
	if b != '[' && b != 'O' {
		return 0, nil
	}
	for {
		f, _, err := r.ReadRune()
		if err != nil {
			return 0, err
		}
		if f >= 0x40 && f <= 0x7e {
			return f, nil
		}
	}
}

func crlf(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return strings.ReplaceAll(s, "\n", "\r\n")
}
