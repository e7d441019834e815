package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"director-console/internal/terminal"
)

var termCmd = &cobra.Command{
	Use:   "term",
	Short: "Open a shell on the site",
	Long: `Attaches the local terminal to the site's terminal socket. The session
reattaches after network failures; ctrl-] detaches.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return errors.New("term needs an interactive terminal")
		}

		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		t := a.OpenTerminal(terminal.Config{
			OnData:  func(p []byte) { os.Stdout.Write(p) },
			OnError: func(msg string) { fmt.Fprintf(os.Stderr, "\r\n%s\r\n", msg) },
			OnClose: func() { fmt.Fprint(os.Stderr, "\r\n[disconnected, reconnecting]\r\n") },
		})
		defer a.CloseTerminal(t.ID)

		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer term.Restore(fd, state)

		stopResize := watchSize(func(rows, cols int) {
			if err := t.Resize(rows, cols); err != nil {
				logger.Debug("failed to send terminal size", zap.Error(err))
			}
		})
		defer stopResize()

		if err := t.Start(cmd.Context()); err != nil {
			return err
		}

		input := make(chan error, 1)
		go func() { input <- pumpInput(t) }()
		select {
		case <-cmd.Context().Done():
			return nil
		case err := <-input:
			return err
		}
	},
}

// detachKey is ctrl-].
const detachKey = 0x1d

// pumpInput copies stdin to the terminal until the detach key or EOF.
func pumpInput(t *terminal.Terminal) error {
	buf := make([]byte, 1024)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil
		}
		p := buf[:n]
		i := bytes.IndexByte(p, detachKey)
		if i >= 0 {
			p = p[:i]
		}
		if len(p) > 0 {
			if err := writeWhenReady(t, p); err != nil {
				return err
			}
		}
		if i >= 0 {
			return nil
		}
	}
}

// writeWhenReady retries input typed before the shell's first output for a
// few seconds, then drops it.
func writeWhenReady(t *terminal.Terminal, p []byte) error {
	for attempt := 0; ; attempt++ {
		_, err := t.Write(p)
		if !errors.Is(err, terminal.ErrNotReady) {
			return err
		}
		if attempt >= 50 {
			logger.Debug("dropping input typed before the shell was ready", zap.Int("bytes", len(p)))
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func init() {
	rootCmd.AddCommand(termCmd)
}
