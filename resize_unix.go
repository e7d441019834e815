//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
)

// watchSize reports the local terminal size now and on every SIGWINCH.
func watchSize(fn func(rows, cols int)) (stop func()) {
	report := func() {
		if rows, cols, err := pty.Getsize(os.Stdin); err == nil {
			fn(rows, cols)
		}
	}
	report()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				report()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
