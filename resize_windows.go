//go:build windows

package main

import (
	"os"
	"time"

	"golang.org/x/term"
)

// watchSize polls the console size; Windows has no SIGWINCH.
func watchSize(fn func(rows, cols int)) (stop func()) {
	fd := int(os.Stdout.Fd())
	var lastRows, lastCols int
	report := func() {
		cols, rows, err := term.GetSize(fd)
		if err != nil || (rows == lastRows && cols == lastCols) {
			return
		}
		lastRows, lastCols = rows, cols
		fn(rows, cols)
	}
	report()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
