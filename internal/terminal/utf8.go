package terminal

import (
	"unicode/utf8"

	"go.uber.org/zap"
)

// utf8Buffer makes sure only complete UTF-8 characters reach text
// consumers. Output frames are cut at arbitrary byte boundaries by the
// server, which can split a multi-byte character across two frames.
//
// Not safe for concurrent use; each session owns one.
type utf8Buffer struct {
	pending []byte
	log     *zap.Logger
}

// maxPendingBytes bounds the held-back tail. A valid sequence never leaves
// more than utf8.UTFMax-1 bytes pending, so anything larger is corrupt input
// and is flushed as is.
const maxPendingBytes = 10

// Append combines p with any pending bytes and returns every complete
// character. An incomplete trailing sequence is kept for the next call.
//
//	Append([]byte{0xE4, 0xB8})        // "", pending E4 B8
//	Append([]byte{0xAD, 0xE6, 0x96, 0x87}) // "中文", nothing pending
func (b *utf8Buffer) Append(p []byte) string {
	if len(p) == 0 {
		return ""
	}
	combined := append(b.pending, p...)

	if len(b.pending) > maxPendingBytes {
		b.logger().Warn("pending UTF-8 bytes exceeded limit, flushing",
			zap.Int("pending", len(b.pending)))
		b.pending = nil
		return string(combined)
	}

	n := completePrefix(combined)
	if n < len(combined) {
		b.pending = append([]byte(nil), combined[n:]...)
	} else {
		b.pending = nil
	}
	return string(combined[:n])
}

// Flush returns the pending bytes, complete or not, and clears them. It is
// called when the session ends.
func (b *utf8Buffer) Flush() string {
	if len(b.pending) == 0 {
		return ""
	}
	out := string(b.pending)
	b.pending = nil
	return out
}

func (b *utf8Buffer) logger() *zap.Logger {
	if b.log == nil {
		return zap.NewNop()
	}
	return b.log
}

// completePrefix returns the length of the longest prefix of data that does
// not end inside an incomplete UTF-8 sequence. Invalid bytes count as
// complete so they are never held back.
func completePrefix(data []byte) int {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return len(data)
		}
		return i
	}
	return len(data)
}
