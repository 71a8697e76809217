package kfmt

import "io"

// backlogSize is the capacity of the backlog that captures log output before
// the firmware console is attached. It must be a power of 2; once full, the
// oldest bytes are overwritten.
const backlogSize = 4096

// backlog is a fixed-size ring buffer. The loader logs from its very first
// instruction but the console output device is only wired after the system
// table has been validated; anything logged in between ends up here.
type backlog struct {
	buf            [backlogSize]byte
	rIndex, wIndex int
}

// Write appends p to the backlog, discarding the oldest data on overflow.
func (b *backlog) Write(p []byte) (int, error) {
	for _, ch := range p {
		b.buf[b.wIndex] = ch
		b.wIndex = (b.wIndex + 1) & (backlogSize - 1)
		if b.wIndex == b.rIndex {
			b.rIndex = (b.rIndex + 1) & (backlogSize - 1)
		}
	}

	return len(p), nil
}

// Len returns the number of unread bytes.
func (b *backlog) Len() int {
	return (b.wIndex - b.rIndex) & (backlogSize - 1)
}

// WriteTo drains the backlog into w.
func (b *backlog) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for b.rIndex != b.wIndex {
		end := b.wIndex
		if end < b.rIndex {
			end = backlogSize
		}

		n, err := w.Write(b.buf[b.rIndex:end])
		total += int64(n)
		b.rIndex = (b.rIndex + n) & (backlogSize - 1)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}
