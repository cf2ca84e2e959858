package process

import (
	"bytes"
	"sync"
)

// LineBuffer is an io.Writer that keeps the most recent complete lines written
// to it. A trailing partial line is held until its newline arrives and is
// still reported by Lines.
type LineBuffer struct {
	mu       sync.Mutex
	lines    []string
	head     int // lines[:head] are evicted
	partial  []byte
	maxLines int
	dropped  int
}

// NewLineBuffer creates a buffer holding at most maxLines lines (0 = unbounded)
func NewLineBuffer(maxLines int) *LineBuffer {
	return &LineBuffer{maxLines: maxLines}
}

// Write implements io.Writer
func (b *LineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := p
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			b.partial = append(b.partial, data...)
			break
		}
		line := append(b.partial, data[:i]...)
		b.partial = nil
		b.appendLine(string(bytes.TrimRight(line, "\r")))
		data = data[i+1:]
	}
	return len(p), nil
}

// appendLine evicts by advancing head and compacts once the evicted prefix
// reaches maxLines, so each line is copied at most once on average.
func (b *LineBuffer) appendLine(line string) {
	b.lines = append(b.lines, line)
	if b.maxLines <= 0 || len(b.lines)-b.head <= b.maxLines {
		return
	}
	b.head++
	b.dropped++
	if b.head >= b.maxLines {
		kept := make([]string, len(b.lines)-b.head, 2*b.maxLines)
		copy(kept, b.lines[b.head:])
		b.lines = kept
		b.head = 0
	}
}

// Lines returns a copy of the buffered lines in write order
func (b *LineBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	live := b.lines[b.head:]
	out := make([]string, 0, len(live)+1)
	out = append(out, live...)
	if len(b.partial) > 0 {
		out = append(out, string(bytes.TrimRight(b.partial, "\r")))
	}
	return out
}

// Dropped returns how many old lines were evicted to respect maxLines
func (b *LineBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
