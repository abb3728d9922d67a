package stream

import "bytes"

// Framer assembles complete lines from arbitrarily split text chunks.
// An unterminated tail is held until the next Feed or Flush.
type Framer struct {
	pending []byte
}

// NewFramer creates an empty Framer
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk to the pending buffer and returns every complete line.
// Lines are LF terminated; a trailing CR is removed so CRLF framing works
// even when the CR and LF arrive in different chunks.
func (f *Framer) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	f.pending = append(f.pending, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(f.pending, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimSuffix(f.pending[:idx], []byte{'\r'})))
		f.pending = f.pending[idx+1:]
	}

	// Compact so a long stream does not pin every chunk it ever saw.
	if len(f.pending) == 0 {
		f.pending = nil
	} else if cap(f.pending) > 4*len(f.pending)+4096 {
		f.pending = append([]byte(nil), f.pending...)
	}
	return lines
}

// Pending reports the number of buffered bytes that do not yet form a line
func (f *Framer) Pending() int {
	return len(f.pending)
}

// Flush returns the buffered tail as a final line and clears the buffer.
// It is only meaningful once the source has ended cleanly.
func (f *Framer) Flush() (string, bool) {
	if len(f.pending) == 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(f.pending, []byte{'\r'}))
	f.pending = nil
	return line, true
}

// Reset drops the buffered tail without returning it
func (f *Framer) Reset() {
	f.pending = nil
}
