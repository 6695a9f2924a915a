package mcp

import "bytes"

// maxFrameSize bounds the retained partial line. A server that streams
// more than this without a newline is broken; the fragment is discarded.
const maxFrameSize = 16 << 20

// frameBuffer accumulates stdout chunks and splits them into complete
// newline-terminated lines. The trailing fragment is retained for the
// next chunk. It is owned by a single reader goroutine.
type frameBuffer struct {
	buf []byte
}

// Write appends chunk and returns every complete line it finished, with
// the newline (and any carriage return) stripped and empty lines skipped.
// Returned slices are copies and stay valid after later writes.
func (f *frameBuffer) Write(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(f.buf[:i], "\r")
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, bytes.Clone(line))
		}
		f.buf = f.buf[i+1:]
	}

	if len(f.buf) > maxFrameSize {
		f.buf = nil
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines
}

// Pending returns the number of buffered bytes not yet terminated.
func (f *frameBuffer) Pending() int {
	return len(f.buf)
}
