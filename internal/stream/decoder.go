package stream

import "bytes"

const (
	// DefaultInitialBuffer and DefaultMaxBuffer size the read buffers used by
	// the chunked and SSE readers.
	DefaultInitialBuffer = 64 * 1024
	DefaultMaxBuffer     = 512 * 1024
)

// FrameDecoder reassembles newline-framed records from byte chunks that may
// be split anywhere, including in the middle of a record or a multi-byte
// UTF-8 sequence. Splitting happens on the raw byte buffer and only ever
// consumes through a '\n' byte, which cannot occur inside a multi-byte
// sequence, so partial runes simply remain buffered until the next chunk.
type FrameDecoder struct {
	buf []byte
}

// NewFrameDecoder returns a decoder with an empty pending buffer.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Write appends chunk to the pending buffer and returns every completed line,
// in order, without its trailing newline. A trailing '\r' is stripped so CRLF
// framing behaves like LF. The unterminated remainder stays buffered.
func (d *FrameDecoder) Write(chunk []byte) [][]byte {
	if len(chunk) > 0 {
		d.buf = append(d.buf, chunk...)
	}

	var lines [][]byte
	rest := d.buf
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		line := rest[:i]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		lines = append(lines, line)
		rest = rest[i+1:]
	}

	if len(lines) > 0 {
		// The returned lines alias the old backing array; give the pending
		// tail a fresh one so future appends cannot clobber them.
		d.buf = append([]byte(nil), rest...)
	}
	return lines
}

// Flush returns the pending unterminated tail as a final line, if it is
// non-empty after trimming whitespace. Called once at end of stream.
func (d *FrameDecoder) Flush() ([]byte, bool) {
	tail := bytes.TrimSpace(d.buf)
	d.buf = nil
	if len(tail) == 0 {
		return nil, false
	}
	return tail, true
}

// Pending reports the number of buffered bytes awaiting a newline.
func (d *FrameDecoder) Pending() int {
	return len(d.buf)
}
