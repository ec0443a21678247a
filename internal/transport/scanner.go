package transport

import (
	"bufio"
	"io"

	"docstream/internal/stream"
)

func newLineScanner(reader io.Reader, initial, max int) *bufio.Scanner {
	if initial <= 0 {
		initial = stream.DefaultInitialBuffer
	}
	if max <= 0 {
		max = stream.DefaultMaxBuffer
	}
	if initial > max {
		initial = max
	}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, initial), max)
	return scanner
}
