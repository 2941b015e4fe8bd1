package proc

import (
	"bytes"
	"strings"
)

// lineSplitter buffers written bytes and emits complete, trimmed, non-empty
// lines. Flush emits any trailing content that lacks a terminating newline.
type lineSplitter struct {
	emit    func(string)
	pending []byte
}

func newLineSplitter(emit func(string)) *lineSplitter {
	return &lineSplitter{emit: emit}
}

// Write implements io.Writer.
func (s *lineSplitter) Write(p []byte) (int, error) {
	s.pending = append(s.pending, p...)
	for {
		idx := bytes.IndexByte(s.pending, '\n')
		if idx < 0 {
			break
		}
		s.emitLine(string(s.pending[:idx]))
		s.pending = s.pending[idx+1:]
	}
	return len(p), nil
}

// Flush emits any buffered trailing content as a final line.
func (s *lineSplitter) Flush() {
	if len(s.pending) > 0 {
		s.emitLine(string(s.pending))
		s.pending = nil
	}
}

func (s *lineSplitter) emitLine(raw string) {
	line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
	if line != "" {
		s.emit(line)
	}
}
