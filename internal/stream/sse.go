package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Done is the data payload OpenAI-compatible backends send to end a stream.
var Done = []byte("[DONE]")

// EventReader parses Server-Sent Events from a response body.
type EventReader struct {
	reader *bufio.Reader
}

// NewEventReader wraps r.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{reader: bufio.NewReader(r)}
}

// Next returns the event name and data of the next event. Multiple data lines
// are joined with a newline. It returns io.EOF once the stream is exhausted.
func (s *EventReader) Next() (string, []byte, error) {
	var (
		event string
		data  [][]byte
	)

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", nil, err
		}
		eof := errors.Is(err, io.EOF)

		line = bytes.TrimRight(line, "\r\n")
		switch {
		case len(line) == 0:
			if len(data) > 0 {
				return event, bytes.Join(data, []byte("\n")), nil
			}
		case bytes.HasPrefix(line, []byte("event:")):
			event = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data = append(data, bytes.TrimSpace(line[len("data:"):]))
		}
		// id:, retry: and ":" comments are ignored.

		if eof {
			if len(data) > 0 {
				return event, bytes.Join(data, []byte("\n")), nil
			}
			return "", nil, io.EOF
		}
	}
}
