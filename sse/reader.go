package sse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const maxLineSize = 4 << 20

// Reader decodes an event stream. Comments and unknown fields are skipped.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next complete event, or io.EOF when the stream ends. An
// event cut off before its blank line is dropped.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    [][]byte
		hasData bool
		seen    bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if !seen {
				continue
			}
			if hasData {
				ev.Data = bytes.Join(data, []byte("\n"))
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		seen = true

		switch field {
		case "id":
			seq, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return Event{}, fmt.Errorf("sse: invalid id %q: %w", value, err)
			}
			ev.Seq = seq
		case "event":
			ev.Kind = EventKind(value)
		case "data":
			data = append(data, []byte(value))
			hasData = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// ReadAll decodes every event until EOF.
func ReadAll(r io.Reader) ([]Event, error) {
	reader := NewReader(r)
	var events []Event
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}
