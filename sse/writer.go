package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HeartbeatInterval is the default interval between heartbeat comments.
const HeartbeatInterval = 15 * time.Second

// ContentType is the media type of an event stream.
const ContentType = "text/event-stream"

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("sse: streaming not supported")

// Writer is an HTTP Sink. Every event is flushed as soon as it is written.
// Writes are serialized so heartbeats can share the connection.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewWriter sets the event stream headers, sends the 200 status and returns
// a Writer. Headers set on w beforehand are kept.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one event. Multi-line data is split across data lines.
func (w *Writer) Send(ev Event) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "id: %d\nevent: %s\n", ev.Seq, ev.Kind)
	for _, line := range bytes.Split(ev.Data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return w.write(buf.Bytes())
}

// Comment writes an SSE comment line, ignored by readers.
func (w *Writer) Comment(text string) error {
	return w.write([]byte(": " + text + "\n\n"))
}

func (w *Writer) write(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(p); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// StartHeartbeat writes ": ping" every interval until the returned stop
// function is called. stop waits for the heartbeat goroutine to exit, so no
// write happens after it returns. A non-positive interval disables it.
func (w *Writer) StartHeartbeat(interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := w.Comment("ping"); err != nil {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
