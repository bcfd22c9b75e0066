package frame

import (
	"io"
	"sync"
)

// Writer serializes frame writes to a single connection so that concurrent
// senders (a handler reply racing a broadcast goroutine) never interleave
// their bytes (§4.1 "Writer guarantees atomic frame emission per
// connection"; §5 "Writes to any single TCP socket are serialized by a send
// queue to preserve frame atomicity").
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame encodes and atomically writes one frame.
func (w *Writer) WriteFrame(typ, msgid string, payload []byte) error {
	data := Encode(typ, msgid, payload)
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.w.Write(data)
	return err
}
