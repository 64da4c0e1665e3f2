package executor

import (
	"strings"
	"sync"

	"github.com/shellpilot/shellpilot/internal/domain"
)

// cappedWriter captures up to max bytes and drops the rest, flagging the
// truncation. Every write is also streamed to onOutput before capping so
// observers see live output even when the capture buffer is full.
type cappedWriter struct {
	mu        sync.Mutex
	buf       strings.Builder
	max       int
	stream    string
	truncated bool
	onOutput  func(domain.OutputChunk)
}

func newCappedWriter(max int, stream string, onOutput func(domain.OutputChunk)) *cappedWriter {
	return &cappedWriter{max: max, stream: stream, onOutput: onOutput}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.onOutput != nil && len(p) > 0 {
		chunk := make([]byte, len(p))
		copy(chunk, p)
		w.onOutput(domain.OutputChunk{Stream: w.stream, Data: chunk})
	}

	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		w.truncated = w.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *cappedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (w *cappedWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}
