package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"vigilstream/internal/vigil/domain"
)

// SSEStreamAdapter writes events as text/event-stream frames.
type SSEStreamAdapter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
}

// NewSSEStreamAdapter writes the stream headers. It fails when the writer
// cannot flush.
func NewSSEStreamAdapter(w http.ResponseWriter, r *http.Request) (*SSEStreamAdapter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by response writer")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEStreamAdapter{w: w, flusher: flusher, ctx: r.Context()}, nil
}

func (a *SSEStreamAdapter) SendEvent(ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	name := "progress"
	switch {
	case ev.Deleted:
		name = "deleted"
	case ev.IsTerminal():
		name = "terminal"
	}

	if _, err := fmt.Fprintf(a.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	a.flusher.Flush()
	return nil
}

func (a *SSEStreamAdapter) SendKeepalive() error {
	if _, err := fmt.Fprint(a.w, ": keepalive\n\n"); err != nil {
		return err
	}
	a.flusher.Flush()
	return nil
}

func (a *SSEStreamAdapter) Context() context.Context {
	return a.ctx
}
