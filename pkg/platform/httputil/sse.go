package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	dErrors "homechef/pkg/domain-errors"
)

// keepAlive is how often an idle stream sends a comment line so proxies keep
// the connection open.
const keepAlive = 25 * time.Second

// StreamSSE writes initial (when non-nil) and then every value from updates as
// a server-sent event named event, until updates closes or ctx ends.
func StreamSSE[T any](ctx context.Context, w http.ResponseWriter, event string, initial *T, updates <-chan T) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		err := dErrors.New(dErrors.CodeInternal, "streaming unsupported")
		WriteError(w, err)
		return err
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if initial != nil {
		if err := writeEvent(w, event, *initial); err != nil {
			return err
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		case v, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(w, event, v); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
