package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/micro-nova/flick-go/internal/models"
)

const keepAliveInterval = 15 * time.Second

// eventStream writes server-sent events with increasing ids.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     uint64
}

func (s *eventStream) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *eventStream) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// subscribe streams a "status" event followed by one event per
// notification, named after its kind. Repeated ?kind= parameters limit the
// stream to those kinds.
func (h *Handlers) subscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, models.ErrInternal("streaming not supported"))
		return
	}
	wanted := make(map[models.NotificationKind]bool)
	for _, k := range r.URL.Query()["kind"] {
		wanted[models.NotificationKind(k)] = true
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id := uuid.NewString()
	ch := h.events.Subscribe(id)
	defer h.events.Unsubscribe(id)

	stream := &eventStream{w: w, flusher: flusher}
	if err := stream.send("status", h.node.Status()); err != nil {
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			err = stream.ping()
		case n, ok := <-ch:
			if !ok {
				return
			}
			if len(wanted) > 0 && !wanted[n.Kind] {
				continue
			}
			err = stream.send(string(n.Kind), n)
		}
		if err != nil {
			slog.Debug("api: event stream closed", "subscriber", id, "err", err)
			return
		}
	}
}
