package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/datastore"
	"github.com/suhasdevmane/Abacws/internal/stream"
)

// StreamHandler serves the server-sent events feed.
type StreamHandler struct {
	store  datastore.Datastore
	broker *stream.Broker
	logger *zap.Logger
}

func NewStreamHandler(store datastore.Datastore, broker *stream.Broker, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{store: store, broker: broker, logger: logger}
}

// Events subscribes the connection to the broadcast loop. The first event is
// always "hello" with the active engine name; the connection then receives
// "latest" and "rules" events until the client disconnects.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	id, events := h.broker.Subscribe()
	defer h.broker.Unsubscribe(id)
	h.logger.Debug("stream subscriber connected", zap.String("subscriber", id))

	writeSSE(w, "hello", map[string]any{
		"engine": h.store.Engine(),
		"ts":     time.Now().UnixMilli(),
	})
	flusher.Flush()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSE(w, ev.Name, ev.Data)
			flusher.Flush()
		case <-r.Context().Done():
			h.logger.Debug("stream subscriber disconnected", zap.String("subscriber", id))
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
}

// Info reports the live subscriber count.
func (h *StreamHandler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"subscribers": h.broker.Subscribers(),
	})
}
