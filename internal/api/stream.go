package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/groshare/groupbuy/internal/pubsub"
)

// StreamOrder is the real-time channel for one order: a server-sent event
// stream where every event carries the full updated order. Subscribers that
// connect late must fetch current state first; there is no replay.
func (h *Handlers) StreamOrder(w http.ResponseWriter, r *http.Request) {
	events, cancel := h.hub.Subscribe(chi.URLParam(r, "id"))
	defer cancel()
	h.stream(w, r, events)
}

// StreamGlobal streams every published event, including new-order
// announcements.
func (h *Handlers) StreamGlobal(w http.ResponseWriter, r *http.Request) {
	events, cancel := h.hub.SubscribeGlobal()
	defer cancel()
	h.stream(w, r, events)
}

func (h *Handlers) stream(w http.ResponseWriter, r *http.Request, events <-chan pubsub.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
