package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

const heartbeatInterval = 15 * time.Second

// handleEvents relaie le bus (progression des runs) en Server-Sent Events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Abonnement avant le hello: aucun événement perdu après la connexion.
	var events <-chan ports.Event
	if s.bus != nil {
		ch, cancel := s.bus.Subscribe()
		defer cancel()
		events = ch
	}

	fmt.Fprintf(w, "event: hello\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload := ev.Payload
			if len(payload) == 0 {
				payload = []byte("{}")
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}
