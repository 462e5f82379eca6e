package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
)

// streamNotifications issues Server-Sent Events for live occupancy updates
// and anomaly alerts. An optional zones parameter (comma-separated codes)
// narrows the stream; without it the client receives every zone.
func (s *Server) streamNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	var zones []string
	if v := r.URL.Query().Get("zones"); v != "" {
		for _, code := range strings.Split(v, ",") {
			if code = strings.TrimSpace(code); code != "" {
				zones = append(zones, code)
			}
		}
	}

	sub := s.hub.Subscribe(zones...)
	defer s.hub.Unsubscribe(sub.ID())

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case n, ok := <-sub.C():
			if !ok {
				// Hub closed, exit gracefully
				return
			}
			payload, err := json.Marshal(n)
			if err != nil {
				monitoring.Logf("failed to marshal notification: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
