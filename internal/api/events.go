package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// keepAlive is the interval between SSE comment pings.
const keepAlive = 15 * time.Second

// handleEvents streams a session's funnel events as Server-Sent Events.
// The first message is a "snapshot" event with the current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch := sess.Engine.Subscribe()
	defer sess.Engine.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", viewOf(sess)); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				// session closed
				writeEvent(w, "closed", map[string]string{"id": sess.ID})
				flusher.Flush()
				return
			}
			if err := writeEvent(w, string(ev.Type), ev); err != nil {
				log.Printf("[api] event stream %s: client gone: %v", sess.ID, err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
