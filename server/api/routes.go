package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/compose-network/msgstream/x/stream"
)

// StreamSource exposes point-in-time views of the streams a carrier is
// serving. Implemented by the TCP server.
type StreamSource interface {
	Snapshots() []stream.Snapshot
}

// RegisterRoutes installs the operational endpoints on the server's router.
func (s *Server) RegisterRoutes(src StreamSource, version string) {
	s.Router.HandleFunc("/v1/health", healthHandler(version)).Methods(http.MethodGet)
	s.Router.HandleFunc("/v1/streams", listStreamsHandler(src)).Methods(http.MethodGet)
	s.Router.HandleFunc("/v1/streams/{id}", getStreamHandler(src)).Methods(http.MethodGet)
}

func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"version":   version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func listStreamsHandler(src StreamSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps := src.Snapshots()
		WriteJSON(w, http.StatusOK, map[string]any{
			"count":   len(snaps),
			"streams": snaps,
		})
	}
}

func getStreamHandler(src StreamSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		for _, snap := range src.Snapshots() {
			if snap.ID == id {
				WriteJSON(w, http.StatusOK, snap)
				return
			}
		}
		WriteError(w, r, http.StatusNotFound, "stream_not_found", "no stream with that id", nil)
	}
}
