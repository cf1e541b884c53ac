package server

import (
	"encoding/json"
	"net/http"

	"github.com/zsiec/udplog/pkg/version"
)

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.GetInfo()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if err := json.NewEncoder(w).Encode(versionInfo); err != nil {
		s.logger.WithError(err).Error("Failed to encode version response")
	}
}
