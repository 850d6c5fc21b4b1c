package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/sealbox/sealbox/internal/auth"
	"github.com/sealbox/sealbox/internal/download"
	"github.com/sealbox/sealbox/internal/invite"
	"github.com/sealbox/sealbox/internal/object"
	"github.com/sealbox/sealbox/internal/upload"
)

// APIResponse is the JSON envelope for all API endpoints.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
	logrus.WithField("error", message).WithField("status", statusCode).Warn("API error")
}

// handleManagerError maps manager sentinels onto HTTP status codes. NotFound
// covers absent, expired, and consumed objects alike so a caller cannot
// distinguish them. Gone marks resources that existed but can no longer be
// used.
func (s *Server) handleManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, object.ErrNotFound):
		s.writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, object.ErrPasswordRequired):
		s.writeError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, object.ErrPasswordMismatch):
		s.writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, object.ErrInvalidID),
		errors.Is(err, object.ErrInvalidFilename),
		errors.Is(err, object.ErrFileTooLarge),
		errors.Is(err, upload.ErrEmptyUpload):
		s.writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, upload.ErrSessionNotFound),
		errors.Is(err, invite.ErrLinkNotFound),
		errors.Is(err, download.ErrTokenNotFound):
		s.writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, upload.ErrSessionExpired),
		errors.Is(err, invite.ErrLinkExpired),
		errors.Is(err, invite.ErrLinkExhausted),
		errors.Is(err, download.ErrAlreadyDownloaded):
		s.writeError(w, err.Error(), http.StatusGone)
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.Err2FAInvalid):
		s.writeError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, auth.Err2FARequired):
		s.writeError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		s.writeError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, auth.ErrAPIKeyNotFound):
		s.writeError(w, err.Error(), http.StatusNotFound)
	default:
		logrus.WithError(err).Error("Internal error")
		s.writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
