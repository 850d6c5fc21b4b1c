package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type loginRequest struct {
	Password string `json:"password"`
	OTPCode  string `json:"otpCode"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pair, err := s.auth.Login(r.Context(), req.Password, req.OTPCode)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	logrus.Info("Admin login")
	s.writeJSON(w, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := s.decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		s.writeError(w, "refresh token is required", http.StatusBadRequest)
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.writeJSON(w, pair)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.NewPassword) < 8 {
		s.writeError(w, "new password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	if err := s.auth.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		s.handleManagerError(w, err)
		return
	}

	logrus.Info("Admin password changed")
	s.writeJSON(w, map[string]string{"status": "password changed"})
}

func (s *Server) handleTwoFAStatus(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.auth.TwoFAEnabled(r.Context())
	if err != nil {
		s.handleManagerError(w, err)
		return
	}
	s.writeJSON(w, map[string]bool{"enabled": enabled})
}

func (s *Server) handleTwoFASetup(w http.ResponseWriter, r *http.Request) {
	setup, err := s.auth.Setup2FA(r.Context())
	if err != nil {
		s.handleManagerError(w, err)
		return
	}
	s.writeJSON(w, setup)
}

type twoFACodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleTwoFAEnable(w http.ResponseWriter, r *http.Request) {
	var req twoFACodeRequest
	if err := s.decodeJSON(r, &req); err != nil || req.Code == "" {
		s.writeError(w, "verification code is required", http.StatusBadRequest)
		return
	}

	if err := s.auth.Enable2FA(r.Context(), req.Code); err != nil {
		s.handleManagerError(w, err)
		return
	}

	logrus.Info("Two-factor authentication enabled")
	s.writeJSON(w, map[string]bool{"enabled": true})
}

func (s *Server) handleTwoFADisable(w http.ResponseWriter, r *http.Request) {
	var req twoFACodeRequest
	if err := s.decodeJSON(r, &req); err != nil || req.Code == "" {
		s.writeError(w, "verification code is required", http.StatusBadRequest)
		return
	}

	if err := s.auth.Disable2FA(r.Context(), req.Code); err != nil {
		s.handleManagerError(w, err)
		return
	}

	logrus.Info("Two-factor authentication disabled")
	s.writeJSON(w, map[string]bool{"enabled": false})
}

type createAPIKeyRequest struct {
	Label string `json:"label"`
}

func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := s.decodeJSON(r, &req); err != nil || req.Label == "" {
		s.writeError(w, "label is required", http.StatusBadRequest)
		return
	}

	key, plaintext, err := s.auth.CreateAPIKey(r.Context(), req.Label)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	logrus.WithField("label", key.Label).Info("API key created")

	// The plaintext is shown exactly once; only its hash is stored.
	s.writeJSON(w, map[string]interface{}{
		"id":     key.ID,
		"label":  key.Label,
		"prefix": key.Prefix,
		"key":    plaintext,
	})
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.auth.ListAPIKeys(r.Context())
	if err != nil {
		s.handleManagerError(w, err)
		return
	}
	s.writeJSON(w, keys)
}

func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.auth.DeleteAPIKey(r.Context(), id); err != nil {
		s.handleManagerError(w, err)
		return
	}

	logrus.WithField("id", id).Info("API key deleted")
	s.writeJSON(w, map[string]string{"id": id, "status": "deleted"})
}
