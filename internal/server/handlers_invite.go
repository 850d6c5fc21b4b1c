package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func (s *Server) handleInviteCheck(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	result, err := s.invites.Check(r.Context(), token)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.writeJSON(w, result)
}

type inviteCreateRequest struct {
	Label     string `json:"label"`
	ExpiresIn int64  `json:"expiresIn"` // seconds, 0 = never
}

func (s *Server) handleInviteCreate(w http.ResponseWriter, r *http.Request) {
	var req inviteCreateRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ExpiresIn < 0 {
		s.writeError(w, "expiresIn must not be negative", http.StatusBadRequest)
		return
	}

	link, err := s.invites.Create(r.Context(), req.Label, req.ExpiresIn)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"token": link.Token,
		"label": link.Label,
	}).Info("Invite link created")

	s.writeJSON(w, map[string]interface{}{
		"token":     link.Token,
		"label":     link.Label,
		"password":  link.Password,
		"maxUses":   link.MaxUses,
		"expiresAt": link.ExpiresAt,
	})
}

func (s *Server) handleInviteList(w http.ResponseWriter, r *http.Request) {
	links, err := s.invites.List(r.Context())
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.writeJSON(w, links)
}

type inviteLabelRequest struct {
	Label string `json:"label"`
}

func (s *Server) handleInviteUpdateLabel(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	var req inviteLabelRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.invites.UpdateLabel(r.Context(), token, req.Label); err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.writeJSON(w, map[string]string{"token": token, "label": req.Label})
}

func (s *Server) handleInviteDelete(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	link, err := s.invites.Get(r.Context(), token)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	// Destroying the bound object is opt-in; the link row goes away either
	// way.
	if r.URL.Query().Get("destroyObject") == "true" && link.ObjectID != "" {
		if err := s.objects.Remove(r.Context(), link.ObjectID); err != nil {
			logrus.WithError(err).WithField("object", link.ObjectID).Warn("Failed to remove object bound to deleted invite")
		} else {
			s.downloads.Forget(link.ObjectID)
		}
	}

	if err := s.invites.Delete(r.Context(), token); err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.writeJSON(w, map[string]string{"token": token, "status": "deleted"})
}
