package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/sealbox/sealbox/internal/auth"
	"github.com/sealbox/sealbox/internal/invite"
	"github.com/sealbox/sealbox/internal/object"
	"github.com/sealbox/sealbox/internal/settings"
	"github.com/sealbox/sealbox/internal/util"
)

// multipartMemoryLimit bounds how much of a create request is buffered in
// memory before fields spill to temporary files.
const multipartMemoryLimit = 32 << 20

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	limits := s.settings.Limits()
	s.writeJSON(w, map[string]interface{}{
		"service":       "sealbox",
		"mode":          s.settings.Mode(),
		"maxTextLength": limits.MaxTextLength,
		"maxFileCount":  limits.MaxFileCount,
		"maxFileSize":   limits.MaxFileSize,
		"maxRetention":  limits.MaxRetention,
		"uptime":        int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		s.writeError(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	limits := s.settings.Limits()
	inviteToken := r.FormValue("invite")

	var link *invite.Link
	if inviteToken != "" {
		var err error
		link, err = s.invites.ValidateForCreation(r.Context(), inviteToken)
		if err != nil {
			s.handleManagerError(w, err)
			return
		}
	}

	if s.settings.Mode() == settings.ModePrivate && link == nil && !s.auth.Authenticated(r) {
		s.writeError(w, "creation requires authentication or an invite link", http.StatusUnauthorized)
		return
	}

	text := r.FormValue("text")
	if len(text) > limits.MaxTextLength {
		s.writeError(w, "text exceeds maximum length", http.StatusBadRequest)
		return
	}

	retentionSpec := r.FormValue("retention")
	if retentionSpec == "" {
		retentionSpec = "1h"
	}
	retention, err := util.ParseDuration(retentionSpec)
	if err != nil {
		s.writeError(w, "invalid retention", http.StatusBadRequest)
		return
	}
	if retention < settings.MinRetention {
		s.writeError(w, "retention must be at least 1 minute", http.StatusBadRequest)
		return
	}
	if retention > limits.MaxRetention {
		s.writeError(w, fmt.Sprintf("retention cannot exceed %s", util.FormatDuration(limits.MaxRetention)), http.StatusBadRequest)
		return
	}

	password := r.FormValue("password")
	if password == "" && link != nil {
		password = link.Password
	}
	passwordHash := ""
	if password != "" {
		passwordHash = auth.HashObjectPassword(password)
	}

	autodestroy := parseBool(r.FormValue("autodestroy"))
	pending := parseBool(r.FormValue("pending"))

	var inlineFiles []object.InlineFile
	if r.MultipartForm != nil {
		headers := r.MultipartForm.File["files"]
		if len(headers) > limits.MaxFileCount {
			s.writeError(w, "too many files", http.StatusBadRequest)
			return
		}
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				s.writeError(w, "failed to read uploaded file", http.StatusBadRequest)
				return
			}
			defer f.Close()
			inlineFiles = append(inlineFiles, object.InlineFile{Filename: fh.Filename, Data: f})
		}
	}

	// A pending create is allowed to start empty: its files arrive through
	// upload sessions afterwards.
	if strings.TrimSpace(text) == "" && len(inlineFiles) == 0 && !pending {
		s.writeError(w, "must provide either text or files", http.StatusBadRequest)
		return
	}

	id, err := s.objects.Allocate(r.Context())
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	obj, err := s.objects.Create(r.Context(), object.CreateParams{
		ID:           id,
		PasswordHash: passwordHash,
		Retention:    retention,
		Text:         text,
		InlineFiles:  inlineFiles,
		Autodestroy:  autodestroy,
		Pending:      pending,
		MaxFileSize:  limits.MaxFileSize,
	})
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	if link != nil {
		if err := s.invites.Bind(r.Context(), link.Token, id, passwordHash != ""); err != nil {
			// The link was consumed by a concurrent creation; the object
			// created here must not outlive its authorization.
			if rmErr := s.objects.Remove(r.Context(), id); rmErr != nil {
				logrus.WithError(rmErr).WithField("object", id).Error("Failed to remove object after bind failure")
			}
			s.handleManagerError(w, err)
			return
		}
	}

	s.metrics.ObjectCreated()

	logrus.WithFields(logrus.Fields{
		"object":      id,
		"files":       obj.FileCount,
		"autodestroy": obj.Autodestroy,
		"retention":   retention,
		"invited":     link != nil,
	}).Info("Object created")

	if link != nil {
		s.writeJSON(w, map[string]string{"id": id})
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"id":          id,
		"expiresIn":   util.FormatDuration(retention),
		"hasPassword": passwordHash != "",
		"autodestroy": obj.Autodestroy,
		"fileCount":   obj.FileCount,
		"totalSize":   obj.TotalSize,
	})
}

type openRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	id, ok := s.objectID(w, r)
	if !ok {
		return
	}

	var req openRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := s.decodeJSON(r, &req); err != nil {
			s.writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	result, err := s.objects.Open(r.Context(), id, hashIfSet(req.Password))
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.metrics.ObjectOpened()

	files := make([]map[string]interface{}, 0, len(result.Object.Files))
	for _, f := range result.Object.Files {
		files = append(files, map[string]interface{}{
			"filename": f.Filename,
			"size":     f.Size,
		})
	}

	s.writeJSON(w, map[string]interface{}{
		"id":          result.Object.ID,
		"text":        result.Text,
		"hasText":     result.Object.HasText,
		"remaining":   result.Remaining,
		"expiresIn":   util.FormatDuration(result.Remaining),
		"files":       files,
		"autodestroy": result.Object.Autodestroy,
		"views":       result.Views,
	})
}

type destroyRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	id, ok := s.objectID(w, r)
	if !ok {
		return
	}

	var req destroyRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := s.decodeJSON(r, &req); err != nil {
			s.writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := s.objects.Destroy(r.Context(), id, hashIfSet(req.Password)); err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.downloads.Forget(id)
	if err := s.invites.Release(r.Context(), id); err != nil {
		logrus.WithError(err).WithField("object", id).Warn("Failed to release invite link")
	}

	s.metrics.ObjectDestroyed()
	logrus.WithField("object", id).Info("Object destroyed")
	s.writeJSON(w, map[string]string{"id": id, "status": "destroyed"})
}

// objectID extracts and validates the {id} route variable. A malformed
// identifier is rejected up front rather than surfacing as a record miss.
func (s *Server) objectID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if !object.ValidID(id) {
		s.handleManagerError(w, object.ErrInvalidID)
		return "", false
	}
	return id, true
}

func hashIfSet(password string) string {
	if password == "" {
		return ""
	}
	return auth.HashObjectPassword(password)
}

func parseBool(value string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && b
}
