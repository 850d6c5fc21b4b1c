package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/sealbox/sealbox/internal/download"
	"github.com/sealbox/sealbox/internal/object"
)

type downloadIssueRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleDownloadIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := s.objectID(w, r)
	if !ok {
		return
	}
	filename := mux.Vars(r)["filename"]

	var req downloadIssueRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := s.decodeJSON(r, &req); err != nil {
			s.writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	obj, err := s.objects.Verify(r.Context(), id, hashIfSet(req.Password))
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	registered := false
	for _, f := range obj.Files {
		if f.Filename == filename {
			registered = true
			break
		}
	}
	if !registered {
		s.writeError(w, "file not found", http.StatusNotFound)
		return
	}

	if obj.Autodestroy && !obj.Consumed {
		s.writeError(w, "object must be opened before its files can be downloaded", http.StatusForbidden)
		return
	}

	path := filepath.Join(s.objects.Dir(id), filename)
	info, err := os.Stat(path)
	if err != nil {
		s.handleManagerError(w, object.ErrNotFound)
		return
	}

	token, err := s.downloads.Issue(download.Grant{
		ObjectID: id,
		Filename: filename,
		Path:     path,
		Size:     info.Size(),
		Once:     obj.Autodestroy,
	})
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.metrics.TokenIssued()

	base := strings.TrimSuffix(s.config.PublicURL, "/")
	s.writeJSON(w, map[string]interface{}{
		"token":     token,
		"url":       fmt.Sprintf("%s/api/download/%s", base, token),
		"filename":  filename,
		"size":      info.Size(),
		"expiresIn": int64(download.TokenTTL.Seconds()),
	})
}

func (s *Server) handleDownloadRedeem(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	grant, err := s.downloads.Redeem(token)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	f, err := os.Open(grant.Path)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"object":   grant.ObjectID,
			"filename": grant.Filename,
		}).Error("Download file missing after token redemption")
		s.writeError(w, "file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	s.metrics.TokenRedeemed()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", grant.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", grant.Size))
	if _, err := io.Copy(w, f); err != nil {
		logrus.WithError(err).WithField("object", grant.ObjectID).Warn("Download interrupted")
	}
}
