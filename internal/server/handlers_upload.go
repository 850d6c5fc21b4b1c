package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/sealbox/sealbox/internal/object"
)

type uploadStartRequest struct {
	Filename string `json:"filename"`
}

func (s *Server) handleUploadStart(w http.ResponseWriter, r *http.Request) {
	id, ok := s.objectID(w, r)
	if !ok {
		return
	}

	var req uploadStartRequest
	if err := s.decodeJSON(r, &req); err != nil || req.Filename == "" {
		s.writeError(w, "filename is required", http.StatusBadRequest)
		return
	}

	obj, err := s.objects.Get(r.Context(), id)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}
	if obj.Consumed {
		s.handleManagerError(w, object.ErrNotFound)
		return
	}

	limits := s.settings.Limits()
	if obj.FileCount >= limits.MaxFileCount {
		s.writeError(w, "object already has the maximum number of files", http.StatusBadRequest)
		return
	}

	session, err := s.uploads.Start(r.Context(), id, req.Filename)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.metrics.UploadStarted()
	s.writeJSON(w, map[string]string{
		"uploadId": session.ID,
		"filename": session.Filename,
	})
}

func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request) {
	id, ok := s.objectID(w, r)
	if !ok {
		return
	}
	uploadID := mux.Vars(r)["uploadId"]

	// 0-based; indices are taken as supplied, never reordered.
	partIndex, err := strconv.Atoi(mux.Vars(r)["partIndex"])
	if err != nil || partIndex < 0 {
		s.writeError(w, "invalid part index", http.StatusBadRequest)
		return
	}

	limits := s.settings.Limits()
	session, err := s.uploads.ReceivePart(r.Context(), id, uploadID, r.Body, limits.MaxFileSize)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"partIndex":    partIndex,
		"bytesWritten": session.TotalSize,
	})
}

type uploadCompleteRequest struct {
	Finalize bool `json:"finalize"`
}

func (s *Server) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.objectID(w, r)
	if !ok {
		return
	}
	uploadID := mux.Vars(r)["uploadId"]

	var req uploadCompleteRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := s.decodeJSON(r, &req); err != nil {
			s.writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	session, err := s.uploads.Complete(r.Context(), id, uploadID, req.Finalize)
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.metrics.UploadCompleted()
	logrus.WithFields(logrus.Fields{
		"object":   id,
		"filename": session.Filename,
		"size":     session.TotalSize,
	}).Info("Upload completed")

	s.writeJSON(w, map[string]interface{}{
		"filename": session.Filename,
		"size":     session.TotalSize,
	})
}

func (s *Server) handleUploadAbort(w http.ResponseWriter, r *http.Request) {
	id, ok := s.objectID(w, r)
	if !ok {
		return
	}

	if err := s.uploads.Abort(r.Context(), id, mux.Vars(r)["uploadId"]); err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.metrics.UploadAborted()
	s.writeJSON(w, map[string]string{"status": "aborted"})
}
