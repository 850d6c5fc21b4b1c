package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
)

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.settings.ListAll()
	if err != nil {
		s.handleManagerError(w, err)
		return
	}
	s.writeJSON(w, all)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := s.decodeJSON(r, &updates); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(updates) == 0 {
		s.writeError(w, "no settings provided", http.StatusBadRequest)
		return
	}

	if err := s.settings.BulkUpdate(updates); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	logrus.WithField("count", len(updates)).Info("Settings updated")
	s.writeJSON(w, map[string]int{"updated": len(updates)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	objects, err := s.objects.List(r.Context())
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	var totalSize int64
	var withText, withFiles, autodestroy int
	now := time.Now().UTC()
	items := make([]map[string]interface{}, 0, len(objects))
	for _, obj := range objects {
		totalSize += obj.TotalSize
		if obj.HasText {
			withText++
		}
		if obj.FileCount > 0 {
			withFiles++
		}
		if obj.Autodestroy {
			autodestroy++
		}
		expiresIn := int64(obj.ExpiresAt().Sub(now).Seconds())
		if expiresIn < 0 {
			expiresIn = 0
		}
		items = append(items, map[string]interface{}{
			"id":          obj.ID,
			"created":     obj.Created,
			"expiresIn":   expiresIn,
			"hasPassword": obj.PasswordHash != "",
			"hasText":     obj.HasText,
			"fileCount":   obj.FileCount,
			"totalSize":   obj.TotalSize,
			"autodestroy": obj.Autodestroy,
			"consumed":    obj.Consumed,
			"pending":     obj.Pending,
			"views":       obj.Views,
		})
	}

	s.metrics.SetInventory(len(objects), totalSize)

	stats := map[string]interface{}{
		"objects":     len(objects),
		"withText":    withText,
		"withFiles":   withFiles,
		"autodestroy": autodestroy,
		"totalSize":   totalSize,
		"items":       items,
		"uptime":      int64(time.Since(s.startTime).Seconds()),
	}

	if usage, err := disk.Usage(s.config.DataDir); err == nil {
		stats["disk"] = map[string]interface{}{
			"totalBytes":  usage.Total,
			"usedBytes":   usage.Used,
			"freeBytes":   usage.Free,
			"usedPercent": usage.UsedPercent,
		}
	} else {
		logrus.WithError(err).Warn("Failed to read disk usage")
	}

	s.writeJSON(w, stats)
}

func (s *Server) handleAdminListObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := s.objects.List(r.Context())
	if err != nil {
		s.handleManagerError(w, err)
		return
	}
	s.writeJSON(w, objects)
}

func (s *Server) handleAdminDeleteObject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.objectID(w, r)
	if !ok {
		return
	}

	if err := s.objects.Remove(r.Context(), id); err != nil {
		s.handleManagerError(w, err)
		return
	}

	s.downloads.Forget(id)
	if err := s.invites.Release(r.Context(), id); err != nil {
		logrus.WithError(err).WithField("object", id).Warn("Failed to release invite link")
	}

	s.metrics.ObjectDestroyed()
	logrus.WithField("object", id).Info("Object deleted by admin")
	s.writeJSON(w, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleAdminDeleteAll(w http.ResponseWriter, r *http.Request) {
	objects, err := s.objects.List(r.Context())
	if err != nil {
		s.handleManagerError(w, err)
		return
	}
	for _, obj := range objects {
		s.downloads.Forget(obj.ID)
		if err := s.invites.Release(r.Context(), obj.ID); err != nil {
			logrus.WithError(err).WithField("object", obj.ID).Warn("Failed to release invite link")
		}
	}

	removed, err := s.objects.RemoveAll(r.Context())
	if err != nil {
		s.handleManagerError(w, err)
		return
	}

	logrus.WithField("removed", removed).Info("All objects deleted by admin")
	s.writeJSON(w, map[string]int64{"removed": removed})
}
