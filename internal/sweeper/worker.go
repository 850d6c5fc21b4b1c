package sweeper

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sealbox/sealbox/internal/invite"
	"github.com/sealbox/sealbox/internal/object"
	"github.com/sealbox/sealbox/internal/upload"
	"github.com/sealbox/sealbox/internal/util"
)

// DefaultInterval is the delay between sweep iterations.
const DefaultInterval = 300 * time.Second

// Worker is the single background reconciler: it purges expired object
// records and directories, expired invite links, and stale upload
// sessions. It is the only component allowed to delete a non-pending
// object without a client asking for it.
type Worker struct {
	objects  object.Manager
	links    invite.Manager
	uploads  upload.Manager
	ticker   *time.Ticker
	stopChan chan struct{}

	// onSweep, when set, observes each iteration's results. Used for
	// metrics reporting.
	onSweep func(Result)
}

// Result summarizes one sweep iteration.
type Result struct {
	ObjectsPurged  int
	LinksPurged    int64
	SessionsPurged int
	BytesReclaimed int64
}

// NewWorker creates a new sweep worker
func NewWorker(objects object.Manager, links invite.Manager, uploads upload.Manager) *Worker {
	return &Worker{
		objects:  objects,
		links:    links,
		uploads:  uploads,
		stopChan: make(chan struct{}),
	}
}

// OnSweep registers an observer for iteration results. Must be called
// before Start.
func (w *Worker) OnSweep(fn func(Result)) {
	w.onSweep = fn
}

// Start begins the sweep loop
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	w.ticker = time.NewTicker(interval)

	logrus.WithField("interval", interval).Info("Sweep worker started")

	// Run immediately on start
	go w.Sweep(ctx)

	go func() {
		for {
			select {
			case <-w.ticker.C:
				w.Sweep(ctx)
			case <-w.stopChan:
				w.ticker.Stop()
				logrus.Info("Sweep worker stopped")
				return
			case <-ctx.Done():
				w.ticker.Stop()
				logrus.Info("Sweep worker stopped due to context cancellation")
				return
			}
		}
	}()
}

// Stop stops the sweep worker
func (w *Worker) Stop() {
	close(w.stopChan)
}

// Sweep runs one reconciliation pass. Errors are logged and never
// propagate: a bad iteration must not kill the loop.
func (w *Worker) Sweep(ctx context.Context) Result {
	logrus.Debug("Sweep iteration starting")

	var result Result
	result.ObjectsPurged = w.purgeExpiredObjects(ctx)
	result.LinksPurged = w.purgeExpiredLinks(ctx)
	result.SessionsPurged, result.BytesReclaimed = w.purgeStaleSessions(ctx)

	if result.ObjectsPurged > 0 || result.LinksPurged > 0 || result.SessionsPurged > 0 {
		logrus.WithFields(logrus.Fields{
			"objects":   result.ObjectsPurged,
			"links":     result.LinksPurged,
			"sessions":  result.SessionsPurged,
			"reclaimed": util.FormatBytes(result.BytesReclaimed),
		}).Info("Sweep iteration reclaimed resources")
	}

	if w.onSweep != nil {
		w.onSweep(result)
	}
	return result
}

// purgeExpiredObjects deletes expired records first, then their
// directories. Directory removal is best-effort per object: one bad
// deletion is logged and the sweep moves on.
func (w *Worker) purgeExpiredObjects(ctx context.Context) int {
	ids, err := w.objects.Store().PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		logrus.WithError(err).Error("Failed to purge expired object records")
		return 0
	}

	for _, id := range ids {
		if err := os.RemoveAll(w.objects.Dir(id)); err != nil {
			logrus.WithError(err).WithField("id", id).Warn("Failed to remove expired object directory")
		}
	}

	return len(ids)
}

func (w *Worker) purgeExpiredLinks(ctx context.Context) int64 {
	deleted, err := w.links.DeleteExpired(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to purge expired invite links")
		return 0
	}
	return deleted
}

func (w *Worker) purgeStaleSessions(ctx context.Context) (int, int64) {
	removed, reclaimed, err := w.uploads.PurgeStale(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to purge stale upload sessions")
		return 0, 0
	}
	return removed, reclaimed
}
