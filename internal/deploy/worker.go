package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go_sitegen/internal/model"
)

// Worker scans for pending deployments, claims them one at a time and
// drives the runner with bounded retries. The conditional status update in
// ClaimOldestPending is the atomic arbiter when several workers race.
type Worker struct {
	store       Store
	runner      *Runner
	broadcast   Broadcaster
	logger      *logrus.Entry
	interval    time.Duration
	maxAttempts int
	backoffBase time.Duration
}

// WorkerConfig holds the worker wiring.
type WorkerConfig struct {
	Store       Store
	Runner      *Runner
	Broadcast   Broadcaster
	Logger      *logrus.Entry
	IntervalSec int
	MaxAttempts int
}

// NewWorker creates a deploy worker
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	broadcast := cfg.Broadcast
	if broadcast == nil {
		broadcast = NopBroadcaster{}
	}
	interval := time.Duration(cfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		store:       cfg.Store,
		runner:      cfg.Runner,
		broadcast:   broadcast,
		logger:      logger.WithField("component", "deploy-worker"),
		interval:    interval,
		maxAttempts: maxAttempts,
		backoffBase: 2 * time.Second,
	}
}

// RunOnce claims and executes at most one pending deployment.
func (w *Worker) RunOnce(ctx context.Context) error {
	dep, err := w.store.ClaimOldestPending()
	if err != nil {
		w.logger.WithError(err).Error("failed to claim pending deployment")
		return err
	}
	if dep == nil {
		return nil
	}

	w.logger.WithFields(logrus.Fields{
		"deployment": dep.ID,
		"site":       dep.SiteID,
	}).Info("claimed deployment")

	w.execute(ctx, dep)
	return nil
}

// execute runs up to maxAttempts full pipeline attempts for one claimed
// deployment. Every attempt restarts from zero: the ephemeral tree of a
// failed attempt is never reused.
func (w *Worker) execute(ctx context.Context, dep *model.Deployment) {
	traceID := uuid.NewString()[:8]
	w.appendLog(dep, fmt.Sprintf("build started (trace %s)", traceID))
	w.broadcast.DeploymentEvent(dep, "build started")

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err := w.store.IncrementAttempts(dep.ID); err != nil {
			w.logger.WithError(err).Warn("failed to bump attempt counter")
		}

		lastErr = w.runner.Run(ctx, dep)
		if lastErr == nil {
			w.logger.WithField("deployment", dep.ID).Info("deployment succeeded")
			return
		}

		if IsFatal(lastErr) || ctx.Err() != nil {
			break
		}

		if attempt < w.maxAttempts {
			backoff := w.backoffBase * time.Duration(1<<(attempt-1))
			w.appendLog(dep, fmt.Sprintf("attempt %d failed: %v (retrying in %s)", attempt, lastErr, backoff))
			select {
			case <-ctx.Done():
				// Keep lastErr: the failure being retried is what the
				// deployment should report, not the shutdown.
				w.appendLog(dep, "retries abandoned: worker shutting down")
			case <-time.After(backoff):
				continue
			}
			break
		}
	}

	// Terminal failure: the error text is the final build-log line.
	errMsg := lastErr.Error()
	w.appendLog(dep, errMsg)
	if err := w.store.MarkFailed(dep.ID, errMsg); err != nil {
		w.logger.WithError(err).WithField("deployment", dep.ID).Error("failed to mark deployment failed")
	}
	dep.Status = model.DeploymentStatusFailed
	w.broadcast.DeploymentEvent(dep, errMsg)
	w.logger.WithFields(logrus.Fields{
		"deployment": dep.ID,
		"error":      errMsg,
	}).Error("deployment failed")
}

// RunLoop executes deployments until the context is cancelled.
func (w *Worker) RunLoop(ctx context.Context) {
	w.logger.WithField("interval", w.interval).Info("starting deploy worker loop")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Drain anything already queued before the first tick
	if err := w.RunOnce(ctx); err != nil {
		w.logger.WithError(err).Error("initial run failed")
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("deploy worker loop stopped")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.WithError(err).Error("run failed")
			}
		}
	}
}

func (w *Worker) appendLog(dep *model.Deployment, line string) {
	if err := w.store.AppendBuildLog(dep.ID, line); err != nil {
		w.logger.WithError(err).WithField("deployment", dep.ID).Warn("failed to append build log")
	}
}
