package deploy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go_sitegen/internal/model"
)

func newTestWorker(f *runnerFixture, maxAttempts int) *Worker {
	w := NewWorker(WorkerConfig{
		Store:       f.store,
		Runner:      f.runner,
		Broadcast:   f.broadcast,
		MaxAttempts: maxAttempts,
	})
	w.backoffBase = time.Millisecond
	return w
}

func TestRunOnce_NothingPending(t *testing.T) {
	f := newRunnerFixture(t)
	w := newTestWorker(f, 3)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Errorf("RunOnce() error = %v", err)
	}
	if len(f.stager.staged) != 0 {
		t.Error("Expected no work without pending deployments")
	}
}

func TestRunOnce_Success(t *testing.T) {
	f := newRunnerFixture(t)
	f.store.addSite(siteWithTemplate(1))
	f.store.addPage(1, publishedPage(1, "index", "Home"))
	f.store.CreateDeployment(&model.Deployment{SiteID: 1, Status: model.DeploymentStatusPending})
	w := newTestWorker(f, 3)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	dep, _ := f.store.GetDeployment(1)
	if dep.Status != model.DeploymentStatusSuccess {
		t.Errorf("Status = %s, want success", dep.Status)
	}
	if dep.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", dep.Attempts)
	}
	if !strings.Contains(dep.BuildLog, "build started") {
		t.Errorf("Expected trace line in build log: %q", dep.BuildLog)
	}
}

func TestRunOnce_FatalErrorNotRetried(t *testing.T) {
	f := newRunnerFixture(t)
	f.store.addSite(siteWithTemplate(1)) // no published pages
	f.store.CreateDeployment(&model.Deployment{SiteID: 1, Status: model.DeploymentStatusPending})
	w := newTestWorker(f, 3)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	dep, _ := f.store.GetDeployment(1)
	if dep.Status != model.DeploymentStatusFailed {
		t.Fatalf("Status = %s, want failed", dep.Status)
	}
	if dep.Attempts != 1 {
		t.Errorf("Attempts = %d, fatal errors must not retry", dep.Attempts)
	}
	if !strings.Contains(dep.ErrorMsg, "no published pages") {
		t.Errorf("ErrorMsg = %q", dep.ErrorMsg)
	}

	// The error text is the final build-log line
	log := f.store.buildLog(dep.ID)
	if len(log) == 0 || !strings.Contains(log[len(log)-1], "no published pages") {
		t.Errorf("Expected error as final log line, got %v", log)
	}
}

func TestRunOnce_TransientErrorRetriedToExhaustion(t *testing.T) {
	f := newRunnerFixture(t)
	f.publisher.deployErr = errors.New("upstream timeout")
	f.store.addSite(siteWithTemplate(1))
	f.store.addPage(1, publishedPage(1, "index", "Home"))
	f.store.CreateDeployment(&model.Deployment{SiteID: 1, Status: model.DeploymentStatusPending})
	w := newTestWorker(f, 3)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	dep, _ := f.store.GetDeployment(1)
	if dep.Status != model.DeploymentStatusFailed {
		t.Fatalf("Status = %s, want failed", dep.Status)
	}
	if dep.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", dep.Attempts)
	}
	if !strings.Contains(dep.BuildLog, "attempt 1 failed") || !strings.Contains(dep.BuildLog, "attempt 2 failed") {
		t.Errorf("Expected retry lines in build log: %q", dep.BuildLog)
	}
	if !strings.Contains(dep.ErrorMsg, "upstream timeout") {
		t.Errorf("ErrorMsg = %q", dep.ErrorMsg)
	}
}

func TestRunOnce_TransientErrorRecovers(t *testing.T) {
	f := newRunnerFixture(t)
	f.publisher.deployErr = errors.New("upstream timeout")
	f.store.addSite(siteWithTemplate(1))
	f.store.addPage(1, publishedPage(1, "index", "Home"))
	f.store.CreateDeployment(&model.Deployment{SiteID: 1, Status: model.DeploymentStatusPending})

	// Heal the publisher after the first attempt fails
	calls := 0
	w := NewWorker(WorkerConfig{
		Store: f.store,
		Runner: NewRunner(RunnerConfig{
			Store:  f.store,
			Stager: f.stager,
			NewPublisher: func() (Publisher, error) {
				calls++
				if calls > 1 {
					f.publisher.deployErr = nil
				}
				return f.publisher, nil
			},
			Broadcast: f.broadcast,
		}),
		MaxAttempts: 3,
	})
	w.backoffBase = time.Millisecond

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	dep, _ := f.store.GetDeployment(1)
	if dep.Status != model.DeploymentStatusSuccess {
		t.Fatalf("Status = %s, want success after retry", dep.Status)
	}
	if dep.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", dep.Attempts)
	}
}

func TestRunOnce_ProcessesOldestFirst(t *testing.T) {
	f := newRunnerFixture(t)
	f.store.addSite(siteWithTemplate(1))
	f.store.addPage(1, publishedPage(1, "index", "Home"))
	f.store.CreateDeployment(&model.Deployment{SiteID: 1, Status: model.DeploymentStatusPending})
	site2 := siteWithTemplate(2)
	site2.Domain = "other.com"
	f.store.addSite(site2)
	f.store.addPage(2, publishedPage(2, "index", "Home"))
	f.store.CreateDeployment(&model.Deployment{SiteID: 2, Status: model.DeploymentStatusPending})
	w := newTestWorker(f, 3)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	first, _ := f.store.GetDeployment(1)
	second, _ := f.store.GetDeployment(2)
	if first.Status != model.DeploymentStatusSuccess {
		t.Errorf("Oldest deployment status = %s, want success", first.Status)
	}
	if second.Status != model.DeploymentStatusPending {
		t.Errorf("Newer deployment status = %s, want still pending", second.Status)
	}
}

func TestRunOnce_CancelDuringBackoffKeepsPipelineError(t *testing.T) {
	f := newRunnerFixture(t)
	f.publisher.deployErr = errors.New("upstream timeout")
	f.store.addSite(siteWithTemplate(1))
	f.store.addPage(1, publishedPage(1, "index", "Home"))
	f.store.CreateDeployment(&model.Deployment{SiteID: 1, Status: model.DeploymentStatusPending})
	w := newTestWorker(f, 3)
	w.backoffBase = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()

	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	dep, _ := f.store.GetDeployment(1)
	if dep.Status != model.DeploymentStatusFailed {
		t.Fatalf("Status = %s, want failed", dep.Status)
	}
	if !strings.Contains(dep.ErrorMsg, "upstream timeout") {
		t.Errorf("ErrorMsg = %q, want the retried failure", dep.ErrorMsg)
	}
	if strings.Contains(dep.ErrorMsg, "context canceled") {
		t.Errorf("ErrorMsg = %q, shutdown must not mask the failure", dep.ErrorMsg)
	}
	if !strings.Contains(dep.BuildLog, "retries abandoned") {
		t.Errorf("Expected shutdown note in build log: %q", dep.BuildLog)
	}
}

func TestRunOnce_CancelledContextStops(t *testing.T) {
	f := newRunnerFixture(t)
	f.publisher.deployErr = errors.New("upstream timeout")
	f.store.addSite(siteWithTemplate(1))
	f.store.addPage(1, publishedPage(1, "index", "Home"))
	f.store.CreateDeployment(&model.Deployment{SiteID: 1, Status: model.DeploymentStatusPending})
	w := newTestWorker(f, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	dep, _ := f.store.GetDeployment(1)
	if dep.Status != model.DeploymentStatusFailed {
		t.Errorf("Status = %s, want failed", dep.Status)
	}
	if dep.Attempts != 1 {
		t.Errorf("Attempts = %d, cancelled context must not retry", dep.Attempts)
	}
}
