package deploy

import (
	"strings"

	"go_sitegen/internal/httpx"
	"go_sitegen/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Broadcaster pushes deployment lifecycle events to connected panel
// clients. Implemented by internal/ws; a no-op is fine.
type Broadcaster interface {
	DeploymentEvent(dep *model.Deployment, line string)
}

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

// DeploymentEvent implements Broadcaster
func (NopBroadcaster) DeploymentEvent(*model.Deployment, string) {}

// Service is the synchronous trigger/cancel/query boundary in front of the
// orchestrator. Conflict and data errors are rejected here and never reach
// the worker.
type Service struct {
	store     Store
	broadcast Broadcaster
}

// NewService creates the deploy service
func NewService(store Store, broadcast Broadcaster) *Service {
	if broadcast == nil {
		broadcast = NopBroadcaster{}
	}
	return &Service{store: store, broadcast: broadcast}
}

// Trigger creates a new pending deployment for the site. It refuses with a
// conflict error when a pending/building deployment already exists, so at
// most one orchestration per site is in flight.
func (s *Service) Trigger(siteID int) (*model.Deployment, *httpx.AppError) {
	site, err := s.store.GetSite(siteID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, httpx.ErrNotFound("site not found")
		}
		return nil, httpx.ErrDatabaseError("failed to query site", err)
	}
	if site.Status != model.SiteStatusActive {
		return nil, httpx.ErrStateConflict("site is inactive")
	}

	active, err := s.store.HasActiveDeployment(siteID)
	if err != nil {
		return nil, httpx.ErrDatabaseError("failed to check active deployments", err)
	}
	if active {
		return nil, httpx.ErrAlreadyExists("a deployment for this site is already in progress")
	}

	dep := &model.Deployment{
		SiteID: siteID,
		Status: model.DeploymentStatusPending,
	}
	if err := s.store.CreateDeployment(dep); err != nil {
		return nil, httpx.ErrDatabaseError("failed to create deployment", err)
	}

	s.broadcast.DeploymentEvent(dep, "deployment queued")
	return dep, nil
}

// Cancel aborts a pending deployment. Building deployments are not
// cancellable mid-flight.
func (s *Service) Cancel(deploymentID int) *httpx.AppError {
	dep, err := s.store.GetDeployment(deploymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return httpx.ErrNotFound("deployment not found")
		}
		return httpx.ErrDatabaseError("failed to query deployment", err)
	}
	if dep.Status != model.DeploymentStatusPending {
		if dep.Status.IsTerminal() {
			return httpx.ErrStateConflict("deployment already finished")
		}
		return httpx.ErrStateConflict("only pending deployments can be cancelled")
	}

	cancelled, err := s.store.CancelPending(deploymentID)
	if err != nil {
		return httpx.ErrDatabaseError("failed to cancel deployment", err)
	}
	if !cancelled {
		// Lost the race against the worker claim
		return httpx.ErrStateConflict("deployment already started")
	}

	// Append and broadcast are independent best-effort steps; the row is
	// already failed either way.
	if err := s.store.AppendBuildLog(deploymentID, "cancelled by user"); err != nil {
		logrus.WithError(err).WithField("deployment", deploymentID).Warn("failed to append build log")
	}
	dep.Status = model.DeploymentStatusFailed
	s.broadcast.DeploymentEvent(dep, "cancelled by user")
	return nil
}

// Get returns one deployment.
func (s *Service) Get(deploymentID int) (*model.Deployment, *httpx.AppError) {
	dep, err := s.store.GetDeployment(deploymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, httpx.ErrNotFound("deployment not found")
		}
		return nil, httpx.ErrDatabaseError("failed to query deployment", err)
	}
	return dep, nil
}

// Logs returns the deployment's build log as ordered lines plus the
// current status.
func (s *Service) Logs(deploymentID int) (model.DeploymentStatus, []string, *httpx.AppError) {
	dep, appErr := s.Get(deploymentID)
	if appErr != nil {
		return "", nil, appErr
	}

	var lines []string
	if dep.BuildLog != "" {
		lines = strings.Split(strings.TrimRight(dep.BuildLog, "\n"), "\n")
	}
	return dep.Status, lines, nil
}

// List returns deployments newest-first, optionally filtered by site.
func (s *Service) List(siteID, page, pageSize int) ([]model.Deployment, int64, *httpx.AppError) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	deps, total, err := s.store.ListDeployments(siteID, page, pageSize)
	if err != nil {
		return nil, 0, httpx.ErrDatabaseError("failed to list deployments", err)
	}
	return deps, total, nil
}
