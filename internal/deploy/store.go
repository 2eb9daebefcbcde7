package deploy

import (
	"encoding/json"
	"fmt"
	"time"

	"go_sitegen/internal/model"

	"gorm.io/gorm"
)

// Store is the persistence boundary of the deploy subsystem. Site,
// template and page rows are read-only here; the Deployment row is the
// only thing this subsystem writes.
type Store interface {
	GetSite(id int) (*model.Site, error)
	ListPublishedPages(siteID int) ([]model.Page, error)
	GetClassMapping(siteID, templateID int) (*model.ClassMapping, error)
	SaveClassMapping(m *model.ClassMapping) error

	CreateDeployment(d *model.Deployment) error
	GetDeployment(id int) (*model.Deployment, error)
	ListDeployments(siteID, page, pageSize int) ([]model.Deployment, int64, error)
	HasActiveDeployment(siteID int) (bool, error)
	ClaimOldestPending() (*model.Deployment, error)
	AppendBuildLog(id int, line string) error
	IncrementAttempts(id int) error
	MarkSuccess(id int, commitRef, publishedURL string, files []string) error
	MarkFailed(id int, errMsg string) error
	CancelPending(id int) (bool, error)
}

// GormStore is the MySQL-backed store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates the gorm store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// GetSite loads a site with its template.
func (s *GormStore) GetSite(id int) (*model.Site, error) {
	var site model.Site
	if err := s.db.Preload("Template").First(&site, id).Error; err != nil {
		return nil, err
	}
	return &site, nil
}

// ListPublishedPages returns the site's published pages in order.
func (s *GormStore) ListPublishedPages(siteID int) ([]model.Page, error) {
	var pages []model.Page
	err := s.db.Where("site_id = ? AND published = ?", siteID, true).
		Order("sort_order ASC, id ASC").
		Find(&pages).Error
	return pages, err
}

// GetClassMapping loads the persisted class mapping for (site, template).
func (s *GormStore) GetClassMapping(siteID, templateID int) (*model.ClassMapping, error) {
	var mapping model.ClassMapping
	err := s.db.Where("site_id = ? AND template_id = ?", siteID, templateID).First(&mapping).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// SaveClassMapping upserts the class mapping for (site, template).
func (s *GormStore) SaveClassMapping(m *model.ClassMapping) error {
	var existing model.ClassMapping
	err := s.db.Where("site_id = ? AND template_id = ?", m.SiteID, m.TemplateID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.Create(m).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&existing).Updates(map[string]interface{}{
		"css_hash": m.CSSHash,
		"mapping":  m.Mapping,
	}).Error
}

// CreateDeployment inserts a new pending deployment row.
func (s *GormStore) CreateDeployment(d *model.Deployment) error {
	return s.db.Create(d).Error
}

// GetDeployment loads one deployment.
func (s *GormStore) GetDeployment(id int) (*model.Deployment, error) {
	var dep model.Deployment
	if err := s.db.First(&dep, id).Error; err != nil {
		return nil, err
	}
	return &dep, nil
}

// ListDeployments returns deployments newest-first, optionally filtered by
// site.
func (s *GormStore) ListDeployments(siteID, page, pageSize int) ([]model.Deployment, int64, error) {
	query := s.db.Model(&model.Deployment{})
	if siteID > 0 {
		query = query.Where("site_id = ?", siteID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var deps []model.Deployment
	err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&deps).Error
	return deps, total, err
}

// HasActiveDeployment reports whether a pending/building deployment exists
// for the site.
func (s *GormStore) HasActiveDeployment(siteID int) (bool, error) {
	var count int64
	err := s.db.Model(&model.Deployment{}).
		Where("site_id = ? AND status IN ?", siteID, []string{
			string(model.DeploymentStatusPending),
			string(model.DeploymentStatusBuilding),
		}).
		Count(&count).Error
	return count > 0, err
}

// ClaimOldestPending atomically claims the oldest pending deployment by a
// conditional pending→building update. RowsAffected == 0 means another
// worker won the race; nil is returned when nothing is claimable.
func (s *GormStore) ClaimOldestPending() (*model.Deployment, error) {
	var dep model.Deployment
	err := s.db.Where("status = ?", model.DeploymentStatusPending).
		Order("id ASC").
		First(&dep).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := s.db.Model(&model.Deployment{}).
		Where("id = ? AND status = ?", dep.ID, model.DeploymentStatusPending).
		Updates(map[string]interface{}{
			"status":     model.DeploymentStatusBuilding,
			"started_at": &now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Taken (or cancelled) by someone else in the meantime
		return nil, nil
	}

	dep.Status = model.DeploymentStatusBuilding
	dep.StartedAt = &now
	return &dep, nil
}

// AppendBuildLog appends one line to the deployment's build log. The line
// is persisted before the orchestrator moves to the next step, so pollers
// always observe a strict prefix of the final log.
func (s *GormStore) AppendBuildLog(id int, line string) error {
	return s.db.Model(&model.Deployment{}).
		Where("id = ?", id).
		Update("build_log", gorm.Expr("CONCAT(IFNULL(build_log, ''), ?)", line+"\n")).Error
}

// IncrementAttempts bumps the attempt counter.
func (s *GormStore) IncrementAttempts(id int) error {
	return s.db.Model(&model.Deployment{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

// MarkSuccess finalizes a deployment as successful.
func (s *GormStore) MarkSuccess(id int, commitRef, publishedURL string, files []string) error {
	inventory, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("failed to marshal file inventory: %w", err)
	}
	now := time.Now()
	return s.db.Model(&model.Deployment{}).
		Where("id = ? AND status = ?", id, model.DeploymentStatusBuilding).
		Updates(map[string]interface{}{
			"status":        model.DeploymentStatusSuccess,
			"commit_ref":    commitRef,
			"published_url": publishedURL,
			"files":         inventory,
			"completed_at":  &now,
		}).Error
}

// MarkFailed finalizes a deployment as failed.
func (s *GormStore) MarkFailed(id int, errMsg string) error {
	now := time.Now()
	return s.db.Model(&model.Deployment{}).
		Where("id = ? AND status IN ?", id, []string{
			string(model.DeploymentStatusPending),
			string(model.DeploymentStatusBuilding),
		}).
		Updates(map[string]interface{}{
			"status":       model.DeploymentStatusFailed,
			"error_msg":    errMsg,
			"completed_at": &now,
		}).Error
}

// CancelPending moves a pending deployment to failed. Returns false when
// the deployment was not pending anymore (the conditional update is the
// arbiter, same as the worker claim).
func (s *GormStore) CancelPending(id int) (bool, error) {
	now := time.Now()
	result := s.db.Model(&model.Deployment{}).
		Where("id = ? AND status = ?", id, model.DeploymentStatusPending).
		Updates(map[string]interface{}{
			"status":       model.DeploymentStatusFailed,
			"error_msg":    "cancelled by user",
			"completed_at": &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
