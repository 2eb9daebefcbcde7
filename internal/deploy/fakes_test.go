package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go_sitegen/internal/hosting"
	"go_sitegen/internal/model"

	"gorm.io/gorm"
)

// fakeStore is an in-memory Store for runner/service/worker tests.
type fakeStore struct {
	mu          sync.Mutex
	sites       map[int]*model.Site
	pages       map[int][]model.Page
	mappings    map[string]*model.ClassMapping
	deployments map[int]*model.Deployment
	nextID      int

	saveMappingCalls int
	listPagesErr     error
	appendLogErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sites:       map[int]*model.Site{},
		pages:       map[int][]model.Page{},
		mappings:    map[string]*model.ClassMapping{},
		deployments: map[int]*model.Deployment{},
	}
}

func (s *fakeStore) addSite(site *model.Site) {
	s.sites[site.ID] = site
}

func (s *fakeStore) addPage(siteID int, page model.Page) {
	s.pages[siteID] = append(s.pages[siteID], page)
}

func (s *fakeStore) GetSite(id int) (*model.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return site, nil
}

func (s *fakeStore) ListPublishedPages(siteID int) ([]model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listPagesErr != nil {
		return nil, s.listPagesErr
	}
	var published []model.Page
	for _, page := range s.pages[siteID] {
		if page.Published {
			published = append(published, page)
		}
	}
	return published, nil
}

func mappingKey(siteID, templateID int) string {
	return fmt.Sprintf("%d:%d", siteID, templateID)
}

func (s *fakeStore) GetClassMapping(siteID, templateID int) (*model.ClassMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mappings[mappingKey(siteID, templateID)], nil
}

func (s *fakeStore) SaveClassMapping(m *model.ClassMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveMappingCalls++
	s.mappings[mappingKey(m.SiteID, m.TemplateID)] = m
	return nil
}

func (s *fakeStore) CreateDeployment(d *model.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	d.ID = s.nextID
	copied := *d
	s.deployments[d.ID] = &copied
	return nil
}

func (s *fakeStore) GetDeployment(id int) (*model.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.deployments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *dep
	return &copied, nil
}

func (s *fakeStore) ListDeployments(siteID, page, pageSize int) ([]model.Deployment, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.Deployment
	for id := s.nextID; id >= 1; id-- {
		dep, ok := s.deployments[id]
		if !ok {
			continue
		}
		if siteID > 0 && dep.SiteID != siteID {
			continue
		}
		all = append(all, *dep)
	}
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *fakeStore) HasActiveDeployment(siteID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dep := range s.deployments {
		if dep.SiteID == siteID && !dep.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ClaimOldestPending() (*model.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := 1; id <= s.nextID; id++ {
		dep, ok := s.deployments[id]
		if !ok || dep.Status != model.DeploymentStatusPending {
			continue
		}
		now := time.Now()
		dep.Status = model.DeploymentStatusBuilding
		dep.StartedAt = &now
		copied := *dep
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) AppendBuildLog(id int, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendLogErr != nil {
		return s.appendLogErr
	}
	dep, ok := s.deployments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	dep.BuildLog += line + "\n"
	return nil
}

func (s *fakeStore) IncrementAttempts(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dep, ok := s.deployments[id]; ok {
		dep.Attempts++
	}
	return nil
}

func (s *fakeStore) MarkSuccess(id int, commitRef, publishedURL string, files []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.deployments[id]
	if !ok || dep.Status != model.DeploymentStatusBuilding {
		return nil
	}
	inventory, _ := json.Marshal(files)
	now := time.Now()
	dep.Status = model.DeploymentStatusSuccess
	dep.CommitRef = commitRef
	dep.PublishedURL = publishedURL
	dep.Files = inventory
	dep.CompletedAt = &now
	return nil
}

func (s *fakeStore) MarkFailed(id int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.deployments[id]
	if !ok || dep.Status.IsTerminal() {
		return nil
	}
	now := time.Now()
	dep.Status = model.DeploymentStatusFailed
	dep.ErrorMsg = errMsg
	dep.CompletedAt = &now
	return nil
}

func (s *fakeStore) CancelPending(id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.deployments[id]
	if !ok || dep.Status != model.DeploymentStatusPending {
		return false, nil
	}
	now := time.Now()
	dep.Status = model.DeploymentStatusFailed
	dep.ErrorMsg = "cancelled by user"
	dep.CompletedAt = &now
	return true, nil
}

// buildLog returns the current log lines of a deployment.
func (s *fakeStore) buildLog(id int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.deployments[id]
	if !ok || dep.BuildLog == "" {
		return nil
	}
	return splitLines(dep.BuildLog)
}

func splitLines(log string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(log); i++ {
		if log[i] == '\n' {
			lines = append(lines, log[start:i])
			start = i + 1
		}
	}
	if start < len(log) {
		lines = append(lines, log[start:])
	}
	return lines
}

// fakePublisher records hosting calls and supports error injection.
type fakePublisher struct {
	mu         sync.Mutex
	ensureErr  error
	deployErr  error
	ruleErr    error
	manifests  []map[string]string
	rules      []fakeRule
	projectURL string
}

type fakeRule struct {
	pattern  string
	target   string
	priority int
}

func (p *fakePublisher) EnsureProject(_ context.Context, name string) (*hosting.Project, error) {
	if p.ensureErr != nil {
		return nil, p.ensureErr
	}
	return &hosting.Project{ID: "p1", Name: name}, nil
}

func (p *fakePublisher) CreateDeployment(_ context.Context, projectName string, manifest map[string]string) (*hosting.Deployment, error) {
	if p.deployErr != nil {
		return nil, p.deployErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manifests = append(p.manifests, manifest)
	url := p.projectURL
	if url == "" {
		url = "https://" + projectName + ".pages.dev"
	}
	return &hosting.Deployment{ID: "remote-1", URL: url}, nil
}

func (p *fakePublisher) CreateRule(_ context.Context, _, pattern, targetURL string, priority int) error {
	if p.ruleErr != nil {
		return p.ruleErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, fakeRule{pattern: pattern, target: targetURL, priority: priority})
	return nil
}

// fakeStager records staged file sets and cleanups.
type fakeStager struct {
	mu       sync.Mutex
	stageErr error
	staged   []map[string][]byte
	cleaned  []string
	counter  int
}

func (f *fakeStager) Stage(_ context.Context, files map[string][]byte) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	dir := fmt.Sprintf("/stage/tree-%d", f.counter)
	if f.stageErr != nil {
		return "", dir, f.stageErr
	}
	copied := make(map[string][]byte, len(files))
	for path, content := range files {
		copied[path] = content
	}
	f.staged = append(f.staged, copied)
	return fmt.Sprintf("%040d", f.counter), dir, nil
}

func (f *fakeStager) Cleanup(dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, dir)
	return nil
}

// recordingBroadcaster captures broadcast lines in order.
type recordingBroadcaster struct {
	mu    sync.Mutex
	lines []string
}

func (b *recordingBroadcaster) DeploymentEvent(_ *model.Deployment, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
}
