package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"go_sitegen/internal/favicon"
	"go_sitegen/internal/hosting"
	"go_sitegen/internal/model"
	"go_sitegen/internal/render"
	"go_sitegen/internal/unique"
)

// Publisher is the remote hosting surface the runner needs. Satisfied by
// *hosting.Client.
type Publisher interface {
	EnsureProject(ctx context.Context, name string) (*hosting.Project, error)
	CreateDeployment(ctx context.Context, projectName string, manifest map[string]string) (*hosting.Deployment, error)
	CreateRule(ctx context.Context, projectName, pattern, targetURL string, priority int) error
}

// RepoStager stages a generated file set into a disposable working tree.
// Satisfied by *stage.Stager.
type RepoStager interface {
	Stage(ctx context.Context, files map[string][]byte) (commitRef, dir string, err error)
	Cleanup(dir string) error
}

// fatalError marks failures that must not be retried (configuration and
// data errors); everything else is treated as transient.
type fatalError struct {
	err error
}

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

func fatalf(format string, args ...interface{}) error {
	return fatalError{err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether an orchestration error is non-retryable.
func IsFatal(err error) bool {
	_, ok := err.(fatalError)
	return ok
}

// Runner drives one deployment end to end: render, uniquify, favicons,
// stage, publish, routing rules. Every step appends a persisted build-log
// line before the next step starts.
type Runner struct {
	store        Store
	renderer     *render.Renderer
	engine       *unique.Engine
	pools        unique.Pools
	mappingCache unique.MappingCache
	favicons     *favicon.Pipeline
	stager       RepoStager
	newPublisher func() (Publisher, error)
	readFavicon  func(path string) ([]byte, error)
	broadcast    Broadcaster
	logger       *logrus.Entry

	publishTimeout time.Duration
}

// RunnerConfig wires the runner's collaborators.
type RunnerConfig struct {
	Store        Store
	Pools        unique.Pools
	MappingCache unique.MappingCache
	Stager       RepoStager
	NewPublisher func() (Publisher, error)
	ReadFavicon  func(path string) ([]byte, error) // defaults to os.ReadFile
	Broadcast    Broadcaster
	Logger       *logrus.Entry

	PublishTimeout time.Duration
}

// NewRunner creates a runner
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	broadcast := cfg.Broadcast
	if broadcast == nil {
		broadcast = NopBroadcaster{}
	}
	readFavicon := cfg.ReadFavicon
	if readFavicon == nil {
		readFavicon = os.ReadFile
	}
	mappingCache := cfg.MappingCache
	if mappingCache == nil {
		mappingCache = unique.NewMemoryMappingCache()
	}
	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = 60 * time.Second
	}
	return &Runner{
		store:          cfg.Store,
		renderer:       render.NewRenderer(),
		engine:         unique.NewEngine(),
		pools:          cfg.Pools,
		mappingCache:   mappingCache,
		favicons:       favicon.NewPipeline(logger),
		stager:         cfg.Stager,
		newPublisher:   cfg.NewPublisher,
		readFavicon:    readFavicon,
		broadcast:      broadcast,
		logger:         logger.WithField("component", "deploy-runner"),
		publishTimeout: publishTimeout,
	}
}

// Run executes one full attempt for an already-claimed (building)
// deployment. The ephemeral working tree is cleaned up on every path. The
// returned error is nil on success; the caller owns the terminal status
// transition.
func (r *Runner) Run(ctx context.Context, dep *model.Deployment) error {
	// 1. Load site, template, pages
	site, err := r.store.GetSite(dep.SiteID)
	if err != nil {
		return fatalf("site %d not found", dep.SiteID)
	}
	tpl := site.Template
	if tpl == nil {
		return fatalf("site %d has no template", dep.SiteID)
	}

	pages, err := r.store.ListPublishedPages(site.ID)
	if err != nil {
		return fmt.Errorf("failed to list pages: %w", err)
	}
	if len(pages) == 0 {
		return fatalf("no published pages for site %s", site.Domain)
	}

	r.logStep(dep, fmt.Sprintf("rendering %d pages for %s (template %s)", len(pages), site.Domain, tpl.Name))

	// 2. Render every published page plus the shared CSS/JS
	shared := r.renderer.Render(tpl, site, nil)
	htmlPages := make(map[string]string, len(pages))
	for i := range pages {
		page := &pages[i]
		rendered := r.renderer.Render(tpl, site, page)
		htmlPages[pagePath(page.Slug)] = rendered.HTML
	}

	// 3. Uniquify class names, reusing the persisted per-site mapping
	mapping, err := r.classMapping(ctx, site, tpl)
	if err != nil {
		return err
	}
	uniquified := r.engine.Apply(shared.CSS, htmlPages, mapping)
	r.logStep(dep, fmt.Sprintf("uniquified %d css classes", len(mapping)))

	manifest := map[string][]byte{
		"assets/style.css": []byte(uniquified.CSS),
	}
	if tpl.JS != "" {
		manifest["assets/app.js"] = []byte(tpl.JS)
	}

	// 4. Favicon family, when a source is configured. Partial variant
	// failures are tolerated inside the pipeline.
	var links []string
	if site.FaviconPath != "" {
		source, err := r.readFavicon(site.FaviconPath)
		if err != nil {
			r.logStep(dep, fmt.Sprintf("warning: favicon source unreadable: %v", err))
		} else {
			fav := r.favicons.Generate(source, site.FaviconPath)
			for path, content := range fav.Files {
				manifest[path] = content
			}
			links = fav.Links
			r.logStep(dep, fmt.Sprintf("generated %d favicon variants", len(fav.Files)))
		}
	}

	for path, html := range uniquified.Pages {
		manifest[path] = []byte(injectHeadLinks(html, links))
	}

	// 5. Stage into an ephemeral working tree
	commitRef, dir, stageErr := r.stager.Stage(ctx, manifest)
	if dir != "" {
		defer func() {
			if err := r.stager.Cleanup(dir); err != nil {
				r.logger.WithError(err).Warn("staging cleanup failed")
			}
		}()
	}
	if stageErr != nil {
		return fmt.Errorf("staging failed: %w", stageErr)
	}
	r.logStep(dep, fmt.Sprintf("staged %d files (commit %s)", len(manifest), shortRef(commitRef)))

	// 6. Publish the manifest
	publisher, err := r.newPublisher()
	if err != nil {
		return fatalf("hosting not configured: %v", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()

	projectName := projectNameFor(site.Domain)
	project, err := publisher.EnsureProject(publishCtx, projectName)
	if err != nil {
		return fmt.Errorf("failed to ensure hosting project: %w", err)
	}

	remote, err := publisher.CreateDeployment(publishCtx, project.Name, stringManifest(manifest))
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	r.logStep(dep, fmt.Sprintf("published deployment %s at %s", remote.ID, remote.URL))

	// 7. Routing rules are best-effort: already-published content stands.
	r.applyRoutingRules(publishCtx, publisher, project.Name, site, dep)

	// 8. Finalize
	files := manifestPaths(manifest)
	if err := r.store.MarkSuccess(dep.ID, commitRef, remote.URL, files); err != nil {
		return fmt.Errorf("failed to record success: %w", err)
	}
	dep.Status = model.DeploymentStatusSuccess
	dep.CommitRef = commitRef
	dep.PublishedURL = remote.URL
	r.logStep(dep, "deployment succeeded")

	return nil
}

// classMapping returns the stable per-(site, template) mapping, consulting
// the cache, then the persisted row, then building a fresh one.
func (r *Runner) classMapping(ctx context.Context, site *model.Site, tpl *model.Template) (map[string]string, error) {
	cssHash := unique.CSSHash(tpl.CSS)

	if cached, ok := r.mappingCache.Get(ctx, site.ID, tpl.ID, cssHash); ok {
		return cached, nil
	}

	persisted, err := r.store.GetClassMapping(site.ID, tpl.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load class mapping: %w", err)
	}
	if persisted != nil && persisted.CSSHash == cssHash {
		mapping := map[string]string{}
		if err := json.Unmarshal(persisted.Mapping, &mapping); err == nil && len(mapping) > 0 {
			r.mappingCache.Put(ctx, site.ID, tpl.ID, cssHash, mapping)
			return mapping, nil
		}
	}

	var pool []string
	if site.ClassPool != "" {
		pool, err = r.pools.Get(site.ClassPool)
		if err != nil {
			return nil, fatalError{err: err}
		}
	}

	classes := unique.ExtractClasses(tpl.CSS)
	mapping := unique.BuildMapping(classes, site.ID, pool)

	raw, err := json.Marshal(mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal class mapping: %w", err)
	}
	if err := r.store.SaveClassMapping(&model.ClassMapping{
		SiteID:     site.ID,
		TemplateID: tpl.ID,
		CSSHash:    cssHash,
		Mapping:    datatypes.JSON(raw),
	}); err != nil {
		return nil, fmt.Errorf("failed to persist class mapping: %w", err)
	}
	r.mappingCache.Put(ctx, site.ID, tpl.ID, cssHash, mapping)

	return mapping, nil
}

// applyRoutingRules installs the post-deploy redirects. Failures are
// logged and skipped.
func (r *Runner) applyRoutingRules(ctx context.Context, publisher Publisher, projectName string, site *model.Site, dep *model.Deployment) {
	if site.Redirect404ToHome {
		pattern := fmt.Sprintf("https://%s/*", site.Domain)
		target := fmt.Sprintf("https://%s/", site.Domain)
		if err := publisher.CreateRule(ctx, projectName, pattern, target, 2); err != nil {
			r.logStep(dep, fmt.Sprintf("warning: 404 redirect rule failed: %v", err))
		} else {
			r.logStep(dep, "applied 404->home redirect rule")
		}
	}

	// Collapse the non-canonical host onto the canonical one.
	var pattern, target string
	if site.UseWwwVersion {
		pattern = fmt.Sprintf("https://%s/*", site.Domain)
		target = fmt.Sprintf("https://www.%s/", site.Domain)
	} else {
		pattern = fmt.Sprintf("https://www.%s/*", site.Domain)
		target = fmt.Sprintf("https://%s/", site.Domain)
	}
	if err := publisher.CreateRule(ctx, projectName, pattern, target, 1); err != nil {
		r.logStep(dep, fmt.Sprintf("warning: host redirect rule failed: %v", err))
	} else {
		r.logStep(dep, "applied host redirect rule")
	}
}

// logStep appends one persisted build-log line and broadcasts it. Append
// failures are logged but never abort the build.
func (r *Runner) logStep(dep *model.Deployment, line string) {
	if err := r.store.AppendBuildLog(dep.ID, line); err != nil {
		r.logger.WithError(err).WithField("deployment", dep.ID).Warn("failed to append build log")
	}
	r.broadcast.DeploymentEvent(dep, line)
}

func pagePath(slug string) string {
	if slug == "" || slug == "index" || slug == "home" {
		return "index.html"
	}
	return slug + "/index.html"
}

// injectHeadLinks inserts the favicon <link> tags before </head>.
func injectHeadLinks(html string, links []string) string {
	if len(links) == 0 {
		return html
	}
	idx := strings.Index(html, "</head>")
	if idx < 0 {
		return html
	}
	return html[:idx] + strings.Join(links, "\n") + "\n" + html[idx:]
}

func projectNameFor(domain string) string {
	return strings.ReplaceAll(strings.ToLower(domain), ".", "-")
}

func stringManifest(files map[string][]byte) map[string]string {
	out := make(map[string]string, len(files))
	for path, content := range files {
		out[path] = string(content)
	}
	return out
}

func manifestPaths(files map[string][]byte) []string {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func shortRef(ref string) string {
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}
