// Package discovery reads platform A's project listing and links each
// project to its counterpart repository on platform B (spec.md §4.3).
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/repositories"
	"github.com/trackersync/trackersync/internal/tracing"
)

// Discoverer upserts Project+RemoteProjectB rows from A's project
// listing, extracting each project's configured custom field as a
// candidate B-repo URL.
type Discoverer struct {
	adapterA        adapters.Adapter
	adapterB        adapters.Adapter
	projects        repositories.ProjectRepo
	customFieldName string
	logger          ectologger.Logger

	mu    sync.Mutex
	cache map[string]*jmespath.JMESPath
}

func New(adapterA, adapterB adapters.Adapter, projects repositories.ProjectRepo, customFieldName string, logger ectologger.Logger) *Discoverer {
	return &Discoverer{
		adapterA:        adapterA,
		adapterB:        adapterB,
		projects:        projects,
		customFieldName: customFieldName,
		logger:          logger,
		cache:           make(map[string]*jmespath.JMESPath),
	}
}

// Run lists every A-side project and, for each one whose configured
// custom field parses as an absolute URL pointing at a B-repo, upserts
// Project+RemoteProjectB. Projects without a parseable custom field are
// silently skipped (spec.md §4.3).
func (d *Discoverer) Run(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "discovery.Discoverer.Run")
	defer span.End()

	res := d.adapterA.ListProjects(ctx)
	switch {
	case res.IsTransient():
		return fmt.Errorf("listing projects: %w", res.Err())
	case res.IsPermanent():
		return fmt.Errorf("listing projects: %s", res.Detail())
	case res.IsNotFound():
		return fmt.Errorf("listing projects: unexpected not-found")
	}
	summaries, _ := res.Value()

	for _, s := range summaries {
		d.discoverOne(ctx, s)
	}
	return nil
}

func (d *Discoverer) discoverOne(ctx context.Context, s adapters.ProjectSummary) {
	pathWithNamespace, repoURL, ok := d.extractRepoURL(s.CustomFields)
	if !ok {
		return
	}

	project := &models.Project{ExternalAID: s.ExternalID, ExternalAKey: s.Key}
	if err := d.projects.UpsertProject(ctx, project); err != nil {
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_a_id": s.ExternalID,
		}).Warnf("discovery: failed to upsert project")
		return
	}

	var externalBID *int
	if existing, err := d.projects.GetRemoteProjectB(ctx, project.ID); err == nil {
		externalBID = existing.ExternalBID
	}

	remote := &models.RemoteProjectB{
		ProjectID:         project.ID,
		PathWithNamespace: pathWithNamespace,
		URL:               repoURL,
		ExternalBID:       externalBID,
	}
	if remote.ExternalBID == nil {
		d.resolveRemoteID(ctx, pathWithNamespace, remote)
	}

	if err := d.projects.UpsertRemoteProjectB(ctx, remote); err != nil {
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id": project.ID,
		}).Warnf("discovery: failed to upsert remote project b")
	}
}

// resolveRemoteID calls B's resolveProjectId; on failure the project
// simply remains unlinked until a subsequent pass (spec.md §4.3).
func (d *Discoverer) resolveRemoteID(ctx context.Context, pathWithNamespace string, remote *models.RemoteProjectB) {
	res := d.adapterB.ResolveProjectID(ctx, pathWithNamespace)
	switch {
	case res.IsOk():
		id, _ := res.Value()
		remote.ExternalBID = &id
	case res.IsNotFound():
		d.logger.WithContext(ctx).WithFields(map[string]any{
			"path": pathWithNamespace,
		}).Warnf("discovery: no B-repo found at path, project remains unlinked")
	default:
		d.logger.WithContext(ctx).WithError(res.Err()).WithFields(map[string]any{
			"path":   pathWithNamespace,
			"detail": res.Detail(),
		}).Warnf("discovery: failed to resolve B project id, project remains unlinked")
	}
}

// extractRepoURL runs the configured custom field name through JMESPath
// against A's raw custom_fields payload, validates the result as an
// absolute URL, and strips both a trailing slash and a trailing ".git"
// (spec.md §4.3).
func (d *Discoverer) extractRepoURL(customFields any) (pathWithNamespace, repoURL string, ok bool) {
	expr := fmt.Sprintf("[?name=='%s'].value | [0]", strings.ReplaceAll(d.customFieldName, "'", "\\'"))
	compiled, err := d.getOrCompile(expr)
	if err != nil {
		return "", "", false
	}

	result, err := compiled.Search(customFields)
	if err != nil || result == nil {
		return "", "", false
	}
	raw, isString := result.(string)
	if !isString || raw == "" {
		return "", "", false
	}

	raw = strings.TrimSuffix(strings.TrimRight(raw, "/"), ".git")
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() {
		return "", "", false
	}

	return strings.TrimPrefix(parsed.Path, "/"), raw, true
}

func (d *Discoverer) getOrCompile(expr string) (*jmespath.JMESPath, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.cache[expr]; ok {
		return c, nil
	}
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, err
	}
	d.cache[expr] = compiled
	return compiled, nil
}
