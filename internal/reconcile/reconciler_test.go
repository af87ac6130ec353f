package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/dbkit"
	"github.com/trackersync/trackersync/internal/models"
)

// fakeAdapter is a minimal adapters.Adapter double; only GetIssue and
// UpdateIssue are exercised by the reconciler.
type fakeAdapter struct {
	issues  map[int]adapters.IssueView
	updates []fakeUpdate
}

type fakeUpdate struct {
	issueRef int
	patch    adapters.IssuePatch
}

func newFakeAdapter(issues map[int]adapters.IssueView) *fakeAdapter {
	return &fakeAdapter{issues: issues}
}

func (f *fakeAdapter) ListProjects(ctx context.Context) adapters.Result[[]adapters.ProjectSummary] {
	return adapters.Permanent[[]adapters.ProjectSummary]("not supported by fakeAdapter")
}

func (f *fakeAdapter) ResolveProjectID(ctx context.Context, pathWithNamespace string) adapters.Result[int] {
	return adapters.Permanent[int]("not supported by fakeAdapter")
}

func (f *fakeAdapter) ListMembers(ctx context.Context, projectRef int) adapters.Result[[]adapters.Member] {
	return adapters.Ok[[]adapters.Member](nil)
}

func (f *fakeAdapter) ListIssues(ctx context.Context, projectRef int) adapters.Result[[]adapters.IssueView] {
	return adapters.Ok[[]adapters.IssueView](nil)
}

func (f *fakeAdapter) GetIssue(ctx context.Context, projectRef, issueRef int) adapters.Result[adapters.IssueView] {
	v, ok := f.issues[issueRef]
	if !ok {
		return adapters.NotFound[adapters.IssueView]()
	}
	return adapters.Ok(v)
}

func (f *fakeAdapter) CreateIssue(ctx context.Context, projectRef int, draft adapters.IssueDraft) adapters.Result[adapters.CreatedIssue] {
	return adapters.Permanent[adapters.CreatedIssue]("not supported by fakeAdapter")
}

func (f *fakeAdapter) UpdateIssue(ctx context.Context, projectRef, issueRef int, patch adapters.IssuePatch) adapters.Result[struct{}] {
	f.updates = append(f.updates, fakeUpdate{issueRef: issueRef, patch: patch})
	return adapters.Ok(struct{}{})
}

// fakeMappingRepo is a minimal repositories.MappingRepo double backed by
// an in-memory map, keyed by mapping id.
type fakeMappingRepo struct {
	byID map[uuid.UUID]*models.IssueMapping
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{byID: map[uuid.UUID]*models.IssueMapping{}}
}

func (r *fakeMappingRepo) Create(ctx context.Context, m *models.IssueMapping) error {
	r.byID[m.ID] = m
	return nil
}

func (r *fakeMappingRepo) GetByExternalAIssueID(ctx context.Context, projectID uuid.UUID, externalAIssueID int) (*models.IssueMapping, error) {
	for _, m := range r.byID {
		if m.ProjectID == projectID && m.ExternalAIssueID == externalAIssueID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMappingRepo) GetByExternalBIssueID(ctx context.Context, projectID uuid.UUID, externalBIssueID int) (*models.IssueMapping, error) {
	for _, m := range r.byID {
		if m.ProjectID == projectID && m.ExternalBIssueID == externalBIssueID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMappingRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.IssueMapping, error) {
	var out []models.IssueMapping
	for _, m := range r.byID {
		if m.ProjectID == projectID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeMappingRepo) AdvanceCanonical(ctx context.Context, id uuid.UUID, snapshot *models.CanonicalSnapshot) error {
	m, ok := r.byID[id]
	if !ok {
		return nil
	}
	m.CanonicalSnapshot = dbkit.JSONB[*models.CanonicalSnapshot]{Data: snapshot}
	return nil
}

func (r *fakeMappingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.byID, id)
	return nil
}

func newMapping(projectID uuid.UUID, aID, bID int, canonical *models.CanonicalSnapshot) models.IssueMapping {
	return models.IssueMapping{
		ID:                id(),
		ProjectID:         projectID,
		ExternalAIssueID:  aID,
		ExternalBIssueID:  bID,
		CanonicalSnapshot: dbkit.JSONB[*models.CanonicalSnapshot]{Data: canonical},
	}
}

func id() uuid.UUID { return uuid.New() }

func TestReconcileOne_FirstObserve_PatchesAFromB(t *testing.T) {
	projectID := uuid.New()
	now := time.Now()

	a := adapters.IssueView{Title: "a title", Status: adapters.StatusOpen, UpdatedAt: now}
	b := adapters.IssueView{Title: "b title", Status: adapters.StatusOpen, UpdatedAt: now}

	adapterA := newFakeAdapter(map[int]adapters.IssueView{1: a})
	adapterB := newFakeAdapter(map[int]adapters.IssueView{2: b})

	mappings := newFakeMappingRepo()
	m := newMapping(projectID, 1, 2, nil)
	require.NoError(t, mappings.Create(context.Background(), &m))

	r := New(mappings, nil, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	r.ReconcileProject(context.Background(), adapterA, adapterB, 10, 20, []models.IssueMapping{m}, nil, nil, "https://a.example.com", "https://b.example.com")

	require.Len(t, adapterA.updates, 1)
	require.True(t, adapterA.updates[0].patch.Title.IsSet())
	require.Equal(t, "b title", adapterA.updates[0].patch.Title.Value())
	require.Empty(t, adapterB.updates)

	stored := mappings.byID[m.ID]
	require.NotNil(t, stored.CanonicalSnapshot.Data)
	require.Equal(t, "b title", stored.CanonicalSnapshot.Data.Title)
}

func TestReconcileOne_BothUnchanged_NoPatchesSent(t *testing.T) {
	projectID := uuid.New()
	now := time.Now()
	canonical := &models.CanonicalSnapshot{Title: "stable", Status: models.Status(adapters.StatusOpen)}

	view := adapters.IssueView{Title: "stable", Status: adapters.StatusOpen, UpdatedAt: now}
	adapterA := newFakeAdapter(map[int]adapters.IssueView{1: view})
	adapterB := newFakeAdapter(map[int]adapters.IssueView{2: view})

	mappings := newFakeMappingRepo()
	m := newMapping(projectID, 1, 2, canonical)
	require.NoError(t, mappings.Create(context.Background(), &m))

	r := New(mappings, nil, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	r.ReconcileProject(context.Background(), adapterA, adapterB, 10, 20, []models.IssueMapping{m}, nil, nil, "https://a.example.com", "https://b.example.com")

	require.Empty(t, adapterA.updates)
	require.Empty(t, adapterB.updates)
}

func TestReconcileOne_OnlyBChanged_PatchesAFromB(t *testing.T) {
	projectID := uuid.New()
	now := time.Now()
	canonical := &models.CanonicalSnapshot{Title: "stable", Status: models.Status(adapters.StatusOpen)}

	a := adapters.IssueView{Title: "stable", Status: adapters.StatusOpen, UpdatedAt: now}
	b := adapters.IssueView{Title: "changed on b", Status: adapters.StatusOpen, UpdatedAt: now.Add(time.Minute)}

	adapterA := newFakeAdapter(map[int]adapters.IssueView{1: a})
	adapterB := newFakeAdapter(map[int]adapters.IssueView{2: b})

	mappings := newFakeMappingRepo()
	m := newMapping(projectID, 1, 2, canonical)
	require.NoError(t, mappings.Create(context.Background(), &m))

	r := New(mappings, nil, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	r.ReconcileProject(context.Background(), adapterA, adapterB, 10, 20, []models.IssueMapping{m}, nil, nil, "https://a.example.com", "https://b.example.com")

	require.Len(t, adapterA.updates, 1)
	require.Equal(t, "changed on b", adapterA.updates[0].patch.Title.Value())
	require.Empty(t, adapterB.updates)
}

func TestReconcileOne_ConflictingChanges_MergesAndPatchesOnlyTheSideThatDiffersFromWinner(t *testing.T) {
	projectID := uuid.New()
	now := time.Now()
	canonical := &models.CanonicalSnapshot{Title: "stable", Status: models.Status(adapters.StatusOpen)}

	a := adapters.IssueView{Title: "from a", Status: adapters.StatusOpen, UpdatedAt: now}
	b := adapters.IssueView{Title: "from b", Status: adapters.StatusOpen, UpdatedAt: now.Add(time.Hour)}

	adapterA := newFakeAdapter(map[int]adapters.IssueView{1: a})
	adapterB := newFakeAdapter(map[int]adapters.IssueView{2: b})

	mappings := newFakeMappingRepo()
	m := newMapping(projectID, 1, 2, canonical)
	require.NoError(t, mappings.Create(context.Background(), &m))

	r := New(mappings, nil, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	r.ReconcileProject(context.Background(), adapterA, adapterB, 10, 20, []models.IssueMapping{m}, nil, nil, "https://a.example.com", "https://b.example.com")

	require.Len(t, adapterA.updates, 1)
	require.Equal(t, "from b", adapterA.updates[0].patch.Title.Value())
	require.Empty(t, adapterB.updates)

	stored := mappings.byID[m.ID]
	require.Equal(t, "from b", stored.CanonicalSnapshot.Data.Title)
}

func TestReconcileOne_ASideNotFound_DeletesMappingWithoutPatching(t *testing.T) {
	projectID := uuid.New()
	canonical := &models.CanonicalSnapshot{Title: "stable", Status: models.Status(adapters.StatusOpen)}

	b := adapters.IssueView{Title: "stable", Status: adapters.StatusOpen, UpdatedAt: time.Now()}
	adapterA := newFakeAdapter(map[int]adapters.IssueView{})
	adapterB := newFakeAdapter(map[int]adapters.IssueView{2: b})

	mappings := newFakeMappingRepo()
	m := newMapping(projectID, 1, 2, canonical)
	require.NoError(t, mappings.Create(context.Background(), &m))

	r := New(mappings, nil, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	r.ReconcileProject(context.Background(), adapterA, adapterB, 10, 20, []models.IssueMapping{m}, nil, nil, "https://a.example.com", "https://b.example.com")

	require.Empty(t, adapterA.updates)
	require.Empty(t, adapterB.updates)
	_, stillPresent := mappings.byID[m.ID]
	require.False(t, stillPresent)
}

func TestReconcileOne_HintSuppliesView_GetIssueNotConsulted(t *testing.T) {
	projectID := uuid.New()
	now := time.Now()
	canonical := &models.CanonicalSnapshot{Title: "stable", Status: models.Status(adapters.StatusOpen)}

	// adapterA has no entry for issue 1; the hint must be used instead of
	// falling back to GetIssue, which would otherwise report NotFound and
	// delete the mapping.
	a := adapters.IssueView{Title: "stable", Status: adapters.StatusOpen, UpdatedAt: now}
	b := adapters.IssueView{Title: "stable", Status: adapters.StatusOpen, UpdatedAt: now}

	adapterA := newFakeAdapter(map[int]adapters.IssueView{})
	adapterB := newFakeAdapter(map[int]adapters.IssueView{2: b})

	mappings := newFakeMappingRepo()
	m := newMapping(projectID, 1, 2, canonical)
	require.NoError(t, mappings.Create(context.Background(), &m))

	aHints := map[int]adapters.IssueView{1: a}

	r := New(mappings, nil, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	r.ReconcileProject(context.Background(), adapterA, adapterB, 10, 20, []models.IssueMapping{m}, aHints, nil, "https://a.example.com", "https://b.example.com")

	_, stillPresent := mappings.byID[m.ID]
	require.True(t, stillPresent)
}
