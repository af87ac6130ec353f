package pairing

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

// fakeAdapter is a minimal adapters.Adapter double driven entirely by
// fixed listings, issues GetIssue resolves but ListIssues omits
// (unlisted), and a notFound set, plus capture of CreateIssue/
// UpdateIssue calls.
type fakeAdapter struct {
	issues   []adapters.IssueView
	unlisted []adapters.IssueView
	notFound map[int]bool

	created []adapters.IssueDraft
	nextID  int

	updates []adapters.IssuePatch
}

func (f *fakeAdapter) ListProjects(ctx context.Context) adapters.Result[[]adapters.ProjectSummary] {
	return adapters.Permanent[[]adapters.ProjectSummary]("unsupported")
}

func (f *fakeAdapter) ResolveProjectID(ctx context.Context, pathWithNamespace string) adapters.Result[int] {
	return adapters.Permanent[int]("unsupported")
}

func (f *fakeAdapter) ListMembers(ctx context.Context, projectRef int) adapters.Result[[]adapters.Member] {
	return adapters.Ok[[]adapters.Member](nil)
}

func (f *fakeAdapter) ListIssues(ctx context.Context, projectRef int) adapters.Result[[]adapters.IssueView] {
	return adapters.Ok(f.issues)
}

func (f *fakeAdapter) GetIssue(ctx context.Context, projectRef, issueRef int) adapters.Result[adapters.IssueView] {
	if f.notFound[issueRef] {
		return adapters.NotFound[adapters.IssueView]()
	}
	for _, v := range append(append([]adapters.IssueView{}, f.issues...), f.unlisted...) {
		if v.ExternalID == issueRef {
			return adapters.Ok(v)
		}
	}
	return adapters.NotFound[adapters.IssueView]()
}

func (f *fakeAdapter) CreateIssue(ctx context.Context, projectRef int, draft adapters.IssueDraft) adapters.Result[adapters.CreatedIssue] {
	f.created = append(f.created, draft)
	f.nextID++
	return adapters.Ok(adapters.CreatedIssue{ExternalID: f.nextID})
}

func (f *fakeAdapter) UpdateIssue(ctx context.Context, projectRef, issueRef int, patch adapters.IssuePatch) adapters.Result[struct{}] {
	f.updates = append(f.updates, patch)
	return adapters.Ok(struct{}{})
}

type fakeMappingRepo struct {
	created []*models.IssueMapping
	listing []models.IssueMapping
	deleted []uuid.UUID
}

func (r *fakeMappingRepo) Create(ctx context.Context, m *models.IssueMapping) error {
	r.created = append(r.created, m)
	return nil
}

func (r *fakeMappingRepo) GetByExternalAIssueID(ctx context.Context, projectID uuid.UUID, externalAIssueID int) (*models.IssueMapping, error) {
	return nil, nil
}

func (r *fakeMappingRepo) GetByExternalBIssueID(ctx context.Context, projectID uuid.UUID, externalBIssueID int) (*models.IssueMapping, error) {
	return nil, nil
}

func (r *fakeMappingRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.IssueMapping, error) {
	return r.listing, nil
}

func (r *fakeMappingRepo) AdvanceCanonical(ctx context.Context, id uuid.UUID, snapshot *models.CanonicalSnapshot) error {
	return nil
}

func (r *fakeMappingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.deleted = append(r.deleted, id)
	return nil
}

type fakeEvents struct {
	created []models.IssueMapping
}

func (e *fakeEvents) MappingCreated(ctx context.Context, m models.IssueMapping) {
	e.created = append(e.created, m)
}

func TestRun_SeedsByTitle_WhenOneSideHasUniqueMatch(t *testing.T) {
	projectID := uuid.New()

	adapterA := &fakeAdapter{issues: []adapters.IssueView{
		{ExternalID: 1, Title: "  Fix Login Bug  "},
	}}
	adapterB := &fakeAdapter{issues: []adapters.IssueView{
		{ExternalID: 2, Title: "fix login bug"},
	}}

	mappings := &fakeMappingRepo{}
	events := &fakeEvents{}
	d := New(mappings, nil, events, noopLogger())

	err := d.Run(context.Background(), adapterA, adapterB, projectID, 10, 20, "https://a.example.com", "https://b.example.com")
	require.NoError(t, err)

	require.Len(t, mappings.created, 1)
	require.Equal(t, 1, mappings.created[0].ExternalAIssueID)
	require.Equal(t, 2, mappings.created[0].ExternalBIssueID)
	require.Len(t, events.created, 1)
	require.Empty(t, adapterA.created)
	require.Empty(t, adapterB.created)
}

func TestRun_AmbiguousTitleMatch_SeedsNothing(t *testing.T) {
	projectID := uuid.New()

	adapterA := &fakeAdapter{issues: []adapters.IssueView{
		{ExternalID: 1, Title: "duplicate title"},
	}}
	adapterB := &fakeAdapter{issues: []adapters.IssueView{
		{ExternalID: 2, Title: "duplicate title"},
		{ExternalID: 3, Title: "duplicate title"},
	}}

	mappings := &fakeMappingRepo{}
	d := New(mappings, nil, nil, noopLogger())

	err := d.Run(context.Background(), adapterA, adapterB, projectID, 10, 20, "https://a.example.com", "https://b.example.com")
	require.NoError(t, err)

	// No title seed; all three issues remain unmapped, so create-missing
	// fires for each, producing three new mappings instead of a
	// title-seeded one.
	require.Len(t, mappings.created, 3)
}

func TestRun_UnmatchedAIssue_CreatesCounterpartOnB(t *testing.T) {
	projectID := uuid.New()

	adapterA := &fakeAdapter{issues: []adapters.IssueView{
		{ExternalID: 1, Title: "only on a"},
	}}
	adapterB := &fakeAdapter{issues: []adapters.IssueView{}}

	mappings := &fakeMappingRepo{}
	d := New(mappings, nil, nil, noopLogger())

	err := d.Run(context.Background(), adapterA, adapterB, projectID, 10, 20, "https://a.example.com", "https://b.example.com")
	require.NoError(t, err)

	require.Len(t, adapterB.created, 1)
	require.Equal(t, "only on a", adapterB.created[0].Title)
	require.Len(t, mappings.created, 1)
	require.Equal(t, 1, mappings.created[0].ExternalAIssueID)
}

func TestRun_UnmatchedBIssue_CreatesCounterpartOnA(t *testing.T) {
	projectID := uuid.New()

	adapterA := &fakeAdapter{issues: []adapters.IssueView{}}
	adapterB := &fakeAdapter{issues: []adapters.IssueView{
		{ExternalID: 9, Title: "only on b"},
	}}

	mappings := &fakeMappingRepo{}
	d := New(mappings, nil, nil, noopLogger())

	err := d.Run(context.Background(), adapterA, adapterB, projectID, 10, 20, "https://a.example.com", "https://b.example.com")
	require.NoError(t, err)

	require.Len(t, adapterA.created, 1)
	require.Equal(t, "only on b", adapterA.created[0].Title)
	require.Len(t, mappings.created, 1)
	require.Equal(t, 9, mappings.created[0].ExternalBIssueID)
}

func TestRun_CategoryFilter_SkipsUncategorizedIssues(t *testing.T) {
	projectID := uuid.New()

	adapterA := &fakeAdapter{issues: []adapters.IssueView{
		{ExternalID: 1, Title: "in category", Labels: []string{"sync"}},
		{ExternalID: 2, Title: "not in category", Labels: []string{"other"}},
		{ExternalID: 3, Title: "no labels at all"},
	}}
	adapterB := &fakeAdapter{issues: []adapters.IssueView{}}

	mappings := &fakeMappingRepo{}
	d := New(mappings, []string{"sync"}, nil, noopLogger())

	err := d.Run(context.Background(), adapterA, adapterB, projectID, 10, 20, "https://a.example.com", "https://b.example.com")
	require.NoError(t, err)

	require.Len(t, adapterB.created, 1)
	require.Equal(t, "in category", adapterB.created[0].Title)
}

func TestRun_SweepStale_DeletesMappingWhenBothProbesConfirmNotFound(t *testing.T) {
	projectID := uuid.New()
	mappingID := uuid.New()

	adapterA := &fakeAdapter{issues: []adapters.IssueView{}, notFound: map[int]bool{1: true}}
	adapterB := &fakeAdapter{issues: []adapters.IssueView{}, notFound: map[int]bool{2: true}}

	mappings := &fakeMappingRepo{listing: []models.IssueMapping{
		{ID: mappingID, ProjectID: projectID, ExternalAIssueID: 1, ExternalBIssueID: 2},
	}}
	d := New(mappings, nil, nil, noopLogger())

	err := d.Run(context.Background(), adapterA, adapterB, projectID, 10, 20, "https://a.example.com", "https://b.example.com")
	require.NoError(t, err)

	require.Contains(t, mappings.deleted, mappingID)
}

func TestRun_SweepStale_KeepsMappingWhenMissingSideIsATransientProbeMiss(t *testing.T) {
	projectID := uuid.New()
	mappingID := uuid.New()

	// The issue is absent from the fresh listing but GetIssue still
	// resolves it (e.g. a paging gap), so it must not be treated as gone.
	adapterA := &fakeAdapter{issues: []adapters.IssueView{}, unlisted: []adapters.IssueView{{ExternalID: 1, Title: "still there"}}}
	adapterB := &fakeAdapter{issues: []adapters.IssueView{{ExternalID: 2, Title: "still there"}}}

	mappings := &fakeMappingRepo{listing: []models.IssueMapping{
		{ID: mappingID, ProjectID: projectID, ExternalAIssueID: 1, ExternalBIssueID: 2},
	}}
	d := New(mappings, nil, nil, noopLogger())

	err := d.Run(context.Background(), adapterA, adapterB, projectID, 10, 20, "https://a.example.com", "https://b.example.com")
	require.NoError(t, err)

	require.Empty(t, mappings.deleted)
}

func TestRun_AlreadyMappedIssues_AreNeverReofferedToSeedOrCreateMissing(t *testing.T) {
	projectID := uuid.New()
	mappingID := uuid.New()

	adapterA := &fakeAdapter{issues: []adapters.IssueView{{ExternalID: 1, Title: "paired"}}}
	adapterB := &fakeAdapter{issues: []adapters.IssueView{{ExternalID: 2, Title: "paired"}}}

	mappings := &fakeMappingRepo{listing: []models.IssueMapping{
		{ID: mappingID, ProjectID: projectID, ExternalAIssueID: 1, ExternalBIssueID: 2},
	}}
	d := New(mappings, nil, nil, noopLogger())

	err := d.Run(context.Background(), adapterA, adapterB, projectID, 10, 20, "https://a.example.com", "https://b.example.com")
	require.NoError(t, err)

	require.Empty(t, mappings.created)
	require.Empty(t, adapterA.created)
	require.Empty(t, adapterB.created)
}
