package members

import (
	"context"
	"errors"
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

var errNotFound = errors.New("not found")

type fakeUserRepo struct {
	byExternalA map[int]*models.User
	created     []*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byExternalA: map[int]*models.User{}}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return nil, errNotFound
}

func (r *fakeUserRepo) GetByExternalAUserID(ctx context.Context, externalAUserID int) (*models.User, error) {
	if u, ok := r.byExternalA[externalAUserID]; ok {
		return u, nil
	}
	return nil, errNotFound
}

func (r *fakeUserRepo) GetByExternalBUserID(ctx context.Context, externalBUserID int) (*models.User, error) {
	return nil, errNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, u *models.User) error {
	r.created = append(r.created, u)
	r.byExternalA[*u.ExternalAUserID] = u
	return nil
}

type fakeAdapter struct {
	members []adapters.Member
}

func (f *fakeAdapter) ListProjects(ctx context.Context) adapters.Result[[]adapters.ProjectSummary] {
	return adapters.Permanent[[]adapters.ProjectSummary]("unsupported")
}

func (f *fakeAdapter) ResolveProjectID(ctx context.Context, pathWithNamespace string) adapters.Result[int] {
	return adapters.Permanent[int]("unsupported")
}

func (f *fakeAdapter) ListMembers(ctx context.Context, projectRef int) adapters.Result[[]adapters.Member] {
	return adapters.Ok(f.members)
}

func (f *fakeAdapter) ListIssues(ctx context.Context, projectRef int) adapters.Result[[]adapters.IssueView] {
	return adapters.Ok[[]adapters.IssueView](nil)
}

func (f *fakeAdapter) GetIssue(ctx context.Context, projectRef, issueRef int) adapters.Result[adapters.IssueView] {
	return adapters.NotFound[adapters.IssueView]()
}

func (f *fakeAdapter) CreateIssue(ctx context.Context, projectRef int, draft adapters.IssueDraft) adapters.Result[adapters.CreatedIssue] {
	return adapters.Permanent[adapters.CreatedIssue]("unsupported")
}

func (f *fakeAdapter) UpdateIssue(ctx context.Context, projectRef, issueRef int, patch adapters.IssuePatch) adapters.Result[struct{}] {
	return adapters.Ok(struct{}{})
}

func TestSearchKey_DotSeparatedHandle_UsesLastPart(t *testing.T) {
	require.Equal(t, "smith", searchKey("jane.smith"))
}

func TestSearchKey_UnderscoreSeparatedHandle_UsesLastPart(t *testing.T) {
	require.Equal(t, "doe", searchKey("john_doe"))
}

func TestSearchKey_NoSeparatorLongHandle_DropsFirstChar(t *testing.T) {
	require.Equal(t, "msmith", searchKey("jmsmith"))
}

func TestSearchKey_NoSeparatorShortHandle_ReturnsHandleUnchanged(t *testing.T) {
	require.Equal(t, "jo", searchKey("jo"))
}

func TestRun_MatchingHandleSubstring_CreatesCorrelation(t *testing.T) {
	adapterA := &fakeAdapter{members: []adapters.Member{
		{ExternalID: 1, Name: "Jane Smith", Handle: "jsmith"},
	}}
	adapterB := &fakeAdapter{members: []adapters.Member{
		{ExternalID: 2, Name: "Jane S", Handle: "jane.smith"},
	}}

	users := newFakeUserRepo()
	c := New(users, noopLogger())

	err := c.Run(context.Background(), adapterA, adapterB, 10, 20)
	require.NoError(t, err)

	require.Len(t, users.created, 1)
	require.Equal(t, 1, *users.created[0].ExternalAUserID)
	require.Equal(t, 2, *users.created[0].ExternalBUserID)
}

func TestRun_SyntheticBotHandle_NeverCorrelated(t *testing.T) {
	adapterA := &fakeAdapter{members: []adapters.Member{
		{ExternalID: 1, Name: "Project 42 Bot", Handle: "bot"},
	}}
	adapterB := &fakeAdapter{members: []adapters.Member{
		{ExternalID: 2, Name: "service account", Handle: "project_42_bot"},
	}}

	users := newFakeUserRepo()
	c := New(users, noopLogger())

	err := c.Run(context.Background(), adapterA, adapterB, 10, 20)
	require.NoError(t, err)

	require.Empty(t, users.created)
}

func TestRun_AlreadyCorrelatedAUser_FirstWriteWinsAndIsNeverReplaced(t *testing.T) {
	existing := &models.User{ExternalAUserID: intPtr(1), ExternalBUserID: intPtr(99), DisplayKey: "original"}
	adapterA := &fakeAdapter{members: []adapters.Member{
		{ExternalID: 1, Name: "Jane Smith", Handle: "jsmith"},
	}}
	adapterB := &fakeAdapter{members: []adapters.Member{
		{ExternalID: 2, Name: "Jane S", Handle: "jane.smith"},
	}}

	users := newFakeUserRepo()
	users.byExternalA[1] = existing

	c := New(users, noopLogger())
	err := c.Run(context.Background(), adapterA, adapterB, 10, 20)
	require.NoError(t, err)

	require.Empty(t, users.created)
	require.Equal(t, 99, *users.byExternalA[1].ExternalBUserID)
}

func TestRun_NoMatchingAMember_CreatesNothing(t *testing.T) {
	adapterA := &fakeAdapter{members: []adapters.Member{
		{ExternalID: 1, Name: "Someone Else", Handle: "selse"},
	}}
	adapterB := &fakeAdapter{members: []adapters.Member{
		{ExternalID: 2, Name: "Jane S", Handle: "jane.smith"},
	}}

	users := newFakeUserRepo()
	c := New(users, noopLogger())

	err := c.Run(context.Background(), adapterA, adapterB, 10, 20)
	require.NoError(t, err)

	require.Empty(t, users.created)
}

func intPtr(v int) *int { return &v }
