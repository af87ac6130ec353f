package reconcile

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/models"
)

func TestBuildPatch_NoDifference_IsEmpty(t *testing.T) {
	from := adapters.IssueView{Title: "same", Status: adapters.StatusOpen}
	to := &models.CanonicalSnapshot{Title: "same", Status: models.Status(adapters.StatusOpen)}

	p := BuildPatch(from, to)
	require.True(t, p.IsEmpty())
}

func TestBuildPatch_OnlyTitleDiffers_SetsOnlyTitle(t *testing.T) {
	from := adapters.IssueView{Title: "old", Status: adapters.StatusOpen}
	to := &models.CanonicalSnapshot{Title: "new", Status: models.Status(adapters.StatusOpen)}

	p := BuildPatch(from, to)
	require.False(t, p.IsEmpty())
	require.True(t, p.Title.IsSet())
	require.Equal(t, "new", p.Title.Value())
	require.False(t, p.Description.IsSet())
	require.False(t, p.Labels.IsSet())
	require.False(t, p.AssigneeID.IsSet())
	require.False(t, p.DueDate.IsSet())
	require.False(t, p.Status.IsSet())
}

func TestBuildPatch_EveryFieldDiffers_SetsEveryField(t *testing.T) {
	oldDue, newDue := "2026-01-01", "2026-02-01"
	oldAssignee, newAssignee := uuid.New(), uuid.New()

	from := adapters.IssueView{
		Title:       "old title",
		Description: "old body",
		Labels:      []string{"bug"},
		AssigneeID:  &oldAssignee,
		DueDate:     &oldDue,
		Status:      adapters.StatusOpen,
	}
	to := &models.CanonicalSnapshot{
		Title:       "new title",
		Description: "new body",
		Labels:      []string{"urgent"},
		AssigneeID:  &newAssignee,
		DueDate:     &newDue,
		Status:      models.Status(adapters.StatusClosed),
	}

	p := BuildPatch(from, to)
	require.True(t, p.Title.IsSet())
	require.True(t, p.Description.IsSet())
	require.True(t, p.Labels.IsSet())
	require.True(t, p.AssigneeID.IsSet())
	require.True(t, p.DueDate.IsSet())
	require.True(t, p.Status.IsSet())
	require.Equal(t, adapters.StatusClosed, p.Status.Value())
}

func TestMergeSnapshots_DisjointFieldChanges_BothSidesWinTheirField(t *testing.T) {
	due := "2026-03-01"
	canonical := &models.CanonicalSnapshot{Title: "old", DueDate: nil, Status: models.Status(adapters.StatusOpen)}

	a := adapters.IssueView{Title: "new from a", DueDate: nil, Status: adapters.StatusOpen, UpdatedAt: time.Now()}
	b := adapters.IssueView{Title: "old", DueDate: &due, Status: adapters.StatusOpen, UpdatedAt: time.Now().Add(time.Minute)}

	winner := mergeSnapshots(a, b, canonical)
	require.Equal(t, "new from a", winner.Title)
	require.Equal(t, &due, winner.DueDate)
}

func TestMergeSnapshots_BothSidesChangeSameField_NewerUpdatedAtWins(t *testing.T) {
	canonical := &models.CanonicalSnapshot{Title: "old"}
	now := time.Now()

	a := adapters.IssueView{Title: "from a", UpdatedAt: now}
	b := adapters.IssueView{Title: "from b", UpdatedAt: now.Add(time.Hour)}

	winner := mergeSnapshots(a, b, canonical)
	require.Equal(t, "from b", winner.Title)
}

func TestMergeSnapshots_BothSidesChangeSameFieldTie_BFavored(t *testing.T) {
	canonical := &models.CanonicalSnapshot{Title: "old"}
	now := time.Now()

	a := adapters.IssueView{Title: "from a", UpdatedAt: now}
	b := adapters.IssueView{Title: "from b", UpdatedAt: now}

	winner := mergeSnapshots(a, b, canonical)
	require.Equal(t, "from b", winner.Title)
}

func TestMergeSnapshots_NeitherSideChanges_KeepsCanonical(t *testing.T) {
	canonical := &models.CanonicalSnapshot{Title: "stable", Status: models.Status(adapters.StatusOpen)}
	now := time.Now()

	a := adapters.IssueView{Title: "stable", Status: adapters.StatusOpen, UpdatedAt: now}
	b := adapters.IssueView{Title: "stable", Status: adapters.StatusOpen, UpdatedAt: now}

	winner := mergeSnapshots(a, b, canonical)
	require.Equal(t, "stable", winner.Title)
	require.Equal(t, models.Status(adapters.StatusOpen), winner.Status)
}

func TestMergeField_OnlyADiffers_AWins(t *testing.T) {
	got := mergeField("canonical", "a-value", "canonical", titleEqual, true)
	require.Equal(t, "a-value", got)
}

func TestMergeField_OnlyBDiffers_BWins(t *testing.T) {
	got := mergeField("canonical", "canonical", "b-value", titleEqual, false)
	require.Equal(t, "b-value", got)
}

func TestMergeField_BothDiffer_TieBreakPicksRequestedSide(t *testing.T) {
	require.Equal(t, "b-value", mergeField("canonical", "a-value", "b-value", titleEqual, true))
	require.Equal(t, "a-value", mergeField("canonical", "a-value", "b-value", titleEqual, false))
}
