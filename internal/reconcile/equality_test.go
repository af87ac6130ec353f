package reconcile

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/models"
)

func TestViewEqualsSnapshot_NilCanonical_ReturnsFalse(t *testing.T) {
	v := adapters.IssueView{Title: "anything"}
	require.False(t, viewEqualsSnapshot(v, nil))
}

func TestViewEqualsSnapshot_IdenticalFields_ReturnsTrue(t *testing.T) {
	due := "2026-09-01"
	assignee := uuid.New()
	updatedAt := time.Now()

	v := adapters.IssueView{
		Title:       "Fix login bug",
		Description: "Source: https://b.example.com/-/issues/7\n\nbody",
		Labels:      []string{"Bug", "urgent"},
		AssigneeID:  &assignee,
		DueDate:     &due,
		Status:      adapters.StatusOpen,
		UpdatedAt:   updatedAt,
	}
	s := &models.CanonicalSnapshot{
		Title:       "Fix login bug",
		Description: "Source: https://b.example.com/-/issues/7\n\nbody",
		Labels:      []string{"urgent", "Bug"},
		AssigneeID:  &assignee,
		DueDate:     &due,
		Status:      models.Status(adapters.StatusOpen),
	}
	require.True(t, viewEqualsSnapshot(v, s))
}

func TestViewEqualsSnapshot_TitleDiffers_ReturnsFalse(t *testing.T) {
	v := adapters.IssueView{Title: "New title", Status: adapters.StatusOpen}
	s := &models.CanonicalSnapshot{Title: "Old title", Status: models.Status(adapters.StatusOpen)}
	require.False(t, viewEqualsSnapshot(v, s))
}

func TestStatusEqual_IsCaseInsensitive(t *testing.T) {
	require.True(t, statusEqual(adapters.Status("open"), adapters.Status("OPEN")))
	require.False(t, statusEqual(adapters.Status("open"), adapters.Status("closed")))
}

func TestAssigneeEqual_BothNil_ReturnsTrue(t *testing.T) {
	require.True(t, assigneeEqual(nil, nil))
}

func TestAssigneeEqual_OneNil_ReturnsFalse(t *testing.T) {
	id := uuid.New()
	require.False(t, assigneeEqual(&id, nil))
	require.False(t, assigneeEqual(nil, &id))
}

func TestAssigneeEqual_SameValue_ReturnsTrue(t *testing.T) {
	id := uuid.New()
	other := id
	require.True(t, assigneeEqual(&id, &other))
}

func TestDueDateEqual_BothNil_ReturnsTrue(t *testing.T) {
	require.True(t, dueDateEqual(nil, nil))
}

func TestDueDateEqual_DifferentValues_ReturnsFalse(t *testing.T) {
	a, b := "2026-01-01", "2026-01-02"
	require.False(t, dueDateEqual(&a, &b))
}

func TestLabelsEqual_SameSetDifferentOrderAndCase_ReturnsTrue(t *testing.T) {
	require.True(t, labelsEqual([]string{"Bug", "urgent"}, []string{"URGENT", "bug"}))
}

func TestLabelsEqual_DifferentLength_ReturnsFalse(t *testing.T) {
	require.False(t, labelsEqual([]string{"bug"}, []string{"bug", "urgent"}))
}

func TestLabelsEqual_SameLengthDifferentContent_ReturnsFalse(t *testing.T) {
	require.False(t, labelsEqual([]string{"bug"}, []string{"urgent"}))
}

func TestSnapshotFromView_CopiesEveryField(t *testing.T) {
	due := "2026-09-01"
	assignee := uuid.New()
	updatedAt := time.Now()
	v := adapters.IssueView{
		Title:       "t",
		Description: "d",
		Labels:      []string{"x"},
		AssigneeID:  &assignee,
		DueDate:     &due,
		Status:      adapters.StatusClosed,
		UpdatedAt:   updatedAt,
	}

	s := SnapshotFromView(v)
	require.Equal(t, models.CurrentSnapshotSchemaVersion, s.SchemaVersion)
	require.Equal(t, "t", s.Title)
	require.Equal(t, "d", s.Description)
	require.Equal(t, []string{"x"}, s.Labels)
	require.Equal(t, &assignee, s.AssigneeID)
	require.Equal(t, &due, s.DueDate)
	require.Equal(t, models.Status(adapters.StatusClosed), s.Status)
	require.NotNil(t, s.UpdatedAt)
	require.True(t, s.UpdatedAt.Equal(updatedAt))
}
