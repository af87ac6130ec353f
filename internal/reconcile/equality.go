package reconcile

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/models"
)

// SnapshotFromView captures a live IssueView as a canonical snapshot
// (spec.md §4.6 "first-observe" and "classify" both need this shape).
func SnapshotFromView(v adapters.IssueView) *models.CanonicalSnapshot {
	updatedAt := v.UpdatedAt
	return &models.CanonicalSnapshot{
		SchemaVersion: models.CurrentSnapshotSchemaVersion,
		Title:         v.Title,
		Description:   v.Description,
		Labels:        v.Labels,
		AssigneeID:    v.AssigneeID,
		DueDate:       v.DueDate,
		Status:        models.Status(v.Status),
		UpdatedAt:     &updatedAt,
	}
}

// viewEqualsSnapshot is spec.md §4.6's field-wise value equality, applied
// between a live view and the stored canonical.
func viewEqualsSnapshot(v adapters.IssueView, s *models.CanonicalSnapshot) bool {
	if s == nil {
		return false
	}
	return titleEqual(v.Title, s.Title) &&
		descriptionEqual(v.Description, s.Description) &&
		labelsEqual(v.Labels, s.Labels) &&
		assigneeEqual(v.AssigneeID, s.AssigneeID) &&
		dueDateEqual(v.DueDate, s.DueDate) &&
		statusEqual(v.Status, adapters.Status(s.Status))
}

func titleEqual(a, b string) bool { return a == b }

// descriptionEqual is ordinal equality of the payloads: a leading
// Source: backlink line (and its blank separator) is dropped from both
// sides first, so descriptions that differ only in which counterpart URL
// their backlink names compare equal (spec.md §4.6 step 2).
func descriptionEqual(a, b string) bool {
	return stripExistingSourceLine(a) == stripExistingSourceLine(b)
}

func statusEqual(a, b adapters.Status) bool {
	return strings.EqualFold(string(a), string(b))
}

func assigneeEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func dueDateEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// labelsEqual is set-equality under case-insensitive comparison;
// ordering is insignificant.
func labelsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	return labelSetKey(a) == labelSetKey(b)
}

func labelSetKey(labels []string) string {
	normalized := make([]string, len(labels))
	for i, l := range labels {
		normalized[i] = strings.ToLower(l)
	}
	sort.Strings(normalized)
	return strings.Join(normalized, "\x00")
}
