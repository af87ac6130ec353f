package reconcile

import (
	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/dbkit"
	"github.com/trackersync/trackersync/internal/models"
)

// BuildPatch diffs a live view against the target canonical state,
// emitting only the fields that differ (spec.md §4.6 "Patch building").
// A-side name/id translation (label→TrackerA, status→StatusA,
// assignee→A-user-id) happens inside platforma.Adapter.UpdateIssue, not
// here — see DESIGN.md's "Neutral assignee ids" note; this function only
// ever produces the neutral adapters.IssuePatch shape.
func BuildPatch(from adapters.IssueView, to *models.CanonicalSnapshot) adapters.IssuePatch {
	var p adapters.IssuePatch

	if !titleEqual(from.Title, to.Title) {
		p.Title = dbkit.Some(to.Title)
	}
	if !descriptionEqual(from.Description, to.Description) {
		p.Description = dbkit.Some(to.Description)
	}
	if !labelsEqual(from.Labels, to.Labels) {
		p.Labels = dbkit.Some(to.Labels)
	}
	if !assigneeEqual(from.AssigneeID, to.AssigneeID) {
		p.AssigneeID = dbkit.Some(to.AssigneeID)
	}
	if !dueDateEqual(from.DueDate, to.DueDate) {
		p.DueDate = dbkit.Some(to.DueDate)
	}
	if !statusEqual(from.Status, adapters.Status(to.Status)) {
		p.Status = dbkit.Some(adapters.Status(to.Status))
	}

	return p
}

// mergeSnapshots builds the per-field merge winner for a both-sides
// conflict (spec.md §4.6 step 5). For each field independently: if only
// one side differs from canonical, that side's value wins outright
// (matches §8 property 4's "winner has a.title, b.dueDate" example,
// where each side only touched one field); if both sides differ from
// canonical for the same field, the side with the greater overall
// updatedAt wins that field, ties favoring B (spec.md §9 open question,
// resolved in DESIGN.md) — which is also what makes §8 scenario E4
// (both sides change every field, B strictly newer) resolve to "every
// field from B".
func mergeSnapshots(a, b adapters.IssueView, canonical *models.CanonicalSnapshot) *models.CanonicalSnapshot {
	bWinsTie := !a.UpdatedAt.After(b.UpdatedAt)

	winner := &models.CanonicalSnapshot{SchemaVersion: models.CurrentSnapshotSchemaVersion}
	winner.Title = mergeField(canonical.Title, a.Title, b.Title, titleEqual, bWinsTie)
	winner.Description = mergeField(canonical.Description, a.Description, b.Description, descriptionEqual, bWinsTie)
	winner.Labels = mergeField(canonical.Labels, a.Labels, b.Labels, labelsEqual, bWinsTie)
	winner.AssigneeID = mergeField(canonical.AssigneeID, a.AssigneeID, b.AssigneeID, assigneeEqual, bWinsTie)
	winner.DueDate = mergeField(canonical.DueDate, a.DueDate, b.DueDate, dueDateEqual, bWinsTie)
	winner.Status = models.Status(mergeField(adapters.Status(canonical.Status), a.Status, b.Status, statusEqual, bWinsTie))

	now := a.UpdatedAt
	if b.UpdatedAt.After(now) {
		now = b.UpdatedAt
	}
	winner.UpdatedAt = &now
	return winner
}

// mergeField resolves one field of a three-way merge: the side whose
// value differs from canonical alone wins; when both differ, bWinsTie
// picks the tiebreak side.
func mergeField[T any](canonicalVal, aVal, bVal T, equal func(T, T) bool, bWinsTie bool) T {
	aDiffers := !equal(aVal, canonicalVal)
	bDiffers := !equal(bVal, canonicalVal)
	switch {
	case aDiffers && !bDiffers:
		return aVal
	case bDiffers && !aDiffers:
		return bVal
	case aDiffers && bDiffers:
		if bWinsTie {
			return bVal
		}
		return aVal
	default:
		return canonicalVal
	}
}
