// Package pairing seeds and maintains IssueMapping rows for one linked
// project: title-seeding unmapped pairs, sweeping stale mappings whose
// remote side vanished, and creating counterparts for issues that exist
// on only one side (spec.md §4.5).
package pairing

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/dbkit"
	"github.com/trackersync/trackersync/internal/metrics"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/reconcile"
	"github.com/trackersync/trackersync/internal/repositories"
	"github.com/trackersync/trackersync/internal/tracing"
)

// EventPublisher mirrors reconcile.EventPublisher's shape for the
// mapping-created case; a nil Discoverer.events is a valid no-op.
type EventPublisher interface {
	MappingCreated(ctx context.Context, m models.IssueMapping)
}

// Discoverer implements spec.md §4.5's four-step pairing pass.
type Discoverer struct {
	mappings     repositories.MappingRepo
	categoryKeys map[string]struct{}
	events       EventPublisher
	logger       ectologger.Logger
}

func New(mappings repositories.MappingRepo, categoryKeys []string, events EventPublisher, logger ectologger.Logger) *Discoverer {
	keys := make(map[string]struct{}, len(categoryKeys))
	for _, k := range categoryKeys {
		keys[k] = struct{}{}
	}
	return &Discoverer{mappings: mappings, categoryKeys: keys, events: events, logger: logger}
}

// Run executes the four steps against one linked project's full issue
// lists. publicURLA/publicURLB feed the Source: backlink that
// create-missing stamps on the newly created counterpart's description.
func (d *Discoverer) Run(
	ctx context.Context,
	adapterA, adapterB adapters.Adapter,
	projectID uuid.UUID,
	externalAProjectID, externalBProjectID int,
	publicURLA, publicURLB string,
) error {
	ctx, span := tracing.StartSpan(ctx, "pairing.Discoverer.Run")
	defer span.End()

	aRes := adapterA.ListIssues(ctx, externalAProjectID)
	if !aRes.IsOk() {
		return fmt.Errorf("listing A issues: %s", describeFailure(aRes))
	}
	aIssues, _ := aRes.Value()

	bRes := adapterB.ListIssues(ctx, externalBProjectID)
	if !bRes.IsOk() {
		return fmt.Errorf("listing B issues: %s", describeFailure(bRes))
	}
	bIssues, _ := bRes.Value()

	existing, err := d.mappings.ListByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("listing existing mappings: %w", err)
	}

	// Step 2 precedes create-missing so a remote deletion never gets
	// resurrected by the very same pass that's supposed to notice it.
	existing = d.sweepStale(ctx, adapterA, adapterB, externalAProjectID, externalBProjectID, existing, aIssues, bIssues)

	mappedA := make(map[int]struct{}, len(existing))
	mappedB := make(map[int]struct{}, len(existing))
	for _, m := range existing {
		mappedA[m.ExternalAIssueID] = struct{}{}
		mappedB[m.ExternalBIssueID] = struct{}{}
	}

	filteredA := filterByCategory(aIssues, d.categoryKeys, func(v adapters.IssueView) []string { return v.Labels })
	filteredB := filterByCategory(bIssues, d.categoryKeys, func(v adapters.IssueView) []string { return v.Labels })

	d.seedByTitle(ctx, adapterA, externalAProjectID, projectID, filteredA, filteredB, mappedA, mappedB)
	d.createMissingAtoB(ctx, adapterA, adapterB, projectID, externalAProjectID, externalBProjectID, filteredA, mappedA, publicURLA)
	d.createMissingBtoA(ctx, adapterA, adapterB, projectID, externalAProjectID, externalBProjectID, filteredB, mappedB, publicURLB)
	return nil
}

// sweepStale confirms both sides of every existing mapping still exist,
// probing getIssue only for a side missing from the fresh listing
// (spec.md §4.5 step 2). Surviving mappings are returned so later steps
// don't re-offer their issues as seed/create-missing candidates.
func (d *Discoverer) sweepStale(
	ctx context.Context,
	adapterA, adapterB adapters.Adapter,
	externalAProjectID, externalBProjectID int,
	existing []models.IssueMapping,
	aIssues, bIssues []adapters.IssueView,
) []models.IssueMapping {
	aSeen := toIDSet(aIssues)
	bSeen := toIDSet(bIssues)

	survivors := make([]models.IssueMapping, 0, len(existing))
	for _, m := range existing {
		if _, ok := aSeen[m.ExternalAIssueID]; !ok {
			if probeGone(ctx, adapterA, externalAProjectID, m.ExternalAIssueID) {
				d.deleteMapping(ctx, m)
				continue
			}
		}
		if _, ok := bSeen[m.ExternalBIssueID]; !ok {
			if probeGone(ctx, adapterB, externalBProjectID, m.ExternalBIssueID) {
				d.deleteMapping(ctx, m)
				continue
			}
		}
		survivors = append(survivors, m)
	}
	return survivors
}

func (d *Discoverer) deleteMapping(ctx context.Context, m models.IssueMapping) {
	if err := d.mappings.Delete(ctx, m.ID); err != nil {
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"mapping_id": m.ID}).Warnf("pairing: failed to delete stale mapping")
	}
}

// seedByTitle is spec.md §4.5 step 1: group unmapped B-issues by
// trim(title) case-insensitively; a unique match seeds a mapping and
// immediately pushes A toward B's live view.
func (d *Discoverer) seedByTitle(
	ctx context.Context,
	adapterA adapters.Adapter,
	externalAProjectID int,
	projectID uuid.UUID,
	filteredA, filteredB []adapters.IssueView,
	mappedA, mappedB map[int]struct{},
) {
	byTitle := make(map[string][]adapters.IssueView)
	for _, b := range filteredB {
		if _, ok := mappedB[b.ExternalID]; ok {
			continue
		}
		key := titleKey(b.Title)
		byTitle[key] = append(byTitle[key], b)
	}

	for _, a := range filteredA {
		if _, ok := mappedA[a.ExternalID]; ok {
			continue
		}
		candidates := byTitle[titleKey(a.Title)]
		if len(candidates) != 1 {
			continue
		}
		b := candidates[0]

		m := &models.IssueMapping{
			ProjectID:         projectID,
			ExternalAIssueID:  a.ExternalID,
			ExternalBIssueID:  b.ExternalID,
			CanonicalSnapshot: dbkit.JSONB[*models.CanonicalSnapshot]{Data: reconcile.SnapshotFromView(b)},
		}
		if err := d.mappings.Create(ctx, m); err != nil {
			if !repositories.IsConflict(err) {
				d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"a_issue_id": a.ExternalID, "b_issue_id": b.ExternalID}).Warnf("pairing: failed to create title-seeded mapping")
			}
			continue
		}

		patch := reconcile.BuildPatch(a, reconcile.SnapshotFromView(b))
		if !patch.IsEmpty() {
			if res := adapterA.UpdateIssue(ctx, externalAProjectID, a.ExternalID, patch); !res.IsOk() {
				d.logger.WithContext(ctx).WithFields(map[string]any{"a_issue_id": a.ExternalID}).Warnf("pairing: first-observe patch to a failed, will retry next pass")
			}
		}
		mappedA[a.ExternalID] = struct{}{}
		mappedB[b.ExternalID] = struct{}{}
		metrics.MappingsCreatedTotal.WithLabelValues("seed_by_title").Inc()
		if d.events != nil {
			d.events.MappingCreated(ctx, *m)
		}
	}
}

// createMissingAtoB is spec.md §4.5 step 3.
func (d *Discoverer) createMissingAtoB(
	ctx context.Context,
	adapterA, adapterB adapters.Adapter,
	projectID uuid.UUID,
	externalAProjectID, externalBProjectID int,
	filteredA []adapters.IssueView,
	mappedA map[int]struct{},
	publicURLA string,
) {
	for _, a := range filteredA {
		if _, ok := mappedA[a.ExternalID]; ok {
			continue
		}
		draft := adapters.IssueDraft{
			Title:       a.Title,
			Description: reconcile.NormalizeBacklink(a.Description, aIssueURL(publicURLA, a.ExternalID)),
			Labels:      a.Labels,
			AssigneeID:  a.AssigneeID,
			DueDate:     a.DueDate,
			Status:      a.Status,
		}
		res := adapterB.CreateIssue(ctx, externalBProjectID, draft)
		if !res.IsOk() {
			d.logger.WithContext(ctx).WithFields(map[string]any{"a_issue_id": a.ExternalID}).Warnf("pairing: create-missing a->b failed: %s", describeCreateFailure(res))
			continue
		}
		created, _ := res.Value()

		bView := res2View(created, draft)
		m := &models.IssueMapping{
			ProjectID:         projectID,
			ExternalAIssueID:  a.ExternalID,
			ExternalBIssueID:  created.ExternalID,
			CanonicalSnapshot: dbkit.JSONB[*models.CanonicalSnapshot]{Data: reconcile.SnapshotFromView(bView)},
		}
		if err := d.mappings.Create(ctx, m); err != nil {
			if !repositories.IsConflict(err) {
				d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"a_issue_id": a.ExternalID, "b_issue_id": created.ExternalID}).Warnf("pairing: failed to record a->b mapping")
			}
			continue
		}
		mappedA[a.ExternalID] = struct{}{}
		metrics.MappingsCreatedTotal.WithLabelValues("create_a_to_b").Inc()
		if d.events != nil {
			d.events.MappingCreated(ctx, *m)
		}
	}
}

// createMissingBtoA is spec.md §4.5 step 4, symmetric to step 3: the
// matched category key becomes A's tracker via the adapter's own
// label->tracker translation, and B's OPEN/CLOSED maps straight onto A's
// "New"/"Closed" through the same neutral adapters.Status the adapter
// already understands.
func (d *Discoverer) createMissingBtoA(
	ctx context.Context,
	adapterA, adapterB adapters.Adapter,
	projectID uuid.UUID,
	externalAProjectID, externalBProjectID int,
	filteredB []adapters.IssueView,
	mappedB map[int]struct{},
	publicURLB string,
) {
	for _, b := range filteredB {
		if _, ok := mappedB[b.ExternalID]; ok {
			continue
		}
		draft := adapters.IssueDraft{
			Title:       b.Title,
			Description: reconcile.NormalizeBacklink(b.Description, bIssueURL(publicURLB, b.ExternalID)),
			Labels:      b.Labels,
			AssigneeID:  b.AssigneeID,
			DueDate:     b.DueDate,
			Status:      b.Status,
		}
		res := adapterA.CreateIssue(ctx, externalAProjectID, draft)
		if !res.IsOk() {
			d.logger.WithContext(ctx).WithFields(map[string]any{"b_issue_id": b.ExternalID}).Warnf("pairing: create-missing b->a failed: %s", describeCreateFailure(res))
			continue
		}
		created, _ := res.Value()

		aView := res2View(created, draft)
		m := &models.IssueMapping{
			ProjectID:         projectID,
			ExternalAIssueID:  created.ExternalID,
			ExternalBIssueID:  b.ExternalID,
			CanonicalSnapshot: dbkit.JSONB[*models.CanonicalSnapshot]{Data: reconcile.SnapshotFromView(aView)},
		}
		if err := d.mappings.Create(ctx, m); err != nil {
			if !repositories.IsConflict(err) {
				d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"a_issue_id": created.ExternalID, "b_issue_id": b.ExternalID}).Warnf("pairing: failed to record b->a mapping")
			}
			continue
		}
		mappedB[b.ExternalID] = struct{}{}
		metrics.MappingsCreatedTotal.WithLabelValues("create_b_to_a").Inc()
		if d.events != nil {
			d.events.MappingCreated(ctx, *m)
		}
	}
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func toIDSet(views []adapters.IssueView) map[int]struct{} {
	out := make(map[int]struct{}, len(views))
	for _, v := range views {
		out[v.ExternalID] = struct{}{}
	}
	return out
}

func filterByCategory(views []adapters.IssueView, categoryKeys map[string]struct{}, labelsOf func(adapters.IssueView) []string) []adapters.IssueView {
	if len(categoryKeys) == 0 {
		return views
	}
	out := make([]adapters.IssueView, 0, len(views))
	for _, v := range views {
		labels := labelsOf(v)
		if len(labels) == 0 {
			continue
		}
		if _, ok := categoryKeys[labels[0]]; ok {
			out = append(out, v)
		}
	}
	return out
}

func probeGone(ctx context.Context, adapter adapters.Adapter, projectRef, issueRef int) bool {
	res := adapter.GetIssue(ctx, projectRef, issueRef)
	return res.IsNotFound()
}

// res2View fakes the just-created issue's live view from its draft and
// new id, since CreateIssue's result only carries the id; the reconciler
// will re-observe the authoritative remote view on the very next pass.
func res2View(created adapters.CreatedIssue, draft adapters.IssueDraft) adapters.IssueView {
	return adapters.IssueView{
		ExternalID:  created.ExternalID,
		Title:       draft.Title,
		Description: draft.Description,
		Labels:      draft.Labels,
		AssigneeID:  draft.AssigneeID,
		DueDate:     draft.DueDate,
		Status:      draft.Status,
	}
}

func describeFailure(res adapters.Result[[]adapters.IssueView]) string {
	switch {
	case res.IsTransient():
		return res.Err().Error()
	case res.IsPermanent():
		return res.Detail()
	default:
		return "unexpected not-found"
	}
}

func describeCreateFailure(res adapters.Result[adapters.CreatedIssue]) string {
	switch {
	case res.IsTransient():
		return res.Err().Error()
	case res.IsPermanent():
		return res.Detail()
	default:
		return "unexpected not-found"
	}
}

func aIssueURL(publicURLA string, externalAIssueID int) string {
	return strings.TrimRight(publicURLA, "/") + fmt.Sprintf("/issues/%d", externalAIssueID)
}

func bIssueURL(publicURLB string, externalBIssueID int) string {
	return strings.TrimRight(publicURLB, "/") + fmt.Sprintf("/-/issues/%d", externalBIssueID)
}
