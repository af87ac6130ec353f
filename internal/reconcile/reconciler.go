package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/metrics"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/repositories"
	"github.com/trackersync/trackersync/internal/tracing"
)

// EventPublisher is the best-effort reconciliation-event sink
// (internal/eventlog); a nil Reconciler.events is a valid no-op.
type EventPublisher interface {
	MappingDeleted(ctx context.Context, m models.IssueMapping)
	ConflictResolved(ctx context.Context, m models.IssueMapping)
}

// Reconciler is the heart of the engine (spec.md §4.6): per mapping per
// pass, observe → normalize backlinks → first-observe → classify →
// per-field merge → patch → advance.
type Reconciler struct {
	mappings repositories.MappingRepo
	events   EventPublisher
	logger   ectologger.Logger
}

func New(mappings repositories.MappingRepo, events EventPublisher, logger ectologger.Logger) *Reconciler {
	return &Reconciler{mappings: mappings, events: events, logger: logger}
}

// ReconcileProject reconciles every existing mapping for one linked
// project. aHints/bHints are the per-project listing results, keyed by
// external id, consulted before falling back to a single getIssue call
// (spec.md §4.6 step 1). A per-mapping failure is logged and isolated;
// it never aborts the rest of the project (spec.md §7).
func (r *Reconciler) ReconcileProject(
	ctx context.Context,
	adapterA, adapterB adapters.Adapter,
	externalAProjectID, externalBProjectID int,
	mappings []models.IssueMapping,
	aHints, bHints map[int]adapters.IssueView,
	publicURLA, publicURLB string,
) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Reconciler.ReconcileProject")
	defer span.End()

	for _, m := range mappings {
		if err := r.reconcileOne(ctx, adapterA, adapterB, m, externalAProjectID, externalBProjectID, aHints, bHints, publicURLA, publicURLB); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"mapping_id": m.ID,
				"a_issue_id": m.ExternalAIssueID,
				"b_issue_id": m.ExternalBIssueID,
			}).Warnf("reconcile: pass failed for mapping, canonical not advanced")
		}
	}
}

func (r *Reconciler) reconcileOne(
	ctx context.Context,
	adapterA, adapterB adapters.Adapter,
	m models.IssueMapping,
	externalAProjectID, externalBProjectID int,
	aHints, bHints map[int]adapters.IssueView,
	publicURLA, publicURLB string,
) error {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Reconciler.reconcileOne")
	defer span.End()

	// Step 1: observe.
	a, aGone, err := fetchView(ctx, adapterA, externalAProjectID, m.ExternalAIssueID, aHints)
	if err != nil {
		return fmt.Errorf("observing a-side: %w", err)
	}
	b, bGone, err := fetchView(ctx, adapterB, externalBProjectID, m.ExternalBIssueID, bHints)
	if err != nil {
		return fmt.Errorf("observing b-side: %w", err)
	}
	if aGone || bGone {
		return r.deleteMapping(ctx, m)
	}

	// Step 2: normalize backlinks so description equality compares
	// payload, not a stale counterpart URL.
	a.Description = NormalizeBacklink(a.Description, bIssueURL(publicURLB, m.ExternalBIssueID))
	b.Description = NormalizeBacklink(b.Description, aIssueURL(publicURLA, m.ExternalAIssueID))

	// Step 3: first-observe. B is the deliberate initial source of truth
	// for newly seeded pairs.
	if !m.HasCanonical() {
		if err := r.applyPatch(ctx, adapterA, "a", externalAProjectID, m.ExternalAIssueID, BuildPatch(a, SnapshotFromView(b))); err != nil {
			return fmt.Errorf("first-observe patch to a: %w", err)
		}
		return r.advance(ctx, m, SnapshotFromView(b))
	}
	canonical := m.CanonicalSnapshot.Data

	// Step 4: classify.
	aEqual := viewEqualsSnapshot(a, canonical)
	bEqual := viewEqualsSnapshot(b, canonical)

	switch {
	case aEqual && bEqual:
		return nil

	case !aEqual && bEqual:
		if err := r.applyPatch(ctx, adapterB, "b", externalBProjectID, m.ExternalBIssueID, BuildPatch(b, SnapshotFromView(a))); err != nil {
			return fmt.Errorf("one-sided patch to b: %w", err)
		}
		return r.advance(ctx, m, SnapshotFromView(a))

	case aEqual && !bEqual:
		if err := r.applyPatch(ctx, adapterA, "a", externalAProjectID, m.ExternalAIssueID, BuildPatch(a, SnapshotFromView(b))); err != nil {
			return fmt.Errorf("one-sided patch to a: %w", err)
		}
		return r.advance(ctx, m, SnapshotFromView(b))

	default:
		// Step 5: both differ — conflict, per-field merge.
		winner := mergeSnapshots(a, b, canonical)
		if err := r.applyPatch(ctx, adapterA, "a", externalAProjectID, m.ExternalAIssueID, BuildPatch(a, winner)); err != nil {
			return fmt.Errorf("conflict patch to a: %w", err)
		}
		if err := r.applyPatch(ctx, adapterB, "b", externalBProjectID, m.ExternalBIssueID, BuildPatch(b, winner)); err != nil {
			return fmt.Errorf("conflict patch to b: %w", err)
		}
		metrics.ConflictsResolvedTotal.Inc()
		if r.events != nil {
			r.events.ConflictResolved(ctx, m)
		}
		return r.advance(ctx, m, winner)
	}
}

// applyPatch is a no-op for an empty patch (adapters must never be asked
// to send an empty-body write).
func (r *Reconciler) applyPatch(ctx context.Context, adapter adapters.Adapter, platform string, projectRef, issueRef int, patch adapters.IssuePatch) error {
	if patch.IsEmpty() {
		return nil
	}
	res := adapter.UpdateIssue(ctx, projectRef, issueRef, patch)
	switch {
	case res.IsOk():
		metrics.RecordAdapterCall(platform, "update_issue", "ok")
		metrics.PatchesAppliedTotal.WithLabelValues(platform).Inc()
		return nil
	case res.IsTransient():
		metrics.RecordAdapterCall(platform, "update_issue", "transient")
		return res.Err()
	default:
		metrics.RecordAdapterCall(platform, "update_issue", "permanent")
		return fmt.Errorf("%s", res.Detail())
	}
}

func (r *Reconciler) advance(ctx context.Context, m models.IssueMapping, snapshot *models.CanonicalSnapshot) error {
	if err := r.mappings.AdvanceCanonical(ctx, m.ID, snapshot); err != nil {
		return fmt.Errorf("advancing canonical: %w", err)
	}
	return nil
}

// deleteMapping is the single chokepoint for deletion (spec.md §4.7): a
// deletion on one side never propagates to the other.
func (r *Reconciler) deleteMapping(ctx context.Context, m models.IssueMapping) error {
	if err := r.mappings.Delete(ctx, m.ID); err != nil {
		return fmt.Errorf("deleting mapping after not-found: %w", err)
	}
	metrics.MappingsDeletedTotal.Inc()
	if r.events != nil {
		r.events.MappingDeleted(ctx, m)
	}
	return nil
}

// fetchView consults the per-project listing hint before falling back
// to a single getIssue probe (spec.md §4.6 step 1). gone reports a
// confirmed NotFound.
func fetchView(ctx context.Context, adapter adapters.Adapter, projectRef, issueRef int, hints map[int]adapters.IssueView) (view adapters.IssueView, gone bool, err error) {
	if hints != nil {
		if v, ok := hints[issueRef]; ok {
			return v, false, nil
		}
	}
	res := adapter.GetIssue(ctx, projectRef, issueRef)
	switch {
	case res.IsOk():
		v, _ := res.Value()
		return v, false, nil
	case res.IsNotFound():
		return adapters.IssueView{}, true, nil
	case res.IsTransient():
		return adapters.IssueView{}, false, res.Err()
	default:
		return adapters.IssueView{}, false, fmt.Errorf("%s", res.Detail())
	}
}

func aIssueURL(publicURLA string, externalAIssueID int) string {
	return strings.TrimRight(publicURLA, "/") + fmt.Sprintf("/issues/%d", externalAIssueID)
}

func bIssueURL(publicURLB string, externalBIssueID int) string {
	return strings.TrimRight(publicURLB, "/") + fmt.Sprintf("/-/issues/%d", externalBIssueID)
}
