// Package refcache refreshes the local cache of platform A's global
// tracker and status vocabulary (spec.md §4.2: "each pass re-reads A's
// full tracker and status lists before reconciling any project").
package refcache

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/trackersync/trackersync/internal/adapters/platforma"
	"github.com/trackersync/trackersync/internal/repositories"
	"github.com/trackersync/trackersync/internal/tracing"
)

// Refresher re-reads platform A's tracker/status lists and upserts them
// into the local cache tables that platforma.Adapter's write path
// consults for name<->id translation.
type Refresher struct {
	source platforma.ReferenceSource
	refs   repositories.ReferenceRepo
	logger ectologger.Logger
}

func New(source platforma.ReferenceSource, refs repositories.ReferenceRepo, logger ectologger.Logger) *Refresher {
	return &Refresher{source: source, refs: refs, logger: logger}
}

// Refresh overwrites the cache from A's current lists. A failure on
// either list is returned whole; the caller (poller) treats a failed
// refresh as a reason to skip the pass entirely rather than reconcile
// against a stale or partial vocabulary.
func (r *Refresher) Refresh(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "refcache.Refresher.Refresh")
	defer span.End()

	trackersRes := r.source.ListTrackers(ctx)
	switch {
	case trackersRes.IsTransient():
		return fmt.Errorf("listing trackers: %w", trackersRes.Err())
	case trackersRes.IsPermanent():
		return fmt.Errorf("listing trackers: %s", trackersRes.Detail())
	case trackersRes.IsNotFound():
		return fmt.Errorf("listing trackers: unexpected not-found")
	}
	trackers, _ := trackersRes.Value()

	statusesRes := r.source.ListStatuses(ctx)
	switch {
	case statusesRes.IsTransient():
		return fmt.Errorf("listing statuses: %w", statusesRes.Err())
	case statusesRes.IsPermanent():
		return fmt.Errorf("listing statuses: %s", statusesRes.Detail())
	case statusesRes.IsNotFound():
		return fmt.Errorf("listing statuses: unexpected not-found")
	}
	statuses, _ := statusesRes.Value()

	if err := r.refs.UpsertTrackers(ctx, trackers); err != nil {
		return fmt.Errorf("upserting trackers: %w", err)
	}
	if err := r.refs.UpsertStatuses(ctx, statuses); err != nil {
		return fmt.Errorf("upserting statuses: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"trackers": len(trackers),
		"statuses": len(statuses),
	}).Debugf("refreshed platform A reference cache")
	return nil
}
