package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/trackersync/trackersync/internal/dbkit"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/tracing"
)

const (
	trackersATable = "trackers_a"
	statusesATable = "statuses_a"
)

var trackerAStruct = dbkit.NewStruct(new(models.TrackerA))
var statusAStruct = dbkit.NewStruct(new(models.StatusA))

// ReferenceRepository implements ReferenceRepo: the refresh-and-upsert cache
// for platform A's global tracker/status vocabulary (spec.md §4.1).
type ReferenceRepository struct {
	*Repository
}

func NewReferenceRepository(db dbkit.DB, logger ectologger.Logger) *ReferenceRepository {
	return &ReferenceRepository{Repository: NewRepository(db, logger)}
}

// UpsertTrackers overwrites names on id collision; truth lives in platform
// A, this table is a cache, not a source of record.
func (r *ReferenceRepository) UpsertTrackers(ctx context.Context, trackers []models.TrackerA) error {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.UpsertTrackers")
	defer span.End()

	for _, t := range trackers {
		ib := dbkit.NewInsertBuilder()
		ib.InsertInto(trackersATable).
			Cols("external_id", "name").
			Values(t.ExternalID, t.Name)
		ub := ib.OnConflict("external_id")
		ub.Set(ub.Assign("name", dbkit.Excluded("name")))

		query, args := ib.Build()
		if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"external_id": t.ExternalID,
			}).Error("failed to upsert tracker")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert tracker")
		}
	}
	return nil
}

func (r *ReferenceRepository) UpsertStatuses(ctx context.Context, statuses []models.StatusA) error {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.UpsertStatuses")
	defer span.End()

	for _, s := range statuses {
		ib := dbkit.NewInsertBuilder()
		ib.InsertInto(statusesATable).
			Cols("external_id", "name").
			Values(s.ExternalID, s.Name)
		ub := ib.OnConflict("external_id")
		ub.Set(ub.Assign("name", dbkit.Excluded("name")))

		query, args := ib.Build()
		if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"external_id": s.ExternalID,
			}).Error("failed to upsert status")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert status")
		}
	}
	return nil
}

func (r *ReferenceRepository) TrackerByName(ctx context.Context, name string) (*models.TrackerA, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.TrackerByName")
	defer span.End()

	sb := trackerAStruct.SelectFrom(trackersATable)
	sb.Where(sb.Equal("name", name))

	query, args := sb.Build()
	var t models.TrackerA
	err := r.DB().GetContext(ctx, &t, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("no tracker named %q in the reference cache", name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get tracker by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tracker")
	}
	return &t, nil
}

func (r *ReferenceRepository) StatusByName(ctx context.Context, name string) (*models.StatusA, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.StatusByName")
	defer span.End()

	sb := statusAStruct.SelectFrom(statusesATable)
	sb.Where(sb.Equal("name", name))

	query, args := sb.Build()
	var s models.StatusA
	err := r.DB().GetContext(ctx, &s, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("no status named %q in the reference cache", name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get status by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get status")
	}
	return &s, nil
}
