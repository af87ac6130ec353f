package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/trackersync/trackersync/internal/dbkit"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/tracing"
)

const issueMappingsTable = "issue_mappings"

var issueMappingStruct = dbkit.NewStruct(new(models.IssueMapping))

// MappingRepository implements MappingRepo: the explicit "loadMapping,
// saveMapping, advanceCanonical, deleteMapping" layer the mapping store
// spec.md §9 Design Note 2 calls for.
type MappingRepository struct {
	*Repository
}

func NewMappingRepository(db dbkit.DB, logger ectologger.Logger) *MappingRepository {
	return &MappingRepository{Repository: NewRepository(db, logger)}
}

// Create inserts a new IssueMapping. A uniqueness violation on either
// external id is a mapping-integrity error (spec.md §7): the caller is
// expected to skip the candidate and continue, not abort the pass.
func (r *MappingRepository) Create(ctx context.Context, m *models.IssueMapping) error {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.Create")
	defer span.End()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	ib := dbkit.NewInsertBuilder()
	ib.InsertInto(issueMappingsTable).
		Cols("id", "project_id", "external_a_issue_id", "external_b_issue_id", "canonical_snapshot", "last_observed_external_event_id", "created_at", "updated_at").
		Values(m.ID, m.ProjectID, m.ExternalAIssueID, m.ExternalBIssueID, m.CanonicalSnapshot, m.LastObservedExternalEventID, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	if err := r.DB().QueryRowContext(ctx, query, args...).Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return Conflict("mapping already exists for project %s (a=%d b=%d)", m.ProjectID, m.ExternalAIssueID, m.ExternalBIssueID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id":           m.ProjectID,
			"external_a_issue_id": m.ExternalAIssueID,
			"external_b_issue_id": m.ExternalBIssueID,
		}).Error("failed to create issue mapping")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create issue mapping")
	}
	return nil
}

func (r *MappingRepository) GetByExternalAIssueID(ctx context.Context, projectID uuid.UUID, externalAIssueID int) (*models.IssueMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.GetByExternalAIssueID")
	defer span.End()

	sb := issueMappingStruct.SelectFrom(issueMappingsTable)
	sb.Where(sb.Equal("project_id", projectID), sb.Equal("external_a_issue_id", externalAIssueID))

	query, args := sb.Build()
	var m models.IssueMapping
	err := r.DB().GetContext(ctx, &m, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("mapping for a-issue %d does not exist", externalAIssueID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get mapping by a-issue id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get mapping")
	}
	return &m, nil
}

func (r *MappingRepository) GetByExternalBIssueID(ctx context.Context, projectID uuid.UUID, externalBIssueID int) (*models.IssueMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.GetByExternalBIssueID")
	defer span.End()

	sb := issueMappingStruct.SelectFrom(issueMappingsTable)
	sb.Where(sb.Equal("project_id", projectID), sb.Equal("external_b_issue_id", externalBIssueID))

	query, args := sb.Build()
	var m models.IssueMapping
	err := r.DB().GetContext(ctx, &m, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("mapping for b-issue %d does not exist", externalBIssueID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get mapping by b-issue id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get mapping")
	}
	return &m, nil
}

func (r *MappingRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.IssueMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.ListByProject")
	defer span.End()

	sb := issueMappingStruct.SelectFrom(issueMappingsTable)
	sb.Where(sb.Equal("project_id", projectID))
	sb.OrderBy("external_a_issue_id")

	query, args := sb.Build()
	var mappings []models.IssueMapping
	if err := r.DB().SelectContext(ctx, &mappings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list mappings for project")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list mappings")
	}
	return mappings, nil
}

// AdvanceCanonical is the only mutation allowed on a mapping outside
// creation and deletion (spec.md §3 "IssueMapping lifecycle").
func (r *MappingRepository) AdvanceCanonical(ctx context.Context, id uuid.UUID, snapshot *models.CanonicalSnapshot) error {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.AdvanceCanonical")
	defer span.End()

	ub := dbkit.NewUpdateBuilder()
	ub.Update(issueMappingsTable).
		Set(
			ub.Assign("canonical_snapshot", dbkit.JSONB[*models.CanonicalSnapshot]{Data: snapshot}),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"mapping_id": id}).Error("failed to advance canonical snapshot")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to advance canonical snapshot")
	}
	return nil
}

// Delete removes a mapping. Called only when a counterpart is confirmed
// gone (spec.md §4.7); never propagates to delete the remaining remote
// issue.
func (r *MappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.Delete")
	defer span.End()

	db := dbkit.NewDeleteBuilder()
	db.DeleteFrom(issueMappingsTable)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"mapping_id": id}).Error("failed to delete mapping")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete mapping")
	}
	return nil
}
