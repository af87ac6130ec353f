package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/trackersync/trackersync/internal/dbkit"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/tracing"
)

const (
	projectsTable        = "projects"
	remoteProjectsBTable = "remote_projects_b"
)

var projectStruct = dbkit.NewStruct(new(models.Project))
var remoteProjectBStruct = dbkit.NewStruct(new(models.RemoteProjectB))

// ProjectRepository implements ProjectRepo.
type ProjectRepository struct {
	*Repository
}

func NewProjectRepository(db dbkit.DB, logger ectologger.Logger) *ProjectRepository {
	return &ProjectRepository{Repository: NewRepository(db, logger)}
}

// UpsertProject inserts a Project keyed on externalAId, or updates its key
// in place if one already exists for that externalAId.
func (r *ProjectRepository) UpsertProject(ctx context.Context, p *models.Project) error {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.UpsertProject")
	defer span.End()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	ib := dbkit.NewInsertBuilder()
	ib.InsertInto(projectsTable).
		Cols("id", "external_a_id", "external_a_key", "created_at", "updated_at").
		Values(p.ID, p.ExternalAID, p.ExternalAKey, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))
	ub := ib.OnConflict("external_a_id")
	ub.Set(
		ub.Assign("external_a_key", p.ExternalAKey),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ib.SQL("RETURNING id, created_at, updated_at")

	query, args := ib.Build()
	if err := r.DB().QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_a_id": p.ExternalAID,
		}).Error("failed to upsert project")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert project")
	}

	return nil
}

// UpsertRemoteProjectB inserts or updates the 1:1 child row, preserving an
// already-resolved ExternalBID unless the caller explicitly supplies a new
// one.
func (r *ProjectRepository) UpsertRemoteProjectB(ctx context.Context, rb *models.RemoteProjectB) error {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.UpsertRemoteProjectB")
	defer span.End()

	if rb.ID == uuid.Nil {
		rb.ID = uuid.New()
	}

	ib := dbkit.NewInsertBuilder()
	ib.InsertInto(remoteProjectsBTable).
		Cols("id", "project_id", "external_b_id", "path_with_namespace", "url", "created_at", "updated_at").
		Values(rb.ID, rb.ProjectID, rb.ExternalBID, rb.PathWithNamespace, rb.URL, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))
	ub := ib.OnConflict("project_id")
	ub.Set(
		ub.Assign("path_with_namespace", rb.PathWithNamespace),
		ub.Assign("url", rb.URL),
		ub.Assign("external_b_id", sqlbuilder.Raw("COALESCE("+ub.Var(rb.ExternalBID)+", "+remoteProjectsBTable+".external_b_id)")),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ib.SQL("RETURNING id, external_b_id, created_at, updated_at")

	query, args := ib.Build()
	if err := r.DB().QueryRowContext(ctx, query, args...).Scan(&rb.ID, &rb.ExternalBID, &rb.CreatedAt, &rb.UpdatedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id": rb.ProjectID,
		}).Error("failed to upsert remote project b")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert remote project b")
	}

	return nil
}

func (r *ProjectRepository) GetRemoteProjectB(ctx context.Context, projectID uuid.UUID) (*models.RemoteProjectB, error) {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.GetRemoteProjectB")
	defer span.End()

	sb := remoteProjectBStruct.SelectFrom(remoteProjectsBTable)
	sb.Where(sb.Equal("project_id", projectID))

	query, args := sb.Build()
	var rb models.RemoteProjectB
	err := r.DB().GetContext(ctx, &rb, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("remote project for project %s does not exist", projectID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get remote project b")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get remote project b")
	}
	return &rb, nil
}

// ListLinked returns every Project whose RemoteProjectB has a resolved
// ExternalBID — the set the poll driver reconciles each pass.
func (r *ProjectRepository) ListLinked(ctx context.Context) ([]LinkedProject, error) {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.ListLinked")
	defer span.End()

	query := `
		SELECT p.id, p.external_a_id, p.external_a_key, p.last_sync_at, p.created_at, p.updated_at,
		       r.id, r.project_id, r.external_b_id, r.path_with_namespace, r.url, r.created_at, r.updated_at
		FROM projects p
		INNER JOIN remote_projects_b r ON r.project_id = p.id
		WHERE r.external_b_id IS NOT NULL
		ORDER BY p.external_a_id
	`

	rows, err := r.DB().QueryContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list linked projects")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list linked projects")
	}
	defer rows.Close()

	var out []LinkedProject
	for rows.Next() {
		var lp LinkedProject
		if err := rows.Scan(
			&lp.Project.ID, &lp.Project.ExternalAID, &lp.Project.ExternalAKey, &lp.Project.LastSyncAt, &lp.Project.CreatedAt, &lp.Project.UpdatedAt,
			&lp.RemoteProjectB.ID, &lp.RemoteProjectB.ProjectID, &lp.RemoteProjectB.ExternalBID, &lp.RemoteProjectB.PathWithNamespace, &lp.RemoteProjectB.URL, &lp.RemoteProjectB.CreatedAt, &lp.RemoteProjectB.UpdatedAt,
		); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("failed to scan linked project")
			continue
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}

func (r *ProjectRepository) ListAll(ctx context.Context) ([]models.Project, error) {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.ListAll")
	defer span.End()

	sb := projectStruct.SelectFrom(projectsTable)
	sb.OrderBy("external_a_id")

	query, args := sb.Build()
	var projects []models.Project
	if err := r.DB().SelectContext(ctx, &projects, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list projects")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list projects")
	}
	return projects, nil
}

func (r *ProjectRepository) TouchLastSync(ctx context.Context, projectID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.TouchLastSync")
	defer span.End()

	now := time.Now().UTC()
	ub := dbkit.NewUpdateBuilder()
	ub.Update(projectsTable).
		Set(ub.Assign("last_sync_at", now), ub.Assign("updated_at", sqlbuilder.Raw("NOW()"))).
		Where(ub.Equal("id", projectID))

	query, args := ub.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to touch project last_sync_at")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to touch project last_sync_at")
	}
	return nil
}
