package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/trackersync/trackersync/internal/models"
)

// ProjectRepo is the Project + RemoteProjectB half of the mapping store.
type ProjectRepo interface {
	UpsertProject(ctx context.Context, p *models.Project) error
	UpsertRemoteProjectB(ctx context.Context, rb *models.RemoteProjectB) error
	GetRemoteProjectB(ctx context.Context, projectID uuid.UUID) (*models.RemoteProjectB, error)
	ListLinked(ctx context.Context) ([]LinkedProject, error)
	ListAll(ctx context.Context) ([]models.Project, error)
	TouchLastSync(ctx context.Context, projectID uuid.UUID) error
}

// LinkedProject is a Project joined with its resolved RemoteProjectB, the
// shape the poll driver iterates per pass.
type LinkedProject struct {
	Project        models.Project
	RemoteProjectB models.RemoteProjectB
}

// MappingRepo is the explicit repository layer spec.md's "ORM with
// change-tracking" design note calls for: loadMapping, saveMapping,
// advanceCanonical, deleteMapping.
type MappingRepo interface {
	Create(ctx context.Context, m *models.IssueMapping) error
	GetByExternalAIssueID(ctx context.Context, projectID uuid.UUID, externalAIssueID int) (*models.IssueMapping, error)
	GetByExternalBIssueID(ctx context.Context, projectID uuid.UUID, externalBIssueID int) (*models.IssueMapping, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.IssueMapping, error)
	AdvanceCanonical(ctx context.Context, id uuid.UUID, snapshot *models.CanonicalSnapshot) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRepo correlates A-ids and B-ids.
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByExternalAUserID(ctx context.Context, externalAUserID int) (*models.User, error)
	GetByExternalBUserID(ctx context.Context, externalBUserID int) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
}

// ReferenceRepo manages the TrackerA/StatusA cache tables.
type ReferenceRepo interface {
	UpsertTrackers(ctx context.Context, trackers []models.TrackerA) error
	UpsertStatuses(ctx context.Context, statuses []models.StatusA) error
	TrackerByName(ctx context.Context, name string) (*models.TrackerA, error)
	StatusByName(ctx context.Context, name string) (*models.StatusA, error)
}
