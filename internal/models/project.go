package models

import (
	"time"

	"github.com/google/uuid"
)

// Project mirrors an A-side project that has been linked to a B-side
// repository. A Project without a resolved RemoteProjectB.ExternalBID is
// unlinked and skipped by reconciliation.
type Project struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ExternalAID  int        `db:"external_a_id" json:"external_a_id"`
	ExternalAKey string     `db:"external_a_key" json:"external_a_key"`
	LastSyncAt   *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

// RemoteProjectB is the 1:1 child of Project describing the linked B-side
// repository. ExternalBID is nil until resolveProjectId succeeds.
type RemoteProjectB struct {
	ID               uuid.UUID `db:"id" json:"id"`
	ProjectID        uuid.UUID `db:"project_id" json:"project_id"`
	ExternalBID      *int      `db:"external_b_id" json:"external_b_id,omitempty"`
	PathWithNamespace string   `db:"path_with_namespace" json:"path_with_namespace"`
	URL              string    `db:"url" json:"url"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

func (RemoteProjectB) TableName() string { return "remote_projects_b" }

// Linked reports whether the project has a resolved B-side id.
func (r *RemoteProjectB) Linked() bool {
	return r != nil && r.ExternalBID != nil
}
