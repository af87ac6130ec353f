package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/trackersync/trackersync/internal/dbkit"
)

// Status is the neutral open/closed vocabulary both platforms translate
// into and out of.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// CanonicalSnapshot is the engine's record of the last state both sides
// agreed on — the three-way merge base. SchemaVersion lets future field
// additions be detected against rows written by an older version.
type CanonicalSnapshot struct {
	SchemaVersion int        `json:"schema_version"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Labels        []string   `json:"labels,omitempty"`
	AssigneeID    *uuid.UUID `json:"assignee_id,omitempty"`
	DueDate       *string    `json:"due_date,omitempty"` // calendar date, YYYY-MM-DD, no time zone
	Status        Status     `json:"status,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

const CurrentSnapshotSchemaVersion = 1

// IssueMapping is the durable pair (A-issue, B-issue) with its canonical
// snapshot. externalAIssueId and externalBIssueId are each globally unique,
// not per-project: an issue belongs to exactly one pair at any time.
type IssueMapping struct {
	ID                         uuid.UUID                             `db:"id" json:"id"`
	ProjectID                  uuid.UUID                              `db:"project_id" json:"project_id"`
	ExternalAIssueID           int                                    `db:"external_a_issue_id" json:"external_a_issue_id"`
	ExternalBIssueID           int                                    `db:"external_b_issue_id" json:"external_b_issue_id"`
	CanonicalSnapshot          dbkit.JSONB[*CanonicalSnapshot]        `db:"canonical_snapshot" json:"canonical_snapshot,omitempty"`
	LastObservedExternalEventID *string                               `db:"last_observed_external_event_id" json:"last_observed_external_event_id,omitempty"`
	CreatedAt                  time.Time                              `db:"created_at" json:"created_at"`
	UpdatedAt                  time.Time                              `db:"updated_at" json:"updated_at"`
}

func (IssueMapping) TableName() string { return "issue_mappings" }

// HasCanonical reports whether this mapping has ever completed a successful
// reconciliation. Nil only in the transient window between seeding and the
// first successful pass.
func (m *IssueMapping) HasCanonical() bool {
	return m.CanonicalSnapshot.Data != nil
}
