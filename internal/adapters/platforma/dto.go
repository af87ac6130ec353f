// Package platforma implements adapters.Adapter against platform A's
// Redmine-shaped REST API: numeric trackers/statuses, `subject`,
// `tracker.name`, `status.name`.
package platforma

import "time"

type issueDTO struct {
	ID          int            `json:"id"`
	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	Tracker     *trackerRefDTO `json:"tracker,omitempty"`
	Status      *statusRefDTO  `json:"status,omitempty"`
	AssignedTo  *memberRefDTO  `json:"assigned_to,omitempty"`
	DueDate     *string        `json:"due_date,omitempty"`
	UpdatedOn   time.Time      `json:"updated_on"`
}

type trackerRefDTO struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type statusRefDTO struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type memberRefDTO struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type issueListResponseDTO struct {
	Issues     []issueDTO `json:"issues"`
	TotalCount int        `json:"total_count"`
	Offset     int        `json:"offset"`
	Limit      int        `json:"limit"`
}

type issueEnvelopeDTO struct {
	Issue issueDTO `json:"issue"`
}

type issueCreateRequestDTO struct {
	Issue issueCreateDTO `json:"issue"`
}

type issueCreateDTO struct {
	Subject      string  `json:"subject"`
	Description  string  `json:"description"`
	TrackerID    *int    `json:"tracker_id,omitempty"`
	StatusID     *int    `json:"status_id,omitempty"`
	AssignedToID *int    `json:"assigned_to_id,omitempty"`
	DueDate      *string `json:"due_date,omitempty"`
}

type issueUpdateRequestDTO struct {
	Issue issueUpdateDTO `json:"issue"`
}

// issueUpdateDTO mirrors issueCreateDTO's fields but every field is a raw
// pointer: nil means "do not touch" so a present/absent IssuePatch maps
// onto Redmine's own partial-update semantics without extra bookkeeping.
type issueUpdateDTO struct {
	Subject      *string `json:"subject,omitempty"`
	Description  *string `json:"description,omitempty"`
	TrackerID    *int    `json:"tracker_id,omitempty"`
	StatusID     *int    `json:"status_id,omitempty"`
	AssignedToID *int    `json:"assigned_to_id,omitempty"`
	DueDate      *string `json:"due_date,omitempty"`
}

type projectDTO struct {
	ID           int    `json:"id"`
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	CustomFields any    `json:"custom_fields,omitempty"`
}

type projectListResponseDTO struct {
	Projects   []projectDTO `json:"projects"`
	TotalCount int          `json:"total_count"`
	Offset     int          `json:"offset"`
	Limit      int          `json:"limit"`
}

type membershipDTO struct {
	ID   int          `json:"id"`
	User *memberRefDTO `json:"user,omitempty"`
}

type membershipListResponseDTO struct {
	Memberships []membershipDTO `json:"memberships"`
	TotalCount  int             `json:"total_count"`
	Offset      int             `json:"offset"`
	Limit       int             `json:"limit"`
}

type trackerListResponseDTO struct {
	Trackers []trackerRefDTO `json:"trackers"`
}

type statusListResponseDTO struct {
	Statuses []statusRefDTO `json:"issue_statuses"`
}
