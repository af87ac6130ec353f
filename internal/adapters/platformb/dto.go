// Package platformb implements adapters.Adapter against platform B's
// GitLab-shaped REST API: labels, `opened`/`closed` state.
package platformb

import "time"

type issueDTO struct {
	IID         int       `json:"iid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Labels      []string  `json:"labels"`
	State       string    `json:"state"`
	AssigneeID  *int      `json:"assignee_id,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type issueCreateDTO struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Labels      string  `json:"labels,omitempty"` // GitLab accepts a comma-joined label string
	AssigneeID  *int    `json:"assignee_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	// StateEvent is set on create only when the issue must start closed;
	// GitLab has no create-time "state" field, only the update-time event.
	StateEvent *string `json:"state_event,omitempty"`
}

// issueUpdateDTO mirrors the PUT body GitLab's Edit Issue endpoint
// accepts. Every field is a pointer so an absent IssuePatch field never
// serializes.
type issueUpdateDTO struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Labels      *string `json:"labels,omitempty"`
	AssigneeID  *int    `json:"assignee_id,omitempty"`
	AssigneeIDs *[]int  `json:"assignee_ids,omitempty"` // used to explicitly clear assignment ([] means unassigned)
	DueDate     *string `json:"due_date,omitempty"`
	StateEvent  *string `json:"state_event,omitempty"`
}

type projectDTO struct {
	ID                int    `json:"id"`
	PathWithNamespace string `json:"path_with_namespace"`
}

type memberDTO struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}
