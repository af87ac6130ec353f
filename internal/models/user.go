package models

import (
	"time"

	"github.com/google/uuid"
)

// User correlates an A-side user id with a B-side user id. Either platform
// id may be absent for a row, but never both — a row only exists once a
// correlation has matched on both sides.
type User struct {
	ID               uuid.UUID `db:"id" json:"id"`
	ExternalAUserID  *int      `db:"external_a_user_id" json:"external_a_user_id,omitempty"`
	ExternalBUserID  *int      `db:"external_b_user_id" json:"external_b_user_id,omitempty"`
	DisplayKey       string    `db:"display_key" json:"display_key"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

func (User) TableName() string { return "users" }
