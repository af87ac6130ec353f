package models

// TrackerA and StatusA mirror platform A's global category (tracker) and
// state vocabulary. Truth lives in A; a refresh overwrites names on id
// collision, since these tables are a cache, not a source of record.

type TrackerA struct {
	ExternalID int    `db:"external_id" json:"external_id"`
	Name       string `db:"name" json:"name"`
}

func (TrackerA) TableName() string { return "trackers_a" }

type StatusA struct {
	ExternalID int    `db:"external_id" json:"external_id"`
	Name       string `db:"name" json:"name"`
}

func (StatusA) TableName() string { return "statuses_a" }

// Well-known StatusA names the reconciler translates OPEN/CLOSED into.
const (
	StatusAOpenName   = "New"
	StatusAClosedName = "Closed"
)
