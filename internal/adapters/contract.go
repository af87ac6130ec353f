// Package adapters defines the neutral contract platform A and platform B
// adapters both implement (spec.md §4.1): uniform read/write access over
// each remote tracker, hiding REST shape, auth, and pagination from the
// reconciler and every other core component.
package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trackersync/trackersync/internal/dbkit"
)

// Status is the neutral open/closed vocabulary every platform's state
// model translates into.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// ProjectSummary is platform A's project listing row (spec.md §4.1,
// "listProjects() -> A only"). CustomFields carries A's raw
// `custom_fields` JSON array (decoded, not re-shaped) so
// internal/discovery can run a JMESPath query against it to extract the
// configured field by name without the adapter needing to know what
// discovery is looking for.
type ProjectSummary struct {
	ExternalID   int
	Key          string
	Name         string
	CustomFields any
}

// Member is a platform's project member (spec.md §4.1 listMembers).
type Member struct {
	ExternalID int
	Handle     string
	Name       string
}

// AssigneeID fields across IssueView/IssueDraft/IssuePatch carry the
// neutral User row id (spec.md §3: "assigneeId a neutral id (see User)"),
// never a platform-raw numeric id. Each adapter resolves this id to and
// from its platform's own numeric user id internally, using the User
// correlation table, so the Adapter contract never leaks either
// platform's identifier scheme to the reconciler.

// IssueView is the neutral snapshot shape both platforms translate their
// issue representation into and out of (spec.md §3's CanonicalSnapshot
// fields, plus the identifiers needed to address the remote issue).
type IssueView struct {
	ExternalID  int
	Title       string
	Description string
	Labels      []string
	AssigneeID  *uuid.UUID
	DueDate     *string
	Status      Status
	UpdatedAt   time.Time
}

// IssueDraft is the input to createIssue: every field is always sent,
// there is no present/absent discipline on creation.
type IssueDraft struct {
	Title       string
	Description string
	Labels      []string
	AssigneeID  *uuid.UUID
	DueDate     *string
	Status      Status
}

// IssuePatch uses dbkit.Optional's present/absent discipline (spec.md
// §4.1: "an absent field means do not touch"). A zero-value IssuePatch
// must translate to a no-op request, never an empty-body write.
type IssuePatch struct {
	Title       dbkit.Optional[string]
	Description dbkit.Optional[string]
	Labels      dbkit.Optional[[]string]
	AssigneeID  dbkit.Optional[*uuid.UUID]
	DueDate     dbkit.Optional[*string]
	Status      dbkit.Optional[Status]
}

// IsEmpty reports whether every field of the patch is absent, i.e. it
// would translate to a no-op request.
func (p IssuePatch) IsEmpty() bool {
	return !p.Title.IsSet() && !p.Description.IsSet() && !p.Labels.IsSet() &&
		!p.AssigneeID.IsSet() && !p.DueDate.IsSet() && !p.Status.IsSet()
}

// CreatedIssue is createIssue's success result: the new remote id.
type CreatedIssue struct {
	ExternalID int
}

// kind enumerates Result's four states (spec.md §9 Design Note 3:
// "Ok(view) | NotFound | TransientError | PermanentError(detail)").
type kind int

const (
	kindOk kind = iota
	kindNotFound
	kindTransient
	kindPermanent
)

// Result is the explicit result sum every adapter operation returns
// instead of throwing: callers branch on Kind(), never on a Go error
// alone, so the reconciler's error-kind taxonomy (spec.md §7) is total
// and exhaustive at every call site.
type Result[T any] struct {
	k       kind
	value   T
	err     error
	detail  string
}

func Ok[T any](v T) Result[T] { return Result[T]{k: kindOk, value: v} }

func NotFound[T any]() Result[T] { return Result[T]{k: kindNotFound} }

// Transient wraps a retryable failure: HTTP 429/503, timeouts, connection
// resets (spec.md §7), already retried by the httpkit layer before this
// is ever constructed.
func Transient[T any](err error) Result[T] { return Result[T]{k: kindTransient, err: err} }

// Permanent wraps a non-retryable remote rejection (spec.md §7: "4xx
// other than 404/429, including validation errors").
func Permanent[T any](detail string) Result[T] { return Result[T]{k: kindPermanent, detail: detail} }

func (r Result[T]) IsOk() bool        { return r.k == kindOk }
func (r Result[T]) IsNotFound() bool  { return r.k == kindNotFound }
func (r Result[T]) IsTransient() bool { return r.k == kindTransient }
func (r Result[T]) IsPermanent() bool { return r.k == kindPermanent }

// Value returns the wrapped value and ok=true only when IsOk(). Callers
// must check IsOk() (or use the Is* predicates) before trusting Value.
func (r Result[T]) Value() (T, bool) { return r.value, r.k == kindOk }

// Err returns the transient error, or nil if this result is not
// IsTransient().
func (r Result[T]) Err() error { return r.err }

// Detail returns the permanent-failure detail string, or "" if this
// result is not IsPermanent().
func (r Result[T]) Detail() string { return r.detail }

// ClassifyHTTPStatus maps a raw HTTP response into the §7 error taxonomy
// for any T, so both platform adapters can share one status-to-Result
// decision instead of duplicating it per call site. matched is false for 2xx
// responses — the caller should proceed to decode its own success body.
func ClassifyHTTPStatus[T any](statusCode int, body []byte) (res Result[T], matched bool) {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return Result[T]{}, false
	case statusCode == 404:
		return NotFound[T](), true
	case statusCode == 429 || statusCode == 503:
		return Transient[T](fmt.Errorf("remote returned %d", statusCode)), true
	default:
		return Permanent[T](fmt.Sprintf("remote returned %d: %s", statusCode, string(body))), true
	}
}

// Adapter is the uniform contract spec.md §4.1 requires of platform A and
// platform B. projectRef and issueRef are each platform's own identifier
// type (numeric project/issue id for both A and B in this spec); callers
// pass back exactly what an earlier Adapter call returned.
type Adapter interface {
	// ListProjects is A-only; B adapters return Permanent on call.
	ListProjects(ctx context.Context) Result[[]ProjectSummary]

	// ResolveProjectID is B-only; A adapters return Permanent on call.
	ResolveProjectID(ctx context.Context, pathWithNamespace string) Result[int]

	ListMembers(ctx context.Context, projectRef int) Result[[]Member]

	// ListIssues pages until exhaustion and returns every issue
	// regardless of state; category-key filtering is internal/pairing's
	// responsibility, not the adapter's.
	ListIssues(ctx context.Context, projectRef int) Result[[]IssueView]

	GetIssue(ctx context.Context, projectRef, issueRef int) Result[IssueView]

	CreateIssue(ctx context.Context, projectRef int, draft IssueDraft) Result[CreatedIssue]

	UpdateIssue(ctx context.Context, projectRef, issueRef int, patch IssuePatch) Result[struct{}]
}
