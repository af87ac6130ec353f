// Package members builds the User correlation table by handle-heuristic
// matching between platform A and platform B members of the same
// project (spec.md §4.4).
package members

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/repositories"
	"github.com/trackersync/trackersync/internal/tracing"
)

// syntheticBot matches GitLab's own project/group service-account handles,
// which are platform-synthetic and never correlate to a real A-user.
var syntheticBot = regexp.MustCompile(`(?i)^(project|group)_\d+_bot(_|$)`)

// Correlator implements the handle search-key heuristic: crude but
// deterministic under a fixed handle corpus (spec.md §4.4).
type Correlator struct {
	users  repositories.UserRepo
	logger ectologger.Logger
}

func New(users repositories.UserRepo, logger ectologger.Logger) *Correlator {
	return &Correlator{users: users, logger: logger}
}

// Run fetches both platforms' members for projectRef(A)/projectRef(B) and
// inserts a new User row for every match the heuristic finds that isn't
// already correlated on the A-side. Existing rows are never mutated
// (spec.md §3 "User rows are append-mostly").
func (c *Correlator) Run(ctx context.Context, adapterA, adapterB adapters.Adapter, externalAProjectID, externalBProjectID int) error {
	ctx, span := tracing.StartSpan(ctx, "members.Correlator.Run")
	defer span.End()

	aRes := adapterA.ListMembers(ctx, externalAProjectID)
	if !aRes.IsOk() {
		return fmt.Errorf("listing A members: %s", describeFailure(aRes))
	}
	aMembers, _ := aRes.Value()

	bRes := adapterB.ListMembers(ctx, externalBProjectID)
	if !bRes.IsOk() {
		return fmt.Errorf("listing B members: %s", describeFailure(bRes))
	}
	bMembers, _ := bRes.Value()

	for _, b := range bMembers {
		c.correlateOne(ctx, b, aMembers)
	}
	return nil
}

func (c *Correlator) correlateOne(ctx context.Context, b adapters.Member, aMembers []adapters.Member) {
	if syntheticBot.MatchString(b.Handle) {
		return
	}

	key := searchKey(b.Handle)
	for _, a := range aMembers {
		if !strings.Contains(strings.ToLower(a.Name), strings.ToLower(key)) {
			continue
		}

		if _, err := c.users.GetByExternalAUserID(ctx, a.ExternalID); err == nil {
			continue // already correlated; first-write-wins, never re-evaluated
		}

		u := &models.User{
			ExternalAUserID: &a.ExternalID,
			ExternalBUserID: &b.ExternalID,
			DisplayKey:      b.Handle,
		}
		if err := c.users.Create(ctx, u); err != nil {
			if !repositories.IsConflict(err) {
				c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"a_user_id": a.ExternalID,
					"b_user_id": b.ExternalID,
				}).Warnf("members: failed to create user correlation")
			}
			continue
		}
		// First match wins; stop scanning A-members for this B-handle.
		return
	}
}

// searchKey derives a B-handle's search key per spec.md §4.4:
//  1. split on '.', '_', '-'; ≥2 parts → last part.
//  2. otherwise, handle ≥4 chars → drop the first character.
//  3. otherwise → the handle itself.
func searchKey(handle string) string {
	parts := strings.FieldsFunc(handle, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	if len(parts) >= 2 {
		return parts[len(parts)-1]
	}
	if len(handle) >= 4 {
		return handle[1:]
	}
	return handle
}

func describeFailure(res adapters.Result[[]adapters.Member]) string {
	switch {
	case res.IsTransient():
		return res.Err().Error()
	case res.IsPermanent():
		return res.Detail()
	default:
		return "unexpected not-found"
	}
}
