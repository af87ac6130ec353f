package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/trackersync/trackersync/internal/dbkit"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/tracing"
)

const usersTable = "users"

var userStruct = dbkit.NewStruct(new(models.User))

// UserRepository implements UserRepo: the append-mostly A-id/B-id
// correlation table (spec.md §3 "User rows are append-mostly").
type UserRepository struct {
	*Repository
}

func NewUserRepository(db dbkit.DB, logger ectologger.Logger) *UserRepository {
	return &UserRepository{Repository: NewRepository(db, logger)}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "UserRepository.GetByID")
	defer span.End()

	sb := userStruct.SelectFrom(usersTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var u models.User
	err := r.DB().GetContext(ctx, &u, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("no user correlation %s", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get user by id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get user")
	}
	return &u, nil
}

func (r *UserRepository) GetByExternalAUserID(ctx context.Context, externalAUserID int) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "UserRepository.GetByExternalAUserID")
	defer span.End()

	sb := userStruct.SelectFrom(usersTable)
	sb.Where(sb.Equal("external_a_user_id", externalAUserID))

	query, args := sb.Build()
	var u models.User
	err := r.DB().GetContext(ctx, &u, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("no user correlated for a-user %d", externalAUserID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get user by a-user id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get user")
	}
	return &u, nil
}

func (r *UserRepository) GetByExternalBUserID(ctx context.Context, externalBUserID int) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "UserRepository.GetByExternalBUserID")
	defer span.End()

	sb := userStruct.SelectFrom(usersTable)
	sb.Where(sb.Equal("external_b_user_id", externalBUserID))

	query, args := sb.Build()
	var u models.User
	err := r.DB().GetContext(ctx, &u, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("no user correlated for b-user %d", externalBUserID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get user by b-user id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get user")
	}
	return &u, nil
}

// Create inserts a new User correlation row. Existing rows are never
// mutated (spec.md §4.4): a uniqueness violation on either platform id
// means a correlation already exists, which the caller treats as
// "nothing to do", not an error.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	ctx, span := tracing.StartSpan(ctx, "UserRepository.Create")
	defer span.End()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	ib := dbkit.NewInsertBuilder()
	ib.InsertInto(usersTable).
		Cols("id", "external_a_user_id", "external_b_user_id", "display_key", "created_at").
		Values(u.ID, u.ExternalAUserID, u.ExternalBUserID, u.DisplayKey, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	if err := r.DB().QueryRowContext(ctx, query, args...).Scan(&u.CreatedAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return Conflict("user already correlated (a=%v b=%v)", u.ExternalAUserID, u.ExternalBUserID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"display_key": u.DisplayKey,
		}).Error("failed to create user correlation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create user correlation")
	}
	return nil
}
