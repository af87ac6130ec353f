// Package repositories is the mapping store: the durable Project,
// RemoteProjectB, IssueMapping, User, TrackerA, and StatusA tables.
package repositories

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/trackersync/trackersync/internal/dbkit"
)

// NotFound returns a 404-shaped error for a missing row.
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Conflict returns a 409-shaped error, used for mapping-integrity
// uniqueness violations.
func Conflict(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err is a repository NotFound, so callers
// above the repository layer can branch on it without importing
// net/http or ectoerror themselves.
func IsNotFound(err error) bool {
	return err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}

// IsConflict reports whether err is a repository Conflict (mapping
// integrity uniqueness violation).
func IsConflict(err error) bool {
	return err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict
}

// Repository is the shared base every table-specific repository embeds.
type Repository struct {
	db     dbkit.DB
	logger ectologger.Logger
}

func NewRepository(db dbkit.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) DB() dbkit.DB { return r.db }
