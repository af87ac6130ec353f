//go:build integration

package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trackersync/trackersync/internal/dbkit"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/repositories"
)

// migrationsDir is relative to this package; adjust when the package
// moves, the migrations directory does not.
const migrationsDir = "../../migrations"

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

// newTestDB starts a throwaway Postgres container, applies every
// migration against it, and returns a connection plus a teardown func.
// Grounded on Ramsey-B/meadow-test's testcontainers-backed service setup
// (pkg/testcontainers/services.go), using the dedicated postgres module
// in place of that file's hand-rolled GenericContainer wait-for-log
// logic, since this repo only ever needs one container, not a whole
// service topology.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("trackersync_test"),
		postgres.WithUsername("trackersync"),
		postgres.WithPassword("trackersync"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Connect("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	driver, err := migratepostgres.WithInstance(db.DB, &migratepostgres.Config{})
	require.NoError(t, err)

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	return db
}

func seedProject(t *testing.T, db *sqlx.DB) uuid.UUID {
	t.Helper()
	projects := repositories.NewProjectRepository(dbkit.NewInstance(db, noopLogger()), noopLogger())
	p := &models.Project{ExternalAID: 1, ExternalAKey: "TEST"}
	require.NoError(t, projects.UpsertProject(context.Background(), p))
	return p.ID
}

func TestMappingRepository_Create_AssignsIDAndTimestamps(t *testing.T) {
	db := newTestDB(t)
	projectID := seedProject(t, db)
	mappings := repositories.NewMappingRepository(dbkit.NewInstance(db, noopLogger()), noopLogger())

	m := &models.IssueMapping{ProjectID: projectID, ExternalAIssueID: 7, ExternalBIssueID: 3}
	require.NoError(t, mappings.Create(context.Background(), m))

	require.NotEqual(t, uuid.Nil, m.ID)
	require.False(t, m.CreatedAt.IsZero())
	require.False(t, m.UpdatedAt.IsZero())
}

func TestMappingRepository_Create_DuplicateExternalAIssueID_ReturnsConflict(t *testing.T) {
	db := newTestDB(t)
	projectID := seedProject(t, db)
	mappings := repositories.NewMappingRepository(dbkit.NewInstance(db, noopLogger()), noopLogger())

	first := &models.IssueMapping{ProjectID: projectID, ExternalAIssueID: 7, ExternalBIssueID: 3}
	require.NoError(t, mappings.Create(context.Background(), first))

	second := &models.IssueMapping{ProjectID: projectID, ExternalAIssueID: 7, ExternalBIssueID: 4}
	err := mappings.Create(context.Background(), second)
	require.Error(t, err)
	require.True(t, repositories.IsConflict(err))
}

func TestMappingRepository_GetByExternalAIssueID_RoundTripsCanonicalSnapshot(t *testing.T) {
	db := newTestDB(t)
	projectID := seedProject(t, db)
	mappings := repositories.NewMappingRepository(dbkit.NewInstance(db, noopLogger()), noopLogger())

	snapshot := &models.CanonicalSnapshot{SchemaVersion: models.CurrentSnapshotSchemaVersion, Title: "hello"}
	m := &models.IssueMapping{
		ProjectID:         projectID,
		ExternalAIssueID:  11,
		ExternalBIssueID:  5,
		CanonicalSnapshot: dbkit.JSONB[*models.CanonicalSnapshot]{Data: snapshot},
	}
	require.NoError(t, mappings.Create(context.Background(), m))

	got, err := mappings.GetByExternalAIssueID(context.Background(), projectID, 11)
	require.NoError(t, err)
	require.NotNil(t, got.CanonicalSnapshot.Data)
	require.Equal(t, "hello", got.CanonicalSnapshot.Data.Title)
}

func TestMappingRepository_GetByExternalAIssueID_Missing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	projectID := seedProject(t, db)
	mappings := repositories.NewMappingRepository(dbkit.NewInstance(db, noopLogger()), noopLogger())

	_, err := mappings.GetByExternalAIssueID(context.Background(), projectID, 999)
	require.Error(t, err)
	require.True(t, repositories.IsNotFound(err))
}

func TestMappingRepository_AdvanceCanonical_PersistsNewSnapshot(t *testing.T) {
	db := newTestDB(t)
	projectID := seedProject(t, db)
	mappings := repositories.NewMappingRepository(dbkit.NewInstance(db, noopLogger()), noopLogger())

	m := &models.IssueMapping{ProjectID: projectID, ExternalAIssueID: 20, ExternalBIssueID: 9}
	require.NoError(t, mappings.Create(context.Background(), m))

	winner := &models.CanonicalSnapshot{SchemaVersion: models.CurrentSnapshotSchemaVersion, Title: "advanced"}
	require.NoError(t, mappings.AdvanceCanonical(context.Background(), m.ID, winner))

	got, err := mappings.GetByExternalAIssueID(context.Background(), projectID, 20)
	require.NoError(t, err)
	require.Equal(t, "advanced", got.CanonicalSnapshot.Data.Title)
}

func TestMappingRepository_Delete_RemovesRow(t *testing.T) {
	db := newTestDB(t)
	projectID := seedProject(t, db)
	mappings := repositories.NewMappingRepository(dbkit.NewInstance(db, noopLogger()), noopLogger())

	m := &models.IssueMapping{ProjectID: projectID, ExternalAIssueID: 30, ExternalBIssueID: 15}
	require.NoError(t, mappings.Create(context.Background(), m))
	require.NoError(t, mappings.Delete(context.Background(), m.ID))

	_, err := mappings.GetByExternalAIssueID(context.Background(), projectID, 30)
	require.True(t, repositories.IsNotFound(err))
}

func TestMappingRepository_ListByProject_OrdersByExternalAIssueID(t *testing.T) {
	db := newTestDB(t)
	projectID := seedProject(t, db)
	mappings := repositories.NewMappingRepository(dbkit.NewInstance(db, noopLogger()), noopLogger())

	require.NoError(t, mappings.Create(context.Background(), &models.IssueMapping{ProjectID: projectID, ExternalAIssueID: 50, ExternalBIssueID: 1}))
	require.NoError(t, mappings.Create(context.Background(), &models.IssueMapping{ProjectID: projectID, ExternalAIssueID: 10, ExternalBIssueID: 2}))

	list, err := mappings.ListByProject(context.Background(), projectID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, 10, list[0].ExternalAIssueID)
	require.Equal(t, 50, list[1].ExternalAIssueID)
}
