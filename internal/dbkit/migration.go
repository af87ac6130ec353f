package dbkit

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

// schemaLogger adapts ectologger.Logger to golang-migrate's Logger
// interface, so migrate's own step-by-step output lands in the same
// structured log stream as the rest of trackersyncd.
type schemaLogger struct {
	ectologger.Logger
}

func (l schemaLogger) Verbose() bool { return true }
func (l schemaLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

// MigrationConfig controls how SchemaMigrator resolves and applies the
// mapping store's forward-only schema migrations under migrations/.
type MigrationConfig struct {
	FolderPath   string
	Version      uint
	Force        int
	AutoRollback bool
}

// SchemaMigrator drives golang-migrate against the mapping store's
// migrations directory. cmd/trackersyncd's migrate subcommand goes
// through this type; startup.Build does not apply migrations.
type SchemaMigrator struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *SchemaMigrator {
	return &SchemaMigrator{config: config, logger: logger}
}

// Migrate applies pending migrations (or, with config.Version set, moves
// to that exact version) against databaseInstance.
func (ms *SchemaMigrator) Migrate(databaseName string, databaseInstance migratedb.Driver) error {
	folder, err := ms.existingFolder()
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, databaseInstance)
	if err != nil {
		ms.logger.WithError(err).Error("failed to open schema migrator")
		return err
	}
	m.Log = schemaLogger{Logger: ms.logger}

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("failed to force schema version to %d", ms.config.Force)
			return err
		}
	}

	baseline, _, versionErr := m.Version()
	if versionErr != nil {
		baseline = 0
	}

	elapsed, applyErr := ms.applyWithProgress(m)
	ms.logger.Infof("schema migrations finished in %v", elapsed)

	return ms.reconcileResult(m, applyErr, folder, baseline)
}

// existingFolder resolves config.FolderPath relative to the working
// directory when it isn't already reachable as given.
func (ms *SchemaMigrator) existingFolder() (string, error) {
	folder := ms.config.FolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder, nil
	}
	wd, _ := os.Getwd()
	if wd != "" {
		folder = wd + "/" + ms.config.FolderPath
	}
	if _, err := os.Stat(folder); err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("migration folder %s does not exist", folder))
	}
	return folder, nil
}

// applyWithProgress runs the requested migration step (Up, or an exact
// Version if one was configured) while a background ticker emits
// periodic progress at debug level, since a large forward migration can
// otherwise run silently for minutes.
func (ms *SchemaMigrator) applyWithProgress(m *migrate.Migrate) (time.Duration, error) {
	start := time.Now()
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		dots := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				dots = (dots + 1) % 4
				ms.logger.Debugf("applying schema migrations%s", strings.Repeat(".", dots))
			}
		}
	}()

	var err error
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}
	close(done)
	return time.Since(start), err
}

func (ms *SchemaMigrator) reconcileResult(m *migrate.Migrate, err error, folder string, baselineVersion uint) error {
	switch {
	case err == nil:
		ms.logger.Info("schema is up to date")
		return nil
	case err == migrate.ErrNoChange:
		ms.logger.Info("no pending schema migrations")
		return nil
	}

	if strings.Contains(err.Error(), "no migration found for version") {
		return ms.forceLatestKnownVersion(m, folder, baselineVersion)
	}

	ms.logger.WithError(err).Errorf("schema migration failed: %v", err)

	version, dirty, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("failed to read schema version after failed migration")
		return err
	}
	if !ms.config.AutoRollback {
		ms.logger.WithError(err).Errorf("schema left dirty=%t at version %d, autoRollback disabled", dirty, version)
		return err
	}
	if !dirty {
		return err
	}

	target := baselineVersion
	if target == 0 {
		target = version - 1
	}
	ms.logger.Warnf("schema dirty at version %d, reverting to %d", version, target)
	if forceErr := m.Force(int(target)); forceErr != nil {
		ms.logger.WithError(forceErr).Errorf("failed to force schema version to %d", target)
		return forceErr
	}
	return err
}

// forceLatestKnownVersion handles the case where the stored schema_migrations
// version has no matching file on disk (typically after a rollback removed
// migration files a running instance's schema_migrations row still names).
func (ms *SchemaMigrator) forceLatestKnownVersion(m *migrate.Migrate, folder string, previousVersion uint) error {
	latest, err := latestVersion(folder)
	if err != nil {
		ms.logger.WithError(err).Error("failed to determine latest known schema version")
	}
	ms.logger.Warnf("no migration file for version %d, latest on disk is %d", previousVersion, latest)
	if forceErr := m.Force(latest); forceErr != nil {
		ms.logger.WithError(forceErr).Errorf("failed to force schema version to %d", latest)
		return forceErr
	}
	return nil
}

func latestVersion(folder string) (int, error) {
	files, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	re := regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)
	var versions []int
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(f.Name())
		if len(m) <= 1 {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found in %s", folder)
	}
	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
