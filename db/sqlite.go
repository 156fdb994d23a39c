package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	libsql "github.com/tursodatabase/libsql-client-go/libsql"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oxhq/testgap/models"
)

// AuthTokenEnv holds the token for remote libsql databases
const AuthTokenEnv = "TESTGAP_LIBSQL_AUTH_TOKEN"

// Concurrent testgap runs share one history file
var filePragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
}

// Connect opens the run history database and runs migrations. File paths and
// :memory: use the pure-Go SQLite driver; libsql and http(s) URLs go through
// the libsql client.
func Connect(dsn string, debug bool) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	level := logger.Silent
	if debug {
		level = logger.Info
	}

	dialector, remote, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		if db != nil && db.ConnPool != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				sqlDB.Close()
			}
		}
		if remote != nil {
			remote.Close()
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		if remote != nil {
			remote.Close()
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	// For libsql sqlDB is the remote pool itself
	if err := prepare(db, sqlDB, dsn, remote != nil); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// prepare tunes the pool, sets pragmas and migrates
func prepare(db *gorm.DB, sqlDB *sql.DB, dsn string, remote bool) error {
	switch {
	case isMemory(dsn):
		// Every new connection would see an empty database
		sqlDB.SetMaxOpenConns(1)
	case !remote:
		for _, pragma := range filePragmas {
			if err := db.Exec(pragma).Error; err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := Migrate(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// dialectorFor picks the driver for dsn. remote is the libsql pool, if any,
// so a failed gorm.Open can release it.
func dialectorFor(dsn string) (gorm.Dialector, *sql.DB, error) {
	if !isURL(dsn) {
		if !isMemory(dsn) {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(dsn), nil, nil
	}

	var opts []libsql.Option
	if token := os.Getenv(AuthTokenEnv); token != "" {
		opts = append(opts, libsql.WithAuthToken(token))
	}
	connector, err := libsql.NewConnector(dsn, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create libsql connector: %w", err)
	}

	remote := sql.OpenDB(connector)
	return gormsqlite.New(gormsqlite.Config{
		DriverName: "libsql",
		Conn:       remote,
		DSN:        dsn,
	}), remote, nil
}

func isURL(dsn string) bool {
	for _, prefix := range []string{"http://", "https://", "libsql://", "wss://", "ws://"} {
		if strings.HasPrefix(dsn, prefix) {
			return true
		}
	}
	return false
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}

// Migrate creates or updates the history tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.AnalysisRun{},
		&models.RunFinding{},
	)
}
