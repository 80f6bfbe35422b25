package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the global database connection
var DB *sqlx.DB

// Connect establishes a connection to the database. DB_TYPE selects the
// engine: "postgres" (server of record) or "sqlite" (client-local store).
func Connect() error {
	dbType := os.Getenv("DB_TYPE")
	if dbType == "" {
		dbType = "sqlite"
	}

	var db *sqlx.DB
	var err error

	if dbType == "postgres" {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return fmt.Errorf("DATABASE_URL environment variable is not set")
		}
		db, err = sqlx.Connect("postgres", dsn)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %v", err)
		}
	} else {
		dbPath := os.Getenv("SQLITE_PATH")
		if dbPath == "" {
			dbPath = filepath.Join("data", "lexisync.db")
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %v", err)
		}
		db, err = sqlx.Connect("sqlite3", dbPath)
		if err != nil {
			return fmt.Errorf("failed to connect to sqlite: %v", err)
		}

		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %v", err)
		}
	}

	DB = db

	return initializeSchema()
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema() error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if DB.DriverName() == "postgres" {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS words (
				id %s,
				term TEXT NOT NULL,
				translation TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT '',
				level INTEGER NOT NULL DEFAULT 1,
				row_version TEXT NOT NULL DEFAULT '',
				deleted BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(term, category)
			)
		`, idColumn),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS learning_progress (
				id %s,
				user_id BIGINT NOT NULL,
				word_id BIGINT NOT NULL,
				study_count INTEGER NOT NULL DEFAULT 0,
				correct_count INTEGER NOT NULL DEFAULT 0,
				incorrect_count INTEGER NOT NULL DEFAULT 0,
				memory_strength INTEGER NOT NULL DEFAULT 0,
				last_studied_at TIMESTAMP,
				next_review_at TIMESTAMP,
				row_version TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(user_id, word_id)
			)
		`, idColumn),
		`
			CREATE TABLE IF NOT EXISTS pending_changes (
				change_id TEXT PRIMARY KEY,
				user_id BIGINT NOT NULL,
				entity_table TEXT NOT NULL,
				record_id BIGINT,
				operation TEXT NOT NULL,
				payload TEXT NOT NULL,
				row_version TEXT NOT NULL DEFAULT '',
				attempted_at TIMESTAMP,
				last_error TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`,
		`
			CREATE TABLE IF NOT EXISTS sync_checkpoints (
				owner_id BIGINT NOT NULL,
				table_name TEXT NOT NULL,
				last_synced_at TIMESTAMP NOT NULL,
				sync_version BIGINT NOT NULL DEFAULT 0,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (owner_id, table_name)
			)
		`,
		`CREATE INDEX IF NOT EXISTS idx_progress_due ON learning_progress (user_id, next_review_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_table_op ON pending_changes (entity_table, operation)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_record ON pending_changes (entity_table, record_id)`,
	}

	for _, stmt := range statements {
		if _, err := DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %v", err)
		}
	}

	return nil
}
