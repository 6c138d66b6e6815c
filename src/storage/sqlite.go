package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"stock-exchange/src/logger"
	"stock-exchange/src/models"

	_ "modernc.org/sqlite"
)

type sqliteDialect struct{}

func (sqliteDialect) name() string                     { return "sqlite" }
func (sqliteDialect) table(name string) string         { return name }
func (sqliteDialect) placeholders(query string) string { return query }

// SQLite types: INTEGER for int64, TEXT for strings and decimals.
func (sqliteDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			email TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			balance TEXT NOT NULL,
			holding_id TEXT NOT NULL,
			watchlist_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS holdings (
			holding_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS holding_lots (
			holding_id TEXT NOT NULL REFERENCES holdings(holding_id) ON DELETE CASCADE,
			symbol TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			price TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (holding_id, symbol)
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			client_order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			order_type TEXT NOT NULL,
			target_price TEXT NOT NULL,
			total_amount TEXT NOT NULL,
			status TEXT NOT NULL,
			email TEXT NOT NULL,
			holding_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_email ON orders (email, created_at);`,
		`CREATE TABLE IF NOT EXISTS watchlists (
			watchlist_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS watchlist_symbols (
			watchlist_id TEXT NOT NULL REFERENCES watchlists(watchlist_id) ON DELETE CASCADE,
			symbol TEXT NOT NULL,
			added_at INTEGER NOT NULL,
			PRIMARY KEY (watchlist_id, symbol)
		);`,
	}
}

// -----------------------------------------------------------------------------

// NewSQLiteStore opens the database file, creating its directory if needed.
func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) (*SQLStore, error) {
	dsn := cfg.Storage.DBPath
	if dir := filepath.Dir(dsn); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite has a single writer; transactions queue on the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		log.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		log.Warning("Failed to set synchronous mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		log.Warning("Failed to enable foreign keys: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		log.Warning("Failed to set busy timeout: %v", err)
	}

	return &SQLStore{DB: db, Logger: log, dialect: sqliteDialect{}}, nil
}
