package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stock-exchange/src/logger"
	"stock-exchange/src/models"

	_ "github.com/lib/pq"
)

type postgresDialect struct {
	schemaName string
}

func (d postgresDialect) name() string { return "postgres" }

func (d postgresDialect) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, d.schemaName, name)
}

func (d postgresDialect) placeholders(query string) string { return rebindDollar(query) }

func (d postgresDialect) schema() []string {
	t := d.table
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.schemaName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			email TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			balance NUMERIC NOT NULL CHECK (balance >= 0),
			holding_id TEXT NOT NULL,
			watchlist_id TEXT NOT NULL,
			created_at BIGINT NOT NULL
		);`, t("accounts")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			holding_id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL
		);`, t("holdings")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			holding_id TEXT NOT NULL REFERENCES %s(holding_id) ON DELETE CASCADE,
			symbol TEXT NOT NULL,
			quantity BIGINT NOT NULL CHECK (quantity > 0),
			price NUMERIC NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (holding_id, symbol)
		);`, t("holding_lots"), t("holdings")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			client_order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			quantity BIGINT NOT NULL,
			order_type TEXT NOT NULL,
			target_price NUMERIC NOT NULL,
			total_amount NUMERIC NOT NULL,
			status TEXT NOT NULL,
			email TEXT NOT NULL,
			holding_id TEXT NOT NULL,
			created_at BIGINT NOT NULL
		);`, t("orders")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_orders_email ON %s (email, created_at);`, t("orders")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			watchlist_id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL
		);`, t("watchlists")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			watchlist_id TEXT NOT NULL REFERENCES %s(watchlist_id) ON DELETE CASCADE,
			symbol TEXT NOT NULL,
			added_at BIGINT NOT NULL,
			PRIMARY KEY (watchlist_id, symbol)
		);`, t("watchlist_symbols"), t("watchlists")),
	}
}

// -----------------------------------------------------------------------------

// NewPostgresStore connects to storage.db_connection_string. Tables live in
// storage.schema, or in a schema named after the executable when unset.
func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) (*SQLStore, error) {
	schema := cfg.Storage.Schema
	if schema == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable name: %w", err)
		}
		name := filepath.Base(exe)
		schema = strings.TrimSuffix(name, filepath.Ext(name))
	}

	db, err := sql.Open("postgres", cfg.Storage.DBConnectionString)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	n := cfg.Network.ConcurrentRequests
	if n <= 0 {
		n = 10
	}
	db.SetMaxOpenConns(n * 2)
	db.SetMaxIdleConns(n)

	log.Info("PostgresDB connected (Schema: %s)", schema)
	return &SQLStore{DB: db, Logger: log, dialect: postgresDialect{schemaName: schema}}, nil
}
