package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stock-exchange/src/helpers"
	"stock-exchange/src/interfaces"
	"stock-exchange/src/logger"
	"stock-exchange/src/models"

	"github.com/shopspring/decimal"
)

// dialect isolates what differs between the supported databases.
type dialect interface {
	name() string
	// table returns the qualified table name.
	table(name string) string
	// placeholders rewrites "?" markers for the driver.
	placeholders(query string) string
	// schema returns the CREATE statements, in order.
	schema() []string
}

// SQLStore implements interfaces.ILedgerStore on database/sql.
type SQLStore struct {
	DB      *sql.DB
	Logger  *logger.Logger
	dialect dialect
}

var _ interfaces.ILedgerStore = (*SQLStore)(nil)

// -----------------------------------------------------------------------------

// New opens the store selected by storage.db_type.
func New(cfg *models.MConfig, log *logger.Logger) (*SQLStore, error) {
	switch cfg.Storage.DBType {
	case "sqlite":
		return NewSQLiteStore(cfg, log)
	case "postgres":
		return NewPostgresStore(cfg, log)
	default:
		return nil, &helpers.ConfigurationError{ExchangeError: helpers.ExchangeError{
			Message: fmt.Sprintf("unsupported db_type: %s", cfg.Storage.DBType),
		}}
	}
}

// -----------------------------------------------------------------------------

func (s *SQLStore) q(query string) string {
	return s.dialect.placeholders(query)
}

func (s *SQLStore) t(name string) string {
	return s.dialect.table(name)
}

// -----------------------------------------------------------------------------

// Initialize creates missing tables. Existing data is kept.
func (s *SQLStore) Initialize(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return helpers.NewDatabaseError("create schema", err)
		}
	}
	s.Logger.Info("%s ledger store initialized", s.dialect.name())
	return nil
}

// -----------------------------------------------------------------------------

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// -----------------------------------------------------------------------------

func (s *SQLStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------

// WithTx runs fn inside a transaction. Errors from fn are returned unchanged.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx interfaces.ILedgerTx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.NewDatabaseError("begin transaction", err)
	}

	if err := fn(&sqlTx{store: s, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.Logger.Error("Rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewDatabaseError("commit", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Shared queries. runner is satisfied by both *sql.DB and *sql.Tx.
// -----------------------------------------------------------------------------

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) getAccount(ctx context.Context, r runner, email string) (*models.MAccount, error) {
	query := s.q(fmt.Sprintf(`SELECT email, name, balance, holding_id, watchlist_id, created_at FROM %s WHERE email = ?`, s.t("accounts")))

	var a models.MAccount
	var created int64
	err := r.QueryRowContext(ctx, query, email).Scan(&a.Email, &a.Name, &a.Balance, &a.HoldingID, &a.WatchlistID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helpers.NewDatabaseError("get account", err)
	}
	a.CreatedAt = time.Unix(0, created).UTC()
	return &a, nil
}

// -----------------------------------------------------------------------------

func (s *SQLStore) getHoldings(ctx context.Context, r runner, holdingID string) (*models.MHoldings, error) {
	var exists int
	err := r.QueryRowContext(ctx, s.q(fmt.Sprintf(`SELECT 1 FROM %s WHERE holding_id = ?`, s.t("holdings"))), holdingID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helpers.NewDatabaseError("get holdings", err)
	}

	rows, err := r.QueryContext(ctx, s.q(fmt.Sprintf(
		`SELECT symbol, quantity, price, updated_at FROM %s WHERE holding_id = ? ORDER BY symbol`, s.t("holding_lots"))), holdingID)
	if err != nil {
		return nil, helpers.NewDatabaseError("get holding lots", err)
	}
	defer rows.Close()

	h := &models.MHoldings{HoldingID: holdingID, Lots: []models.MHoldingLot{}}
	for rows.Next() {
		var lot models.MHoldingLot
		var updated int64
		if err := rows.Scan(&lot.Symbol, &lot.Quantity, &lot.Price, &updated); err != nil {
			return nil, helpers.NewDatabaseError("scan holding lot", err)
		}
		lot.UpdatedAt = time.Unix(0, updated).UTC()
		h.Lots = append(h.Lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("iterate holding lots", err)
	}
	return h, nil
}

// -----------------------------------------------------------------------------
// ILedgerStore reads
// -----------------------------------------------------------------------------

func (s *SQLStore) GetAccount(ctx context.Context, email string) (*models.MAccount, error) {
	return s.getAccount(ctx, s.DB, email)
}

func (s *SQLStore) GetHoldings(ctx context.Context, holdingID string) (*models.MHoldings, error) {
	return s.getHoldings(ctx, s.DB, holdingID)
}

// -----------------------------------------------------------------------------

// ListOrders returns matching orders, newest first.
func (s *SQLStore) ListOrders(ctx context.Context, filter models.MOrderFilter) ([]models.MOrder, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Email != "" {
		where = append(where, "email = ?")
		args = append(args, filter.Email)
	}

	query := fmt.Sprintf(`SELECT id, client_order_id, symbol, quantity, order_type, target_price, total_amount, status, email, holding_id, created_at FROM %s`, s.t("orders"))
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.DB.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, helpers.NewDatabaseError("list orders", err)
	}
	defer rows.Close()

	orders := []models.MOrder{}
	for rows.Next() {
		var o models.MOrder
		var created int64
		if err := rows.Scan(&o.ID, &o.ClientOrderID, &o.Symbol, &o.Quantity, &o.OrderType, &o.TargetPrice, &o.TotalAmount, &o.Status, &o.Email, &o.HoldingID, &created); err != nil {
			return nil, helpers.NewDatabaseError("scan order", err)
		}
		o.CreatedAt = time.Unix(0, created).UTC()
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("iterate orders", err)
	}
	return orders, nil
}

// -----------------------------------------------------------------------------
// Accounts & watchlists
// -----------------------------------------------------------------------------

// CreateAccount inserts the account and its empty watchlist. A taken email is a ConflictError.
func (s *SQLStore) CreateAccount(ctx context.Context, account *models.MAccount) error {
	return s.WithTx(ctx, func(itx interfaces.ILedgerTx) error {
		tx := itx.(*sqlTx).tx

		existing, err := s.getAccount(ctx, tx, account.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return helpers.NewConflictError("account %s already exists", account.Email)
		}

		_, err = tx.ExecContext(ctx, s.q(fmt.Sprintf(
			`INSERT INTO %s (email, name, balance, holding_id, watchlist_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`, s.t("accounts"))),
			account.Email, account.Name, account.Balance.String(), account.HoldingID, account.WatchlistID, account.CreatedAt.UnixNano())
		if err != nil {
			return helpers.NewDatabaseError("insert account", err)
		}

		if account.WatchlistID != "" {
			if err := s.ensureWatchlist(ctx, tx, account.WatchlistID); err != nil {
				return err
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------

func (s *SQLStore) ensureWatchlist(ctx context.Context, tx *sql.Tx, watchlistID string) error {
	var exists int
	err := tx.QueryRowContext(ctx, s.q(fmt.Sprintf(`SELECT 1 FROM %s WHERE watchlist_id = ?`, s.t("watchlists"))), watchlistID).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return helpers.NewDatabaseError("get watchlist", err)
	}

	_, err = tx.ExecContext(ctx, s.q(fmt.Sprintf(`INSERT INTO %s (watchlist_id, created_at) VALUES (?, ?)`, s.t("watchlists"))),
		watchlistID, time.Now().UnixNano())
	if err != nil {
		return helpers.NewDatabaseError("create watchlist", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// GetWatchlist returns nil, nil when the watchlist does not exist.
func (s *SQLStore) GetWatchlist(ctx context.Context, watchlistID string) (*models.MWatchlist, error) {
	var exists int
	err := s.DB.QueryRowContext(ctx, s.q(fmt.Sprintf(`SELECT 1 FROM %s WHERE watchlist_id = ?`, s.t("watchlists"))), watchlistID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helpers.NewDatabaseError("get watchlist", err)
	}

	rows, err := s.DB.QueryContext(ctx, s.q(fmt.Sprintf(
		`SELECT symbol FROM %s WHERE watchlist_id = ? ORDER BY added_at, symbol`, s.t("watchlist_symbols"))), watchlistID)
	if err != nil {
		return nil, helpers.NewDatabaseError("get watchlist symbols", err)
	}
	defer rows.Close()

	w := &models.MWatchlist{WatchlistID: watchlistID, Symbols: []string{}}
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, helpers.NewDatabaseError("scan watchlist symbol", err)
		}
		w.Symbols = append(w.Symbols, sym)
	}
	return w, rows.Err()
}

// -----------------------------------------------------------------------------

// AddToWatchlist creates the watchlist if needed. It reports false when the symbol was already there.
func (s *SQLStore) AddToWatchlist(ctx context.Context, watchlistID, symbol string) (bool, error) {
	added := false
	err := s.WithTx(ctx, func(itx interfaces.ILedgerTx) error {
		tx := itx.(*sqlTx).tx
		if err := s.ensureWatchlist(ctx, tx, watchlistID); err != nil {
			return err
		}

		var exists int
		err := tx.QueryRowContext(ctx, s.q(fmt.Sprintf(`SELECT 1 FROM %s WHERE watchlist_id = ? AND symbol = ?`, s.t("watchlist_symbols"))),
			watchlistID, symbol).Scan(&exists)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return helpers.NewDatabaseError("get watchlist symbol", err)
		}

		_, err = tx.ExecContext(ctx, s.q(fmt.Sprintf(`INSERT INTO %s (watchlist_id, symbol, added_at) VALUES (?, ?, ?)`, s.t("watchlist_symbols"))),
			watchlistID, symbol, time.Now().UnixNano())
		if err != nil {
			return helpers.NewDatabaseError("add watchlist symbol", err)
		}
		added = true
		return nil
	})
	return added, err
}

// -----------------------------------------------------------------------------

// RemoveFromWatchlist reports whether the symbol was present.
func (s *SQLStore) RemoveFromWatchlist(ctx context.Context, watchlistID, symbol string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, s.q(fmt.Sprintf(`DELETE FROM %s WHERE watchlist_id = ? AND symbol = ?`, s.t("watchlist_symbols"))),
		watchlistID, symbol)
	if err != nil {
		return false, helpers.NewDatabaseError("remove watchlist symbol", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, helpers.NewDatabaseError("remove watchlist symbol", err)
	}
	return n > 0, nil
}

// -----------------------------------------------------------------------------
// ILedgerTx
// -----------------------------------------------------------------------------

type sqlTx struct {
	store *SQLStore
	tx    *sql.Tx
}

var _ interfaces.ILedgerTx = (*sqlTx)(nil)

func (t *sqlTx) GetAccount(ctx context.Context, email string) (*models.MAccount, error) {
	return t.store.getAccount(ctx, t.tx, email)
}

// -----------------------------------------------------------------------------

func (t *sqlTx) CompareAndSetBalance(ctx context.Context, email string, expected, next decimal.Decimal) error {
	s := t.store
	// Balances are always written through Decimal.String, so the stored text is canonical.
	res, err := t.tx.ExecContext(ctx, s.q(fmt.Sprintf(`UPDATE %s SET balance = ? WHERE email = ? AND balance = ?`, s.t("accounts"))),
		next.String(), email, expected.String())
	if err != nil {
		return helpers.NewDatabaseError("update balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return helpers.NewDatabaseError("update balance", err)
	}
	if n == 0 {
		return helpers.ErrConcurrentUpdate
	}
	return nil
}

// -----------------------------------------------------------------------------

func (t *sqlTx) GetHoldings(ctx context.Context, holdingID string) (*models.MHoldings, error) {
	return t.store.getHoldings(ctx, t.tx, holdingID)
}

// -----------------------------------------------------------------------------

func (t *sqlTx) GetOrCreateHoldings(ctx context.Context, holdingID string) (*models.MHoldings, error) {
	h, err := t.GetHoldings(ctx, holdingID)
	if err != nil || h != nil {
		return h, err
	}

	s := t.store
	_, err = t.tx.ExecContext(ctx, s.q(fmt.Sprintf(`INSERT INTO %s (holding_id, created_at) VALUES (?, ?)`, s.t("holdings"))),
		holdingID, time.Now().UnixNano())
	if err != nil {
		return nil, helpers.NewDatabaseError("create holdings", err)
	}
	return &models.MHoldings{HoldingID: holdingID, Lots: []models.MHoldingLot{}}, nil
}

// -----------------------------------------------------------------------------

func (t *sqlTx) UpsertLot(ctx context.Context, holdingID string, lot models.MHoldingLot) error {
	if lot.Quantity <= 0 {
		return helpers.NewValidationError("lot quantity must be positive, got %d", lot.Quantity)
	}

	s := t.store
	res, err := t.tx.ExecContext(ctx, s.q(fmt.Sprintf(
		`UPDATE %s SET quantity = ?, price = ?, updated_at = ? WHERE holding_id = ? AND symbol = ?`, s.t("holding_lots"))),
		lot.Quantity, lot.Price.String(), lot.UpdatedAt.UnixNano(), holdingID, lot.Symbol)
	if err != nil {
		return helpers.NewDatabaseError("update lot", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = t.tx.ExecContext(ctx, s.q(fmt.Sprintf(
		`INSERT INTO %s (holding_id, symbol, quantity, price, updated_at) VALUES (?, ?, ?, ?, ?)`, s.t("holding_lots"))),
		holdingID, lot.Symbol, lot.Quantity, lot.Price.String(), lot.UpdatedAt.UnixNano())
	if err != nil {
		return helpers.NewDatabaseError("insert lot", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (t *sqlTx) RemoveLot(ctx context.Context, holdingID, symbol string) error {
	s := t.store
	_, err := t.tx.ExecContext(ctx, s.q(fmt.Sprintf(`DELETE FROM %s WHERE holding_id = ? AND symbol = ?`, s.t("holding_lots"))),
		holdingID, symbol)
	if err != nil {
		return helpers.NewDatabaseError("remove lot", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (t *sqlTx) DeleteIfEmpty(ctx context.Context, holdingID string) (bool, error) {
	s := t.store
	var count int
	if err := t.tx.QueryRowContext(ctx, s.q(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE holding_id = ?`, s.t("holding_lots"))), holdingID).Scan(&count); err != nil {
		return false, helpers.NewDatabaseError("count lots", err)
	}
	if count > 0 {
		return false, nil
	}

	res, err := t.tx.ExecContext(ctx, s.q(fmt.Sprintf(`DELETE FROM %s WHERE holding_id = ?`, s.t("holdings"))), holdingID)
	if err != nil {
		return false, helpers.NewDatabaseError("delete holdings", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// -----------------------------------------------------------------------------

func (t *sqlTx) InsertOrder(ctx context.Context, o *models.MOrder) error {
	s := t.store
	_, err := t.tx.ExecContext(ctx, s.q(fmt.Sprintf(
		`INSERT INTO %s (id, client_order_id, symbol, quantity, order_type, target_price, total_amount, status, email, holding_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.t("orders"))),
		o.ID, o.ClientOrderID, o.Symbol, o.Quantity, o.OrderType, o.TargetPrice.String(), o.TotalAmount.String(),
		o.Status, o.Email, o.HoldingID, o.CreatedAt.UnixNano())
	if err != nil {
		return helpers.NewDatabaseError("insert order", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// rebindDollar turns "?" markers into "$1", "$2", ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
