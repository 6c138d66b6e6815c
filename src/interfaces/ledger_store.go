package interfaces

import (
	"context"

	"stock-exchange/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// ILedgerStore defines the contract for account, holdings and order storage.
// -----------------------------------------------------------------------------

type ILedgerStore interface {

	// Initialize sets up the database schema and tables.
	Initialize(ctx context.Context) error

	// WithTx runs fn in one transaction. fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(tx ILedgerTx) error) error

	// -----------------------------------------------------------------------------
	// Read-only snapshots

	GetAccount(ctx context.Context, email string) (*models.MAccount, error)
	GetHoldings(ctx context.Context, holdingID string) (*models.MHoldings, error)
	ListOrders(ctx context.Context, filter models.MOrderFilter) ([]models.MOrder, error)

	// -----------------------------------------------------------------------------
	// Accounts & watchlists

	CreateAccount(ctx context.Context, account *models.MAccount) error
	GetWatchlist(ctx context.Context, watchlistID string) (*models.MWatchlist, error)
	AddToWatchlist(ctx context.Context, watchlistID, symbol string) (bool, error)
	RemoveFromWatchlist(ctx context.Context, watchlistID, symbol string) (bool, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close the database connection
	Close() error
}

// -----------------------------------------------------------------------------
// ILedgerTx is the transactional view used by the order ledger. Holdings follow a
// repository shape so that no empty holdings document can be left behind.
// -----------------------------------------------------------------------------

type ILedgerTx interface {

	// GetAccount returns nil, nil when the account does not exist.
	GetAccount(ctx context.Context, email string) (*models.MAccount, error)

	// CompareAndSetBalance writes next only if the stored balance still equals expected,
	// else returns helpers.ErrConcurrentUpdate.
	CompareAndSetBalance(ctx context.Context, email string, expected, next decimal.Decimal) error

	// GetHoldings returns nil, nil when the document does not exist.
	GetHoldings(ctx context.Context, holdingID string) (*models.MHoldings, error)

	// GetOrCreateHoldings returns the document, creating an empty one if needed.
	GetOrCreateHoldings(ctx context.Context, holdingID string) (*models.MHoldings, error)

	// UpsertLot writes the lot. Quantity must be positive.
	UpsertLot(ctx context.Context, holdingID string, lot models.MHoldingLot) error

	// RemoveLot deletes the lot for symbol.
	RemoveLot(ctx context.Context, holdingID, symbol string) error

	// DeleteIfEmpty removes the document when it has no lots and reports whether it did.
	DeleteIfEmpty(ctx context.Context, holdingID string) (bool, error)

	// InsertOrder appends an order record.
	InsertOrder(ctx context.Context, order *models.MOrder) error
}
