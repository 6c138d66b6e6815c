package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stock-exchange/src/helpers"
	"stock-exchange/src/interfaces"
	"stock-exchange/src/logger"
	"stock-exchange/src/metrics"
	"stock-exchange/src/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxAttempts bounds retries after a lost balance compare-and-swap.
const maxAttempts = 3

// avgPricePlaces is the scale of a lot's average cost.
const avgPricePlaces = 8

// MarketHours reports whether orders may be placed at t.
type MarketHours interface {
	IsOpen(t time.Time) bool
}

// OrderLedger validates and executes orders. Orders touching the same account or
// holding account run one at a time; others proceed in parallel.
type OrderLedger struct {
	Store          interfaces.ILedgerStore
	Locks          *KeyedMutex
	Market         MarketHours
	EnforceHours   bool
	DefaultBalance decimal.Decimal
	Logger         *logger.Logger
	Metrics        *metrics.Metrics
	Now            func() time.Time
}

// -----------------------------------------------------------------------------

func NewOrderLedger(cfg *models.MConfig, store interfaces.ILedgerStore, market MarketHours, log *logger.Logger, m *metrics.Metrics) (*OrderLedger, error) {
	balance := decimal.Zero
	if cfg.Accounts.DefaultBalance != "" {
		b, err := decimal.NewFromString(cfg.Accounts.DefaultBalance)
		if err != nil {
			return nil, &helpers.ConfigurationError{ExchangeError: helpers.ExchangeError{Message: "invalid accounts.default_balance", Cause: err}}
		}
		balance = b
	}

	return &OrderLedger{
		Store:          store,
		Locks:          NewKeyedMutex(),
		Market:         market,
		EnforceHours:   cfg.Market.EnforceHours,
		DefaultBalance: balance,
		Logger:         log,
		Metrics:        m,
		Now:            time.Now,
	}, nil
}

// -----------------------------------------------------------------------------

// PlaceOrder validates req and applies it as one transaction. On error nothing
// has been written.
func (l *OrderLedger) PlaceOrder(ctx context.Context, req models.MOrderRequest) (*models.MOrder, error) {
	order, err := l.placeOrder(ctx, req)
	if err != nil {
		l.Metrics.OrderRejectedFor(helpers.ErrorReason(err))
		return nil, err
	}
	l.Metrics.OrderExecuted(order.OrderType)
	return order, nil
}

func (l *OrderLedger) placeOrder(ctx context.Context, req models.MOrderRequest) (*models.MOrder, error) {
	if err := ValidateRequest(&req); err != nil {
		return nil, err
	}

	if l.EnforceHours && l.Market != nil && !l.Market.IsOpen(l.Now()) {
		return nil, helpers.NewMarketClosedError()
	}

	unlock, err := l.Locks.Lock(ctx, "account:"+req.Email, "holding:"+req.HoldingID)
	if err != nil {
		return nil, fmt.Errorf("waiting for order lock: %w", err)
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		order, err := l.execute(ctx, &req)
		if err == nil {
			l.Logger.Info("%s %d %s @ %s executed for %s (order %s)",
				order.OrderType, order.Quantity, order.Symbol, order.TargetPrice, order.Email, order.ID)
			return order, nil
		}
		if !errors.Is(err, helpers.ErrConcurrentUpdate) {
			return nil, err
		}
		lastErr = err
		l.Logger.Warning("Balance changed underneath order for %s (attempt %d/%d)", req.Email, attempt, maxAttempts)
	}

	return nil, helpers.NewConflictError("order for %s could not be applied: %v", req.Email, lastErr)
}

// -----------------------------------------------------------------------------

func (l *OrderLedger) execute(ctx context.Context, req *models.MOrderRequest) (*models.MOrder, error) {
	var order *models.MOrder

	err := l.Store.WithTx(ctx, func(tx interfaces.ILedgerTx) error {
		account, err := tx.GetAccount(ctx, req.Email)
		if err != nil {
			return err
		}

		var holdings *models.MHoldings
		if account != nil && req.OrderType == models.OrderTypeSell {
			if holdings, err = tx.GetHoldings(ctx, req.HoldingID); err != nil {
				return err
			}
		}

		if err := CheckOrder(req, account, holdings); err != nil {
			return err
		}

		now := l.Now().UTC()
		total := TotalAmount(req)
		order = &models.MOrder{
			ID:            uuid.NewString(),
			ClientOrderID: req.OrderID,
			Symbol:        req.Symbol,
			Quantity:      req.Quantity,
			OrderType:     req.OrderType,
			TargetPrice:   req.TargetPrice,
			TotalAmount:   total,
			Status:        models.OrderStatusExecuted,
			Email:         req.Email,
			HoldingID:     req.HoldingID,
			CreatedAt:     now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		if req.OrderType == models.OrderTypeBuy {
			if err := tx.CompareAndSetBalance(ctx, account.Email, account.Balance, account.Balance.Sub(total)); err != nil {
				return err
			}
			return l.applyBuy(ctx, tx, req, now)
		}

		if err := tx.CompareAndSetBalance(ctx, account.Email, account.Balance, account.Balance.Add(total)); err != nil {
			return err
		}
		return l.applySell(ctx, tx, req, holdings, now)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// -----------------------------------------------------------------------------

func (l *OrderLedger) applyBuy(ctx context.Context, tx interfaces.ILedgerTx, req *models.MOrderRequest, now time.Time) error {
	holdings, err := tx.GetOrCreateHoldings(ctx, req.HoldingID)
	if err != nil {
		return err
	}

	lot, ok := holdings.Lot(req.Symbol)
	if !ok {
		return tx.UpsertLot(ctx, req.HoldingID, models.MHoldingLot{
			Symbol:    req.Symbol,
			Quantity:  req.Quantity,
			Price:     req.TargetPrice,
			UpdatedAt: now,
		})
	}

	return tx.UpsertLot(ctx, req.HoldingID, models.MHoldingLot{
		Symbol:    req.Symbol,
		Quantity:  lot.Quantity + req.Quantity,
		Price:     WeightedAverage(lot.Quantity, lot.Price, req.Quantity, req.TargetPrice),
		UpdatedAt: now,
	})
}

// -----------------------------------------------------------------------------

// applySell never touches the average cost of what remains.
func (l *OrderLedger) applySell(ctx context.Context, tx interfaces.ILedgerTx, req *models.MOrderRequest, holdings *models.MHoldings, now time.Time) error {
	lot, _ := holdings.Lot(req.Symbol)
	remaining := lot.Quantity - req.Quantity

	if remaining > 0 {
		lot.Quantity = remaining
		lot.UpdatedAt = now
		return tx.UpsertLot(ctx, req.HoldingID, lot)
	}

	if err := tx.RemoveLot(ctx, req.HoldingID, req.Symbol); err != nil {
		return err
	}
	deleted, err := tx.DeleteIfEmpty(ctx, req.HoldingID)
	if err != nil {
		return err
	}
	if deleted {
		l.Logger.Info("Deleted empty holding document for HoldingId: %s", req.HoldingID)
	}
	return nil
}

// -----------------------------------------------------------------------------

// WeightedAverage is (q1*p1 + q2*p2) / (q1+q2), rounded to avgPricePlaces.
func WeightedAverage(q1 int64, p1 decimal.Decimal, q2 int64, p2 decimal.Decimal) decimal.Decimal {
	dq1 := decimal.NewFromInt(q1)
	dq2 := decimal.NewFromInt(q2)
	return dq1.Mul(p1).Add(dq2.Mul(p2)).DivRound(dq1.Add(dq2), avgPricePlaces)
}

// -----------------------------------------------------------------------------
// Accounts and read-only snapshots
// -----------------------------------------------------------------------------

// OpenAccount creates an account with the default balance and fresh holding and
// watchlist identities.
func (l *OrderLedger) OpenAccount(ctx context.Context, name, email string) (*models.MAccount, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, helpers.NewValidationError("Name cannot be empty")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, helpers.NewValidationError("A valid Email is required")
	}

	account := &models.MAccount{
		Email:       email,
		Name:        name,
		Balance:     l.DefaultBalance,
		HoldingID:   uuid.NewString(),
		WatchlistID: uuid.NewString(),
		CreatedAt:   l.Now().UTC(),
	}

	if err := l.Store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	l.Logger.Info("Opened account for %s (holding %s)", email, account.HoldingID)
	return account, nil
}

// -----------------------------------------------------------------------------

func (l *OrderLedger) Account(ctx context.Context, email string) (*models.MAccount, error) {
	a, err := l.Store.GetAccount(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, helpers.NewNotFoundError("User not found")
	}
	return a, nil
}

// -----------------------------------------------------------------------------

func (l *OrderLedger) Holdings(ctx context.Context, holdingID string) (*models.MHoldings, error) {
	h, err := l.Store.GetHoldings(ctx, strings.TrimSpace(holdingID))
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, helpers.NewNotFoundError("Holding not found")
	}
	return h, nil
}

// -----------------------------------------------------------------------------

func (l *OrderLedger) Orders(ctx context.Context, filter models.MOrderFilter) ([]models.MOrder, error) {
	filter.Status = strings.ToUpper(strings.TrimSpace(filter.Status))
	filter.Symbol = strings.ToUpper(strings.TrimSpace(filter.Symbol))
	filter.Email = strings.TrimSpace(filter.Email)
	return l.Store.ListOrders(ctx, filter)
}
