package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-exchange/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type ExchangeError struct {
	Message string
	Cause   error
}

func (e *ExchangeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExchangeError) Unwrap() error {
	return e.Cause
}

// UserMessage is the message without the wrapped cause.
func (e *ExchangeError) UserMessage() string {
	return e.Message
}

// Distinct error types for errors.As
type ConfigurationError struct{ ExchangeError }
type NetworkError struct{ ExchangeError }
type DatabaseError struct{ ExchangeError }
type ValidationError struct{ ExchangeError }
type NotFoundError struct{ ExchangeError }
type ConflictError struct{ ExchangeError }
type MarketClosedError struct{ ExchangeError }

// UpstreamError means the quote source failed or timed out.
type UpstreamError struct {
	ExchangeError
	Symbol string
}

// TransportError means a subscriber connection could not accept a message.
type TransportError struct {
	ExchangeError
	ConnectionID string
}

// InsufficientFundsError is a BUY whose total exceeds the available balance.
type InsufficientFundsError struct {
	ExchangeError
	Required  string
	Available string
}

// InsufficientHoldingsError is a SELL of more shares than the lot holds.
type InsufficientHoldingsError struct {
	ExchangeError
	Symbol    string
	Available int64
	Requested int64
}

// ErrConcurrentUpdate is returned by stores when a compare-and-swap lost a race.
var ErrConcurrentUpdate = errors.New("concurrent update detected")

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{ExchangeError{Message: fmt.Sprintf(format, args...)}}
}

func NewNotFoundError(format string, args ...interface{}) error {
	return &NotFoundError{ExchangeError{Message: fmt.Sprintf(format, args...)}}
}

func NewConflictError(format string, args ...interface{}) error {
	return &ConflictError{ExchangeError{Message: fmt.Sprintf(format, args...)}}
}

func NewMarketClosedError() error {
	return &MarketClosedError{ExchangeError{Message: "Market is closed. Cannot place orders."}}
}

func NewUpstreamError(symbol string, cause error) error {
	return &UpstreamError{
		ExchangeError: ExchangeError{Message: fmt.Sprintf("quote source failed for %s", symbol), Cause: cause},
		Symbol:        symbol,
	}
}

func NewTransportError(connID string, cause error) error {
	return &TransportError{
		ExchangeError: ExchangeError{Message: fmt.Sprintf("connection %s unreachable", connID), Cause: cause},
		ConnectionID:  connID,
	}
}

func NewDatabaseError(operation string, cause error) error {
	return &DatabaseError{ExchangeError{Message: fmt.Sprintf("%s failed", operation), Cause: cause}}
}

func NewNetworkError(operation string, cause error) error {
	return &NetworkError{ExchangeError{Message: fmt.Sprintf("%s failed", operation), Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential backoff.
// It stops early when ctx is done.
func RetryWithBackoff(ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &ExchangeError{Message: fmt.Sprintf("%s failed after %d attempts", operation, maxRetries), Cause: lastErr}
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// ErrorReason returns the machine-readable reason code for err, or "internal".
func ErrorReason(err error) string {
	var (
		validation   *ValidationError
		notFound     *NotFoundError
		funds        *InsufficientFundsError
		holdings     *InsufficientHoldingsError
		marketClosed *MarketClosedError
		conflict     *ConflictError
		upstream     *UpstreamError
	)

	// Upstream first: a source failure may wrap a not-found cause.
	switch {
	case errors.As(err, &upstream):
		return "upstream_unavailable"
	case errors.As(err, &validation):
		return "validation_failed"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &funds):
		return "insufficient_funds"
	case errors.As(err, &holdings):
		return "insufficient_holdings"
	case errors.As(err, &marketClosed):
		return "market_closed"
	case errors.As(err, &conflict), errors.Is(err, ErrConcurrentUpdate):
		return "conflict"
	default:
		return "internal"
	}
}
