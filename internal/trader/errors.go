package trader

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrStaleData marks a run whose signal snapshot is too old to act on.
var ErrStaleData = errors.New("signal data is stale")

// ErrNoPrice is returned when no current price is known for a symbol.
var ErrNoPrice = errors.New("no current price")

// ErrZeroShares is returned when the buy amount does not cover one share.
var ErrZeroShares = errors.New("buy amount is below one share")

// AlreadyHeldError rejects a buy for a symbol with an open position.
type AlreadyHeldError struct {
	Symbol string
}

// Error implements the error interface
func (e *AlreadyHeldError) Error() string {
	return fmt.Sprintf("%s is already held", e.Symbol)
}

// InsufficientCashError rejects a buy the account cannot fund.
type InsufficientCashError struct {
	Symbol string
	Cash   decimal.Decimal
	Need   decimal.Decimal
}

// Error implements the error interface
func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("buy %s needs %s, cash is %s", e.Symbol, e.Need.StringFixed(2), e.Cash.StringFixed(2))
}
