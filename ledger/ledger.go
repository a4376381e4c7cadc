// Package ledger abstracts the fungible-asset movement the farming engine
// depends on. The engine only records accounting intent; custody of balances
// lives entirely behind the Client interface.
package ledger

import (
	"errors"
	"math/big"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the payer's balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrInvalidAmount is returned for nil or negative transfer amounts.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
	// ErrUnknownToken is returned when a token symbol has no registered ledger.
	ErrUnknownToken = errors.New("ledger: unknown token")
)

// Client moves a single fungible asset between holders. Implementations sit
// across a trust boundary from the engine: a failed call must leave balances
// untouched so the engine can abort the surrounding operation cleanly.
type Client interface {
	// Transfer moves amount from the engine's own holding to the recipient.
	Transfer(to [20]byte, amount *big.Int) error
	// TransferFrom moves amount between two third-party holders.
	TransferFrom(from, to [20]byte, amount *big.Int) error
	// BalanceOf reports the holder's current balance. The returned value is a
	// copy the caller may mutate.
	BalanceOf(holder [20]byte) *big.Int
}

// Source resolves token symbols to their ledger clients.
type Source interface {
	Ledger(symbol string) (Client, error)
}
