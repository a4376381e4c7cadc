package ledger

import (
	"math/big"
	"strings"
	"sync"
)

// Token is an in-memory fungible asset ledger. It backs the daemon's demo
// deployment and the engine tests; production deployments swap in a client
// backed by a real asset ledger.
type Token struct {
	symbol string
	origin [20]byte

	mu       sync.RWMutex
	balances map[[20]byte]*big.Int
}

// NewToken constructs an empty ledger for the supplied symbol. The origin
// address is the holder debited by Transfer calls, i.e. the engine's vault.
func NewToken(symbol string, origin [20]byte) *Token {
	return &Token{
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		origin:   origin,
		balances: make(map[[20]byte]*big.Int),
	}
}

// Symbol returns the normalised token symbol.
func (t *Token) Symbol() string { return t.symbol }

// Mint credits the holder with amount. Used for genesis allocations and tests.
func (t *Token) Mint(holder [20]byte, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(holder, amount)
}

// Transfer moves amount from the origin holding to the recipient.
func (t *Token) Transfer(to [20]byte, amount *big.Int) error {
	return t.TransferFrom(t.origin, to, amount)
}

// TransferFrom moves amount between two holders. The debit and credit are
// applied atomically under the ledger lock.
func (t *Token) TransferFrom(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	balance := t.balances[from]
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	t.credit(to, amount)
	return nil
}

// BalanceOf reports the holder's balance. The returned value is a copy.
func (t *Token) BalanceOf(holder [20]byte) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	balance := t.balances[holder]
	if balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (t *Token) credit(holder [20]byte, amount *big.Int) {
	balance := t.balances[holder]
	if balance == nil {
		balance = big.NewInt(0)
		t.balances[holder] = balance
	}
	balance.Add(balance, amount)
}

// Registry resolves symbols to registered token ledgers.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]Client
}

// NewRegistry constructs an empty token registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]Client)}
}

// Register binds the symbol to the supplied client, replacing any previous
// binding for the same symbol.
func (r *Registry) Register(symbol string, client Client) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" || client == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[normalized] = client
}

// Ledger implements the Source interface.
func (r *Registry) Ledger(symbol string) (Client, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.tokens[normalized]
	if !ok {
		return nil, ErrUnknownToken
	}
	return client, nil
}
