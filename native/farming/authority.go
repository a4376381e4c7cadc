package farming

import "sync"

// Authorizer decides whether an address may perform administrative
// operations. Injecting the predicate keeps the accounting logic untouched if
// control later migrates to multi-signature or timelocked schemes.
type Authorizer interface {
	Authorized(addr [20]byte) bool
}

// SingleAuthority is the default Authorizer: one transferable administrative
// principal.
type SingleAuthority struct {
	mu   sync.RWMutex
	addr [20]byte
}

// NewSingleAuthority constructs an authority held by the supplied address.
func NewSingleAuthority(addr [20]byte) *SingleAuthority {
	return &SingleAuthority{addr: addr}
}

// Authorized implements the Authorizer interface.
func (a *SingleAuthority) Authorized(addr [20]byte) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.addr == addr
}

// Holder returns the current administrative principal.
func (a *SingleAuthority) Holder() [20]byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.addr
}

// Transfer hands the authority to next. Only the current holder may transfer.
func (a *SingleAuthority) Transfer(caller, next [20]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.addr != caller {
		return ErrUnauthorized
	}
	a.addr = next
	return nil
}
