package farming

import (
	"math/big"
	"strings"

	"yieldfarm/core/events"
)

// Registry owns the set of pools, their configuration, and the ordered list
// of active pool identifiers. All mutations are gated by the injected
// Authorizer and settle the target pool before touching its configuration.
type Registry struct {
	state     State
	authority Authorizer
	emitter   events.Emitter
}

// NewRegistry creates a registry backed by the provided state and authority.
func NewRegistry(state State, authority Authorizer) *Registry {
	return &Registry{state: state, authority: authority, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used to broadcast registry updates.
// Passing nil resets the emitter to a no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// CreatePool registers a new staking pool and returns its derived identifier.
// Two calls with identical parameters in the same second collide and the
// second fails with ErrPoolExists.
func (r *Registry) CreatePool(caller [20]byte, stakeToken string, rewardRate *big.Int, now uint64, domainSalt string) (PoolID, error) {
	var id PoolID
	if r == nil || r.state == nil {
		return id, ErrNotConfigured
	}
	if r.authority == nil || !r.authority.Authorized(caller) {
		return id, ErrUnauthorized
	}
	token := strings.ToUpper(strings.TrimSpace(stakeToken))
	if token == "" {
		return id, ErrInvalidToken
	}
	if rewardRate == nil || rewardRate.Sign() <= 0 {
		return id, ErrZeroRate
	}
	if rewardRate.BitLen() > maxAmountBits {
		return id, ErrRateTooLarge
	}

	id = DerivePoolID(token, rewardRate, now, domainSalt)
	if _, exists, err := r.state.PoolGet(id); err != nil {
		return PoolID{}, err
	} else if exists {
		return PoolID{}, ErrPoolExists
	}

	pool := &Pool{
		ID:                  id,
		StakeToken:          token,
		TotalStaked:         big.NewInt(0),
		RewardRatePerSecond: new(big.Int).Set(rewardRate),
		LastUpdate:          now,
		AccRewardPerShare:   big.NewInt(0),
		Active:              true,
	}
	if err := r.state.PoolCreate(pool); err != nil {
		return PoolID{}, err
	}
	r.emit(events.PoolCreated{PoolID: id, StakeToken: token, RewardRate: new(big.Int).Set(rewardRate)})
	return id, nil
}

// UpdateRewardRate settles the pool at now and then applies the new emission
// rate. Settling first locks in rewards already accrued under the old rate;
// the new rate takes effect strictly going forward.
func (r *Registry) UpdateRewardRate(caller [20]byte, id PoolID, newRate *big.Int, now uint64) error {
	if r == nil || r.state == nil {
		return ErrNotConfigured
	}
	if r.authority == nil || !r.authority.Authorized(caller) {
		return ErrUnauthorized
	}
	if newRate == nil || newRate.Sign() <= 0 {
		return ErrZeroRate
	}
	if newRate.BitLen() > maxAmountBits {
		return ErrRateTooLarge
	}
	pool, ok, err := r.state.PoolGet(id)
	if err != nil {
		return err
	}
	if !ok || !pool.Active {
		return ErrPoolInactive
	}
	settlePool(pool, now)
	pool.RewardRatePerSecond = new(big.Int).Set(newRate)
	if err := r.state.PoolPut(pool); err != nil {
		return err
	}
	r.emit(events.PoolUpdated{PoolID: id, StakeToken: pool.StakeToken, RewardRate: new(big.Int).Set(newRate)})
	return nil
}

// TransferAuthority hands the administrative principal to next. The installed
// Authorizer must support hand-over; SingleAuthority does.
func (r *Registry) TransferAuthority(caller, next [20]byte) error {
	if r == nil || r.authority == nil {
		return ErrNotConfigured
	}
	holder, ok := r.authority.(interface {
		Transfer(caller, next [20]byte) error
	})
	if !ok {
		return ErrUnauthorized
	}
	if err := holder.Transfer(caller, next); err != nil {
		return err
	}
	r.emit(events.AuthorityTransferred{Previous: caller, Next: next})
	return nil
}

// GetPool returns a copy of the stored pool record.
func (r *Registry) GetPool(id PoolID) (*Pool, error) {
	if r == nil || r.state == nil {
		return nil, ErrNotConfigured
	}
	pool, ok, err := r.state.PoolGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// ListActivePools returns every pool identifier in creation order.
func (r *Registry) ListActivePools() ([]PoolID, error) {
	if r == nil || r.state == nil {
		return nil, ErrNotConfigured
	}
	return r.state.PoolIDs()
}

// CountActivePools reports how many pools have been created.
func (r *Registry) CountActivePools() (int, error) {
	ids, err := r.ListActivePools()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Snapshot returns the deterministic byte-packed encoding of the pool fields
// for external verification. The encoding is not consumed internally.
func (r *Registry) Snapshot(id PoolID) ([]byte, error) {
	pool, err := r.GetPool(id)
	if err != nil {
		return nil, err
	}
	return pool.Snapshot(), nil
}

func (r *Registry) emit(event events.Event) {
	if r == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit(event)
}
