package farming

import (
	"math/big"
	"sync/atomic"

	"yieldfarm/core/events"
	"yieldfarm/ledger"
)

// Engine orchestrates stake, withdraw, and claim settlement against the pool
// accumulator and moves assets through the ledger clients. The engine's own
// state only ever records accounting intent; asset custody stays behind the
// ledger boundary.
//
// Callers are expected to serialize mutating operations. The engine holds a
// re-entrancy lock for the duration of each mutating call so a ledger
// callback that re-invokes the engine fails with ErrReentrantCall instead of
// interleaving with the initiating operation.
type Engine struct {
	guard reentrancyGuard

	state     State
	tokens    ledger.Source
	reward    ledger.Client
	vault     [20]byte
	authority Authorizer
	emitter   events.Emitter
}

// NewEngine wires the settlement engine. vault is the address whose balances
// the ledger clients debit for outbound transfers.
func NewEngine(state State, tokens ledger.Source, reward ledger.Client, vault [20]byte, authority Authorizer) *Engine {
	return &Engine{
		state:     state,
		tokens:    tokens,
		reward:    reward,
		vault:     vault,
		authority: authority,
		emitter:   events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Vault returns the engine's holding address.
func (e *Engine) Vault() [20]byte { return e.vault }

// Stake settles the pool, pulls amount of the stake token from the user, and
// records the enlarged position before paying out any reward pending from
// prior to this deposit. The advanced debt checkpoint is committed before the
// payout leaves the vault.
func (e *Engine) Stake(user [20]byte, id PoolID, amount *big.Int, now uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard.enter(); err != nil {
		return err
	}
	defer e.guard.exit()

	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	pool, ok, err := e.state.PoolGet(id)
	if err != nil {
		return err
	}
	if !ok || !pool.Active {
		return ErrPoolInactive
	}
	settlePool(pool, now)

	position, err := e.state.PositionGet(id, user)
	if err != nil {
		return err
	}
	position.Normalize()

	pending := pendingAmount(position.StakedAmount, pool.AccRewardPerShare, position.RewardDebt)

	stakeLedger, err := e.tokens.Ledger(pool.StakeToken)
	if err != nil {
		return err
	}
	if err := stakeLedger.TransferFrom(user, e.vault, amount); err != nil {
		return ErrTransferFailed
	}

	position.StakedAmount = new(big.Int).Add(position.StakedAmount, amount)
	position.RewardDebt = rewardDebt(position.StakedAmount, pool.AccRewardPerShare)
	position.LastClaim = now
	pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, amount)

	if err := e.state.PoolCommit(pool, user, position); err != nil {
		return err
	}

	payout, payErr := e.payReward(id, user, pending)
	payout.emit(e)
	e.emit(events.Staked{PoolID: id, User: user, Amount: new(big.Int).Set(amount)})
	return payErr
}

// Withdraw settles the pool, shrinks the position, pushes amount of the stake
// token back to the user, and pays any pending reward once the shrunk
// position is committed.
//
// The stake check is strictly greater-than: withdrawing the exact full
// balance is rejected with ErrInsufficientStake.
func (e *Engine) Withdraw(user [20]byte, id PoolID, amount *big.Int, now uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard.enter(); err != nil {
		return err
	}
	defer e.guard.exit()

	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	pool, ok, err := e.state.PoolGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPoolInactive
	}
	position, err := e.state.PositionGet(id, user)
	if err != nil {
		return err
	}
	position.Normalize()
	if position.StakedAmount.Cmp(amount) <= 0 {
		return ErrInsufficientStake
	}

	settlePool(pool, now)

	pending := pendingAmount(position.StakedAmount, pool.AccRewardPerShare, position.RewardDebt)

	position.StakedAmount = new(big.Int).Sub(position.StakedAmount, amount)
	position.RewardDebt = rewardDebt(position.StakedAmount, pool.AccRewardPerShare)
	pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, amount)

	stakeLedger, err := e.tokens.Ledger(pool.StakeToken)
	if err != nil {
		return err
	}
	if err := stakeLedger.Transfer(user, amount); err != nil {
		return ErrTransferFailed
	}

	if err := e.state.PoolCommit(pool, user, position); err != nil {
		return err
	}

	payout, payErr := e.payReward(id, user, pending)
	payout.emit(e)
	e.emit(events.Withdrawn{PoolID: id, User: user, Amount: new(big.Int).Set(amount)})
	return payErr
}

// ClaimRewards settles the pool and pays out the user's accrued reward. It
// returns the amount actually transferred, which may be lower than the
// accrued entitlement when the engine's reward balance runs short.
func (e *Engine) ClaimRewards(user [20]byte, id PoolID, now uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.guard.enter(); err != nil {
		return nil, err
	}
	defer e.guard.exit()

	pool, ok, err := e.state.PoolGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolInactive
	}
	settlePool(pool, now)

	position, err := e.state.PositionGet(id, user)
	if err != nil {
		return nil, err
	}
	position.Normalize()

	pending := pendingAmount(position.StakedAmount, pool.AccRewardPerShare, position.RewardDebt)
	if pending.Sign() == 0 {
		return nil, ErrNoRewards
	}

	position.RewardDebt = rewardDebt(position.StakedAmount, pool.AccRewardPerShare)
	position.LastClaim = now

	if err := e.state.PoolCommit(pool, user, position); err != nil {
		return nil, err
	}

	payout, payErr := e.payReward(id, user, pending)
	payout.emit(e)
	if payErr != nil {
		return nil, payErr
	}
	return payout.paid, nil
}

// PendingRewards reports the reward a claim at now would settle, using the
// non-mutating accumulator preview. It never writes state.
func (e *Engine) PendingRewards(id PoolID, user [20]byte, now uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotConfigured
	}
	pool, ok, err := e.state.PoolGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotFound
	}
	position, err := e.state.PositionGet(id, user)
	if err != nil {
		return nil, err
	}
	position.Normalize()
	preview := previewAccumulator(pool, now)
	return pendingAmount(position.StakedAmount, preview, position.RewardDebt), nil
}

// Position returns a copy of the stored position for external queries.
func (e *Engine) Position(id PoolID, user [20]byte) (*UserPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotConfigured
	}
	if _, ok, err := e.state.PoolGet(id); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrPoolNotFound
	}
	position, err := e.state.PositionGet(id, user)
	if err != nil {
		return nil, err
	}
	return position.Normalize(), nil
}

// EmergencyWithdraw moves amount of the named token from the engine's holding
// to the caller. The transfer carries no pool association and can remove
// funds the ledger still owes to stakers; the capability exists for asset
// recovery and is restricted to the administrative authority.
func (e *Engine) EmergencyWithdraw(caller [20]byte, token string, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.authority == nil || !e.authority.Authorized(caller) {
		return ErrUnauthorized
	}
	if err := e.guard.enter(); err != nil {
		return err
	}
	defer e.guard.exit()

	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	client, err := e.tokens.Ledger(token)
	if err != nil {
		return err
	}
	if err := client.Transfer(caller, amount); err != nil {
		return ErrTransferFailed
	}
	e.emit(events.EmergencyWithdrawn{Token: token, Amount: new(big.Int).Set(amount), Recipient: caller})
	return nil
}

// rewardPayout carries the amounts of one reward settlement for event
// broadcast.
type rewardPayout struct {
	id        PoolID
	user      [20]byte
	accrued   *big.Int
	paid      *big.Int
	shortfall *big.Int
}

func (p rewardPayout) emit(e *Engine) {
	if p.accrued == nil || p.accrued.Sign() == 0 {
		return
	}
	e.emit(events.RewardClaimed{PoolID: p.id, User: p.user, Accrued: p.accrued, Paid: p.paid})
	if p.shortfall != nil && p.shortfall.Sign() > 0 {
		e.emit(events.RewardShortfall{PoolID: p.id, User: p.user, Shortfall: p.shortfall})
	}
}

// payReward transfers min(pending, held reward balance) to the user. Callers
// must commit the advanced reward debt before invoking it: the payout leaving
// the vault is the last failable step of an operation, so a failure withholds
// a reward but never leaves a paid one unaccounted. The shortfall, when the
// held balance cannot cover the entitlement, is not tracked anywhere: the
// debt advanced as though the full amount was paid. The truncation is
// surfaced through a RewardShortfall event, but the accounting is unchanged.
func (e *Engine) payReward(id PoolID, user [20]byte, pending *big.Int) (rewardPayout, error) {
	payout := rewardPayout{id: id, user: user, accrued: copyBigInt(pending), paid: big.NewInt(0)}
	if pending == nil || pending.Sign() == 0 {
		return payout, nil
	}
	held := e.reward.BalanceOf(e.vault)
	paid := new(big.Int).Set(pending)
	if held.Cmp(paid) < 0 {
		paid.Set(held)
	}
	if paid.Sign() > 0 {
		if err := e.reward.Transfer(user, paid); err != nil {
			return payout, ErrTransferFailed
		}
	}
	payout.paid = paid
	if paid.Cmp(pending) < 0 {
		payout.shortfall = new(big.Int).Sub(pending, paid)
	}
	return payout, nil
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.tokens == nil || e.reward == nil {
		return ErrNotConfigured
	}
	return nil
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

// reentrancyGuard is a non-blocking lock: an overlapping invocation fails
// instead of waiting, which is the desired behaviour when a ledger callback
// re-invokes the engine mid-operation.
type reentrancyGuard struct {
	locked atomic.Bool
}

func (g *reentrancyGuard) enter() error {
	if !g.locked.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (g *reentrancyGuard) exit() {
	g.locked.Store(false)
}
