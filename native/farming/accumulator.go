package farming

import "math/big"

// rewardScale is the fixed-point factor applied to the reward-per-share
// accumulator and reward debt checkpoints.
const rewardScale = int64(1_000_000_000_000_000_000)

var rewardScaleBig = big.NewInt(rewardScale)

// RewardScale returns the fixed-point scaling factor as a fresh big integer.
func RewardScale() *big.Int {
	return new(big.Int).Set(rewardScaleBig)
}

// settlePool advances the pool's reward-per-share accumulator to now. Elapsed
// time with zero stake earns nothing and is not retroactively creditable, so
// only the timestamp advances in that case. Settlement is O(1) regardless of
// staker count and must precede any mutation of TotalStaked or the reward
// rate within the same operation.
func settlePool(pool *Pool, now uint64) {
	if pool == nil {
		return
	}
	pool.Normalize()
	if now <= pool.LastUpdate {
		return
	}
	if pool.TotalStaked.Sign() == 0 {
		pool.LastUpdate = now
		return
	}
	pool.AccRewardPerShare = previewAccumulator(pool, now)
	pool.LastUpdate = now
}

// previewAccumulator computes the accumulator value the pool would hold after
// settling at now, without mutating the pool. Used by the read-only pending
// reward query.
func previewAccumulator(pool *Pool, now uint64) *big.Int {
	if pool == nil {
		return big.NewInt(0)
	}
	acc := copyBigInt(pool.AccRewardPerShare)
	if now <= pool.LastUpdate {
		return acc
	}
	total := pool.TotalStaked
	if total == nil || total.Sign() == 0 {
		return acc
	}
	rate := pool.RewardRatePerSecond
	if rate == nil || rate.Sign() == 0 {
		return acc
	}
	elapsed := new(big.Int).SetUint64(now - pool.LastUpdate)
	accrued := new(big.Int).Mul(elapsed, rate)
	accrued.Mul(accrued, rewardScaleBig)
	accrued.Quo(accrued, total)
	return acc.Add(acc, accrued)
}

// pendingAmount evaluates staked*accumulator/scale - debt. The result is
// clamped at zero: correct sequencing keeps it non-negative, and clamping
// protects callers from malformed stored state.
func pendingAmount(staked, accumulator, debt *big.Int) *big.Int {
	if staked == nil || staked.Sign() == 0 {
		return big.NewInt(0)
	}
	entitled := new(big.Int).Mul(staked, accumulator)
	entitled.Quo(entitled, rewardScaleBig)
	if debt != nil {
		entitled.Sub(entitled, debt)
	}
	if entitled.Sign() < 0 {
		return big.NewInt(0)
	}
	return entitled
}

// rewardDebt computes the accumulator-weighted checkpoint for a stake amount.
func rewardDebt(staked, accumulator *big.Int) *big.Int {
	if staked == nil || staked.Sign() == 0 {
		return big.NewInt(0)
	}
	debt := new(big.Int).Mul(staked, accumulator)
	return debt.Quo(debt, rewardScaleBig)
}
