package farming

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"
)

// PoolID uniquely identifies a staking pool. It is derived as
// keccak256(stakeToken || rewardRate || createdAt || domain salt), so two
// pools created with identical parameters at the same instant collide by
// construction.
type PoolID [32]byte

// String renders the identifier as 0x-prefixed hex.
func (id PoolID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// ParsePoolID decodes a 0x-prefixed or bare hex pool identifier.
func ParsePoolID(s string) (PoolID, error) {
	var id PoolID
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, ErrInvalidPoolID
	}
	if len(raw) != len(id) {
		return id, ErrInvalidPoolID
	}
	copy(id[:], raw)
	return id, nil
}

// Pool is an independent staking market for one stake token. All amounts are
// non-negative big integers; AccRewardPerShare carries the reward-per-share
// accumulator scaled by RewardScale.
type Pool struct {
	ID                  PoolID
	StakeToken          string
	TotalStaked         *big.Int
	RewardRatePerSecond *big.Int
	LastUpdate          uint64
	AccRewardPerShare   *big.Int
	Active              bool
}

// Clone returns a deep copy of the pool record.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	return &Pool{
		ID:                  p.ID,
		StakeToken:          p.StakeToken,
		TotalStaked:         copyBigInt(p.TotalStaked),
		RewardRatePerSecond: copyBigInt(p.RewardRatePerSecond),
		LastUpdate:          p.LastUpdate,
		AccRewardPerShare:   copyBigInt(p.AccRewardPerShare),
		Active:              p.Active,
	}
}

// Normalize replaces nil amount fields with zero values so callers can rely
// on the pool being arithmetic-safe.
func (p *Pool) Normalize() *Pool {
	if p == nil {
		return nil
	}
	if p.TotalStaked == nil {
		p.TotalStaked = big.NewInt(0)
	}
	if p.RewardRatePerSecond == nil {
		p.RewardRatePerSecond = big.NewInt(0)
	}
	if p.AccRewardPerShare == nil {
		p.AccRewardPerShare = big.NewInt(0)
	}
	return p
}

// Snapshot returns a deterministic byte-packed encoding of every pool field,
// intended for external verification. Layout: id (32) || token length (2, BE)
// || token bytes || totalStaked (32, BE) || rewardRate (32, BE) || lastUpdate
// (8, BE) || accumulator (32, BE) || active (1).
func (p *Pool) Snapshot() []byte {
	if p == nil {
		return nil
	}
	token := []byte(p.StakeToken)
	out := make([]byte, 0, 32+2+len(token)+32+32+8+32+1)
	out = append(out, p.ID[:]...)
	var tokenLen [2]byte
	binary.BigEndian.PutUint16(tokenLen[:], uint16(len(token)))
	out = append(out, tokenLen[:]...)
	out = append(out, token...)
	out = append(out, packAmount(p.TotalStaked)...)
	out = append(out, packAmount(p.RewardRatePerSecond)...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], p.LastUpdate)
	out = append(out, ts[:]...)
	out = append(out, packAmount(p.AccRewardPerShare)...)
	if p.Active {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

// UserPosition tracks a single user's deposit in one pool. RewardDebt is the
// accumulator-weighted amount already priced into past settlements, scaled by
// RewardScale; the record persists after a full withdrawal.
type UserPosition struct {
	StakedAmount *big.Int
	RewardDebt   *big.Int
	LastClaim    uint64
}

// Clone returns a deep copy of the position record.
func (u *UserPosition) Clone() *UserPosition {
	if u == nil {
		return nil
	}
	return &UserPosition{
		StakedAmount: copyBigInt(u.StakedAmount),
		RewardDebt:   copyBigInt(u.RewardDebt),
		LastClaim:    u.LastClaim,
	}
}

// Normalize replaces nil amount fields with zero values.
func (u *UserPosition) Normalize() *UserPosition {
	if u == nil {
		return nil
	}
	if u.StakedAmount == nil {
		u.StakedAmount = big.NewInt(0)
	}
	if u.RewardDebt == nil {
		u.RewardDebt = big.NewInt(0)
	}
	return u
}

// State describes the persistence the registry and settlement engine require.
// Implementations must return deep copies so engine-side mutations never leak
// into stored records before an operation commits.
type State interface {
	PoolGet(id PoolID) (*Pool, bool, error)
	PoolPut(pool *Pool) error
	// PoolCreate persists a freshly created pool together with its slot in
	// the creation-order index as one atomic write.
	PoolCreate(pool *Pool) error
	// PoolIDs returns every registered pool identifier in creation order.
	PoolIDs() ([]PoolID, error)
	// PositionGet returns the stored position, or a zero-valued position when
	// the user has never staked into the pool.
	PositionGet(id PoolID, user [20]byte) (*UserPosition, error)
	PositionPut(id PoolID, user [20]byte, position *UserPosition) error
	// PoolCommit persists the pool and the user's position as one atomic
	// write, so a crash cannot separate totalStaked from the positions
	// backing it.
	PoolCommit(pool *Pool, user [20]byte, position *UserPosition) error
}

// maxAmountBits bounds values packed into the fixed 32-byte wire fields.
const maxAmountBits = 256

// packAmount encodes v as 32 big-endian bytes. Values wider than 256 bits
// keep their low-order bytes.
func packAmount(v *big.Int) []byte {
	var out [32]byte
	if v == nil || v.Sign() <= 0 {
		return out[:]
	}
	raw := v.Bytes()
	if len(raw) > len(out) {
		raw = raw[len(raw)-len(out):]
	}
	copy(out[len(out)-len(raw):], raw)
	return out[:]
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
