package events

import (
	"encoding/hex"
	"math/big"
	"strings"
)

const (
	// TypePoolCreated is emitted when a new staking pool is registered.
	TypePoolCreated = "farming.poolCreated"
	// TypePoolUpdated captures reward rate changes applied to an existing pool.
	TypePoolUpdated = "farming.poolUpdated"
	// TypeStaked records a deposit into a pool.
	TypeStaked = "farming.staked"
	// TypeWithdrawn records a withdrawal of staked principal.
	TypeWithdrawn = "farming.withdrawn"
	// TypeRewardClaimed is emitted whenever accrued rewards are paid out.
	TypeRewardClaimed = "farming.rewardClaimed"
	// TypeRewardShortfall signals that a payout was truncated because the
	// engine held less reward balance than the user had accrued.
	TypeRewardShortfall = "farming.rewardShortfall"
	// TypeEmergencyWithdrawn records an administrative asset recovery.
	TypeEmergencyWithdrawn = "farming.emergencyWithdrawn"
	// TypeAuthorityTransferred records a change of the administrative principal.
	TypeAuthorityTransferred = "farming.authorityTransferred"
)

// PoolCreated captures the initial configuration of a freshly registered pool.
type PoolCreated struct {
	PoolID     [32]byte
	StakeToken string
	RewardRate *big.Int
}

// EventType satisfies the Event interface.
func (PoolCreated) EventType() string { return TypePoolCreated }

// Attributes flattens the payload for broadcast.
func (e PoolCreated) Attributes() map[string]string {
	return map[string]string{
		"poolId": formatID(e.PoolID),
		"token":  strings.ToUpper(strings.TrimSpace(e.StakeToken)),
		"rate":   formatAmount(e.RewardRate),
	}
}

// PoolUpdated captures a reward rate change on an existing pool.
type PoolUpdated struct {
	PoolID     [32]byte
	StakeToken string
	RewardRate *big.Int
}

// EventType satisfies the Event interface.
func (PoolUpdated) EventType() string { return TypePoolUpdated }

// Attributes flattens the payload for broadcast.
func (e PoolUpdated) Attributes() map[string]string {
	return map[string]string{
		"poolId": formatID(e.PoolID),
		"token":  strings.ToUpper(strings.TrimSpace(e.StakeToken)),
		"rate":   formatAmount(e.RewardRate),
	}
}

// Staked records a user deposit into a pool.
type Staked struct {
	PoolID [32]byte
	User   [20]byte
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Attributes flattens the payload for broadcast.
func (e Staked) Attributes() map[string]string {
	return map[string]string{
		"poolId": formatID(e.PoolID),
		"user":   formatAddress(e.User),
		"amount": formatAmount(e.Amount),
	}
}

// Withdrawn records a user withdrawing staked principal from a pool.
type Withdrawn struct {
	PoolID [32]byte
	User   [20]byte
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (Withdrawn) EventType() string { return TypeWithdrawn }

// Attributes flattens the payload for broadcast.
func (e Withdrawn) Attributes() map[string]string {
	return map[string]string{
		"poolId": formatID(e.PoolID),
		"user":   formatAddress(e.User),
		"amount": formatAmount(e.Amount),
	}
}

// RewardClaimed records a reward payout. Paid may be lower than Accrued when
// the engine's reward balance could not cover the full entitlement.
type RewardClaimed struct {
	PoolID  [32]byte
	User    [20]byte
	Accrued *big.Int
	Paid    *big.Int
}

// EventType satisfies the Event interface.
func (RewardClaimed) EventType() string { return TypeRewardClaimed }

// Attributes flattens the payload for broadcast.
func (e RewardClaimed) Attributes() map[string]string {
	return map[string]string{
		"poolId":  formatID(e.PoolID),
		"user":    formatAddress(e.User),
		"accrued": formatAmount(e.Accrued),
		"paid":    formatAmount(e.Paid),
	}
}

// RewardShortfall captures the portion of an accrued reward that was dropped
// because the engine held insufficient reward balance at payout time.
type RewardShortfall struct {
	PoolID    [32]byte
	User      [20]byte
	Shortfall *big.Int
}

// EventType satisfies the Event interface.
func (RewardShortfall) EventType() string { return TypeRewardShortfall }

// Attributes flattens the payload for broadcast.
func (e RewardShortfall) Attributes() map[string]string {
	return map[string]string{
		"poolId":    formatID(e.PoolID),
		"user":      formatAddress(e.User),
		"shortfall": formatAmount(e.Shortfall),
	}
}

// EmergencyWithdrawn records an administrative recovery of assets held by the
// engine. The transfer is not associated with any pool.
type EmergencyWithdrawn struct {
	Token     string
	Amount    *big.Int
	Recipient [20]byte
}

// EventType satisfies the Event interface.
func (EmergencyWithdrawn) EventType() string { return TypeEmergencyWithdrawn }

// Attributes flattens the payload for broadcast.
func (e EmergencyWithdrawn) Attributes() map[string]string {
	return map[string]string{
		"token":     strings.ToUpper(strings.TrimSpace(e.Token)),
		"amount":    formatAmount(e.Amount),
		"recipient": formatAddress(e.Recipient),
	}
}

// AuthorityTransferred records the hand-over of the administrative principal.
type AuthorityTransferred struct {
	Previous [20]byte
	Next     [20]byte
}

// EventType satisfies the Event interface.
func (AuthorityTransferred) EventType() string { return TypeAuthorityTransferred }

// Attributes flattens the payload for broadcast.
func (e AuthorityTransferred) Attributes() map[string]string {
	return map[string]string{
		"previous": formatAddress(e.Previous),
		"next":     formatAddress(e.Next),
	}
}

func formatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
