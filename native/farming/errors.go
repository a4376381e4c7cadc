package farming

import "errors"

var (
	ErrNotConfigured     = errors.New("farming: engine not configured")
	ErrInvalidToken      = errors.New("farming: stake token not set")
	ErrInvalidPoolID     = errors.New("farming: malformed pool id")
	ErrZeroRate          = errors.New("farming: reward rate must be positive")
	ErrRateTooLarge      = errors.New("farming: reward rate exceeds 256 bits")
	ErrZeroAmount        = errors.New("farming: amount must be positive")
	ErrPoolExists        = errors.New("farming: pool already exists")
	ErrPoolNotFound      = errors.New("farming: pool not found")
	ErrPoolInactive      = errors.New("farming: pool inactive")
	ErrInsufficientStake = errors.New("farming: insufficient staked balance")
	ErrNoRewards         = errors.New("farming: no rewards to claim")
	ErrUnauthorized      = errors.New("farming: unauthorized")
	ErrTransferFailed    = errors.New("farming: asset transfer failed")
	ErrReentrantCall     = errors.New("farming: reentrant call rejected")
)
