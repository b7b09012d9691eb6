package domain

import "errors"

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSystemPaused          = errors.New("system paused")
	ErrInvalidRate           = errors.New("invalid rate")
	ErrFeeTooHigh            = errors.New("fee too high")
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrInvalidAccount        = errors.New("invalid account")
	ErrInvalidRole           = errors.New("invalid role")
	ErrAlreadyInState        = errors.New("already in requested state")
	ErrFeedUnavailable       = errors.New("price feed unavailable")
	ErrUnknownCurrency       = errors.New("unknown currency")
	ErrUnknownProvider       = errors.New("unknown rate provider")
	ErrUnknownFeed           = errors.New("unknown price feed")
	ErrInvariantViolated     = errors.New("ledger invariant violated")
	ErrSettlementNotFound    = errors.New("settlement not found")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrStaleRound            = errors.New("stale price round")
)
