package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// ErrorCategory groups protocol errors by the kind of precondition that failed.
type ErrorCategory string

const (
	CategoryAuthorization ErrorCategory = "authorization"
	CategoryEligibility   ErrorCategory = "eligibility"
	CategoryTemporal      ErrorCategory = "temporal"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryResource      ErrorCategory = "resource"
	CategoryInvalidInput  ErrorCategory = "invalid-input"
)

// ProtocolError is a stable, client-visible failure. Code values are part of
// the wire contract and must never change.
type ProtocolError struct {
	Code     uint32
	Symbol   string
	Category ErrorCategory
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Symbol, e.Code)
}

var (
	ErrInvalidAmount       = &ProtocolError{400, "INVALID_AMOUNT", CategoryInvalidInput}
	ErrUnauthorized        = &ProtocolError{401, "UNAUTHORIZED", CategoryAuthorization}
	ErrInsufficientBalance = &ProtocolError{402, "INSUFFICIENT_BALANCE", CategoryResource}
	ErrNotEligible         = &ProtocolError{403, "NOT_ELIGIBLE", CategoryEligibility}
	ErrNoEvent             = &ProtocolError{404, "NO_EVENT", CategoryTemporal}
	ErrUnknownBadge        = &ProtocolError{405, "UNKNOWN_BADGE", CategoryInvalidInput}
	ErrNoActiveStake       = &ProtocolError{406, "NO_ACTIVE_STAKE", CategoryEligibility}
	ErrAlreadyActive       = &ProtocolError{407, "ALREADY_ACTIVE", CategoryConflict}
	ErrNoReward            = &ProtocolError{408, "NO_REWARD", CategoryEligibility}
	ErrAlreadyClaimed      = &ProtocolError{409, "ALREADY_CLAIMED", CategoryConflict}
	ErrBadgeAlreadyOwned   = &ProtocolError{410, "BADGE_ALREADY_OWNED", CategoryConflict}
	ErrTransferFailed      = &ProtocolError{411, "TRANSFER_FAILED", CategoryResource}
	ErrLeaderboardFull     = &ProtocolError{412, "LEADERBOARD_FULL", CategoryResource}
)

// AsProtocolError extracts the ProtocolError wrapped in err, if any.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CodeOf returns the protocol code carried by err, or 0.
func CodeOf(err error) uint32 {
	if pe, ok := AsProtocolError(err); ok {
		return pe.Code
	}
	return 0
}
