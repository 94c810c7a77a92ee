package services

import "errors"

// Mint rejections are expected outcomes, returned as typed failures —
// callers branch on them with errors.Is rather than parsing messages.
var (
	ErrBadgeTypeInactive = errors.New("badge type missing or not active")
	ErrAlreadyOwned      = errors.New("user already owns this badge")
	ErrSupplyExhausted   = errors.New("badge supply exhausted")

	// ErrUnknownConditionType marks a configuration error; the
	// evaluation loop logs it and skips the condition.
	ErrUnknownConditionType = errors.New("unknown condition type")
)
