package domain

import "errors"

var (
	ErrTokenNotFound   = errors.New("invite token not found")
	ErrStaleToken      = errors.New("invite token version conflict")
	ErrTokenExpired    = errors.New("invite token expired")
	ErrTokenExhausted  = errors.New("invite token uses exhausted")
	ErrTokenRevoked    = errors.New("invite token revoked")
	ErrTokenNotActive  = errors.New("invite token is not active")
	ErrWrongRecipient  = errors.New("invite token belongs to another recipient")
	ErrAlreadyConsumed = errors.New("invite token already consumed by this member")
	ErrActiveExists    = errors.New("recipient already holds an active invite")
	ErrInvalidUseLimit = errors.New("use limit must be at least one")
)
