package domain

import "errors"

var (
	ErrMemberNotFound         = errors.New("member not found")
	ErrMemberExists           = errors.New("member already exists")
	ErrStaleMember            = errors.New("member version conflict")
	ErrNotRestricted          = errors.New("member is not awaiting rules acceptance")
	ErrAlreadyActive          = errors.New("member already active")
	ErrAcceptanceWindowClosed = errors.New("rules acceptance window closed")
	ErrProtectedMember        = errors.New("owners and admins cannot be auto-removed")
	ErrAlreadyOut             = errors.New("member already left or removed")
	ErrNotReadmittable        = errors.New("member is not in a terminal state")

	ErrInvariantRemovalReason = errors.New("removal reason must be set exactly when removed")
	ErrInvariantLeftAt        = errors.New("left timestamp must be set exactly when left or removed")
	ErrInvariantWarnings      = errors.New("warning count must not be negative")
)
