// Package entitlement looks up membership entitlements in the CRM.
package entitlement

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("entitlement source is not configured")

// Entitlement is the CRM's answer for one identity.
type Entitlement struct {
	Active   bool
	PlanName string
}

type Service interface {
	// Lookup resolves the entitlement for an identity number. A failed
	// lookup is transient: callers must keep the member's last known
	// entitlement rather than revoking on error.
	Lookup(ctx context.Context, identityNumber string) (Entitlement, error)
}
