package entitlement

import "context"

// Unconfigured reports every lookup as transiently failed. Sweeps treat
// that as a per-item error and leave the member's entitlement untouched.
type Unconfigured struct{}

func (Unconfigured) Lookup(ctx context.Context, identityNumber string) (Entitlement, error) {
	return Entitlement{}, ErrNotConfigured
}
