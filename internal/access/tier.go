package access

import (
	"fmt"
	"strings"
)

// Tier is one level in the total-ordered permission hierarchy.
type Tier int

const (
	TierRestricted Tier = iota
	TierVerified
	TierMember
	TierModerator
	TierAdmin
	TierOwner
)

var tierNames = map[Tier]string{
	TierRestricted: "restricted",
	TierVerified:   "verified",
	TierMember:     "member",
	TierModerator:  "moderator",
	TierAdmin:      "admin",
	TierOwner:      "owner",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Above reports whether t outranks other.
func (t Tier) Above(other Tier) bool {
	return t > other
}

// ParseTier resolves a tier from its wire name.
func ParseTier(raw string) (Tier, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for tier, name := range tierNames {
		if name == normalized {
			return tier, nil
		}
	}
	return TierRestricted, fmt.Errorf("%w: %q", ErrUnknownTier, raw)
}
