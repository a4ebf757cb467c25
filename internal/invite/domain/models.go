// Package domain contains the invite token entity and its state machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TokenStatus represents invite token lifecycle states.
type TokenStatus string

const (
	StatusActive   TokenStatus = "ACTIVE"
	StatusConsumed TokenStatus = "CONSUMED"
	StatusExpired  TokenStatus = "EXPIRED"
	StatusRevoked  TokenStatus = "REVOKED"
)

// Token is a single-recipient, time- and use-limited invite. Expiry is
// lazy: terminal statuses are persisted when a validity check observes
// them, never by a background clock.
type Token struct {
	ID            snowflake.ID                `gorm:"primaryKey"`
	RecipientID   snowflake.ID                `gorm:"not null;index"`
	IssuerID      snowflake.ID                `gorm:"not null"`
	URL           string                      `gorm:"type:text"`
	Status        TokenStatus                 `gorm:"type:text;not null;index"`
	ExpiresAt     time.Time                   `gorm:"not null"`
	UseLimit      int                         `gorm:"not null;default:1"`
	UsesConsumed  int                         `gorm:"not null;default:0"`
	ConsumedBy    datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	RevokedReason *string                     `gorm:"type:text"`
	Version       int64                       `gorm:"not null;default:1"`
	CreatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Token) TableName() string { return "invite_tokens" }

// Terminal reports whether the token can never be consumed again.
func (t Token) Terminal() bool {
	return t.Status != StatusActive
}

// Valid reports whether the token may still be consumed at now.
func (t Token) Valid(now time.Time) bool {
	return t.Status == StatusActive && now.Before(t.ExpiresAt) && t.UsesConsumed < t.UseLimit
}

// Lapse computes the terminal transition a validity check must persist for
// an active token that is no longer consumable. The second return is false
// when the token is still valid or already terminal.
func (t Token) Lapse(now time.Time) (Token, bool) {
	if t.Status != StatusActive || t.Valid(now) {
		return t, false
	}
	next := t
	if t.UsesConsumed >= t.UseLimit {
		next.Status = StatusConsumed
	} else {
		next.Status = StatusExpired
	}
	next.UpdatedAt = now
	return next, true
}

// Consume grants one use to the designated recipient.
func (t Token) Consume(memberID snowflake.ID, now time.Time) (Token, error) {
	if !t.Valid(now) {
		if t.Status == StatusRevoked {
			return t, ErrTokenRevoked
		}
		if t.UsesConsumed >= t.UseLimit || t.Status == StatusConsumed {
			return t, ErrTokenExhausted
		}
		return t, ErrTokenExpired
	}
	if memberID != t.RecipientID {
		return t, ErrWrongRecipient
	}
	for _, used := range t.ConsumedBy {
		if used == memberID.String() {
			return t, ErrAlreadyConsumed
		}
	}
	next := t
	next.UsesConsumed++
	next.ConsumedBy = append(append(datatypes.JSONSlice[string]{}, t.ConsumedBy...), memberID.String())
	if next.UsesConsumed >= next.UseLimit {
		next.Status = StatusConsumed
	}
	next.UpdatedAt = now
	return next, nil
}

// Revoke terminates an active token.
func (t Token) Revoke(reason string, now time.Time) (Token, error) {
	if t.Status != StatusActive {
		return t, ErrTokenNotActive
	}
	next := t
	next.Status = StatusRevoked
	next.RevokedReason = &reason
	next.UpdatedAt = now
	return next, nil
}
