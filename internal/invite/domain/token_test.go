package domain

import (
	"errors"
	"testing"
	"time"
)

var issued = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func activeToken(useLimit int) Token {
	return Token{
		ID:          100,
		RecipientID: 7,
		IssuerID:    1,
		URL:         "https://chat.example/invite/abc",
		Status:      StatusActive,
		ExpiresAt:   issued.Add(48 * time.Hour),
		UseLimit:    useLimit,
		Version:     1,
		CreatedAt:   issued,
		UpdatedAt:   issued,
	}
}

func TestConsumeSingleUse(t *testing.T) {
	token := activeToken(1)

	next, err := token.Consume(7, issued.Add(time.Hour))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if next.Status != StatusConsumed {
		t.Fatalf("expected consumed after final use, got %s", next.Status)
	}
	if next.UsesConsumed != 1 {
		t.Fatalf("expected one use, got %d", next.UsesConsumed)
	}
	if token.Status != StatusActive {
		t.Fatal("consume mutated the original snapshot")
	}

	if _, err := next.Consume(7, issued.Add(2*time.Hour)); !errors.Is(err, ErrTokenExhausted) {
		t.Fatalf("expected ErrTokenExhausted on second use, got %v", err)
	}
}

func TestConsumeWrongRecipient(t *testing.T) {
	token := activeToken(1)
	if _, err := token.Consume(8, issued.Add(time.Hour)); !errors.Is(err, ErrWrongRecipient) {
		t.Fatalf("expected ErrWrongRecipient, got %v", err)
	}
}

func TestConsumeExpired(t *testing.T) {
	token := activeToken(1)
	if _, err := token.Consume(7, token.ExpiresAt); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at expiry instant, got %v", err)
	}
}

func TestConsumeMultiUseTracksMembers(t *testing.T) {
	token := activeToken(2)

	next, err := token.Consume(7, issued.Add(time.Hour))
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if next.Status != StatusActive {
		t.Fatalf("expected still active with one use left, got %s", next.Status)
	}

	if _, err := next.Consume(7, issued.Add(2*time.Hour)); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed for repeat member, got %v", err)
	}
}

func TestConsumeRevoked(t *testing.T) {
	token := activeToken(1)
	revoked, err := token.Revoke("operator", issued.Add(time.Hour))
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := revoked.Consume(7, issued.Add(2*time.Hour)); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestLapseExpiredToken(t *testing.T) {
	token := activeToken(1)

	if _, changed := token.Lapse(issued.Add(time.Hour)); changed {
		t.Fatal("expected no lapse while still valid")
	}

	lapsed, changed := token.Lapse(token.ExpiresAt)
	if !changed {
		t.Fatal("expected lapse at expiry")
	}
	if lapsed.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", lapsed.Status)
	}

	// Already terminal: nothing further to persist.
	if _, changed := lapsed.Lapse(token.ExpiresAt.Add(time.Hour)); changed {
		t.Fatal("expected terminal token to stay untouched")
	}
}

func TestLapseExhaustedTokenBecomesConsumed(t *testing.T) {
	token := activeToken(1)
	token.UsesConsumed = 1

	lapsed, changed := token.Lapse(issued.Add(time.Hour))
	if !changed {
		t.Fatal("expected lapse for exhausted token")
	}
	if lapsed.Status != StatusConsumed {
		t.Fatalf("expected consumed, got %s", lapsed.Status)
	}
}

func TestRevokeRequiresActive(t *testing.T) {
	token := activeToken(1)
	revoked, err := token.Revoke("operator", issued.Add(time.Hour))
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.RevokedReason == nil || *revoked.RevokedReason != "operator" {
		t.Fatalf("expected reason recorded, got %v", revoked.RevokedReason)
	}

	if _, err := revoked.Revoke("again", issued.Add(2*time.Hour)); !errors.Is(err, ErrTokenNotActive) {
		t.Fatalf("expected ErrTokenNotActive, got %v", err)
	}
}
