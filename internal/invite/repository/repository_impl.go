package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/velvetlounge/gatekeeper/internal/invite/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, token *domain.Token) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invite_tokens (
			id, recipient_id, issuer_id, url, status, expires_at, use_limit, uses_consumed,
			consumed_by, revoked_reason, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.RecipientID,
		token.IssuerID,
		token.URL,
		token.Status,
		token.ExpiresAt,
		token.UseLimit,
		token.UsesConsumed,
		token.ConsumedBy,
		token.RevokedReason,
		token.Version,
		token.CreatedAt,
		token.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, token *domain.Token) error {
	tx := db.WithContext(ctx).Exec(
		`UPDATE invite_tokens SET
			status = ?, uses_consumed = ?, consumed_by = ?, revoked_reason = ?,
			version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		token.Status,
		token.UsesConsumed,
		token.ConsumedBy,
		token.RevokedReason,
		token.Version+1,
		token.UpdatedAt,
		token.ID,
		token.Version,
	)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrStaleToken
	}
	token.Version++
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Token, error) {
	var token domain.Token
	err := db.WithContext(ctx).Raw(
		`SELECT id, recipient_id, issuer_id, url, status, expires_at, use_limit, uses_consumed,
		 consumed_by, revoked_reason, version, created_at, updated_at
		 FROM invite_tokens WHERE id = ?`,
		id,
	).Scan(&token).Error
	if err != nil {
		return nil, err
	}
	if token.ID == 0 {
		return nil, nil
	}
	return &token, nil
}

func (r *repo) FindActiveByRecipient(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) (*domain.Token, error) {
	var token domain.Token
	err := db.WithContext(ctx).Raw(
		`SELECT id, recipient_id, issuer_id, url, status, expires_at, use_limit, uses_consumed,
		 consumed_by, revoked_reason, version, created_at, updated_at
		 FROM invite_tokens
		 WHERE recipient_id = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		recipientID,
		domain.StatusActive,
	).Scan(&token).Error
	if err != nil {
		return nil, err
	}
	if token.ID == 0 {
		return nil, nil
	}
	return &token, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, statuses []domain.TokenStatus) ([]domain.Token, error) {
	var tokens []domain.Token
	stmt := db.WithContext(ctx).Model(&domain.Token{})
	if len(statuses) > 0 {
		stmt = stmt.Where("status IN ?", statuses)
	}
	err := stmt.
		Order("created_at asc, id asc").
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *repo) ListLapsed(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Token, error) {
	var tokens []domain.Token
	err := db.WithContext(ctx).Raw(
		`SELECT id, recipient_id, issuer_id, url, status, expires_at, use_limit, uses_consumed,
		 consumed_by, revoked_reason, version, created_at, updated_at
		 FROM invite_tokens
		 WHERE status = ? AND (expires_at <= ? OR uses_consumed >= use_limit)
		 ORDER BY expires_at ASC
		 LIMIT ?`,
		domain.StatusActive,
		now,
		limit,
	).Scan(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}
