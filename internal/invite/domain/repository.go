package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, token *Token) error
	// Update applies a replacement snapshot with compare-and-swap on
	// Version. A concurrent writer surfaces as ErrStaleToken.
	Update(ctx context.Context, db *gorm.DB, token *Token) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Token, error)
	FindActiveByRecipient(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) (*Token, error)
	ListByStatus(ctx context.Context, db *gorm.DB, statuses []TokenStatus) ([]Token, error)
	// ListLapsed returns active tokens whose expiry or use limit has
	// passed; the cleanup sweep persists their terminal status.
	ListLapsed(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Token, error)
}
