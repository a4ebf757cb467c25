package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Filter narrows member listings. Zero fields are ignored.
type Filter struct {
	Statuses             []MemberStatus
	Verified             *bool
	HasActiveEntitlement *bool
	JoinedBefore         *time.Time
	LapsedBefore         *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, member *Member) error
	// Update applies a replacement snapshot with compare-and-swap on
	// Version. A concurrent writer surfaces as ErrStaleMember.
	Update(ctx context.Context, db *gorm.DB, member *Member) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Member, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Member, error)
	List(ctx context.Context, db *gorm.DB, filter Filter) ([]Member, error)
}
