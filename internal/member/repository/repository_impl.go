package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/velvetlounge/gatekeeper/internal/member/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, member *domain.Member) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO members (
			id, external_id, display_name, identity_number, status, verified, verified_notified,
			has_active_entitlement, entitlement_plan, entitlement_lapsed_at, joined_at, left_at,
			removal_reason, last_activity_at, warning_count, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.ExternalID,
		member.DisplayName,
		member.IdentityNumber,
		member.Status,
		member.Verified,
		member.VerifiedNotified,
		member.HasActiveEntitlement,
		member.EntitlementPlan,
		member.EntitlementLapsedAt,
		member.JoinedAt,
		member.LeftAt,
		member.RemovalReason,
		member.LastActivityAt,
		member.WarningCount,
		member.Version,
		member.CreatedAt,
		member.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, member *domain.Member) error {
	tx := db.WithContext(ctx).Exec(
		`UPDATE members SET
			display_name = ?, identity_number = ?, status = ?, verified = ?, verified_notified = ?,
			has_active_entitlement = ?, entitlement_plan = ?, entitlement_lapsed_at = ?, joined_at = ?,
			left_at = ?, removal_reason = ?, last_activity_at = ?, warning_count = ?,
			version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		member.DisplayName,
		member.IdentityNumber,
		member.Status,
		member.Verified,
		member.VerifiedNotified,
		member.HasActiveEntitlement,
		member.EntitlementPlan,
		member.EntitlementLapsedAt,
		member.JoinedAt,
		member.LeftAt,
		member.RemovalReason,
		member.LastActivityAt,
		member.WarningCount,
		member.Version+1,
		member.UpdatedAt,
		member.ID,
		member.Version,
	)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrStaleMember
	}
	member.Version++
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_id, display_name, identity_number, status, verified, verified_notified,
		 has_active_entitlement, entitlement_plan, entitlement_lapsed_at, joined_at, left_at,
		 removal_reason, last_activity_at, warning_count, version, created_at, updated_at
		 FROM members WHERE id = ?`,
		id,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_id, display_name, identity_number, status, verified, verified_notified,
		 has_active_entitlement, entitlement_plan, entitlement_lapsed_at, joined_at, left_at,
		 removal_reason, last_activity_at, warning_count, version, created_at, updated_at
		 FROM members WHERE external_id = ?`,
		externalID,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.Filter) ([]domain.Member, error) {
	var members []domain.Member
	stmt := db.WithContext(ctx).Model(&domain.Member{})
	if len(filter.Statuses) > 0 {
		stmt = stmt.Where("status IN ?", filter.Statuses)
	}
	if filter.Verified != nil {
		stmt = stmt.Where("verified = ?", *filter.Verified)
	}
	if filter.HasActiveEntitlement != nil {
		stmt = stmt.Where("has_active_entitlement = ?", *filter.HasActiveEntitlement)
	}
	if filter.JoinedBefore != nil {
		stmt = stmt.Where("joined_at < ?", *filter.JoinedBefore)
	}
	if filter.LapsedBefore != nil {
		stmt = stmt.Where("entitlement_lapsed_at IS NOT NULL AND entitlement_lapsed_at < ?", *filter.LapsedBefore)
	}
	err := stmt.
		Order("joined_at asc, id asc").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
