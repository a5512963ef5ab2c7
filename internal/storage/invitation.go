package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/clause"

	"github.com/charleshuang3/partnerlink/internal/gormw"
	"github.com/charleshuang3/partnerlink/internal/models"
)

var (
	logger = log.With().Str("component", "storage").Logger()
)

func AddInvitation(ctx context.Context, db *gormw.DB, invitation *models.InvitationCode) error {
	return db.WithContext(ctx).Create(invitation).Error
}

func GetInvitationByID(ctx context.Context, db *gormw.DB, id string) (*models.InvitationCode, error) {
	res := &models.InvitationCode{}
	if err := db.WithContext(ctx).Where("id = ?", id).First(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// GetInvitationByIDForUpdate is GetInvitationByID with a row lock on
// databases that support it. Use it inside a transaction.
func GetInvitationByIDForUpdate(ctx context.Context, db *gormw.DB, id string) (*models.InvitationCode, error) {
	res := &models.InvitationCode{}
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(res).Error
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetActiveInvitationByCode returns the newest active invitation with the code.
// The active row is not checked against its expiry.
func GetActiveInvitationByCode(ctx context.Context, db *gormw.DB, code string) (*models.InvitationCode, error) {
	res := &models.InvitationCode{}
	err := db.WithContext(ctx).
		Where("code = ? AND status = ?", code, models.InvitationActive).
		Order("created_at DESC").
		First(res).Error
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetLapsedInvitationByCode returns the newest expired invitation with the
// code whose expiry passed before now. Rows superseded before their expiry
// are not returned until that expiry passes.
func GetLapsedInvitationByCode(ctx context.Context, db *gormw.DB, code string, now time.Time) (*models.InvitationCode, error) {
	res := &models.InvitationCode{}
	err := db.WithContext(ctx).
		Where("code = ? AND status = ? AND expires_at < ?", code, models.InvitationExpired, now).
		Order("created_at DESC").
		First(res).Error
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListActiveInvitationsByUser returns the user's active invitations which are
// not expired at now, newest first.
func ListActiveInvitationsByUser(ctx context.Context, db *gormw.DB, userID string, now time.Time) ([]models.InvitationCode, error) {
	var res []models.InvitationCode
	err := db.WithContext(ctx).
		Where("from_user_id = ? AND status = ? AND expires_at > ?", userID, models.InvitationActive, now).
		Order("created_at DESC").
		Find(&res).Error
	return res, err
}

// ExpireActiveInvitationsByUser retires every active invitation of the user.
func ExpireActiveInvitationsByUser(ctx context.Context, db *gormw.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&models.InvitationCode{}).
		Where("from_user_id = ? AND status = ?", userID, models.InvitationActive).
		Update("status", models.InvitationExpired)
	return res.RowsAffected, res.Error
}

// ExpireInvitation moves an active invitation to expired. Invitations in
// other states are left untouched.
func ExpireInvitation(ctx context.Context, db *gormw.DB, id string) error {
	return db.WithContext(ctx).
		Model(&models.InvitationCode{}).
		Where("id = ? AND status = ?", id, models.InvitationActive).
		Update("status", models.InvitationExpired).Error
}

// ConsumeInvitation moves an active invitation to used. It returns false if
// the invitation was not active anymore.
func ConsumeInvitation(ctx context.Context, db *gormw.DB, id string, usedBy string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&models.InvitationCode{}).
		Where("id = ? AND status = ?", id, models.InvitationActive).
		Updates(map[string]any{
			"status":  models.InvitationUsed,
			"used_by": usedBy,
			"used_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireOverdueInvitations retires active invitations whose expiry passed.
func ExpireOverdueInvitations(ctx context.Context, db *gormw.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&models.InvitationCode{}).
		Where("status = ? AND expires_at < ?", models.InvitationActive, now).
		Update("status", models.InvitationExpired)
	return res.RowsAffected, res.Error
}

// DeleteRetiredInvitations removes expired and used invitations created
// before the given time.
func DeleteRetiredInvitations(ctx context.Context, db *gormw.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]models.InvitationStatus{models.InvitationExpired, models.InvitationUsed}, before).
		Delete(&models.InvitationCode{})
	return res.RowsAffected, res.Error
}
