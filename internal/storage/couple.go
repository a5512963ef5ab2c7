package storage

import (
	"context"

	"github.com/charleshuang3/partnerlink/internal/gormw"
	"github.com/charleshuang3/partnerlink/internal/models"
)

// FindCoupleForAnyUser returns an accepted couple containing any of the users
// in either slot.
func FindCoupleForAnyUser(ctx context.Context, db *gormw.DB, userIDs ...string) (*models.Couple, error) {
	res := &models.Couple{}
	err := db.WithContext(ctx).
		Where("status = ? AND (user1_id IN ? OR user2_id IN ?)", models.CoupleAccepted, userIDs, userIDs).
		First(res).Error
	if err != nil {
		return nil, err
	}
	return res, nil
}

func GetCoupleByUser(ctx context.Context, db *gormw.DB, userID string) (*models.Couple, error) {
	return FindCoupleForAnyUser(ctx, db, userID)
}

// AddCouple inserts the couple and one member row per user. It performs
// several writes, run it inside gormw.DB.InTx.
func AddCouple(ctx context.Context, db *gormw.DB, couple *models.Couple) error {
	db = &gormw.DB{DB: db.WithContext(ctx)}
	couple.PairKey = models.PairKey(couple.User1ID, couple.User2ID)
	if err := db.Create(couple).Error; err != nil {
		return err
	}

	members := []models.CoupleMember{
		{UserID: couple.User1ID, CoupleID: couple.ID, CreatedAt: couple.CreatedAt},
		{UserID: couple.User2ID, CoupleID: couple.ID, CreatedAt: couple.CreatedAt},
	}
	return db.Create(&members).Error
}
