package storage

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"gorm.io/gorm/clause"

	"github.com/charleshuang3/partnerlink/internal/gormw"
	"github.com/charleshuang3/partnerlink/internal/models"
)

const (
	profileTTL  = 5 * time.Minute
	maxProfiles = 10000
)

func GetProfile(ctx context.Context, db *gormw.DB, userID string) (*models.Profile, error) {
	p := &models.Profile{}
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertProfile creates the profile or overwrites its display fields.
func UpsertProfile(ctx context.Context, db *gormw.DB, p *models.Profile) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "email", "avatar_url", "updated_at"}),
		}).
		Create(p).Error
}

// ProfileStorage reads profiles through a short lived cache.
type ProfileStorage struct {
	db    *gormw.DB
	cache *ristretto.Cache[string, *models.Profile]
}

func NewProfileStorage(db *gormw.DB) *ProfileStorage {
	c, err := ristretto.NewCache(&ristretto.Config[string, *models.Profile]{
		NumCounters: maxProfiles * 10,
		MaxCost:     maxProfiles,
		BufferItems: 64,
	})

	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create profile storage")
	}

	return &ProfileStorage{
		db:    db,
		cache: c,
	}
}

// Get returns gorm.ErrRecordNotFound if the user has no profile.
func (s *ProfileStorage) Get(ctx context.Context, userID string) (*models.Profile, error) {
	if p, ok := s.cache.Get(userID); ok {
		return p, nil
	}

	p, err := GetProfile(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	s.cache.SetWithTTL(userID, p, 1, profileTTL)
	s.cache.Wait()
	return p, nil
}

func (s *ProfileStorage) Upsert(ctx context.Context, p *models.Profile) error {
	if err := UpsertProfile(ctx, s.db, p); err != nil {
		return err
	}
	s.cache.Del(p.UserID)
	s.cache.Wait()
	return nil
}
