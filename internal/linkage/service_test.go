package linkage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charleshuang3/partnerlink/internal/gormw"
	"github.com/charleshuang3/partnerlink/internal/models"
	"github.com/charleshuang3/partnerlink/internal/storage"
	"github.com/charleshuang3/partnerlink/internal/testutil"
)

type fakeProfiles map[string]*models.Profile

func (f fakeProfiles) Get(ctx context.Context, userID string) (*models.Profile, error) {
	p, ok := f[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

type brokenProfiles struct{}

func (brokenProfiles) Get(ctx context.Context, userID string) (*models.Profile, error) {
	return nil, errors.New("connection reset")
}

func setupTestService(t *testing.T) (*Service, *gormw.DB, *clockwork.FakeClock) {
	t.Helper()

	db := testutil.NewDB(t)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 2, 14, 9, 0, 0, 0, time.UTC))
	profiles := fakeProfiles{
		"alice": {UserID: "alice", Name: "Alice", Email: "alice@example.com", AvatarURL: "https://example.com/alice.png"},
		"bob":   {UserID: "bob", Name: "Bob", Email: "bob@example.com"},
		"carol": {UserID: "carol", Name: "Carol"},
	}

	return NewService(&Config{}, db, profiles, clock), db, clock
}

func activeInvitations(t *testing.T, db *gormw.DB, userID string) []models.InvitationCode {
	t.Helper()
	var res []models.InvitationCode
	require.NoError(t, db.Where("from_user_id = ? AND status = ?", userID, models.InvitationActive).Find(&res).Error)
	return res
}

func TestLinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, db, clock := setupTestService(t)

	inv, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ValidCodeFormat(inv.Code))
	assert.True(t, clock.Now().Add(24*time.Hour).Equal(inv.ExpiresAt))

	inviter, err := s.VerifyInvitation(ctx, inv.Code, "bob")
	require.NoError(t, err)
	assert.Equal(t, &Inviter{
		InvitationID: inv.ID,
		FromUserID:   "alice",
		Name:         "Alice",
		Email:        "alice@example.com",
		AvatarURL:    "https://example.com/alice.png",
	}, inviter)

	// verification does not consume the code
	stored, err := storage.GetInvitationByID(ctx, db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationActive, stored.Status)

	coupleID, err := s.CreateCouple(ctx, inviter.InvitationID, inviter.FromUserID, "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, coupleID)

	aliceView, err := s.GetCouple(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, coupleID, aliceView.CoupleID)
	assert.Equal(t, "bob", aliceView.PartnerID)
	assert.Equal(t, "Bob", aliceView.PartnerName)
	assert.Equal(t, "bob@example.com", aliceView.PartnerEmail)

	bobView, err := s.GetCouple(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, coupleID, bobView.CoupleID)
	assert.Equal(t, "alice", bobView.PartnerID)
	assert.Equal(t, "https://example.com/alice.png", bobView.PartnerAvatarURL)
	assert.True(t, clock.Now().Equal(bobView.LinkedSince))

	stored, err = storage.GetInvitationByID(ctx, db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationUsed, stored.Status)
	assert.Equal(t, "bob", stored.UsedBy)

	_, err = s.VerifyInvitation(ctx, inv.Code, "carol")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyInvitation_Expired(t *testing.T) {
	ctx := context.Background()
	s, db, clock := setupTestService(t)

	inv, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)

	clock.Advance(24*time.Hour + time.Second)

	_, err = s.VerifyInvitation(ctx, inv.Code, "bob")
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.True(t, IsValidation(err))

	stored, err := storage.GetInvitationByID(ctx, db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationExpired, stored.Status)

	_, err = s.VerifyInvitation(ctx, inv.Code, "bob")
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyInvitation_ExpiredBySweeper(t *testing.T) {
	ctx := context.Background()
	s, db, clock := setupTestService(t)

	inv, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)

	clock.Advance(24*time.Hour + time.Second)
	storage.SweepInvitations(ctx, db, clock.Now())

	stored, err := storage.GetInvitationByID(ctx, db, inv.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvitationExpired, stored.Status)

	_, err = s.VerifyInvitation(ctx, inv.Code, "bob")
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.True(t, IsValidation(err))

	_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyInvitation_SupersededCode(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupTestService(t)
	codes := []string{"111111", "222222"}
	s.generateCode = func() string {
		code := codes[0]
		codes = codes[1:]
		return code
	}

	old, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)
	_, err = s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)

	_, err = s.VerifyInvitation(ctx, old.Code, "bob")
	assert.ErrorIs(t, err, ErrInvalidCode)

	// once its own expiry passed, a superseded code reads as expired
	clock.Advance(24*time.Hour + time.Second)
	_, err = s.VerifyInvitation(ctx, old.Code, "bob")
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyInvitation_ExactlyAtExpiry(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupTestService(t)

	inv, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)

	_, err = s.VerifyInvitation(ctx, inv.Code, "bob")
	assert.NoError(t, err)
}

func TestVerifyInvitation_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		s, _, _ := setupTestService(t)
		_, err := s.VerifyInvitation(ctx, "123456", "bob")
		assert.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("own code", func(t *testing.T) {
		s, _, _ := setupTestService(t)
		inv, err := s.CreateInvitation(ctx, "alice")
		require.NoError(t, err)

		_, err = s.VerifyInvitation(ctx, inv.Code, "alice")
		assert.ErrorIs(t, err, ErrSelfLinkage)
	})

	t.Run("inviter without profile", func(t *testing.T) {
		s, _, _ := setupTestService(t)
		inv, err := s.CreateInvitation(ctx, "dave")
		require.NoError(t, err)

		_, err = s.VerifyInvitation(ctx, inv.Code, "bob")
		assert.ErrorIs(t, err, ErrProfileUnavailable)
		assert.False(t, IsValidation(err))
	})

	t.Run("profile store down", func(t *testing.T) {
		s, _, _ := setupTestService(t)
		s.profiles = brokenProfiles{}
		inv, err := s.CreateInvitation(ctx, "alice")
		require.NoError(t, err)

		_, err = s.VerifyInvitation(ctx, inv.Code, "bob")
		assert.ErrorIs(t, err, ErrProfileUnavailable)
	})
}

func TestCreateInvitation_OneActivePerUser(t *testing.T) {
	ctx := context.Background()
	s, db, _ := setupTestService(t)

	first, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)
	second, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)

	active := activeInvitations(t, db, "alice")
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	stored, err := storage.GetInvitationByID(ctx, db, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationExpired, stored.Status)

	_, err = s.VerifyInvitation(ctx, first.Code, "bob")
	if first.Code != second.Code {
		assert.ErrorIs(t, err, ErrInvalidCode)
	}
}

func TestCreateInvitation_RetiresOverdueCode(t *testing.T) {
	ctx := context.Background()
	s, db, clock := setupTestService(t)

	first, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)

	_, err = s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)

	stored, err := storage.GetInvitationByID(ctx, db, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationExpired, stored.Status)
	assert.Len(t, activeInvitations(t, db, "alice"), 1)
}

func TestCreateInvitation_RetriesCodeCollision(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestService(t)

	codes := []string{"555555", "555555", "666666"}
	s.generateCode = func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	bobs, err := s.CreateInvitation(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "555555", bobs.Code)

	alices, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "666666", alices.Code)

	inviter, err := s.VerifyInvitation(ctx, "555555", "carol")
	require.NoError(t, err)
	assert.Equal(t, "bob", inviter.FromUserID)
}

func TestCreateInvitation_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	s, db, _ := setupTestService(t)
	s.generateCode = func() string { return "555555" }

	_, err := s.CreateInvitation(ctx, "bob")
	require.NoError(t, err)

	_, err = s.CreateInvitation(ctx, "alice")
	assert.ErrorIs(t, err, ErrCreation)
	assert.False(t, IsValidation(err))
	assert.Empty(t, activeInvitations(t, db, "alice"))
}

func TestCreateInvitation_ConcurrentInsertIsRejected(t *testing.T) {
	ctx := context.Background()
	s, db, clock := setupTestService(t)

	_, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)

	// A racing request that skipped retirement must not leave two active
	// codes behind.
	err = storage.AddInvitation(ctx, db, &models.InvitationCode{
		ID:         "racer",
		FromUserID: "alice",
		Code:       "777777",
		Status:     models.InvitationActive,
		ExpiresAt:  clock.Now().Add(24 * time.Hour),
	})
	assert.True(t, gormw.IsDuplicateKey(err))
	assert.Len(t, activeInvitations(t, db, "alice"), 1)
}

func TestCurrentInvitation(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupTestService(t)

	got, err := s.CurrentInvitation(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	inv, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)

	got, err = s.CurrentInvitation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, inv.Code, got.Code)

	clock.Advance(24*time.Hour + time.Second)
	got, err = s.CurrentInvitation(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateCouple_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		run         func(t *testing.T, s *Service, clock *clockwork.FakeClock) error
		expectedErr error
	}{
		{
			name: "second connect with the same code",
			run: func(t *testing.T, s *Service, clock *clockwork.FakeClock) error {
				inv, err := s.CreateInvitation(ctx, "alice")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
				return err
			},
			expectedErr: ErrAlreadyLinked,
		},
		{
			name: "used code by a third user",
			run: func(t *testing.T, s *Service, clock *clockwork.FakeClock) error {
				inv, err := s.CreateInvitation(ctx, "alice")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, inv.ID, "carol", "dave")
				return err
			},
			expectedErr: ErrInvalidCode,
		},
		{
			name: "inviter already linked",
			run: func(t *testing.T, s *Service, clock *clockwork.FakeClock) error {
				inv, err := s.CreateInvitation(ctx, "alice")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
				require.NoError(t, err)

				next, err := s.CreateInvitation(ctx, "alice")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, next.ID, "alice", "carol")
				return err
			},
			expectedErr: ErrAlreadyLinked,
		},
		{
			name: "redeemer already linked",
			run: func(t *testing.T, s *Service, clock *clockwork.FakeClock) error {
				inv, err := s.CreateInvitation(ctx, "alice")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
				require.NoError(t, err)

				carols, err := s.CreateInvitation(ctx, "carol")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, carols.ID, "carol", "bob")
				return err
			},
			expectedErr: ErrAlreadyLinked,
		},
		{
			name: "self",
			run: func(t *testing.T, s *Service, clock *clockwork.FakeClock) error {
				inv, err := s.CreateInvitation(ctx, "alice")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, inv.ID, "alice", "alice")
				return err
			},
			expectedErr: ErrSelfLinkage,
		},
		{
			name: "inviter does not own the invitation",
			run: func(t *testing.T, s *Service, clock *clockwork.FakeClock) error {
				inv, err := s.CreateInvitation(ctx, "alice")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, inv.ID, "carol", "bob")
				return err
			},
			expectedErr: ErrInvalidCode,
		},
		{
			name: "unknown invitation",
			run: func(t *testing.T, s *Service, clock *clockwork.FakeClock) error {
				_, err := s.CreateCouple(ctx, "missing", "alice", "bob")
				return err
			},
			expectedErr: ErrInvalidCode,
		},
		{
			name: "superseded invitation",
			run: func(t *testing.T, s *Service, clock *clockwork.FakeClock) error {
				inv, err := s.CreateInvitation(ctx, "alice")
				require.NoError(t, err)
				_, err = s.CreateInvitation(ctx, "alice")
				require.NoError(t, err)
				_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
				return err
			},
			expectedErr: ErrInvalidCode,
		},
		{
			name: "expired invitation",
			run: func(t *testing.T, s *Service, clock *clockwork.FakeClock) error {
				inv, err := s.CreateInvitation(ctx, "alice")
				require.NoError(t, err)
				clock.Advance(24*time.Hour + time.Second)
				_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
				return err
			},
			expectedErr: ErrCodeExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, clock := setupTestService(t)

			err := tt.run(t, s, clock)

			assert.ErrorIs(t, err, tt.expectedErr)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestCreateCouple_ExpiredInvitationIsMarkedExpired(t *testing.T) {
	ctx := context.Background()
	s, db, clock := setupTestService(t)

	inv, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)
	clock.Advance(24*time.Hour + time.Second)

	_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
	require.ErrorIs(t, err, ErrCodeExpired)

	stored, err := storage.GetInvitationByID(ctx, db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationExpired, stored.Status)

	couple, err := s.GetCouple(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, couple)
}

func TestCreateCouple_ReversedPairIsRejected(t *testing.T) {
	ctx := context.Background()
	s, db, clock := setupTestService(t)

	inv, err := s.CreateInvitation(ctx, "alice")
	require.NoError(t, err)

	// Stored by another request with the users in reverse order.
	err = db.InTx(ctx, func(tx *gormw.DB) error {
		return storage.AddCouple(ctx, tx, &models.Couple{
			ID: "racer", User1ID: "bob", User2ID: "alice",
			Status: models.CoupleAccepted, CreatedAt: clock.Now(),
		})
	})
	require.NoError(t, err)

	_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
	assert.ErrorIs(t, err, ErrAlreadyLinked)

	// the invitation was not consumed by the failed attempt
	stored, err := storage.GetInvitationByID(ctx, db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationActive, stored.Status)
}

func TestGetCouple(t *testing.T) {
	ctx := context.Background()

	t.Run("not linked", func(t *testing.T) {
		s, _, _ := setupTestService(t)
		view, err := s.GetCouple(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, view)
	})

	t.Run("partner without profile", func(t *testing.T) {
		s, _, _ := setupTestService(t)
		inv, err := s.CreateInvitation(ctx, "alice")
		require.NoError(t, err)
		_, err = s.CreateCouple(ctx, inv.ID, "alice", "dave")
		require.NoError(t, err)

		view, err := s.GetCouple(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "dave", view.PartnerID)
		assert.Empty(t, view.PartnerName)
	})

	t.Run("profile store down", func(t *testing.T) {
		s, _, _ := setupTestService(t)
		inv, err := s.CreateInvitation(ctx, "alice")
		require.NoError(t, err)
		_, err = s.CreateCouple(ctx, inv.ID, "alice", "bob")
		require.NoError(t, err)

		s.profiles = brokenProfiles{}
		_, err = s.GetCouple(ctx, "alice")
		assert.ErrorIs(t, err, ErrLookup)
	})
}
