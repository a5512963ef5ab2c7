// Package linkage links two user accounts into a couple through a one time
// invitation code.
//
// An invitation is created active, and becomes expired (superseded or past
// its expiry) or used (consumed by a couple). Both are terminal.
package linkage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/charleshuang3/partnerlink/internal/gormw"
	"github.com/charleshuang3/partnerlink/internal/models"
	"github.com/charleshuang3/partnerlink/internal/storage"
)

var (
	logger = log.With().Str("component", "linkage").Logger()
)

// ProfileLookup resolves display information of a user. It returns
// gorm.ErrRecordNotFound for unknown users.
type ProfileLookup interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
}

type Service struct {
	config   *Config
	db       *gormw.DB
	profiles ProfileLookup
	clock    clockwork.Clock

	generateCode func() string
}

func NewService(config *Config, db *gormw.DB, profiles ProfileLookup, clock clockwork.Clock) *Service {
	config.ApplyDefaults()
	return &Service{
		config:       config,
		db:           db,
		profiles:     profiles,
		clock:        clock,
		generateCode: GenerateCode,
	}
}

type Invitation struct {
	ID        string
	Code      string
	ExpiresAt time.Time
}

// Inviter is what the redeemer sees before deciding to connect.
type Inviter struct {
	InvitationID string
	FromUserID   string
	Name         string
	Email        string
	AvatarURL    string
}

// CoupleView is a couple seen from one of its members.
type CoupleView struct {
	CoupleID         string
	PartnerID        string
	PartnerName      string
	PartnerEmail     string
	PartnerAvatarURL string
	LinkedSince      time.Time
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// CreateInvitation retires the user's active invitations and issues a new one.
// Retiring and inserting happen in one transaction; the database allows only
// one active invitation per user and per code, a conflicting insert is
// retried with a new code.
func (s *Service) CreateInvitation(ctx context.Context, userID string) (*Invitation, error) {
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxCodeAttempts; attempt++ {
		now := s.now()
		invitation := &models.InvitationCode{
			ID:         uuid.NewString(),
			FromUserID: userID,
			Code:       s.generateCode(),
			Status:     models.InvitationActive,
			ExpiresAt:  now.Add(s.config.InvitationTTL),
			CreatedAt:  now,
		}

		err := s.db.InTx(ctx, func(tx *gormw.DB) error {
			retired, err := storage.ExpireActiveInvitationsByUser(ctx, tx, userID)
			if err != nil {
				return fmt.Errorf("retire active invitations: %w", err)
			}
			if retired > 0 {
				logger.Debug().Str("user_id", userID).Int64("retired", retired).Msg("Superseded active invitations")
			}
			return storage.AddInvitation(ctx, tx, invitation)
		})
		if err == nil {
			return &Invitation{
				ID:        invitation.ID,
				Code:      invitation.Code,
				ExpiresAt: invitation.ExpiresAt,
			}, nil
		}

		lastErr = err
		if !gormw.IsDuplicateKey(err) {
			break
		}
		logger.Warn().Err(err).Str("user_id", userID).Int("attempt", attempt).Msg("Invitation insert conflicted, retrying")
	}

	logger.Error().Err(lastErr).Str("op", "create_invitation").Str("user_id", userID).Msg("Failed to create invitation")
	return nil, fmt.Errorf("%w: %w", ErrCreation, lastErr)
}

// CurrentInvitation returns the user's active, unexpired invitation, or nil.
func (s *Service) CurrentInvitation(ctx context.Context, userID string) (*Invitation, error) {
	invitations, err := storage.ListActiveInvitationsByUser(ctx, s.db, userID, s.now())
	if err != nil {
		logger.Error().Err(err).Str("op", "current_invitation").Str("user_id", userID).Msg("Failed to list invitations")
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	if len(invitations) == 0 {
		return nil, nil
	}

	inv := invitations[0]
	return &Invitation{
		ID:        inv.ID,
		Code:      inv.Code,
		ExpiresAt: inv.ExpiresAt,
	}, nil
}

// VerifyInvitation resolves a code to its inviter without consuming it.
// The only state change is expiring a code found past its expiry.
//
// A code past its expiry is ErrCodeExpired whether it is still active or was
// already expired by an earlier call or the sweeper.
func (s *Service) VerifyInvitation(ctx context.Context, code string, callerID string) (*Inviter, error) {
	now := s.now()
	invitation, err := storage.GetActiveInvitationByCode(ctx, s.db, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_, err = storage.GetLapsedInvitationByCode(ctx, s.db, code, now)
		if err == nil {
			return nil, ErrCodeExpired
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCode
		}
	}
	if err != nil {
		logger.Error().Err(err).Str("op", "verify_invitation").Str("user_id", callerID).Msg("Failed to look up invitation code")
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}

	if invitation.IsExpired(now) {
		s.expire(ctx, invitation.ID)
		return nil, ErrCodeExpired
	}

	if invitation.FromUserID == callerID {
		return nil, ErrSelfLinkage
	}

	profile, err := s.profiles.Get(ctx, invitation.FromUserID)
	if err != nil {
		logger.Error().Err(err).
			Str("op", "verify_invitation").
			Str("invitation_id", invitation.ID).
			Str("from_user_id", invitation.FromUserID).
			Msg("Failed to resolve inviter profile")
		return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}

	return &Inviter{
		InvitationID: invitation.ID,
		FromUserID:   invitation.FromUserID,
		Name:         profile.Name,
		Email:        profile.Email,
		AvatarURL:    profile.AvatarURL,
	}, nil
}

// CreateCouple links fromUserID and toUserID and consumes the invitation.
//
// Everything happens in one transaction: the existing couple check, the
// invitation checks, the couple insert and the active -> used transition.
// The couple and member unique indexes turn a concurrent link into
// ErrAlreadyLinked, and the conditional consume stops a code from being used
// twice.
func (s *Service) CreateCouple(ctx context.Context, invitationID, fromUserID, toUserID string) (string, error) {
	now := s.now()
	couple := &models.Couple{
		ID:        uuid.NewString(),
		User1ID:   fromUserID,
		User2ID:   toUserID,
		Status:    models.CoupleAccepted,
		CreatedAt: now,
	}

	expired := false
	err := s.db.InTx(ctx, func(tx *gormw.DB) error {
		_, err := storage.FindCoupleForAnyUser(ctx, tx, fromUserID, toUserID)
		if err == nil {
			return ErrAlreadyLinked
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find existing couple: %w", err)
		}

		if fromUserID == toUserID {
			return ErrSelfLinkage
		}

		invitation, err := storage.GetInvitationByIDForUpdate(ctx, tx, invitationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCode
			}
			return fmt.Errorf("get invitation: %w", err)
		}
		if invitation.FromUserID != fromUserID || invitation.Status == models.InvitationUsed {
			return ErrInvalidCode
		}
		if invitation.IsExpired(now) {
			expired = invitation.IsActive()
			return ErrCodeExpired
		}
		if !invitation.IsActive() {
			return ErrInvalidCode
		}

		if err := storage.AddCouple(ctx, tx, couple); err != nil {
			if gormw.IsDuplicateKey(err) {
				return ErrAlreadyLinked
			}
			return fmt.Errorf("insert couple: %w", err)
		}

		consumed, err := storage.ConsumeInvitation(ctx, tx, invitationID, toUserID, now)
		if err != nil {
			return fmt.Errorf("consume invitation: %w", err)
		}
		if !consumed {
			return ErrInvalidCode
		}
		return nil
	})

	if expired {
		s.expire(ctx, invitationID)
	}

	if err != nil {
		if IsValidation(err) {
			return "", err
		}
		logger.Error().Err(err).
			Str("op", "create_couple").
			Str("invitation_id", invitationID).
			Str("from_user_id", fromUserID).
			Str("to_user_id", toUserID).
			Msg("Failed to create couple")
		return "", fmt.Errorf("%w: %w", ErrCoupleCreation, err)
	}

	logger.Info().Str("couple_id", couple.ID).Str("from_user_id", fromUserID).Str("to_user_id", toUserID).Msg("Couple created")
	return couple.ID, nil
}

// GetCouple returns the user's couple, or nil if the user is not linked.
// A partner without a profile is returned with empty display fields.
func (s *Service) GetCouple(ctx context.Context, userID string) (*CoupleView, error) {
	couple, err := storage.GetCoupleByUser(ctx, s.db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.Error().Err(err).Str("op", "get_couple").Str("user_id", userID).Msg("Failed to look up couple")
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}

	view := &CoupleView{
		CoupleID:    couple.ID,
		PartnerID:   couple.Partner(userID),
		LinkedSince: couple.CreatedAt,
	}

	profile, err := s.profiles.Get(ctx, view.PartnerID)
	switch {
	case err == nil:
		view.PartnerName = profile.Name
		view.PartnerEmail = profile.Email
		view.PartnerAvatarURL = profile.AvatarURL
	case errors.Is(err, gorm.ErrRecordNotFound):
		logger.Warn().Str("couple_id", couple.ID).Str("partner_id", view.PartnerID).Msg("Partner has no profile")
	default:
		logger.Error().Err(err).Str("op", "get_couple").Str("partner_id", view.PartnerID).Msg("Failed to resolve partner profile")
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}

	return view, nil
}

// expire is best effort: the caller's outcome does not depend on it.
func (s *Service) expire(ctx context.Context, invitationID string) {
	if err := storage.ExpireInvitation(context.WithoutCancel(ctx), s.db, invitationID); err != nil {
		logger.Error().Err(err).Str("invitation_id", invitationID).Msg("Failed to mark invitation expired")
	}
}
