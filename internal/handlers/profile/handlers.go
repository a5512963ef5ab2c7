package profile

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/charleshuang3/partnerlink/internal/handlers/middleware"
	"github.com/charleshuang3/partnerlink/internal/models"
)

var (
	logger = log.With().Str("component", "profile").Logger()
)

type Getter interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
}

type Handlers struct {
	profiles Getter
}

func New(profiles Getter) *Handlers {
	return &Handlers{profiles: profiles}
}

func (h *Handlers) RegisterHandlers(rg *gin.RouterGroup) {
	rg.GET("/profile/me", h.me)
}

type profileResponse struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *Handlers) me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.String(http.StatusUnauthorized, "Unauthenticated")
		return
	}

	p, err := h.profiles.Get(c.Request.Context(), user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.String(http.StatusNotFound, "Profile not found")
			return
		}
		logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to get profile")
		c.String(http.StatusInternalServerError, "Something went wrong, please try again later")
		return
	}

	c.JSON(http.StatusOK, &profileResponse{
		UserID:    p.UserID,
		Name:      p.Name,
		Email:     p.Email,
		AvatarURL: p.AvatarURL,
		UpdatedAt: p.UpdatedAt,
	})
}
