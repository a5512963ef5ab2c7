// Package partner serves the partner linkage endpoints.
package partner

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/partnerlink/internal/handlers/firewall"
	"github.com/charleshuang3/partnerlink/internal/handlers/middleware"
	"github.com/charleshuang3/partnerlink/internal/linkage"
	"github.com/charleshuang3/partnerlink/internal/storage"
)

var (
	logger = log.With().Str("component", "partner").Logger()
)

const (
	internalErrorMessage = "Something went wrong, please try again later"
)

type Handlers struct {
	service *linkage.Service
	limiter *storage.VerifyAttemptLimiter
}

func New(service *linkage.Service, limiter *storage.VerifyAttemptLimiter) *Handlers {
	return &Handlers{
		service: service,
		limiter: limiter,
	}
}

func (h *Handlers) RegisterHandlers(rg *gin.RouterGroup) {
	rg.GET("/partner", h.getCouple)
	rg.POST("/partner/invite", h.createInvitation)
	rg.GET("/partner/invite", h.currentInvitation)
	rg.POST("/partner/verify", h.verifyInvitation)
	rg.POST("/partner/connect", h.connect)
}

// statusFor maps a service error to the response status and a message safe
// to show to the user.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, linkage.ErrInvalidCode):
		return http.StatusBadRequest, "Invalid or unknown invitation code"
	case errors.Is(err, linkage.ErrCodeExpired):
		return http.StatusBadRequest, "Invitation code has expired"
	case errors.Is(err, linkage.ErrSelfLinkage):
		return http.StatusBadRequest, "You can not accept your own invitation"
	case errors.Is(err, linkage.ErrAlreadyLinked):
		return http.StatusBadRequest, "Already linked with a partner"
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}

func callerID(c *gin.Context) (string, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok || user.ID == "" {
		c.String(http.StatusUnauthorized, "Unauthenticated")
		return "", false
	}
	return user.ID, true
}

type invitationResponse struct {
	InvitationCode string    `json:"invitationCode"`
	InvitationID   string    `json:"invitationId"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

func newInvitationResponse(inv *linkage.Invitation) *invitationResponse {
	return &invitationResponse{
		InvitationCode: inv.Code,
		InvitationID:   inv.ID,
		ExpiresAt:      inv.ExpiresAt,
	}
}

func (h *Handlers) createInvitation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	inv, err := h.service.CreateInvitation(c.Request.Context(), userID)
	if err != nil {
		countOperation(opCreateInvitation, err)
		status, msg := statusFor(err)
		c.String(status, msg)
		return
	}

	countOperation(opCreateInvitation, nil)
	c.JSON(http.StatusOK, newInvitationResponse(inv))
}

func (h *Handlers) currentInvitation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	inv, err := h.service.CurrentInvitation(c.Request.Context(), userID)
	if err != nil {
		status, msg := statusFor(err)
		c.String(status, msg)
		return
	}
	if inv == nil {
		c.String(http.StatusNotFound, "No active invitation")
		return
	}

	c.JSON(http.StatusOK, newInvitationResponse(inv))
}

type verifyRequest struct {
	InvitationCode string `json:"invitationCode" binding:"required"`
}

type verifyResponse struct {
	InvitationID   string `json:"invitationId"`
	FromUserID     string `json:"fromUserId"`
	FromUserName   string `json:"fromUserName"`
	FromUserEmail  string `json:"fromUserEmail"`
	FromUserAvatar string `json:"fromUserAvatar"`
}

func (h *Handlers) verifyInvitation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	req := &verifyRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		countOperation(opVerifyInvitation, errBadRequest)
		c.String(http.StatusBadRequest, "Missing invitation code")
		return
	}

	attempts, ok := h.limiter.Acquire(userID)
	if !ok {
		countOperation(opVerifyInvitation, errLimited)
		c.String(http.StatusTooManyRequests, "Too many attempts, please try again later")
		return
	}

	if !linkage.ValidCodeFormat(req.InvitationCode) {
		h.failedGuess(c, userID, attempts, "malformed_invitation_code")
		countOperation(opVerifyInvitation, linkage.ErrInvalidCode)
		status, msg := statusFor(linkage.ErrInvalidCode)
		c.String(status, msg)
		return
	}

	inviter, err := h.service.VerifyInvitation(c.Request.Context(), req.InvitationCode, userID)
	if err != nil {
		if errors.Is(err, linkage.ErrInvalidCode) {
			h.failedGuess(c, userID, attempts, "unknown_invitation_code")
		} else {
			h.limiter.Release(userID)
		}
		countOperation(opVerifyInvitation, err)
		status, msg := statusFor(err)
		c.String(status, msg)
		return
	}

	h.limiter.Release(userID)
	countOperation(opVerifyInvitation, nil)
	c.JSON(http.StatusOK, &verifyResponse{
		InvitationID:   inviter.InvitationID,
		FromUserID:     inviter.FromUserID,
		FromUserName:   inviter.Name,
		FromUserEmail:  inviter.Email,
		FromUserAvatar: inviter.AvatarURL,
	})
}

// failedGuess keeps the attempt counted against the caller and reports it to
// the firewall, codes are short enough to be brute forced.
func (h *Handlers) failedGuess(c *gin.Context, userID string, n int, reason string) {
	if n == 1 || n%5 == 0 {
		logger.Warn().Str("user_id", userID).Int("failures", n).Msg("Failed invitation code verification")
	}
	firewall.Report(c, reason)
}

type connectRequest struct {
	InvitationID string `json:"invitationId" binding:"required"`
	FromUserID   string `json:"fromUserId" binding:"required"`
}

type connectResponse struct {
	CoupleID string `json:"coupleId"`
}

func (h *Handlers) connect(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	req := &connectRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		countOperation(opCreateCouple, errBadRequest)
		c.String(http.StatusBadRequest, "Missing required parameters")
		return
	}

	coupleID, err := h.service.CreateCouple(c.Request.Context(), req.InvitationID, req.FromUserID, userID)
	if err != nil {
		countOperation(opCreateCouple, err)
		status, msg := statusFor(err)
		c.String(status, msg)
		return
	}

	countOperation(opCreateCouple, nil)
	c.JSON(http.StatusOK, &connectResponse{CoupleID: coupleID})
}

type coupleResponse struct {
	Linked        bool       `json:"linked"`
	CoupleID      string     `json:"coupleId,omitempty"`
	PartnerID     string     `json:"partnerId,omitempty"`
	PartnerName   string     `json:"partnerName,omitempty"`
	PartnerEmail  string     `json:"partnerEmail,omitempty"`
	PartnerAvatar string     `json:"partnerAvatar,omitempty"`
	LinkedSince   *time.Time `json:"linkedSince,omitempty"`
}

func (h *Handlers) getCouple(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	view, err := h.service.GetCouple(c.Request.Context(), userID)
	if err != nil {
		countOperation(opGetCouple, err)
		status, msg := statusFor(err)
		c.String(status, msg)
		return
	}

	countOperation(opGetCouple, nil)
	if view == nil {
		c.JSON(http.StatusOK, &coupleResponse{Linked: false})
		return
	}

	c.JSON(http.StatusOK, &coupleResponse{
		Linked:        true,
		CoupleID:      view.CoupleID,
		PartnerID:     view.PartnerID,
		PartnerName:   view.PartnerName,
		PartnerEmail:  view.PartnerEmail,
		PartnerAvatar: view.PartnerAvatarURL,
		LinkedSince:   &view.LinkedSince,
	})
}
