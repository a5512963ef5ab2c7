package middleware

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-set/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/partnerlink/internal/handlers/firewall"
	"github.com/charleshuang3/partnerlink/internal/models"
)

var (
	logger = log.With().Str("component", "auth").Logger()
)

const (
	keyUser = "AUTH_USER"
)

type AuthConfig struct {
	// Issuer of the access tokens, the identity provider's url.
	Issuer string `yaml:"issuer"`

	// Audience expected in the access tokens, usually the client id of this app.
	Audience string `yaml:"audience"`

	// PublicKeyPEM verifies token signatures. If empty, keys are discovered
	// from the issuer's /.well-known/openid-configuration.
	PublicKeyPEM string `yaml:"public_key_pem"`

	RequiredScopes []string `yaml:"required_scopes"`

	// SyncProfile stores name, email and picture claims as the user's profile.
	SyncProfile bool `yaml:"sync_profile"`
}

func (c *AuthConfig) Validate() {
	if c.Issuer == "" {
		logger.Fatal().Msg("AuthConfig: Issuer is missing")
	}
	if c.Audience == "" {
		logger.Fatal().Msg("AuthConfig: Audience is missing")
	}
}

// User is the authenticated caller.
type User struct {
	ID      string
	Name    string
	Email   string
	Picture string
	Scopes  []string
}

type tokenClaims struct {
	Scope   string `json:"scope"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

type ProfileSyncer interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
}

type Authenticator struct {
	config   *AuthConfig
	verifier *oidc.IDTokenVerifier
	profiles ProfileSyncer
}

func NewAuthenticator(ctx context.Context, config *AuthConfig, profiles ProfileSyncer) (*Authenticator, error) {
	oidcConfig := &oidc.Config{ClientID: config.Audience}

	var verifier *oidc.IDTokenVerifier
	if config.PublicKeyPEM != "" {
		pub, err := parsePublicKey(config.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{pub}}
		verifier = oidc.NewVerifier(config.Issuer, keySet, oidcConfig)
	} else {
		provider, err := oidc.NewProvider(ctx, config.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to discover identity provider: %w", err)
		}
		verifier = provider.Verifier(oidcConfig)
	}

	return &Authenticator{
		config:   config,
		verifier: verifier,
		profiles: profiles,
	}, nil
}

// parsePublicKey accepts a public or a private key in PEM format.
func parsePublicKey(pemKey string) (crypto.PublicKey, error) {
	key, err := jwk.ParseKey([]byte(pemKey), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	raw, err := jwk.PublicRawKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get raw public key: %w", err)
	}
	return raw, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller for CurrentUser.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		rawToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || rawToken == "" {
			c.String(http.StatusUnauthorized, "Missing bearer token")
			c.Abort()
			return
		}

		token, err := a.verifier.Verify(c.Request.Context(), rawToken)
		if err != nil {
			var expired *oidc.TokenExpiredError
			if errors.As(err, &expired) {
				c.String(http.StatusUnauthorized, "Token expired")
				c.Abort()
				return
			}
			// Tokens from the identity provider never fail verification
			// unless forged or sent to the wrong service.
			firewall.Report(c, "invalid_bearer_token")
			c.String(http.StatusUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		claims := &tokenClaims{}
		if err := token.Claims(claims); err != nil {
			logger.Warn().Err(err).Msg("Failed to decode token claims")
			c.String(http.StatusUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		scopes := strings.Fields(claims.Scope)
		if len(a.config.RequiredScopes) > 0 && !set.From(scopes).ContainsSlice(a.config.RequiredScopes) {
			c.String(http.StatusUnauthorized, "Insufficient scope")
			c.Abort()
			return
		}

		user := &User{
			ID:      token.Subject,
			Name:    claims.Name,
			Email:   claims.Email,
			Picture: claims.Picture,
			Scopes:  scopes,
		}

		if a.config.SyncProfile {
			a.syncProfile(c.Request.Context(), user)
		}

		c.Set(keyUser, user)
		c.Next()
	}
}

// syncProfile is best effort, a failure only leaves the profile stale.
func (a *Authenticator) syncProfile(ctx context.Context, user *User) {
	if user.Name == "" && user.Email == "" && user.Picture == "" {
		return
	}

	email := user.Email
	if email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			logger.Warn().Str("user_id", user.ID).Msg("Ignoring invalid email claim")
			email = ""
		}
	}

	want := &models.Profile{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     email,
		AvatarURL: user.Picture,
	}

	current, err := a.profiles.Get(ctx, user.ID)
	if err == nil &&
		current.Name == want.Name &&
		current.Email == want.Email &&
		current.AvatarURL == want.AvatarURL {
		return
	}

	if err := a.profiles.Upsert(ctx, want); err != nil {
		logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to sync profile")
	}
}

// CurrentUser returns the caller stored by Authenticator.Middleware.
func CurrentUser(c *gin.Context) (*User, bool) {
	v, ok := c.Get(keyUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*User)
	return user, ok
}

// SetCurrentUser stores user as the caller.
func SetCurrentUser(c *gin.Context, user *User) {
	c.Set(keyUser, user)
}
