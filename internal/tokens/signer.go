// Package tokens signs bearer tokens shaped like the identity provider's
// access tokens. Used by cmd/devtoken and tests, the server only verifies.
package tokens

import (
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

type Signer struct {
	privateKey jwk.Key
	issuer     string
	audience   string
}

func NewSigner(privateKeyPEM string, issuer, audience string) (*Signer, error) {
	priv, err := jwk.ParseKey([]byte(privateKeyPEM), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Signer{
		privateKey: priv,
		issuer:     issuer,
		audience:   audience,
	}, nil
}

// Claims of a token. Zero values are left out.
type Claims struct {
	Subject string
	Scopes  []string
	Name    string
	Email   string
	Picture string

	IssuedAt time.Time
	TTL      time.Duration
}

func (s *Signer) Sign(c *Claims) (string, error) {
	issuedAt := c.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	builder := jwt.NewBuilder().
		Issuer(s.issuer).
		IssuedAt(issuedAt).
		Expiration(issuedAt.Add(c.TTL)).
		Audience([]string{s.audience}).
		Subject(c.Subject)

	if len(c.Scopes) > 0 {
		builder.Claim("scope", strings.Join(c.Scopes, " "))
	}
	if c.Name != "" {
		builder.Claim("name", c.Name)
	}
	if c.Email != "" {
		builder.Claim("email", c.Email)
	}
	if c.Picture != "" {
		builder.Claim("picture", c.Picture)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token claims: %v", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), s.privateKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}

	return string(signed), nil
}
