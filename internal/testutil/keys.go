// Package testutil generates signing keys and bearer tokens for tests.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/require"

	"github.com/charleshuang3/partnerlink/internal/tokens"
)

const (
	Issuer   = "https://auth.test"
	Audience = "partnerlink"
)

type KeyPair struct {
	PrivateKeyPEM string
	PublicKeyPEM  string
}

func NewKeyPair(t *testing.T) *KeyPair {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	priv, err := jwk.Import(raw)
	require.NoError(t, err)
	privPem, err := jwk.Pem(priv)
	require.NoError(t, err)

	pub, err := priv.PublicKey()
	require.NoError(t, err)
	pubPem, err := jwk.Pem(pub)
	require.NoError(t, err)

	return &KeyPair{
		PrivateKeyPEM: string(privPem),
		PublicKeyPEM:  string(pubPem),
	}
}

// Token returns a valid token for subject signed with kp.
func (kp *KeyPair) Token(t *testing.T, subject string, scopes ...string) string {
	t.Helper()
	return kp.SignClaims(t, &tokens.Claims{
		Subject: subject,
		Scopes:  scopes,
		TTL:     time.Hour,
	})
}

func (kp *KeyPair) SignClaims(t *testing.T, c *tokens.Claims) string {
	t.Helper()

	signer, err := tokens.NewSigner(kp.PrivateKeyPEM, Issuer, Audience)
	require.NoError(t, err)

	signed, err := signer.Sign(c)
	require.NoError(t, err)
	return signed
}
