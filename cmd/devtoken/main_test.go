package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleshuang3/partnerlink/internal/testutil"
)

func TestPublicKeyPEM(t *testing.T) {
	keys := testutil.NewKeyPair(t)

	pub, err := publicKeyPEM([]byte(keys.PrivateKeyPEM))
	require.NoError(t, err)
	assert.Equal(t, keys.PublicKeyPEM, pub)

	_, err = publicKeyPEM([]byte("garbage"))
	assert.Error(t, err)
}
