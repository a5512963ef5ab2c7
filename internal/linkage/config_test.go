package linkage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults()

	assert.Equal(t, &Config{
		InvitationTTL:   24 * time.Hour,
		MaxCodeAttempts: 5,
		VerifyAttempts:  10,
		VerifyWindow:    15 * time.Minute,
		SweepInterval:   10 * time.Minute,
		Retention:       30 * 24 * time.Hour,
	}, c)

	c = &Config{InvitationTTL: time.Hour, MaxCodeAttempts: 2}
	c.ApplyDefaults()
	assert.Equal(t, time.Hour, c.InvitationTTL)
	assert.Equal(t, 2, c.MaxCodeAttempts)
}
