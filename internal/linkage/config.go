package linkage

import "time"

const (
	defaultInvitationTTL   = 24 * time.Hour
	defaultMaxCodeAttempts = 5
	defaultVerifyAttempts  = 10
	defaultVerifyWindow    = 15 * time.Minute
	defaultSweepInterval   = 10 * time.Minute
	defaultRetention       = 30 * 24 * time.Hour
)

type Config struct {
	// InvitationTTL is how long a new invitation code stays valid.
	InvitationTTL time.Duration `yaml:"invitation_ttl"`

	// MaxCodeAttempts bounds retries when a new code collides with an
	// active one.
	MaxCodeAttempts int `yaml:"max_code_attempts"`

	// VerifyAttempts failed verifications within VerifyWindow lock the
	// caller out of verification until the window passes.
	VerifyAttempts int           `yaml:"verify_attempts"`
	VerifyWindow   time.Duration `yaml:"verify_window"`

	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Retention of expired and used invitations.
	Retention time.Duration `yaml:"retention"`
}

func (c *Config) ApplyDefaults() {
	if c.InvitationTTL <= 0 {
		c.InvitationTTL = defaultInvitationTTL
	}
	if c.MaxCodeAttempts <= 0 {
		c.MaxCodeAttempts = defaultMaxCodeAttempts
	}
	if c.VerifyAttempts <= 0 {
		c.VerifyAttempts = defaultVerifyAttempts
	}
	if c.VerifyWindow <= 0 {
		c.VerifyWindow = defaultVerifyWindow
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
}
