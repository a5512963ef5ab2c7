package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/charleshuang3/partnerlink/internal/gormw"
	"github.com/charleshuang3/partnerlink/internal/handlers/firewall"
	"github.com/charleshuang3/partnerlink/internal/handlers/middleware"
	"github.com/charleshuang3/partnerlink/internal/linkage"
)

var (
	logger = log.With().Str("component", "config").Logger()
)

const (
	defaultMetricsPath = "/metrics"
)

type Config struct {
	Port uint `yaml:"port" env:"PARTNERLINK_PORT"`

	// AdminPort serves the firewall admin handlers, 0 disables them.
	AdminPort uint `yaml:"admin_port"`

	GinMode  string                  `yaml:"gin_mode" env:"PARTNERLINK_GIN_MODE"`
	DB       gormw.Config            `yaml:"db"`
	Auth     middleware.AuthConfig   `yaml:"auth"`
	Partner  linkage.Config          `yaml:"partner"`
	Metrics  MetricsConfig           `yaml:"metrics"`
	Firewall firewall.FirewallConfig `yaml:"firewall"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoadConfig reads the yaml file at path, then applies environment overrides.
func LoadConfig(path string) *Config {
	cfg := &Config{}

	file, err := os.Open(path)
	if err != nil {
		logger.Fatal().Err(err).Msgf("failed to open config file: %s", path)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to decode config file")
	}

	if err := env.Parse(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse environment overrides")
	}

	cfg.validate()

	return cfg
}

func (c *Config) validate() {
	if c.Port == 0 {
		logger.Fatal().Msg("Port is missing")
	}

	if c.GinMode == "" {
		logger.Fatal().Msg("GinMode is missing")
	}

	if c.AdminPort != 0 && c.AdminPort == c.Port {
		logger.Fatal().Msg("AdminPort must differ from Port")
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}

	c.Auth.Validate()
	c.Partner.ApplyDefaults()
	c.Firewall.Validate()
}
