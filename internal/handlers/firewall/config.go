package firewall

import (
	"slices"
)

type ForgivableError struct {
	DurationInMinute uint `yaml:"duration_in_minute"`
	Count            uint `yaml:"count"`
}

// FirewallConfig leaves the firewall off when Provider is empty. Provider
// "none" keeps error accounting and logging without blocking on a device.
type FirewallConfig struct {
	Provider         string          `yaml:"provider"`
	ProviderIP       string          `yaml:"provider_ip"`
	ProviderUser     string          `yaml:"provider_user"`
	ProviderPassword string          `yaml:"provider_password"`
	ListUUID         string          `yaml:"list_uuid"`
	BanMinutes       uint            `yaml:"ban_minutes"`
	Whitelist        []string        `yaml:"whitelist"`
	Forgivable       ForgivableError `yaml:"forgivable"`

	CityDBFile        string `yaml:"city_db_file"`
	UpdatedCityDBFile string `yaml:"updated_city_db_file"`
	ASNDBFile         string `yaml:"asn_db_file"`
	UpdatedASNDBFile  string `yaml:"updated_asn_db_file"`

	GoogleKeyFile   string `yaml:"google_key_file"`
	GoogleProjectID string `yaml:"google_project_id"`
}

var (
	supportedProviders = []string{"none", "ros", "opn", "pf"}
)

const (
	defaultBanMinutes       = 10
	defaultDurationInMinute = 10
	defaultCount            = 3
)

func (c *FirewallConfig) Enabled() bool {
	return c.Provider != ""
}

func (c *FirewallConfig) Validate() {
	if !c.Enabled() {
		return
	}

	if !slices.Contains(supportedProviders, c.Provider) {
		logger.Fatal().Msgf("Firewall: provider %s is not supported", c.Provider)
	}

	if c.Provider != "none" {
		required := map[string]string{
			"ProviderIP":       c.ProviderIP,
			"ProviderUser":     c.ProviderUser,
			"ProviderPassword": c.ProviderPassword,
		}
		if c.Provider == "opn" {
			required["ListUUID"] = c.ListUUID
		}
		for name, v := range required {
			if v == "" {
				logger.Fatal().Msgf("Firewall: %s is missing", name)
			}
		}
	}

	for name, v := range map[string]string{
		"CityDBFile":        c.CityDBFile,
		"UpdatedCityDBFile": c.UpdatedCityDBFile,
		"ASNDBFile":         c.ASNDBFile,
		"UpdatedASNDBFile":  c.UpdatedASNDBFile,
	} {
		if v == "" {
			logger.Fatal().Msgf("Firewall: %s is missing", name)
		}
	}

	c.applyDefault()
}

func (c *FirewallConfig) applyDefault() {
	if c.BanMinutes == 0 {
		c.BanMinutes = defaultBanMinutes
	}

	if c.Forgivable.DurationInMinute == 0 {
		c.Forgivable.DurationInMinute = defaultDurationInMinute
	}

	if c.Forgivable.Count == 0 {
		c.Forgivable.Count = defaultCount
	}
}
