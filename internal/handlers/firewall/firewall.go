// Package firewall counts suspicious requests per client ip and bans
// repeat offenders on the network firewall.
package firewall

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	fw "github.com/charleshuang3/firewall"
	"github.com/charleshuang3/firewall/gcplog"
	"github.com/charleshuang3/firewall/ipgeo"
	"github.com/charleshuang3/firewall/opn"
	"github.com/charleshuang3/firewall/pf"
	"github.com/charleshuang3/firewall/ros"
	"github.com/charleshuang3/firewall/zerolog"
)

var (
	logger = log.With().Str("component", "firewall").Logger()
)

const (
	// KeyHackingError in the gin context holds why the request looks like an
	// attack. Handlers set it through Report.
	KeyHackingError = "HACKING_ERROR"

	appName = "partnerlink"
)

type Firewall struct {
	fw   *fw.Firewall
	conf *FirewallConfig
}

func New(conf *FirewallConfig) *Firewall {
	var provider fw.IFirewall
	switch conf.Provider {
	case "ros":
		provider = ros.New(conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword)
	case "pf":
		provider = pf.New(conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword)
	case "opn":
		provider = opn.New(conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword, conf.ListUUID)
	default:
		// nil provider counts errors without blocking.
	}

	var fwlogger fw.ILogger
	if conf.GoogleKeyFile != "" {
		var err error
		fwlogger, err = gcplog.New(conf.GoogleKeyFile, conf.GoogleProjectID, appName)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create gcp logger")
		}
	} else {
		fwlogger = zerolog.New(logger, zlog.InfoLevel, appName)
	}

	mm, err := ipgeo.NewAutoUpdateMMIPGeo(
		conf.CityDBFile,
		conf.UpdatedCityDBFile,
		conf.ASNDBFile,
		conf.UpdatedASNDBFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load ip geo databases")
	}

	return &Firewall{
		fw: fw.New(
			conf.Whitelist,
			provider,
			fwlogger,
			mm,
			fw.ForgivableError{
				Duration:    time.Duration(conf.Forgivable.DurationInMinute) * time.Minute,
				Count:       int(conf.Forgivable.Count),
				BanInMinute: int(conf.BanMinutes),
			}),
		conf: conf,
	}
}

// Report marks the request as suspicious. The middleware counts it against
// the client ip once the handler returns.
func Report(c *gin.Context, reason string) {
	c.Set(KeyHackingError, reason)
}

func (f *Firewall) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if reason, ok := c.Get(KeyHackingError); ok {
			f.fw.LogIPError(c.ClientIP(), reason.(string))
			return
		}

		// Routed handlers answer 404 for missing records, only probes for
		// undefined urls count.
		if c.FullPath() == "" && c.Writer.Status() == http.StatusNotFound {
			f.fw.LogIPError(c.ClientIP(), "undefined_url")
		}
	}
}
