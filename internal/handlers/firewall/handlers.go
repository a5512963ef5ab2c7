package firewall

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHandlers adds the admin endpoints. They must only be reachable from
// the admin listener.
func (f *Firewall) RegisterHandlers(rg *gin.RouterGroup) {
	rg.GET("/ban", f.ban)
	rg.GET("/logerr", f.logError)
}

type ipReportRequest struct {
	IP     string `form:"ip" binding:"required,ip"`
	Reason string `form:"reason" binding:"required"`
}

type banRequest struct {
	ipReportRequest

	// Minutes overrides the configured ban duration.
	Minutes uint `form:"minutes"`
}

func (f *Firewall) ban(c *gin.Context) {
	req := &banRequest{}
	if err := c.ShouldBind(req); err != nil {
		c.String(http.StatusBadRequest, "Missing or invalid parameters")
		return
	}

	minutes := f.conf.BanMinutes
	if req.Minutes > 0 {
		minutes = req.Minutes
	}

	logger.Info().Str("ip", req.IP).Uint("minutes", minutes).Str("reason", req.Reason).Msg("Manual ban")
	f.fw.BanIP(req.IP, int(minutes), req.Reason)
}

func (f *Firewall) logError(c *gin.Context) {
	req := &ipReportRequest{}
	if err := c.ShouldBind(req); err != nil {
		c.String(http.StatusBadRequest, "Missing or invalid parameters")
		return
	}

	f.fw.LogIPError(req.IP, req.Reason)
}
