package partner

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/charleshuang3/partnerlink/internal/linkage"
)

const (
	opCreateInvitation = "create_invitation"
	opVerifyInvitation = "verify_invitation"
	opCreateCouple     = "create_couple"
	opGetCouple        = "get_couple"
)

var (
	errBadRequest = errors.New("bad request")
	errLimited    = errors.New("rate limited")
)

var operations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "partnerlink",
		Subsystem: "partner",
		Name:      "operations_total",
		Help:      "Partner linkage operations by outcome.",
	},
	[]string{"op", "result"},
)

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errBadRequest):
		return "bad_request"
	case errors.Is(err, errLimited):
		return "limited"
	case errors.Is(err, linkage.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, linkage.ErrCodeExpired):
		return "code_expired"
	case errors.Is(err, linkage.ErrSelfLinkage):
		return "self_linkage"
	case errors.Is(err, linkage.ErrAlreadyLinked):
		return "already_linked"
	default:
		return "error"
	}
}

func countOperation(op string, err error) {
	operations.WithLabelValues(op, resultLabel(err)).Inc()
}
