package pongotel

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/castaneai/pongcoord"
)

const (
	scopeName = "github.com/castaneai/pongcoord"
)

const (
	backendKey = attribute.Key("backend")
	statusKey  = attribute.Key("status")
)

var (
	latencyHistogramBuckets = []float64{
		.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5,
	}
)

var statusOK = statusKey.String("ok")

func errorStatusAttr(err error) attribute.KeyValue {
	for _, status := range []pongcoord.ErrorStatus{
		pongcoord.ErrorStatusTransport,
		pongcoord.ErrorStatusDecode,
		pongcoord.ErrorStatusNameResolution,
		pongcoord.ErrorStatusProtocol,
		pongcoord.ErrorStatusNotEnoughClients,
		pongcoord.ErrorStatusInvalidRequest,
	} {
		if pongcoord.ErrorHasStatus(err, status) {
			return statusKey.String(string(status))
		}
	}
	return statusKey.String(string(pongcoord.ErrorStatusUnknown))
}
