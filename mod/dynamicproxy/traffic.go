package dynamicproxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"imuslab.com/edgeproxy/mod/dynamicproxy/compress"
	"imuslab.com/edgeproxy/mod/netutils"
	"imuslab.com/edgeproxy/mod/statistic"
)

// StatusClientClosedRequest is recorded when the client left before
// any response was written
const StatusClientClosedRequest = 499

type requestResult struct {
	Listener   string
	Class      string
	StatusCode int
	Written    int64
	Duration   time.Duration
}

func (ri requestResult) toRequestInfo(r *http.Request) statistic.RequestInfo {
	return statistic.RequestInfo{
		IpAddr:     netutils.GetRequesterIP(r),
		Listener:   ri.Listener,
		Class:      ri.Class,
		StatusCode: ri.StatusCode,
		Written:    ri.Written,
		Duration:   ri.Duration,
	}
}

// captureTraffic measure the response actually sent to the client,
// after compression, and hand it to the statistic and traffic log
func (router *Router) captureTraffic(listener string, classify func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := classify(r)
		m := httpsnoop.CaptureMetrics(next, w, r)

		statusCode := m.Code
		if m.Written == 0 && statusCode == http.StatusOK {
			if compress.IsWebSocketUpgrade(r) {
				//Hijacked by the upgrader, the 101 never pass through the writer
				statusCode = http.StatusSwitchingProtocols
			} else if errors.Is(r.Context().Err(), context.Canceled) {
				statusCode = StatusClientClosedRequest
			}
		}

		router.logRequest(r, requestResult{
			Listener:   listener,
			Class:      class,
			StatusCode: statusCode,
			Written:    m.Written,
			Duration:   m.Duration,
		})
	})
}
