package logger

/*
	Traffic Log

	This script log the traffic of HTTP requests
*/
import (
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"imuslab.com/edgeproxy/mod/netutils"
)

// LogHTTPRequest write one traffic line for a finished request.
// listener is "http" or "https", reqclass is the matched route class
func (l *Logger) LogHTTPRequest(r *http.Request, listener string, reqclass string, statusCode int, written int64, duration time.Duration) {
	if !l.TrafficEnabled {
		return
	}
	l.ValidateAndUpdateLogFilepath()
	clientIP := netutils.GetRequesterIP(r)
	l.traffic.WithFields(logrus.Fields{
		fieldTitle:   "router:" + listener + ":" + reqclass,
		fieldTraffic: true,
		"client":     clientIP,
		"method":     r.Method,
		"uri":        r.RequestURI,
		"status":     statusCode,
		"bytes":      written,
		"duration":   duration.String(),
	}).Info("[client " + clientIP + "] [useragent " + r.UserAgent() + "] " + r.Method + " " + r.RequestURI + " " + strconv.Itoa(statusCode) + " " + strconv.FormatInt(written, 10) + "B " + duration.Round(time.Microsecond).String())
}
