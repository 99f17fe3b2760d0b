package dynamicproxy

import "time"

const ContentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'; connect-src 'self'"

// SecurityHeaders are set on every response of the encrypted listener
var SecurityHeaders = [][]string{
	{"X-Frame-Options", "SAMEORIGIN"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Referrer-Policy", "no-referrer-when-downgrade"},
	{"Content-Security-Policy", ContentSecurityPolicy},
}

// DownstreamHeaders build the full augmentation set of a response
// in the given class. These values replace anything the origin sent
func DownstreamHeaders(class CacheClass, now time.Time) [][]string {
	headers := make([][]string, 0, len(SecurityHeaders)+2)
	headers = append(headers, SecurityHeaders...)
	return append(headers, CacheHeaders(class, now)...)
}

// Headers added on the request toward the origin
func (router *Router) upstreamHeaders() [][]string {
	return [][]string{
		{"X-Forwarded-Server", "edgeproxy-" + router.Option.HostUUID},
	}
}
