package dpcore

import (
	"net"
	"net/http"
	"strings"
)

/*
	Header.go

	This script handles headers rewrite and remove
	in dpcore.
*/

// removeHeaders Remove hop-by-hop headers listed in the "Connection" header, Remove hop-by-hop headers.
func removeHeaders(header http.Header) {
	// Remove hop-by-hop headers listed in the "Connection" header.
	for _, c := range header.Values("Connection") {
		for _, f := range strings.Split(c, ",") {
			if f = strings.TrimSpace(f); f != "" {
				header.Del(f)
			}
		}
	}

	// Remove hop-by-hop headers
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

// rewriteUserAgent keep Go's default User-Agent off requests where the
// client did not send one
func rewriteUserAgent(header http.Header) {
	if _, ok := header["User-Agent"]; !ok {
		header.Set("User-Agent", "")
	}
}

// addXForwardedForHeader write the forwarding header set. X-Real-IP is always
// the connection peer, X-Forwarded-For keeps the prior chain
func addXForwardedForHeader(req *http.Request, rrr *ResponseRewriteRuleSet) {
	clientIP, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		clientIP = req.RemoteAddr
	}

	forwardedFor := clientIP
	// If we aren't the first proxy retain prior
	// X-Forwarded-For information as a comma+space
	// separated list and fold multiple headers into one.
	if prior, ok := req.Header["X-Forwarded-For"]; ok && len(prior) > 0 {
		forwardedFor = strings.Join(prior, ", ") + ", " + clientIP
	}
	req.Header.Set("X-Forwarded-For", forwardedFor)
	req.Header.Set("X-Real-Ip", clientIP)

	if rrr.UseTLS {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	req.Header.Set("X-Forwarded-Host", rrr.OriginalHost)
}

// injectUserDefinedHeaders inject the user headers from slice
// if a value is empty string, the key will be removed from header.
// if a key is empty string, the function will return immediately
func injectUserDefinedHeaders(header http.Header, userHeaders [][]string) {
	for _, userHeader := range userHeaders {
		if len(userHeader) < 2 || userHeader[0] == "" {
			//End of header slice
			return
		}
		headerKey := userHeader[0]
		headerValue := userHeader[1]
		if headerValue == "" {
			//Remove header from head
			header.Del(headerKey)
			continue
		}

		//Default: Set header value
		header.Del(headerKey) //Remove header if it already exists
		header.Set(headerKey, headerValue)
	}
}

// InjectHeaders apply a header set with the same override semantic used
// for proxied responses. For responses the proxy generates itself
func InjectHeaders(header http.Header, headers [][]string) {
	injectUserDefinedHeaders(header, headers)
}

// ForwardHeaders build the forwarding header set for requests relayed
// outside of ProxyHTTP, e.g. WebSocket upgrades
func ForwardHeaders(req *http.Request, rrr *ResponseRewriteRuleSet) http.Header {
	out := req.Clone(req.Context())
	removeHeaders(out.Header)
	addXForwardedForHeader(out, rrr)
	injectUserDefinedHeaders(out.Header, rrr.UpstreamHeaders)
	return out.Header
}
