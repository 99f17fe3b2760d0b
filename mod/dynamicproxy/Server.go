package dynamicproxy

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"imuslab.com/edgeproxy/mod/acme"
	"imuslab.com/edgeproxy/mod/dynamicproxy/compress"
	"imuslab.com/edgeproxy/mod/netutils"
)

/*
	Server.go

	Main servers of the edge proxy

	Plaintext listener
	- ACME challenge (/.well-known/acme-challenge/)
	- Everything else is redirected to https

	Encrypted listener
	- Route rule lookup (static / markup / dynamic)
	- WebSocket upgrade relay
	- Origin proxy
*/

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rule := h.Parent.GetMatchingRoutingRule(r)
	downstreamHeaders := DownstreamHeaders(rule.Class, time.Now())

	if compress.IsWebSocketUpgrade(r) {
		h.websocketRequest(w, r, downstreamHeaders)
		return
	}

	h.hostRequest(w, r, downstreamHeaders)
}

func (h *PlainHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if acme.IsChallengeRequest(r) {
		if h.Parent.Option.ChallengeHandler == nil {
			http.NotFound(w, r)
			return
		}
		h.Parent.Option.ChallengeHandler.ServeHTTP(w, r)
		return
	}

	http.Redirect(w, r, h.Parent.httpsRedirectTarget(r), http.StatusMovedPermanently)
}

// https://<host>[:port]<request-uri> for a plaintext request
func (router *Router) httpsRedirectTarget(r *http.Request) string {
	host := netutils.HostnameOnly(r.Host)
	if host == "" {
		host = router.Option.Hostname
	}
	if strings.Contains(host, ":") {
		//IPv6 literal
		host = "[" + host + "]"
	}

	target := "https://" + host
	if router.Option.HTTPSPort != 443 {
		target += ":" + strconv.Itoa(router.Option.HTTPSPort)
	}
	return target + r.URL.RequestURI()
}

// Route class of an encrypted request, used for stats and traffic log
func (router *Router) classifyEncrypted(r *http.Request) string {
	return string(router.GetMatchingRoutingRule(r).Class)
}

func classifyPlain(r *http.Request) string {
	if acme.IsChallengeRequest(r) {
		return "acme"
	}
	return "redirect"
}

// requestHostOrFallback keep the Host header verbatim, the configured
// hostname is only used when the client sent none
func (router *Router) requestHostOrFallback(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}
	if router.Option.HTTPSPort != 443 {
		return net.JoinHostPort(router.Option.Hostname, strconv.Itoa(router.Option.HTTPSPort))
	}
	return router.Option.Hostname
}
