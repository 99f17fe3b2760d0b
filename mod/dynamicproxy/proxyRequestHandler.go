package dynamicproxy

import (
	"net/http"

	"imuslab.com/edgeproxy/mod/dynamicproxy/dpcore"
	"imuslab.com/edgeproxy/mod/netutils"
)

func (router *Router) rewriteRuleSet(r *http.Request, downstreamHeaders [][]string) *dpcore.ResponseRewriteRuleSet {
	return &dpcore.ResponseRewriteRuleSet{
		ProxyDomain:       router.Option.Origin.Host,
		OriginalHost:      router.requestHostOrFallback(r),
		UseTLS:            true,
		UpstreamHeaders:   router.upstreamHeaders(),
		DownstreamHeaders: downstreamHeaders,
	}
}

// Handle host request
func (h *ProxyHandler) hostRequest(w http.ResponseWriter, r *http.Request, downstreamHeaders [][]string) {
	rrr := h.Parent.rewriteRuleSet(r, downstreamHeaders)
	err := h.Parent.proxy.ServeHTTP(w, r, rrr)
	if err != nil {
		h.Parent.handleProxyError(w, r, err, downstreamHeaders)
	}
}

// Handle websocket upgrade request
func (h *ProxyHandler) websocketRequest(w http.ResponseWriter, r *http.Request, downstreamHeaders [][]string) {
	rrr := h.Parent.rewriteRuleSet(r, downstreamHeaders)
	err := h.Parent.wsProxy.ServeWithRules(w, r, rrr)
	if err != nil {
		kind, _ := dpcore.ClassifyError(r.Context(), err)
		if kind != dpcore.ErrorKindClientGone && h.Parent.Option.StatisticCollector != nil {
			h.Parent.Option.StatisticCollector.RecordOriginError(string(kind))
		}
	}
}

// Write the error page of a failed origin request. No retry is attempted.
// Nothing is written when the client already went away
func (router *Router) handleProxyError(w http.ResponseWriter, r *http.Request, err error, downstreamHeaders [][]string) {
	kind, statusCode := dpcore.ClassifyError(r.Context(), err)
	if kind == dpcore.ErrorKindClientGone {
		if router.Option.Logger != nil {
			router.Option.Logger.Debug("proxy", "client "+netutils.GetRequesterIP(r)+" went away before "+r.RequestURI+" completed")
		}
		return
	}

	if router.Option.StatisticCollector != nil {
		router.Option.StatisticCollector.RecordOriginError(string(kind))
	}
	router.logf("Origin request "+r.Method+" "+r.RequestURI+" failed ("+string(kind)+")", err)

	dpcore.InjectHeaders(w.Header(), downstreamHeaders)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	w.Write(errorPage(statusCode))
}

func (router *Router) logRequest(r *http.Request, ri requestResult) {
	if router.Option.StatisticCollector != nil {
		router.Option.StatisticCollector.RecordRequest(ri.toRequestInfo(r))
	}
	if router.Option.Logger != nil {
		router.Option.Logger.LogHTTPRequest(r, ri.Listener, ri.Class, ri.StatusCode, ri.Written, ri.Duration)
	}
}
