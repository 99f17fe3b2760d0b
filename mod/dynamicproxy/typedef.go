package dynamicproxy

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"imuslab.com/edgeproxy/mod/dynamicproxy/compress"
	"imuslab.com/edgeproxy/mod/dynamicproxy/dpcore"
	"imuslab.com/edgeproxy/mod/info/logger"
	"imuslab.com/edgeproxy/mod/statistic"
	"imuslab.com/edgeproxy/mod/tlscert"
	"imuslab.com/edgeproxy/mod/websocketproxy"
)

type ProxyHandler struct {
	Parent *Router
}

type PlainHandler struct {
	Parent *Router
}

type RouterOption struct {
	HostUUID      string //The UUID of this node, use for the X-Forwarded-Server header
	Hostname      string //Public hostname, redirect target when the request carries no Host
	HTTPListen    string //Plaintext listener address, e.g. ":80"
	HTTPSListen   string //Encrypted listener address, e.g. ":443"
	HTTPSPort     int    //Public HTTPS port, appended to redirects when not 443
	ProxyProtocol bool   //Decode PROXY protocol headers on both listeners
	TLSMinVersion uint16

	Origin          *url.URL //Plain HTTP origin, e.g. http://127.0.0.1:5000
	DialTimeout     time.Duration
	ResponseTimeout time.Duration
	FlushInterval   time.Duration

	TlsManager         *tlscert.Manager
	ChallengeHandler   http.Handler         //Serve /.well-known/acme-challenge/ on the plaintext listener
	Compressor         *compress.Compressor //nil to disable gzip
	StatisticCollector *statistic.Collector //nil to disable statistics
	Logger             *logger.Logger
}

type Router struct {
	Option  *RouterOption
	Running bool

	proxy        *dpcore.ReverseProxy
	wsProxy      *websocketproxy.WebsocketProxy
	routingRules []*RoutingRule
	defaultRule  *RoutingRule
	mux          http.Handler //Encrypted listener handler
	plainMux     http.Handler //Plaintext listener handler

	mu            sync.Mutex
	server        *http.Server
	tlsListener   net.Listener
	plainServer   *http.Server
	plainListener net.Listener
}
