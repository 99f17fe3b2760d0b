package dynamicproxy

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
	"golang.org/x/net/http2"
	"imuslab.com/edgeproxy/mod/dynamicproxy/dpcore"
	"imuslab.com/edgeproxy/mod/websocketproxy"
)

/*
	EdgeProxy Dynamic Proxy

	Two public listeners in front of a single origin. The plaintext
	listener only serves ACME challenges and redirects, the encrypted
	listener forwards everything to the origin
*/

func NewDynamicProxy(option RouterOption) (*Router, error) {
	if option.Origin == nil {
		return nil, errors.New("origin not set")
	}
	if option.HTTPSPort == 0 {
		option.HTTPSPort = 443
	}

	proxy := dpcore.NewDynamicProxyCore(option.Origin, &dpcore.DpcoreOptions{
		DialTimeout:     option.DialTimeout,
		ResponseTimeout: option.ResponseTimeout,
		FlushInterval:   option.FlushInterval,
	})
	proxy.Logger = option.Logger

	wsProxy := websocketproxy.NewProxy(option.Origin, websocketproxy.Options{
		DialTimeout:      option.DialTimeout,
		HandshakeTimeout: option.ResponseTimeout,
		SkipOriginCheck:  true, //Origin checks belong to the origin application
		Logger:           option.Logger,
	})

	thisRouter := Router{
		Option:      &option,
		Running:     false,
		proxy:       proxy,
		wsProxy:     wsProxy,
		defaultRule: catchAllRule(),
	}
	for _, rr := range DefaultRoutingRules() {
		if err := thisRouter.AddRoutingRules(rr); err != nil {
			return nil, err
		}
	}

	var encrypted http.Handler = &ProxyHandler{Parent: &thisRouter}
	if option.Compressor != nil {
		encrypted = option.Compressor.Handler(encrypted)
	}
	thisRouter.mux = thisRouter.captureTraffic("https", thisRouter.classifyEncrypted, encrypted)
	thisRouter.plainMux = thisRouter.captureTraffic("http", classifyPlain, &PlainHandler{Parent: &thisRouter})

	return &thisRouter, nil
}

// Handler return the handler of the encrypted listener
func (router *Router) Handler() http.Handler {
	return router.mux
}

// PlainHandler return the handler of the plaintext listener
func (router *Router) PlainHandler() http.Handler {
	return router.plainMux
}

func (router *Router) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if router.Option.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	return ln, nil
}

// Start the encrypted and plaintext listeners
func (router *Router) StartProxyService() error {
	router.mu.Lock()
	defer router.mu.Unlock()
	if router.Running {
		return errors.New("edge proxy already running")
	}
	if router.Option.TlsManager == nil {
		return errors.New("tls manager not set")
	}

	httpsServer := &http.Server{
		Handler:           router.mux,
		TLSConfig:         router.Option.TlsManager.TLSConfig(router.Option.TLSMinVersion),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := http2.ConfigureServer(httpsServer, &http2.Server{IdleTimeout: 120 * time.Second}); err != nil {
		return err
	}

	//Add a plaintext listener for ACME challenge and https redirect
	plainServer := &http.Server{
		Handler:      router.plainMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	if router.Option.Logger != nil {
		httpsServer.ErrorLog = router.Option.Logger.StdLogger("https")
		plainServer.ErrorLog = router.Option.Logger.StdLogger("http")
	}

	ln, err := router.listen(router.Option.HTTPSListen)
	if err != nil {
		return err
	}
	tlsListener := tls.NewListener(ln, httpsServer.TLSConfig)

	plainListener, err := router.listen(router.Option.HTTPListen)
	if err != nil {
		tlsListener.Close()
		return err
	}

	router.server = httpsServer
	router.tlsListener = tlsListener
	router.plainServer = plainServer
	router.plainListener = plainListener
	router.Running = true

	go router.serve("https", httpsServer, tlsListener)
	go router.serve("http", plainServer, plainListener)
	router.logf("Edge proxy started, listening on "+tlsListener.Addr().String()+" (TLS) and "+plainListener.Addr().String(), nil)
	for i, rr := range router.GetAllRoutingRules() {
		status := "enabled"
		if !rr.Enabled {
			status = "disabled"
		}
		router.logf("Route #"+strconv.Itoa(i+1)+" "+rr.ID+" -> "+string(rr.Class)+" ("+status+")", nil)
	}
	return nil
}

func (router *Router) serve(name string, srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		router.logf("The "+name+" listener stopped unexpectedly", err)
	}
}

// Stop both listeners, waiting up to 5 seconds for active requests
func (router *Router) StopProxyService() error {
	router.mu.Lock()
	defer router.mu.Unlock()
	if !router.Running {
		return errors.New("edge proxy already stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := errors.Join(
		router.server.Shutdown(ctx),
		router.plainServer.Shutdown(ctx),
	)

	//Discard the server objects
	router.server = nil
	router.tlsListener = nil
	router.plainServer = nil
	router.plainListener = nil
	router.Running = false
	router.logf("Edge proxy stopped", nil)
	return err
}

// Restart the current router if it is running.
// Startup the server if it is not running initially
func (router *Router) Restart() error {
	if router.Running {
		if err := router.StopProxyService(); err != nil {
			return err
		}
	}
	return router.StartProxyService()
}

// HTTPSAddr return the bound address of the encrypted listener
func (router *Router) HTTPSAddr() string {
	router.mu.Lock()
	defer router.mu.Unlock()
	if router.tlsListener == nil {
		return ""
	}
	return router.tlsListener.Addr().String()
}

// HTTPAddr return the bound address of the plaintext listener
func (router *Router) HTTPAddr() string {
	router.mu.Lock()
	defer router.mu.Unlock()
	if router.plainListener == nil {
		return ""
	}
	return router.plainListener.Addr().String()
}

func (router *Router) logf(message string, err error) {
	if router.Option.Logger != nil {
		router.Option.Logger.PrintAndLog("dynamicproxy", message, err)
	}
}
