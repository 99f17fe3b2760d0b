// Package websocketproxy is a reverse proxy for WebSocket connections.
package websocketproxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"imuslab.com/edgeproxy/mod/dynamicproxy/dpcore"
	"imuslab.com/edgeproxy/mod/info/logger"
)

// WebsocketProxy is an HTTP Handler that takes an incoming WebSocket
// connection and proxies it to the origin.
type WebsocketProxy struct {
	// Backend returns the backend URL which the proxy uses to reverse proxy
	// the incoming WebSocket connection. Request is the initial incoming and
	// unmodified request.
	Backend func(*http.Request) *url.URL

	// Upgrader specifies the parameters for upgrading a incoming HTTP
	// connection to a WebSocket connection.
	Upgrader *websocket.Upgrader

	// Dialer contains options for connecting to the backend WebSocket server.
	Dialer *websocket.Dialer

	Options Options
}

// Additional options for websocket proxy runtime
type Options struct {
	DialTimeout      time.Duration  //TCP connect timeout toward the origin
	HandshakeTimeout time.Duration  //Time allowed for the origin to answer the upgrade
	SkipOriginCheck  bool           //Leave the Origin check to the origin application
	Logger           *logger.Logger //Logger, can be nil
}

// NewProxy returns a new Websocket reverse proxy that rewrites the
// URL's to the scheme, host and base path provider in target.
func NewProxy(target *url.URL, options Options) *WebsocketProxy {
	wsTarget := *target
	switch wsTarget.Scheme {
	case "https":
		wsTarget.Scheme = "wss"
	case "http", "":
		wsTarget.Scheme = "ws"
	}

	backend := func(r *http.Request) *url.URL {
		// Shallow copy
		u := wsTarget
		u.Fragment = r.URL.Fragment
		u.Path = r.URL.Path
		u.RawPath = r.URL.RawPath
		u.RawQuery = r.URL.RawQuery
		return &u
	}

	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if options.SkipOriginCheck {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}

	dialer := &websocket.Dialer{
		NetDialContext:   (&net.Dialer{Timeout: options.DialTimeout}).DialContext,
		HandshakeTimeout: options.HandshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	return &WebsocketProxy{Backend: backend, Upgrader: upgrader, Dialer: dialer, Options: options}
}

// Utilities function for log printing
func (w *WebsocketProxy) Println(messsage string, err error) {
	if w.Options.Logger != nil {
		w.Options.Logger.PrintAndLog("websocket", messsage, err)
	}
}

func (w *WebsocketProxy) debug(message string) {
	if w.Options.Logger != nil {
		w.Options.Logger.Debug("websocket", message)
	}
}

// Headers managed by the dialer itself
var dialerManagedHeaders = []string{
	"Sec-Websocket-Extensions",
	"Sec-Websocket-Key",
	"Sec-Websocket-Version",
	"Content-Length",
}

// ServeHTTP implements the http.Handler that proxies WebSocket connections.
func (w *WebsocketProxy) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	w.ServeWithRules(rw, req, &dpcore.ResponseRewriteRuleSet{
		OriginalHost: req.Host,
		UseTLS:       req.TLS != nil,
	})
}

// ServeWithRules relay the connection with the forwarding headers of rrr.
// rrr.DownstreamHeaders are added to the 101 response and to error responses
func (w *WebsocketProxy) ServeWithRules(rw http.ResponseWriter, req *http.Request, rrr *dpcore.ResponseRewriteRuleSet) error {
	backendURL := w.Backend(req)
	if backendURL == nil {
		err := errors.New("backend URL is nil")
		w.Println("Invalid websocket backend configuration", err)
		dpcore.InjectHeaders(rw.Header(), rrr.DownstreamHeaders)
		http.Error(rw, "internal server error", http.StatusInternalServerError)
		return err
	}

	// Forwarding header set, same as plain HTTP requests
	requestHeader := dpcore.ForwardHeaders(req, rrr)
	for _, h := range dialerManagedHeaders {
		requestHeader.Del(h)
	}
	requestHeader.Set("Host", rrr.OriginalHost)

	connBackend, resp, err := w.Dialer.DialContext(req.Context(), backendURL.String(), requestHeader)
	if err != nil {
		if resp != nil {
			// If the WebSocket handshake fails, ErrBadHandshake is returned
			// along with a non-nil *http.Response so that callers can handle
			// redirects, authentication, etcetera.
			if err := copyResponse(rw, resp, rrr.DownstreamHeaders); err != nil {
				w.debug("Couldn't write response after failed handshake: " + err.Error())
			}
			return nil
		}
		kind, status := dpcore.ClassifyError(req.Context(), err)
		if kind == dpcore.ErrorKindClientGone {
			return err
		}
		w.Println("Couldn't dial to remote backend url "+backendURL.String(), err)
		dpcore.InjectHeaders(rw.Header(), rrr.DownstreamHeaders)
		http.Error(rw, http.StatusText(status), status)
		return err
	}
	defer connBackend.Close()

	// Only pass those headers to the upgrader, plus the augmentation headers
	upgradeHeader := http.Header{}
	if hdr := resp.Header.Get("Sec-Websocket-Protocol"); hdr != "" {
		upgradeHeader.Set("Sec-Websocket-Protocol", hdr)
	}
	for _, cookie := range resp.Header.Values("Set-Cookie") {
		upgradeHeader.Add("Set-Cookie", cookie)
	}
	dpcore.InjectHeaders(upgradeHeader, rrr.DownstreamHeaders)

	// Now upgrade the existing incoming request to a WebSocket connection.
	connPub, err := w.Upgrader.Upgrade(rw, req, upgradeHeader)
	if err != nil {
		w.debug("Couldn't upgrade incoming request: " + err.Error())
		return err
	}
	defer connPub.Close()

	errClient := make(chan error, 1)
	errBackend := make(chan error, 1)
	replicateWebsocketConn := func(dst, src *websocket.Conn, errc chan error) {
		for {
			msgType, msg, err := src.ReadMessage()
			if err != nil {
				m := websocket.FormatCloseMessage(websocket.CloseNormalClosure, fmt.Sprintf("%v", err))
				if e, ok := err.(*websocket.CloseError); ok {
					if e.Code != websocket.CloseNoStatusReceived {
						m = websocket.FormatCloseMessage(e.Code, e.Text)
					}
				}
				errc <- err
				dst.WriteMessage(websocket.CloseMessage, m)
				break
			}
			err = dst.WriteMessage(msgType, msg)
			if err != nil {
				errc <- err
				break
			}
		}
	}

	go replicateWebsocketConn(connPub, connBackend, errClient)
	go replicateWebsocketConn(connBackend, connPub, errBackend)

	var message string
	select {
	case err = <-errClient:
		message = "Error when copying from backend to client: "
	case err = <-errBackend:
		message = "Error when copying from client to backend: "
	}
	if e, ok := err.(*websocket.CloseError); !ok || e.Code == websocket.CloseAbnormalClosure {
		w.debug(message + err.Error())
	}
	return nil
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func copyResponse(rw http.ResponseWriter, resp *http.Response, downstreamHeaders [][]string) error {
	copyHeader(rw.Header(), resp.Header)
	dpcore.InjectHeaders(rw.Header(), downstreamHeaders)
	rw.WriteHeader(resp.StatusCode)
	defer resp.Body.Close()

	_, err := io.Copy(rw, resp.Body)
	return err
}
