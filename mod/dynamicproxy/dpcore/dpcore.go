package dpcore

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imuslab.com/edgeproxy/mod/info/logger"
)

// ReverseProxy is an HTTP Handler that takes an incoming request and
// sends it to the origin server, proxying the response back to the client
type ReverseProxy struct {
	// Director must be a function which modifies
	// the request into a new request to be sent
	// using Transport. Director must not access the
	// provided Request after returning.
	Director func(*http.Request)

	// The transport used to perform proxy requests.
	Transport http.RoundTripper

	// FlushInterval specifies the flush interval
	// to flush to the client while copying the
	// response body. If zero, no periodic flushing is done.
	// A negative value means to flush immediately after each write.
	FlushInterval time.Duration

	// ModifyResponse is an optional function that
	// modifies the Response from the origin.
	ModifyResponse func(*http.Response) error

	// BodyReadTimeout cancel the origin request when no body bytes
	// arrive within the duration. Zero disables the limit
	BodyReadTimeout time.Duration

	// Logger receives body copy errors at debug level. Optional
	Logger *logger.Logger
}

type ResponseRewriteRuleSet struct {
	ProxyDomain       string     //Origin host:port as seen by the proxy
	OriginalHost      string     //Host header of the incoming request
	UseTLS            bool       //Incoming request arrived over TLS
	UpstreamHeaders   [][]string //Headers set on the request toward the origin
	DownstreamHeaders [][]string //Headers set on the response toward the client, replacing origin values
}

type DpcoreOptions struct {
	DialTimeout     time.Duration //Connect timeout toward the origin
	ResponseTimeout time.Duration //Time allowed for the origin to send response headers, and between two body reads
	FlushInterval   time.Duration
}

func NewDynamicProxyCore(target *url.URL, dpcOptions *DpcoreOptions) *ReverseProxy {
	targetQuery := target.RawQuery
	director := func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.URL.Path, req.URL.RawPath = joinURLPath(target, req.URL)
		if targetQuery == "" || req.URL.RawQuery == "" {
			req.URL.RawQuery = targetQuery + req.URL.RawQuery
		} else {
			req.URL.RawQuery = targetQuery + "&" + req.URL.RawQuery
		}
	}

	//Dedicated transport toward the origin, no shared default transport
	optimalConcurrentConnection := 32
	thisTransporter := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dpcOptions.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          optimalConcurrentConnection * 2,
		MaxIdleConnsPerHost:   optimalConcurrentConnection,
		MaxConnsPerHost:       optimalConcurrentConnection * 2,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: dpcOptions.ResponseTimeout,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}

	return &ReverseProxy{
		Director:        director,
		FlushInterval:   dpcOptions.FlushInterval,
		BodyReadTimeout: dpcOptions.ResponseTimeout,
		Transport:       thisTransporter,
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

func joinURLPath(a, b *url.URL) (path, rawpath string) {
	if a.RawPath == "" && b.RawPath == "" {
		return singleJoiningSlash(a.Path, b.Path), ""
	}

	// Same as singleJoiningSlash, but uses EscapedPath to determine
	// whether a slash should be added
	apath := a.EscapedPath()
	bpath := b.EscapedPath()

	aslash := strings.HasSuffix(apath, "/")
	bslash := strings.HasPrefix(bpath, "/")

	switch {
	case aslash && bslash:
		return a.Path + b.Path[1:], apath + bpath[1:]
	case !aslash && !bslash:
		return a.Path + "/" + b.Path, apath + "/" + bpath
	}
	return a.Path + b.Path, apath + bpath
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// Hop-by-hop headers. These are removed when sent to the origin and back.
// http://www.w3.org/Protocols/rfc2616/rfc2616-sec13.html
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection", // non-standard but still sent by libcurl and rejected by e.g. google
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",      // canonicalized version of "TE"
	"Trailer", // not Trailers per URL above; http://www.rfc-editor.org/errata_search.php?eid=4522
	"Transfer-Encoding",
	"Upgrade",
}

// Copy response from src to dst with given flush interval, reference from httputil.ReverseProxy
func (p *ReverseProxy) copyResponse(dst http.ResponseWriter, src io.Reader, flushInterval time.Duration) error {
	var w io.Writer = dst
	if flushInterval != 0 {
		fw := newFlushWriter(dst, http.NewResponseController(dst).Flush, flushInterval)
		defer fw.stop()
		w = fw
	}

	_, err := p.copyBuffer(w, src, nil)
	return err
}

// Copy with given buffer size. Default to 64k
func (p *ReverseProxy) copyBuffer(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, 64*1024)
	}

	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}

		if rerr != nil {
			if rerr == io.EOF {
				rerr = nil
			}
			return written, rerr
		}
	}
}

func (p *ReverseProxy) debugf(message string) {
	if p.Logger != nil {
		p.Logger.Debug("dpcore", message)
	}
}

// ProxyHTTP forward req to the origin and relay the response to rw.
// A returned error means nothing was written to rw yet
func (p *ReverseProxy) ProxyHTTP(rw http.ResponseWriter, req *http.Request, rrr *ResponseRewriteRuleSet) error {
	transport := p.Transport

	//Derived from the request context, so the origin request is
	//cancelled once the client goes away or the body read stalls
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	outreq := req.Clone(ctx)
	if req.ContentLength == 0 {
		outreq.Body = nil
	}
	outreq.RequestURI = ""

	p.Director(outreq)
	outreq.Close = false
	outreq.Host = rrr.OriginalHost

	// Remove hop-by-hop headers listed in the "Connection" header, Remove hop-by-hop headers.
	removeHeaders(outreq.Header)
	rewriteUserAgent(outreq.Header)

	// Add the forwarding header set
	addXForwardedForHeader(outreq, rrr)
	injectUserDefinedHeaders(outreq.Header, rrr.UpstreamHeaders)

	res, err := transport.RoundTrip(outreq)
	if err != nil {
		return err
	}

	// Remove hop-by-hop headers listed in the "Connection" header of the response, Remove hop-by-hop headers.
	removeHeaders(res.Header)

	if p.ModifyResponse != nil {
		if err := p.ModifyResponse(res); err != nil {
			res.Body.Close()
			return err
		}
	}

	//Point absolute redirects at the origin back to the public host
	if originLocation := res.Header.Get("Location"); originLocation != "" {
		if strings.HasPrefix(originLocation, "http://") || strings.HasPrefix(originLocation, "https://") {
			if lr, err := replaceLocationHost(originLocation, rrr, rrr.UseTLS); err == nil {
				res.Header.Set("Location", lr)
			}
		}
	}

	// Copy header from response to client.
	copyHeader(rw.Header(), res.Header)
	injectUserDefinedHeaders(rw.Header(), rrr.DownstreamHeaders)

	// The "Trailer" header isn't included in the Transport's response, Build it up from Trailer.
	if len(res.Trailer) > 0 {
		trailerKeys := make([]string, 0, len(res.Trailer))
		for k := range res.Trailer {
			trailerKeys = append(trailerKeys, k)
		}
		rw.Header().Add("Trailer", strings.Join(trailerKeys, ", "))
	}

	rw.WriteHeader(res.StatusCode)
	if len(res.Trailer) > 0 {
		// Force chunking if we saw a response trailer.
		// This prevents net/http from calculating the length for short
		// bodies and adding a Content-Length.
		http.NewResponseController(rw).Flush()
	}

	var body io.ReadCloser = res.Body
	var idleBody *idleTimeoutReader
	if p.BodyReadTimeout > 0 {
		idleBody = newIdleTimeoutReader(res.Body, p.BodyReadTimeout, cancel)
		body = idleBody
	}

	//Get flush interval in real time and start copying the response
	flushInterval := p.getFlushInterval(req, res)
	err = p.copyResponse(rw, body, flushInterval)
	if idleBody != nil && idleBody.Expired() {
		p.debugf("origin body idle for " + p.BodyReadTimeout.String() + ", response to " + req.RemoteAddr + " truncated")
	} else if err != nil && !errors.Is(err, context.Canceled) {
		p.debugf("body copy to " + req.RemoteAddr + " interrupted: " + err.Error())
	}

	// close now, instead of defer, to populate res.Trailer
	body.Close()
	copyHeader(rw.Header(), res.Trailer)
	return nil
}

func (p *ReverseProxy) ServeHTTP(rw http.ResponseWriter, req *http.Request, rrr *ResponseRewriteRuleSet) error {
	if req.Method == http.MethodConnect {
		//The edge proxy never acts as a forward proxy
		return ErrMethodNotSupported
	}
	return p.ProxyHTTP(rw, req, rrr)
}
