package dpcore_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"imuslab.com/edgeproxy/mod/dynamicproxy/dpcore"
)

func newCore(t *testing.T, origin string, responseTimeout time.Duration) *dpcore.ReverseProxy {
	t.Helper()
	target, err := url.Parse(origin)
	require.NoError(t, err)
	return dpcore.NewDynamicProxyCore(target, &dpcore.DpcoreOptions{
		DialTimeout:     2 * time.Second,
		ResponseTimeout: responseTimeout,
	})
}

func serveThrough(core *dpcore.ReverseProxy, rrr *dpcore.ResponseRewriteRuleSet, r *http.Request) (*httptest.ResponseRecorder, error) {
	w := httptest.NewRecorder()
	err := core.ServeHTTP(w, r, rrr)
	return w, err
}

func TestForwardHeaders(t *testing.T) {
	received := make(chan *http.Request, 1)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Clone(context.Background())
		w.Write([]byte("ok"))
	}))
	defer origin.Close()

	originURL, _ := url.Parse(origin.URL)
	core := newCore(t, origin.URL, time.Second)
	r := httptest.NewRequest(http.MethodGet, "https://example.com/api/items?page=2", nil)
	r.RemoteAddr = "203.0.113.7:40000"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	r.Header.Set("X-Real-IP", "10.0.0.1")
	r.Header.Set("Connection", "keep-alive, X-Hop")
	r.Header.Set("X-Hop", "secret")
	r.Header.Set("Keep-Alive", "timeout=5")

	w, err := serveThrough(core, &dpcore.ResponseRewriteRuleSet{
		ProxyDomain:  originURL.Host,
		OriginalHost: "example.com",
		UseTLS:       true,
	}, r)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	got := <-received
	assert.Equal(t, "example.com", got.Host)
	assert.Equal(t, "/api/items", got.URL.Path)
	assert.Equal(t, "page=2", got.URL.RawQuery)
	assert.Equal(t, "203.0.113.7", got.Header.Get("X-Real-IP"))
	assert.Equal(t, "198.51.100.1, 203.0.113.7", got.Header.Get("X-Forwarded-For"))
	assert.Equal(t, "https", got.Header.Get("X-Forwarded-Proto"))
	assert.Equal(t, "example.com", got.Header.Get("X-Forwarded-Host"))
	assert.Empty(t, got.Header.Get("X-Hop"))
	assert.Empty(t, got.Header.Get("Keep-Alive"))
	assert.Empty(t, got.Header.Get("User-Agent"))
}

func TestDownstreamHeadersOverride(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Powered-By", "flask")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))
	defer origin.Close()

	core := newCore(t, origin.URL, time.Second)
	r := httptest.NewRequest(http.MethodPost, "https://example.com/submit", nil)
	w, err := serveThrough(core, &dpcore.ResponseRewriteRuleSet{
		OriginalHost: "example.com",
		UseTLS:       true,
		DownstreamHeaders: [][]string{
			{"Cache-Control", "no-store"},
			{"X-Frame-Options", "SAMEORIGIN"},
			{"X-Powered-By", ""},
		},
	}, r)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"no-store"}, w.Header().Values("Cache-Control"))
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Values("X-Powered-By"))
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
}

func TestLocationRewrite(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			//The origin only knows its own address
			http.Redirect(w, r, "http://"+r.Context().Value(http.LocalAddrContextKey).(net.Addr).String()+"/dashboard", http.StatusFound)
		case "/external":
			http.Redirect(w, r, "https://accounts.example.org/auth", http.StatusFound)
		default:
			http.Redirect(w, r, "/relative", http.StatusFound)
		}
	}))
	defer origin.Close()
	originURL, _ := url.Parse(origin.URL)

	core := newCore(t, origin.URL, time.Second)
	rrr := &dpcore.ResponseRewriteRuleSet{ProxyDomain: originURL.Host, OriginalHost: "example.com", UseTLS: true}

	cases := map[string]string{
		"/login":    "https://example.com/dashboard",
		"/external": "https://accounts.example.org/auth",
		"/other":    "/relative",
	}
	for path, want := range cases {
		w, err := serveThrough(core, rrr, httptest.NewRequest(http.MethodGet, "https://example.com"+path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, want, w.Header().Get("Location"), path)
	}
}

func TestReplaceLocationHost(t *testing.T) {
	rrr := &dpcore.ResponseRewriteRuleSet{ProxyDomain: "127.0.0.1:5000", OriginalHost: "example.com", UseTLS: true}
	tests := map[string]string{
		"http://127.0.0.1:5000/x?y=1": "https://example.com/x?y=1",
		"http://example.com:443/x":    "https://example.com/x",
		"http://example.com/x":        "https://example.com/x",
		"http://other.example.com/x":  "http://other.example.com/x",
	}
	for input, want := range tests {
		got, err := dpcore.ReplaceLocationHost(input, rrr, true)
		require.NoError(t, err)
		assert.Equal(t, want, got, input)
	}
}

func TestRequestBodyForwarded(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))
	defer origin.Close()

	core := newCore(t, origin.URL, time.Second)
	r := httptest.NewRequest(http.MethodPost, "https://example.com/echo", stringsReader("hello origin"))
	w, err := serveThrough(core, &dpcore.ResponseRewriteRuleSet{OriginalHost: "example.com"}, r)
	require.NoError(t, err)
	assert.Equal(t, "hello origin", w.Body.String())
}

func TestConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	core := newCore(t, "http://"+addr, time.Second)
	r := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	w, err := serveThrough(core, &dpcore.ResponseRewriteRuleSet{OriginalHost: "example.com"}, r)
	require.Error(t, err)
	assert.False(t, w.Flushed)

	kind, status := dpcore.ClassifyError(r.Context(), err)
	assert.Equal(t, dpcore.ErrorKindConnection, kind)
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestResponseTimeout(t *testing.T) {
	release := make(chan struct{})
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}))
	defer origin.Close()
	defer close(release)

	core := newCore(t, origin.URL, 100*time.Millisecond)
	r := httptest.NewRequest(http.MethodGet, "https://example.com/slow", nil)
	_, err := serveThrough(core, &dpcore.ResponseRewriteRuleSet{OriginalHost: "example.com"}, r)
	require.Error(t, err)

	kind, status := dpcore.ClassifyError(r.Context(), err)
	assert.Equal(t, dpcore.ErrorKindTimeout, kind)
	assert.Equal(t, http.StatusGatewayTimeout, status)
}

func TestStalledBodyAborted(t *testing.T) {
	release := make(chan struct{})
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer origin.Close()
	defer close(release)

	core := newCore(t, origin.URL, 200*time.Millisecond)
	r := httptest.NewRequest(http.MethodGet, "https://example.com/stream", nil)
	start := time.Now()
	w, err := serveThrough(core, &dpcore.ResponseRewriteRuleSet{OriginalHost: "example.com"}, r)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}

func TestSlowSteadyBodyCompletes(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 5; i++ {
			w.Write([]byte("chunk;"))
			w.(http.Flusher).Flush()
			time.Sleep(80 * time.Millisecond)
		}
	}))
	defer origin.Close()

	core := newCore(t, origin.URL, 200*time.Millisecond)
	r := httptest.NewRequest(http.MethodGet, "https://example.com/stream", nil)
	w, err := serveThrough(core, &dpcore.ResponseRewriteRuleSet{OriginalHost: "example.com"}, r)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("chunk;", 5), w.Body.String())
}

func TestClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	kind, status := dpcore.ClassifyError(ctx, context.Canceled)
	assert.Equal(t, dpcore.ErrorKindClientGone, kind)
	assert.Equal(t, 0, status)
}

func TestConnectRejected(t *testing.T) {
	core := newCore(t, "http://127.0.0.1:1", time.Second)
	r := httptest.NewRequest(http.MethodConnect, "https://example.com/", nil)
	_, err := serveThrough(core, &dpcore.ResponseRewriteRuleSet{}, r)
	assert.ErrorIs(t, err, dpcore.ErrMethodNotSupported)
	_, status := dpcore.ClassifyError(r.Context(), err)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}
