package dynamicproxy_test

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"imuslab.com/edgeproxy/mod/database"
	"imuslab.com/edgeproxy/mod/database/dbinc"
	"imuslab.com/edgeproxy/mod/dynamicproxy"
	"imuslab.com/edgeproxy/mod/dynamicproxy/compress"
	"imuslab.com/edgeproxy/mod/info/logger"
	"imuslab.com/edgeproxy/mod/statistic"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.NewLogger("test", t.TempDir())
	require.NoError(t, err)
	l.SetStdout(io.Discard)
	t.Cleanup(l.Close)
	return l
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// An origin address nothing listens on
func closedOrigin(t *testing.T) *url.URL {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return mustParseURL(t, "http://"+addr)
}

// newRouter build a router toward origin with compression enabled.
// mutate may adjust the option before the router is created
func newRouter(t *testing.T, origin *url.URL, mutate func(*dynamicproxy.RouterOption)) *dynamicproxy.Router {
	t.Helper()
	compressor, err := compress.NewCompressor(compress.Options{})
	require.NoError(t, err)

	option := dynamicproxy.RouterOption{
		HostUUID:        "test-node",
		Hostname:        "example.com",
		HTTPListen:      "127.0.0.1:0",
		HTTPSListen:     "127.0.0.1:0",
		HTTPSPort:       443,
		Origin:          origin,
		DialTimeout:     time.Second,
		ResponseTimeout: 2 * time.Second,
		Compressor:      compressor,
		Logger:          testLogger(t),
	}
	if mutate != nil {
		mutate(&option)
	}
	router, err := dynamicproxy.NewDynamicProxy(option)
	require.NoError(t, err)
	return router
}

func newCollector(t *testing.T) *statistic.Collector {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "sys.db"), dbinc.BackendBoltDB)
	require.NoError(t, err)
	c, err := statistic.NewStatisticCollector(statistic.CollectorOption{Database: db, SaveInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		db.Close()
	})
	return c
}

// Serve the encrypted listener handler over plain HTTP
func serveEncrypted(t *testing.T, router *dynamicproxy.Router) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, client *http.Client, target string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}
