package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"imuslab.com/edgeproxy/mod/info/logger"
)

func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	l, err := logger.NewLogger("edge", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(l.Close)
	console := &bytes.Buffer{}
	l.SetStdout(console)
	return l, console
}

func readLogFile(t *testing.T, l *logger.Logger) string {
	t.Helper()
	content, err := os.ReadFile(l.CurrentLogFile)
	require.NoError(t, err)
	return string(content)
}

func TestLogFileName(t *testing.T) {
	dir := t.TempDir()
	l, err := logger.NewLogger("edge", dir)
	require.NoError(t, err)
	defer l.Close()

	year, month, _ := time.Now().Date()
	expected := filepath.Join(dir, fmt.Sprintf("edge_%d-%d.log", year, int(month)))
	assert.Equal(t, expected, l.CurrentLogFile)
	assert.FileExists(t, expected)
}

func TestPrintAndLog(t *testing.T) {
	l, console := newTestLogger(t)
	l.PrintAndLog("tlscert", "certificate loaded", nil)
	l.PrintAndLog("proxy", "origin unreachable", errors.New("connection refused"))

	content := readLogFile(t, l)
	assert.Contains(t, content, "[tlscert] [system:info] certificate loaded")
	assert.Contains(t, content, "[proxy] [system:error] origin unreachable: connection refused")
	assert.Equal(t, content, console.String())
}

func TestLevelFiltering(t *testing.T) {
	l, console := newTestLogger(t)
	l.Debug("proxy", "client went away")
	assert.Empty(t, console.String())

	require.NoError(t, l.SetLevel("debug"))
	l.Debug("proxy", "client went away")
	assert.Contains(t, console.String(), "[proxy] [system:debug] client went away")

	assert.Error(t, l.SetLevel("loud"))
}

func TestTrafficOnlyInFile(t *testing.T) {
	l, console := newTestLogger(t)
	r := httptest.NewRequest("GET", "/static/app.js?v=1", nil)
	r.RemoteAddr = "203.0.113.9:5555"
	r.Header.Set("User-Agent", "curl/8")
	l.LogHTTPRequest(r, "https", "static", 200, 1024, 3*time.Millisecond)

	content := readLogFile(t, l)
	assert.Contains(t, content, "[router:https:static] [client 203.0.113.9] [useragent curl/8] GET /static/app.js?v=1 200 1024B")
	assert.NotContains(t, content, "system:")
	assert.Empty(t, console.String())

	l.TrafficEnabled = false
	l.LogHTTPRequest(r, "https", "static", 200, 1, time.Millisecond)
	assert.Equal(t, content, readLogFile(t, l))
}

func TestJSONFormat(t *testing.T) {
	l, console := newTestLogger(t)
	require.NoError(t, l.SetFormat("json"))
	l.PrintAndLog("config", "loaded", nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(console.Bytes(), &entry))
	assert.Equal(t, "config", entry["title"])
	assert.Equal(t, "loaded", entry["msg"])
	assert.Equal(t, "info", entry["level"])

	assert.Error(t, l.SetFormat("xml"))
}

func TestFmtLogger(t *testing.T) {
	l, err := logger.NewFmtLogger()
	require.NoError(t, err)
	console := &bytes.Buffer{}
	l.SetStdout(console)
	l.Println("hello", "world")
	assert.Contains(t, console.String(), "[internal] [system:info] helloworld")
	l.Close()
}

func TestStdLogger(t *testing.T) {
	l, console := newTestLogger(t)
	require.NoError(t, l.SetLevel("debug"))
	l.StdLogger("https").Printf("http: TLS handshake error from %s: EOF", "10.0.0.1:5555")
	assert.Contains(t, console.String(), "[https] [system:debug] http: TLS handshake error from 10.0.0.1:5555: EOF\n")
}
