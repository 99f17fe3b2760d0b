package dynamicproxy

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheHeaders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, [][]string{
		{"Cache-Control", "public, max-age=31536000, immutable"},
		{"Expires", "Mon, 01 Mar 2027 12:00:00 GMT"},
	}, CacheHeaders(ClassStatic, now))

	assert.Equal(t, [][]string{
		{"Cache-Control", "public, max-age=3600"},
		{"Expires", "Sun, 01 Mar 2026 13:00:00 GMT"},
	}, CacheHeaders(ClassMarkup, now))

	assert.Equal(t, [][]string{{"Cache-Control", "no-store"}}, CacheHeaders(ClassDynamic, now))
}

func TestDownstreamHeaders(t *testing.T) {
	headers := DownstreamHeaders(ClassMarkup, time.Now())
	assert.Len(t, headers, len(SecurityHeaders)+2)
	assert.Equal(t, SecurityHeaders, headers[:len(SecurityHeaders)])

	//The shared security set is never modified by appends
	DownstreamHeaders(ClassStatic, time.Now())
	assert.Len(t, SecurityHeaders, 5)
}

func TestErrorPage(t *testing.T) {
	assert.Contains(t, string(errorPage(http.StatusBadGateway)), "502 - Bad Gateway")
	assert.Contains(t, string(errorPage(http.StatusGatewayTimeout)), "504 - Gateway Timeout")
	assert.Contains(t, string(errorPage(http.StatusMethodNotAllowed)), "405 - Method Not Allowed")
}
