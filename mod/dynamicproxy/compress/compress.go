package compress

/*
	Compress

	gzip for textual responses of the encrypted listener
*/

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzhttp"
)

// DefaultContentTypes is the gzip allow-list. text/html is always included
var DefaultContentTypes = []string{
	"text/html",
	"text/plain",
	"text/css",
	"text/xml",
	"text/javascript",
	"application/json",
	"application/javascript",
	"application/x-javascript",
	"application/xml",
	"application/xml+rss",
	"application/rss+xml",
	"image/svg+xml",
}

const (
	DefaultLevel   = 6
	DefaultMinSize = 256
)

type Options struct {
	Level        int
	MinSize      int
	ContentTypes []string //Allow-list, DefaultContentTypes if empty
}

type Compressor struct {
	wrap func(http.Handler) http.HandlerFunc
}

func NewCompressor(opts Options) (*Compressor, error) {
	if opts.Level == 0 {
		opts.Level = DefaultLevel
	}
	if opts.MinSize == 0 {
		opts.MinSize = DefaultMinSize
	}
	if len(opts.ContentTypes) == 0 {
		opts.ContentTypes = DefaultContentTypes
	}

	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(opts.MinSize),
		gzhttp.CompressionLevel(opts.Level),
		gzhttp.ContentTypes(opts.ContentTypes),
	)
	if err != nil {
		return nil, err
	}
	return &Compressor{wrap: wrap}, nil
}

// Handler wrap next with gzip. Legacy MSIE clients and WebSocket
// upgrades bypass the compressor
func (c *Compressor) Handler(next http.Handler) http.Handler {
	compressed := c.wrap(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsLegacyMSIE(r.UserAgent()) || IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}

var msieMatcher = regexp.MustCompile(`MSIE ([4-6])\.`)

// IsLegacyMSIE match the user agents excluded by gzip_disable "msie6".
// MSIE 6 with the SV1 token (XP SP2) handles gzip fine
func IsLegacyMSIE(userAgent string) bool {
	m := msieMatcher.FindStringSubmatch(userAgent)
	if m == nil {
		return false
	}
	if m[1] == "6" && strings.Contains(userAgent, "SV1") {
		return false
	}
	return true
}

func IsWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
