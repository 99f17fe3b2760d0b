package acme

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ChallengePathPrefix is the HTTP-01 token location under the webroot
const ChallengePathPrefix = "/.well-known/acme-challenge/"

// ChallengeHandler serve HTTP-01 challenge files from Webroot, the way a
// static file server with root=Webroot would
type ChallengeHandler struct {
	Webroot string
}

func NewChallengeHandler(webroot string) *ChallengeHandler {
	return &ChallengeHandler{Webroot: webroot}
}

// IsChallengeRequest check if the request targets the challenge folder
func IsChallengeRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, ChallengePathPrefix)
}

func (h *ChallengeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "405 - Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	//Reject anything that escapes the challenge folder after cleaning
	cleaned := path.Clean(r.URL.Path)
	if !strings.HasPrefix(cleaned, ChallengePathPrefix) || strings.Contains(r.URL.Path, "\\") {
		http.NotFound(w, r)
		return
	}

	filename := filepath.Join(h.Webroot, filepath.FromSlash(cleaned))
	f, err := os.Open(filename)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	if filepath.Ext(filename) == "" {
		//Tokens carry no extension
		w.Header().Set("Content-Type", "text/plain")
	}
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), f)
}
