package dpcore

import (
	"net/url"
	"strings"
)

// replaceLocationHost rewrite a Location header pointing at the origin so it
// points at the public host instead. Other hosts are left untouched
func replaceLocationHost(urlString string, rrr *ResponseRewriteRuleSet, useTLS bool) (string, error) {
	u, err := url.Parse(urlString)
	if err != nil {
		return "", err
	}

	// The later check bypass apache screw up method of redirection header
	// e.g. https://example.com -> http://example.com:443
	if rrr.ProxyDomain != u.Host && u.Host != rrr.OriginalHost && !strings.HasPrefix(u.Host, rrr.OriginalHost+":") {
		//New location domain not matching the origin. Do not modify location header
		return urlString, nil
	}

	//The origin is plain http but exposed as https to the internet
	if useTLS {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Host = rrr.OriginalHost
	return u.String(), nil
}

// Debug functions
func ReplaceLocationHost(urlString string, rrr *ResponseRewriteRuleSet, useTLS bool) (string, error) {
	return replaceLocationHost(urlString, rrr, useTLS)
}
