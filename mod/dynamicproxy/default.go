package dynamicproxy

import (
	"net/http"
	"strconv"
)

/*
	Default error pages of the encrypted listener
*/

var page_badgateway = []byte(`<!DOCTYPE html>
<html>
<head><title>502 Bad Gateway</title></head>
<body>
<h1>502 - Bad Gateway</h1>
<p>The application server is not reachable at the moment. Please try again later.</p>
</body>
</html>
`)

var page_gatewaytimeout = []byte(`<!DOCTYPE html>
<html>
<head><title>504 Gateway Timeout</title></head>
<body>
<h1>504 - Gateway Timeout</h1>
<p>The application server did not respond in time. Please try again later.</p>
</body>
</html>
`)

func errorPage(statusCode int) []byte {
	switch statusCode {
	case http.StatusBadGateway:
		return page_badgateway
	case http.StatusGatewayTimeout:
		return page_gatewaytimeout
	default:
		text := strconv.Itoa(statusCode) + " - " + http.StatusText(statusCode)
		return []byte("<!DOCTYPE html>\n<html>\n<head><title>" + text + "</title></head>\n<body>\n<h1>" + text + "</h1>\n</body>\n</html>\n")
	}
}
