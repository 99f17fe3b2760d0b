package netutils

import (
	"net"
	"net/http"
	"strings"
)

/*
	Network utilities for the edge listeners
*/

// GetRequesterIP return the address of the peer that opened the connection.
// The edge proxy is the first hop, so forwarding headers sent by the client
// are never trusted here.
func GetRequesterIP(r *http.Request) string {
	requesterRawIp := r.RemoteAddr
	reqHost, _, err := net.SplitHostPort(requesterRawIp)
	if err == nil {
		requesterRawIp = reqHost
	}

	if strings.HasPrefix(requesterRawIp, "[") && strings.HasSuffix(requesterRawIp, "]") {
		requesterRawIp = requesterRawIp[1 : len(requesterRawIp)-1]
	}

	return requesterRawIp
}

// HostnameOnly strip the port section of a Host header value
func HostnameOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		//No port in host header
		return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]")
	}
	return host
}

// PortFromListenAddr extract the port of a ":443" or "0.0.0.0:443" style address
func PortFromListenAddr(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return port
}
