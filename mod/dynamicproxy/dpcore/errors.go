package dpcore

import (
	"context"
	"errors"
	"net"
	"net/http"
)

var ErrMethodNotSupported = errors.New("method not supported by the edge proxy")

type ErrorKind string

const (
	ErrorKindClientGone ErrorKind = "client_gone" //Client closed the connection, no response is written
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindConnection ErrorKind = "connection"
	ErrorKindRejected   ErrorKind = "rejected"
)

// ClassifyError map a ProxyHTTP error to its kind and the status code
// sent to the client. The status is 0 when no response should be written
func ClassifyError(ctx context.Context, err error) (ErrorKind, int) {
	if errors.Is(err, ErrMethodNotSupported) {
		return ErrorKindRejected, http.StatusMethodNotAllowed
	}
	if errors.Is(err, context.Canceled) || (ctx != nil && errors.Is(ctx.Err(), context.Canceled)) {
		return ErrorKindClientGone, 0
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return ErrorKindTimeout, http.StatusGatewayTimeout
	}
	return ErrorKindConnection, http.StatusBadGateway
}
