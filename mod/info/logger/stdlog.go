package logger

import (
	"log"
	"strings"
)

type debugWriter struct {
	l     *Logger
	title string
}

func (w debugWriter) Write(p []byte) (int, error) {
	w.l.Debug(w.title, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// StdLogger return a log.Logger writing into the debug level, for
// http.Server.ErrorLog where TLS handshake noise lands
func (l *Logger) StdLogger(title string) *log.Logger {
	return log.New(debugWriter{l: l, title: title}, "", 0)
}
