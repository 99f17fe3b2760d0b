package statistic

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"imuslab.com/edgeproxy/mod/utils"
)

// Handler serve /metrics, /healthz and the JSON summary of today at /stats/today
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.Metrics.Registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats/today", c.HandleTodayStatLoad)
	return mux
}

// Handle the request for loading today's summary
func (c *Collector) HandleTodayStatLoad(w http.ResponseWriter, r *http.Request) {
	js, err := json.Marshal(c.TodaySummary())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, string(js))
}

// StatServer is the local listener of the metrics endpoint
type StatServer struct {
	server *http.Server
	ln     net.Listener
}

// StartServer listen on addr and serve Handler in the background
func (c *Collector) StartServer(addr string) (*StatServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logf("Statistic listener stopped", err)
		}
	}()
	return &StatServer{server: srv, ln: ln}, nil
}

// Addr return the bound address, useful with port 0
func (s *StatServer) Addr() string {
	return s.ln.Addr().String()
}

func (s *StatServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
