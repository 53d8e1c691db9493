// Package metrics exposes the Prometheus endpoint for the paper trader
package metrics

import (
	"net/http"
	"time"
)

// StartMetricsServer 启动Prometheus指标服务器，handler 来自 monitor 的私有 registry。
func StartMetricsServer(addr string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
