package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

// ServeMetrics exposes the default Prometheus registry over HTTP at
// addr in a background goroutine. Bind failures are logged, not fatal:
// metrics are an observability aid, not something either CLI tool
// should refuse to run without.
func ServeMetrics(addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		klog.Warningf("metrics: listen on %q: %v", addr, err)
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			klog.Warningf("metrics: server stopped: %v", err)
		}
	}()
	klog.Infof("metrics: serving Prometheus metrics on %q", addr)
}
