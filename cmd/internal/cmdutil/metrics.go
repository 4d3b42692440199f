package cmdutil

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func MetricsServer(logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprint(w, "OK"); err != nil {
			logger.Error("error writing to healthz", zap.Error(err))
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// RunMetricsServer serves /metrics and /healthz on addr in the background.
// The returned function shuts the server down.
func RunMetricsServer(logger *zap.Logger, addr string) func(ctx context.Context) error {
	srv := &http.Server{Addr: addr, Handler: MetricsServer(logger)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("error exposing metrics endpoints", zap.Error(err))
		}
	}()
	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	return srv.Shutdown
}
