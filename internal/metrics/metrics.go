package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/groupfi/treasury-engine/internal/config"
	"github.com/groupfi/treasury-engine/internal/metrics/metricsTypes"
	prometheusClient "github.com/groupfi/treasury-engine/internal/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewMetricsClient returns the configured metrics sink. When prometheus is
// disabled a no-op client is returned so callers never need nil checks.
func NewMetricsClient(cfg *config.Config, l *zap.Logger) (metricsTypes.IMetricsClient, error) {
	if !cfg.PrometheusConfig.Enabled {
		return &NoopMetricsClient{}, nil
	}
	return prometheusClient.NewPrometheusMetricsClient(&prometheusClient.PrometheusMetricsConfig{
		Metrics: metricsTypes.MetricTypes,
	}, l)
}

// StartPrometheusServer exposes /metrics on the configured port.
func StartPrometheusServer(cfg *config.Config, l *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.PrometheusConfig.Port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Sugar().Errorw("Prometheus server exited", zap.Error(err))
		}
	}()
	return server
}

type NoopMetricsClient struct{}

func (n *NoopMetricsClient) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	return nil
}

func (n *NoopMetricsClient) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	return nil
}

func (n *NoopMetricsClient) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) error {
	return nil
}

func (n *NoopMetricsClient) Flush() {}
