package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledcore"

// Collector exports a Probes snapshot as Prometheus metrics. Every scrape
// reads one snapshot, so the metrics of a scrape are mutually consistent.
type Collector struct {
	probes *Probes

	frame        *prometheus.Desc
	fired        *prometheus.Desc
	firedTotal   *prometheus.Desc
	layerNonzero *prometheus.Desc
	layerEnabled *prometheus.Desc
	layerFaults  *prometheus.Desc
	eligibility  *prometheus.Desc
	parityOK     *prometheus.Desc
	parityIssues *prometheus.Desc
}

// NewCollector creates a collector over p.
func NewCollector(p *Probes) *Collector {
	return &Collector{
		probes: p,
		frame: prometheus.NewDesc(namespace+"_frame",
			"Last published engine frame.", []string{"run"}, nil),
		fired: prometheus.NewDesc(namespace+"_rules_fired",
			"Rules applied in the last tick.", []string{"run"}, nil),
		firedTotal: prometheus.NewDesc(namespace+"_rules_fired_total",
			"Rules applied since the run began.", []string{"run"}, nil),
		layerNonzero: prometheus.NewDesc(namespace+"_layer_nonzero_pixels",
			"Nonzero pixels in the layer's last contribution.", []string{"layer"}, nil),
		layerEnabled: prometheus.NewDesc(namespace+"_layer_enabled",
			"Whether the layer was enabled in the last tick.", []string{"layer"}, nil),
		layerFaults: prometheus.NewDesc(namespace+"_layer_faults_total",
			"Isolated behavior faults of the layer.", []string{"layer"}, nil),
		eligibility: prometheus.NewDesc(namespace+"_eligibility",
			"Last eligibility result; the value is always 1.", []string{"behavior", "target", "status"}, nil),
		parityOK: prometheus.NewDesc(namespace+"_parity_ok",
			"Whether the last parity report passed.", []string{"project", "target"}, nil),
		parityIssues: prometheus.NewDesc(namespace+"_parity_issues",
			"Issues in the last parity report.", []string{"project", "target", "severity"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.frame, c.fired, c.firedTotal,
		c.layerNonzero, c.layerEnabled, c.layerFaults,
		c.eligibility, c.parityOK, c.parityIssues,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.probes.Snapshot()

	if s.RunID != "" {
		ch <- prometheus.MustNewConstMetric(c.frame, prometheus.GaugeValue, float64(s.Frame), s.RunID)
		ch <- prometheus.MustNewConstMetric(c.fired, prometheus.GaugeValue, float64(s.Fired), s.RunID)
		ch <- prometheus.MustNewConstMetric(c.firedTotal, prometheus.CounterValue, float64(s.FiredTotal), s.RunID)
	}
	for _, l := range s.Layers {
		ch <- prometheus.MustNewConstMetric(c.layerNonzero, prometheus.GaugeValue, float64(l.Nonzero), l.LayerID)
		ch <- prometheus.MustNewConstMetric(c.layerEnabled, prometheus.GaugeValue, boolValue(l.Enabled), l.LayerID)
		ch <- prometheus.MustNewConstMetric(c.layerFaults, prometheus.CounterValue, float64(l.Faults), l.LayerID)
	}
	if e := s.Eligibility; e != nil {
		ch <- prometheus.MustNewConstMetric(c.eligibility, prometheus.GaugeValue, 1,
			e.BehaviorID, e.TargetID, string(e.Status))
	}
	if r := s.Parity; r != nil {
		ch <- prometheus.MustNewConstMetric(c.parityOK, prometheus.GaugeValue, boolValue(r.OK), r.Project, r.TargetID)
		ch <- prometheus.MustNewConstMetric(c.parityIssues, prometheus.GaugeValue,
			float64(len(r.Errors())), r.Project, r.TargetID, "error")
		ch <- prometheus.MustNewConstMetric(c.parityIssues, prometheus.GaugeValue,
			float64(len(r.Warnings())), r.Project, r.TargetID, "warning")
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewRegistry returns a Prometheus registry holding a collector over p.
func NewRegistry(p *Probes) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(p))
	return reg
}

// Serve exposes reg on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("metrics listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics serve: %w", err)
	}
}
