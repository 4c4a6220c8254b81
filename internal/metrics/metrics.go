// Package metrics exposes ingestion counters on a private Prometheus registry
// and pushes them to a pushgateway at the end of a batch run.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fide-ratings/internal/fidefile"
	"github.com/sells-group/fide-ratings/internal/model"
)

const namespace = "fide"

// Collector holds ingestion metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	RecordsParsed   *prometheus.CounterVec
	PlayersUpserted prometheus.Counter
	RankingsWritten *prometheus.CounterVec
	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	LastSuccess     prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		RecordsParsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Rating list records by parse and admission outcome",
			},
			[]string{"outcome"}, // "valid", "invalid", "low_rating"
		),
		PlayersUpserted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "players_upserted_total",
				Help:      "Player rows inserted or updated",
			},
		),
		RankingsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rankings_total",
				Help:      "Ranking rows by write outcome",
			},
			[]string{"outcome"}, // "inserted", "skipped"
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_runs_total",
				Help:      "Ingested sources by final status",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_run_duration_seconds",
				Help:      "Time to ingest one source",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successfully ingested source",
			},
		),
	}

	c.registry.MustRegister(
		c.RecordsParsed,
		c.PlayersUpserted,
		c.RankingsWritten,
		c.Runs,
		c.RunDuration,
		c.LastSuccess,
	)
	return c
}

// RecordParse adds one source's parse and admission counts.
func (c *Collector) RecordParse(stats fidefile.Stats) {
	if c == nil {
		return
	}
	c.RecordsParsed.WithLabelValues("valid").Add(float64(stats.Valid))
	c.RecordsParsed.WithLabelValues("invalid").Add(float64(stats.SkippedInvalid))
	c.RecordsParsed.WithLabelValues("low_rating").Add(float64(stats.SkippedLowRating))
}

// RecordWrite adds one write's row counts.
func (c *Collector) RecordWrite(playersUpserted, rankingsInserted, rankingsSkipped int64) {
	if c == nil {
		return
	}
	c.PlayersUpserted.Add(float64(playersUpserted))
	c.RankingsWritten.WithLabelValues("inserted").Add(float64(rankingsInserted))
	c.RankingsWritten.WithLabelValues("skipped").Add(float64(rankingsSkipped))
}

// RecordRun counts a finished source run.
func (c *Collector) RecordRun(status model.SyncStatus, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(string(status)).Inc()
	c.RunDuration.Observe(elapsed.Seconds())
	if status == model.SyncStatusComplete {
		c.LastSuccess.SetToCurrentTime()
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Push sends every metric to the pushgateway at url under job, replacing the
// job's previous values. An empty url is a no-op.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if c == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return eris.Wrapf(err, "metrics: push to %s", url)
	}
	return nil
}
