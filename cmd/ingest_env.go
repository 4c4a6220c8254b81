package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/fide-ratings/internal/ingest"
	"github.com/sells-group/fide-ratings/internal/metrics"
	"github.com/sells-group/fide-ratings/internal/store"
)

// ingestEnv bundles what seed, update and upload share: the run lock, the
// migrated store, a seeder and the metrics collector.
type ingestEnv struct {
	Store   store.Store
	Seeder  *ingest.Seeder
	Metrics *metrics.Collector
	release func()
}

func initIngest(ctx context.Context) (*ingestEnv, error) {
	if err := cfg.Validate("ingest"); err != nil {
		return nil, err
	}

	release, err := acquireRunLock(cfg.Ingest.LockPath)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		release()
		return nil, err
	}

	collector := metrics.New()
	seeder := ingest.NewSeeder(st, ingest.SeederOptions{
		ChunkSize:    cfg.Ingest.ChunkSize,
		MaxBirthYear: cfg.Ingest.MaxBirthYear,
		RunLog:       st,
		Metrics:      collector,
		OnProgress: func(src ingest.Source, p ingest.Progress) {
			zap.L().Debug("chunk written",
				zap.String("source", src.String()),
				zap.String("pass", string(p.Pass)),
				zap.Int("processed", p.Processed),
				zap.Int("total", p.Total),
			)
		},
	})

	return &ingestEnv{Store: st, Seeder: seeder, Metrics: collector, release: release}, nil
}

// Close pushes metrics if configured, closes the store and releases the
// run lock.
func (e *ingestEnv) Close() {
	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		zap.L().Warn("metrics push failed", zap.Error(err))
	}

	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
	e.release()
}
