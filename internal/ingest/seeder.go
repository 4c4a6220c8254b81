package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fide-ratings/internal/fidefile"
	"github.com/sells-group/fide-ratings/internal/model"
)

// Decision tells the Seeder what to do after a source fails.
type Decision int

const (
	// Abort stops the run. It is the zero value.
	Abort Decision = iota
	// Continue moves on to the next source.
	Continue
)

// FailurePolicy is consulted once per failed source.
type FailurePolicy func(src Source, err error) Decision

// AlwaysContinue is a FailurePolicy that never aborts.
func AlwaysContinue(Source, error) Decision { return Continue }

// ErrAborted is matched by the error Run returns when a failure policy
// aborted the run.
var ErrAborted = eris.New("ingest: run aborted")

// AbortError carries the failure that caused an abort.
type AbortError struct {
	Source Source
	Err    error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("ingest: run aborted at %s: %v", e.Source, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Is reports a match against ErrAborted.
func (e *AbortError) Is(target error) bool { return target == ErrAborted }

// RunOpts configures one Run.
type RunOpts struct {
	// MinRating is the admission threshold for new players. Zero means
	// DefaultMinRating.
	MinRating int
	// OnFailure decides whether to continue after a failed source. Nil
	// aborts on the first failure.
	OnFailure FailurePolicy
}

// RunResult describes the ingestion of one source.
type RunResult struct {
	Source          Source         `json:"source"`
	SyncID          string         `json:"sync_id,omitempty"`
	Stats           fidefile.Stats `json:"stats"`
	NewPlayers      int            `json:"new_players"`
	ExistingPlayers int            `json:"existing_players"`
	Write           WriteResult    `json:"write"`
	Elapsed         time.Duration  `json:"elapsed"`
	Err             error          `json:"-"`
}

// Summary aggregates a Run.
type Summary struct {
	Runs    []RunResult `json:"runs"`
	Failed  int         `json:"failed"`
	Aborted bool        `json:"aborted"`
}

// Totals sums the write results of all runs.
func (s *Summary) Totals() WriteResult {
	var t WriteResult
	for _, r := range s.Runs {
		t.PlayersUpserted += r.Write.PlayersUpserted
		t.RankingsInserted += r.Write.RankingsInserted
		t.RankingsSkipped += r.Write.RankingsSkipped
		t.Chunks += r.Write.Chunks
	}
	return t
}

// SeederOptions configures a Seeder. RunLog and Metrics are optional.
type SeederOptions struct {
	ChunkSize    int
	MaxBirthYear int
	RunLog       RunLog
	Metrics      Metrics
	OnProgress   func(Source, Progress)
}

// Seeder ingests rating list files into the store in date order.
type Seeder struct {
	store   Store
	opts    SeederOptions
	log     *zap.Logger
	nowFunc func() time.Time
}

// NewSeeder creates a Seeder over store.
func NewSeeder(store Store, opts SeederOptions) *Seeder {
	return &Seeder{
		store:   store,
		opts:    opts,
		log:     zap.L().With(zap.String("component", "ingest.seeder")),
		nowFunc: time.Now,
	}
}

// Run ingests sources in ascending date order regardless of input order.
// Every source is checked before anything is written; an unusable source
// fails the whole run with a *SourceError. After a source fails, OnFailure
// decides whether to continue; an aborted run returns an error matching
// ErrAborted. A run that continued past failures returns a nil error and
// reports them in the Summary.
func (s *Seeder) Run(ctx context.Context, sources []Source, opts RunOpts) (*Summary, error) {
	summary := &Summary{}

	for _, src := range sources {
		if err := src.Check(); err != nil {
			return summary, err
		}
	}

	ordered := slices.Clone(sources)
	slices.SortStableFunc(ordered, func(a, b Source) int { return a.Date.Compare(b.Date) })

	minRating := opts.MinRating
	if minRating == 0 {
		minRating = DefaultMinRating
	}

	s.log.Info("starting run", zap.Int("sources", len(ordered)), zap.Int("min_rating", minRating))
	started := s.nowFunc()

	for _, src := range ordered {
		if err := ctx.Err(); err != nil {
			summary.Aborted = true
			return summary, eris.Wrap(err, "ingest: run canceled")
		}

		res, err := s.SeedSource(ctx, src, minRating)
		summary.Runs = append(summary.Runs, res)
		if err == nil {
			continue
		}

		summary.Failed++
		decision := Abort
		if opts.OnFailure != nil && !errors.Is(err, context.Canceled) {
			decision = opts.OnFailure(src, err)
		}
		if decision == Abort {
			summary.Aborted = true
			s.log.Error("run aborted", zap.String("source", src.String()), zap.Error(err))
			return summary, &AbortError{Source: src, Err: err}
		}
		s.log.Warn("source failed, continuing", zap.String("source", src.String()), zap.Error(err))
	}

	totals := summary.Totals()
	s.log.Info("run complete",
		zap.Int("sources", len(ordered)),
		zap.Int("failed", summary.Failed),
		zap.Int64("players_upserted", totals.PlayersUpserted),
		zap.Int64("rankings_inserted", totals.RankingsInserted),
		zap.Duration("elapsed", s.nowFunc().Sub(started)),
	)
	return summary, nil
}

// SeedSource ingests a single source: snapshot existing identities, parse,
// admit, and write with data_source=historical. Observations are stamped
// with the source date at midnight UTC.
func (s *Seeder) SeedSource(ctx context.Context, src Source, minRating int) (RunResult, error) {
	res := RunResult{Source: src}
	start := s.nowFunc()
	log := s.log.With(zap.String("source", src.String()))

	syncID, err := s.startSync(ctx, src, model.DataSourceHistorical)
	if err != nil {
		res.Err = err
		return res, err
	}
	res.SyncID = syncID

	err = s.seed(ctx, src, minRating, &res)
	res.Elapsed = s.nowFunc().Sub(start)

	if err != nil {
		res.Err = err
		s.finishSync(ctx, syncID, &res)
		s.recordRun(model.SyncStatusFailed, res.Elapsed)
		return res, err
	}

	s.finishSync(ctx, syncID, &res)
	s.recordRun(model.SyncStatusComplete, res.Elapsed)
	log.Info("source ingested",
		zap.Int("valid", res.Stats.Valid),
		zap.Int("skipped_invalid", res.Stats.SkippedInvalid),
		zap.Int("skipped_low_rating", res.Stats.SkippedLowRating),
		zap.Int("new_players", res.NewPlayers),
		zap.Int("existing_players", res.ExistingPlayers),
		zap.Int64("rankings_inserted", res.Write.RankingsInserted),
		zap.Int64("rankings_skipped", res.Write.RankingsSkipped),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (s *Seeder) seed(ctx context.Context, src Source, minRating int, res *RunResult) error {
	existing, err := s.store.ExistingFIDEIDs(ctx)
	if err != nil {
		return eris.Wrapf(err, "ingest: load existing players for %s", src)
	}

	records, stats, err := fidefile.ParseFile(src.Path, fidefile.Options{MaxBirthYear: s.opts.MaxBirthYear})
	if err != nil {
		res.Stats = stats
		return eris.Wrapf(err, "ingest: parse %s", src)
	}

	filter := NewFilter(minRating, existing, &stats)
	admitted := filter.Apply(records)
	res.Stats = stats
	res.NewPlayers = filter.NewPlayers
	res.ExistingPlayers = filter.ExistingPlayers
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordParse(stats)
	}

	var onProgress func(Progress)
	if s.opts.OnProgress != nil {
		onProgress = func(p Progress) { s.opts.OnProgress(src, p) }
	}
	w := NewWriter(s.store, WriterOptions{ChunkSize: s.opts.ChunkSize, OnProgress: onProgress})

	date := model.DateOnly(src.Date)
	wr, err := w.Write(ctx, admitted, WriteOpts{
		ScrapedDate: date,
		ScrapedAt:   date,
		DataSource:  model.DataSourceHistorical,
	})
	if wr != nil {
		res.Write = *wr
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordWrite(wr.PlayersUpserted, wr.RankingsInserted, wr.RankingsSkipped)
		}
	}
	return err
}

func (s *Seeder) startSync(ctx context.Context, src Source, ds model.DataSource) (string, error) {
	if s.opts.RunLog == nil {
		return "", nil
	}
	id, err := s.opts.RunLog.StartSync(ctx, model.SyncEntry{
		Source:     src.Path,
		DataDate:   model.DateOnly(src.Date),
		DataSource: ds,
	})
	if err != nil {
		return "", eris.Wrapf(err, "ingest: start sync for %s", src)
	}
	return id, nil
}

// finishSync records the outcome. A sync log failure is logged but does not
// change the outcome of the source.
func (s *Seeder) finishSync(ctx context.Context, id string, res *RunResult) {
	if s.opts.RunLog == nil || id == "" {
		return
	}
	var err error
	if res.Err != nil {
		err = s.opts.RunLog.FailSync(context.WithoutCancel(ctx), id, res.Err.Error())
	} else {
		err = s.opts.RunLog.CompleteSync(ctx, id, &model.SyncResult{
			RowsSynced: res.Write.RankingsInserted,
			Metadata:   RunMetadata(res.Stats, res.NewPlayers, res.ExistingPlayers, res.Write),
		})
	}
	if err != nil {
		s.log.Warn("failed to record sync outcome", zap.String("sync_id", id), zap.Error(err))
	}
}

func (s *Seeder) recordRun(status model.SyncStatus, elapsed time.Duration) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordRun(status, elapsed)
	}
}

// RunMetadata is the sync_log metadata recorded for a completed run.
func RunMetadata(stats fidefile.Stats, newPlayers, existingPlayers int, wr WriteResult) map[string]any {
	return map[string]any{
		"valid":              stats.Valid,
		"skipped_invalid":    stats.SkippedInvalid,
		"skipped_low_rating": stats.SkippedLowRating,
		"new_players":        newPlayers,
		"existing_players":   existingPlayers,
		"players_upserted":   wr.PlayersUpserted,
		"rankings_inserted":  wr.RankingsInserted,
		"rankings_skipped":   wr.RankingsSkipped,
	}
}
