package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fide-ratings/internal/model"
)

// DefaultChunkSize is the number of records sent to the store per call.
const DefaultChunkSize = 100

// Pass identifies one of the two write phases.
type Pass string

const (
	PassPlayers  Pass = "players"
	PassRankings Pass = "rankings"
)

// Progress is reported after every successfully written chunk.
type Progress struct {
	Pass      Pass
	Processed int
	Total     int
}

// WriteOpts stamps every ranking written by one Write call.
type WriteOpts struct {
	ScrapedDate time.Time
	// ScrapedAt defaults to ScrapedDate when zero.
	ScrapedAt  time.Time
	DataSource model.DataSource
}

// WriteResult reports what a Write call persisted.
type WriteResult struct {
	PlayersUpserted  int64 `json:"players_upserted"`
	RankingsInserted int64 `json:"rankings_inserted"`
	// RankingsSkipped counts rankings not inserted because one already
	// existed for the same player and date.
	RankingsSkipped int64 `json:"rankings_skipped"`
	Chunks          int   `json:"chunks"`
}

// WriteError reports the chunk at which a Write stopped. Chunks before it
// were committed; nothing after it was attempted.
type WriteError struct {
	Pass Pass
	// Chunk is the 1-based index of the failed chunk within its pass.
	Chunk int
	// Processed is the number of records of this pass written before the
	// failure.
	Processed int
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ingest: %s pass failed at chunk %d after %d records: %v", e.Pass, e.Chunk, e.Processed, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// WriterOptions configures a Writer.
type WriterOptions struct {
	ChunkSize  int
	OnProgress func(Progress)
}

// Writer persists admitted records in two passes: every player first, then
// every ranking. A ranking is therefore never written before its player.
type Writer struct {
	store      Store
	chunkSize  int
	onProgress func(Progress)
	log        *zap.Logger
}

// NewWriter creates a Writer over store.
func NewWriter(store Store, opts WriterOptions) *Writer {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Writer{
		store:      store,
		chunkSize:  size,
		onProgress: opts.OnProgress,
		log:        zap.L().With(zap.String("component", "ingest.writer")),
	}
}

// ChunkSize returns the effective chunk size.
func (w *Writer) ChunkSize() int { return w.chunkSize }

// Write runs the identity pass then the observation pass over records. The
// first failing chunk stops the write and is returned as a *WriteError
// together with the partial result. Completed chunks are not rolled back.
func (w *Writer) Write(ctx context.Context, records []model.RawRecord, opts WriteOpts) (*WriteResult, error) {
	res := &WriteResult{}
	if opts.ScrapedDate.IsZero() {
		return res, eris.New("ingest: write: scraped date is required")
	}
	if _, err := model.ParseDataSource(string(opts.DataSource)); err != nil {
		return res, eris.Wrap(err, "ingest: write")
	}
	if len(records) == 0 {
		return res, nil
	}

	scrapedAt := opts.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = model.DateOnly(opts.ScrapedDate)
	}

	total := len(records)
	for i, start := 0, 0; start < total; i, start = i+1, start+w.chunkSize {
		end := min(start+w.chunkSize, total)
		if err := ctx.Err(); err != nil {
			return res, &WriteError{Pass: PassPlayers, Chunk: i + 1, Processed: start, Err: err}
		}
		n, err := w.store.UpsertPlayers(ctx, playersOf(records[start:end]))
		if err != nil {
			return res, &WriteError{Pass: PassPlayers, Chunk: i + 1, Processed: start, Err: err}
		}
		res.PlayersUpserted += n
		res.Chunks++
		w.progress(PassPlayers, end, total)
	}

	for i, start := 0, 0; start < total; i, start = i+1, start+w.chunkSize {
		end := min(start+w.chunkSize, total)
		if err := ctx.Err(); err != nil {
			return res, &WriteError{Pass: PassRankings, Chunk: i + 1, Processed: start, Err: err}
		}
		chunk := rankingsOf(records[start:end], opts.ScrapedDate, scrapedAt, opts.DataSource)
		n, err := w.store.InsertRankings(ctx, chunk)
		if err != nil {
			return res, &WriteError{Pass: PassRankings, Chunk: i + 1, Processed: start, Err: err}
		}
		res.RankingsInserted += n
		res.RankingsSkipped += int64(end-start) - n
		res.Chunks++
		w.progress(PassRankings, end, total)
	}

	w.log.Debug("write complete",
		zap.Int("records", total),
		zap.Int64("players_upserted", res.PlayersUpserted),
		zap.Int64("rankings_inserted", res.RankingsInserted),
		zap.Int64("rankings_skipped", res.RankingsSkipped),
	)
	return res, nil
}

func (w *Writer) progress(pass Pass, processed, total int) {
	w.log.Debug("chunk written", zap.String("pass", string(pass)), zap.Int("processed", processed), zap.Int("total", total))
	if w.onProgress != nil {
		w.onProgress(Progress{Pass: pass, Processed: processed, Total: total})
	}
}

// playersOf converts a chunk to players. A player repeated within the chunk
// is sent once, with the values of its last occurrence.
func playersOf(recs []model.RawRecord) []model.Player {
	out := make([]model.Player, 0, len(recs))
	pos := make(map[string]int, len(recs))
	for _, r := range recs {
		if i, ok := pos[r.FIDEID]; ok {
			out[i] = r.Player()
			continue
		}
		pos[r.FIDEID] = len(out)
		out = append(out, r.Player())
	}
	return out
}

// rankingsOf converts a chunk to rankings. A player repeated within the
// chunk is sent once, with its first occurrence, matching insert-if-absent
// semantics across chunks.
func rankingsOf(recs []model.RawRecord, date, at time.Time, source model.DataSource) []model.Ranking {
	out := make([]model.Ranking, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		if _, ok := seen[r.FIDEID]; ok {
			continue
		}
		seen[r.FIDEID] = struct{}{}
		out = append(out, r.Ranking(date, at, source))
	}
	return out
}
