package ingest

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fide-ratings/internal/model"
)

// scrapedPlayer is one entry of a scraped top-list snapshot.
type scrapedPlayer struct {
	Rank       int         `json:"rank"`
	Name       string      `json:"name"`
	FIDEID     json.Number `json:"fide_id"`
	Federation string      `json:"federation"`
	Rating     int         `json:"rating"`
	BirthYear  *int        `json:"birth_year"`
}

// LoadScraped reads a JSON array of scraped top-list entries. Every entry
// must pass model.RawRecord validation with the given birth-year bound (zero
// means model.DefaultMaxBirthYear); the first invalid one fails the load.
func LoadScraped(path string, maxBirthYear int) ([]model.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read scraped snapshot %s", path)
	}

	var entries []scrapedPlayer
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse scraped snapshot %s", path)
	}

	records := make([]model.RawRecord, 0, len(entries))
	for i, e := range entries {
		rec := model.RawRecord{
			FIDEID:     e.FIDEID.String(),
			Name:       e.Name,
			Federation: e.Federation,
			Rating:     e.Rating,
			BirthYear:  e.BirthYear,
		}
		if e.Rank != 0 {
			rank := e.Rank
			rec.Rank = &rank
		}
		if err := rec.Validate(maxBirthYear); err != nil {
			return nil, eris.Wrapf(err, "ingest: scraped snapshot %s: entry %d", path, i+1)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Upload writes a scraped snapshot as today's observations with
// data_source=scraper. No admission filter is applied; the snapshot is
// already a top list.
func (s *Seeder) Upload(ctx context.Context, path string) (RunResult, error) {
	now := s.nowFunc().UTC()
	src := Source{Path: path, Date: model.DateOnly(now)}
	res := RunResult{Source: src}

	records, err := LoadScraped(path, s.opts.MaxBirthYear)
	if err != nil {
		res.Err = err
		return res, err
	}
	if len(records) == 0 {
		s.log.Warn("scraped snapshot is empty", zap.String("path", path))
		return res, nil
	}
	res.Stats.Valid = len(records)

	syncID, err := s.startSync(ctx, src, model.DataSourceScraper)
	if err != nil {
		res.Err = err
		return res, err
	}
	res.SyncID = syncID

	w := NewWriter(s.store, WriterOptions{ChunkSize: s.opts.ChunkSize})
	wr, err := w.Write(ctx, records, WriteOpts{
		ScrapedDate: src.Date,
		ScrapedAt:   now,
		DataSource:  model.DataSourceScraper,
	})
	if wr != nil {
		res.Write = *wr
	}
	res.Elapsed = s.nowFunc().Sub(now)
	res.Err = err
	s.finishSync(ctx, syncID, &res)

	status := model.SyncStatusComplete
	if err != nil {
		status = model.SyncStatusFailed
	}
	s.recordRun(status, res.Elapsed)
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordWrite(res.Write.PlayersUpserted, res.Write.RankingsInserted, res.Write.RankingsSkipped)
	}
	if err != nil {
		return res, err
	}

	s.log.Info("scraped snapshot uploaded",
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int64("rankings_inserted", res.Write.RankingsInserted),
		zap.Int64("rankings_skipped", res.Write.RankingsSkipped),
	)
	return res, nil
}
