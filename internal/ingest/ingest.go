// Package ingest admits parsed rating records and persists them as players
// and dated rankings, one source file at a time in chronological order.
package ingest

import (
	"context"
	"time"

	"github.com/sells-group/fide-ratings/internal/fidefile"
	"github.com/sells-group/fide-ratings/internal/model"
)

// IDSet is the existing-identity snapshot consulted by the admission filter.
type IDSet = model.IDSet

// Store is the persistence surface the ingester writes through.
type Store interface {
	// ExistingFIDEIDs returns every fide_id currently in players.
	ExistingFIDEIDs(ctx context.Context) (model.IDSet, error)
	// UpsertPlayers inserts players, overwriting name and birth_year of
	// existing rows. Returns rows written.
	UpsertPlayers(ctx context.Context, players []model.Player) (int64, error)
	// InsertRankings inserts rankings whose (fide_id, scraped_date) is not
	// yet present and leaves existing rows untouched. Returns rows inserted.
	InsertRankings(ctx context.Context, rankings []model.Ranking) (int64, error)
}

// RunLog records ingestion runs. The store backends implement it.
type RunLog interface {
	StartSync(ctx context.Context, entry model.SyncEntry) (string, error)
	CompleteSync(ctx context.Context, id string, result *model.SyncResult) error
	FailSync(ctx context.Context, id string, errMsg string) error
}

// Metrics receives per-source and per-run observations.
type Metrics interface {
	RecordParse(stats fidefile.Stats)
	RecordWrite(playersUpserted, rankingsInserted, rankingsSkipped int64)
	RecordRun(status model.SyncStatus, elapsed time.Duration)
}
