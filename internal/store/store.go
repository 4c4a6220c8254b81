// Package store persists players, rankings and the sync log in Postgres or
// SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fide-ratings/internal/model"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = eris.New("store: not found")

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 100

// Store defines the persistence interface for rating history.
type Store interface {
	// Ingestion
	ExistingFIDEIDs(ctx context.Context) (model.IDSet, error)
	UpsertPlayers(ctx context.Context, players []model.Player) (int64, error)
	InsertRankings(ctx context.Context, rankings []model.Ranking) (int64, error)

	// Reads
	GetPlayer(ctx context.Context, fideID string) (*model.Player, error)
	PlayerRankings(ctx context.Context, fideID string) ([]model.Ranking, error)
	RankingsOn(ctx context.Context, date time.Time, limit int) ([]model.Ranking, error)

	// Sync log
	StartSync(ctx context.Context, entry model.SyncEntry) (string, error)
	CompleteSync(ctx context.Context, id string, result *model.SyncResult) error
	FailSync(ctx context.Context, id string, errMsg string) error
	ListSyncs(ctx context.Context, limit int) ([]model.SyncEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
