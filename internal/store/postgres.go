package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fide-ratings/internal/db"
	"github.com/sells-group/fide-ratings/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID keys the advisory lock held while migrating.
const migrationLockID = 2500_1503014

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Migrate applies pending embedded migrations in lexicographic order under an
// advisory lock, recording each in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("postgres: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ExistingFIDEIDs(ctx context.Context) (model.IDSet, error) {
	rows, err := s.pool.Query(ctx, "SELECT fide_id FROM players")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query player ids")
	}
	defer rows.Close()

	ids := model.NewIDSet()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan player id")
		}
		ids.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate player ids")
	}
	return ids, nil
}

// UpsertPlayers writes players through a COPY-backed upsert. The batch must
// not repeat a fide_id.
func (s *PostgresStore) UpsertPlayers(ctx context.Context, players []model.Player) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(players))
	for i, p := range players {
		rows[i] = []any{p.FIDEID, p.Name, p.BirthYear, now}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "players",
		Columns:      []string{"fide_id", "name", "birth_year", "updated_at"},
		ConflictKeys: []string{"fide_id"},
		UpdateCols:   []string{"name", "birth_year", "updated_at"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert players")
	}
	return n, nil
}

// InsertRankings inserts rankings, leaving any existing row for the same
// (fide_id, scraped_date) untouched.
func (s *PostgresStore) InsertRankings(ctx context.Context, rankings []model.Ranking) (int64, error) {
	rows := make([][]any, len(rankings))
	for i, r := range rankings {
		rows[i] = []any{r.FIDEID, r.Rank, r.Rating, r.Federation, r.ScrapedDate, r.ScrapedAt, string(r.DataSource)}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "rankings",
		Columns:      []string{"fide_id", "rank", "rating", "federation", "scraped_date", "scraped_at", "data_source"},
		ConflictKeys: []string{"fide_id", "scraped_date"},
		Mode:         db.IgnoreOnConflict,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert rankings")
	}
	return n, nil
}

func (s *PostgresStore) GetPlayer(ctx context.Context, fideID string) (*model.Player, error) {
	var p model.Player
	err := s.pool.QueryRow(ctx,
		`SELECT fide_id, name, birth_year, created_at, updated_at FROM players WHERE fide_id = $1`,
		fideID,
	).Scan(&p.FIDEID, &p.Name, &p.BirthYear, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get player %s", fideID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get player %s", fideID)
	}
	return &p, nil
}

func (s *PostgresStore) PlayerRankings(ctx context.Context, fideID string) ([]model.Ranking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fide_id, rank, rating, federation, scraped_date, scraped_at, data_source
		 FROM rankings WHERE fide_id = $1 ORDER BY scraped_date`,
		fideID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: player rankings %s", fideID)
	}
	return collectRankings(rows)
}

func (s *PostgresStore) RankingsOn(ctx context.Context, date time.Time, limit int) ([]model.Ranking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fide_id, rank, rating, federation, scraped_date, scraped_at, data_source
		 FROM rankings WHERE scraped_date = $1 ORDER BY rating DESC, fide_id LIMIT $2`,
		model.DateOnly(date), listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: rankings on date")
	}
	return collectRankings(rows)
}

func collectRankings(rows pgx.Rows) ([]model.Ranking, error) {
	defer rows.Close()

	var out []model.Ranking
	for rows.Next() {
		var r model.Ranking
		var ds string
		if err := rows.Scan(&r.FIDEID, &r.Rank, &r.Rating, &r.Federation, &r.ScrapedDate, &r.ScrapedAt, &ds); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ranking")
		}
		r.DataSource = model.DataSource(ds)
		r.ScrapedDate = model.DateOnly(r.ScrapedDate)
		r.ScrapedAt = r.ScrapedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) StartSync(ctx context.Context, entry model.SyncEntry) (string, error) {
	id := uuid.New().String()
	var dataDate *time.Time
	if !entry.DataDate.IsZero() {
		d := model.DateOnly(entry.DataDate)
		dataDate = &d
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_log (id, source, data_date, data_source, status, started_at)
		 VALUES ($1, $2, $3, $4, 'running', now())`,
		id, entry.Source, dataDate, string(entry.DataSource),
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: start sync for %s", entry.Source)
	}
	return id, nil
}

func (s *PostgresStore) CompleteSync(ctx context.Context, id string, result *model.SyncResult) error {
	var metaJSON []byte
	rowsSynced := int64(0)
	if result != nil {
		rowsSynced = result.RowsSynced
		if result.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(result.Metadata)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal sync metadata")
			}
		}
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE sync_log
		 SET status = 'complete', completed_at = now(), rows_synced = $1, metadata = $2
		 WHERE id = $3`,
		rowsSynced, metaJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sync %s", id)
	}
	return nil
}

func (s *PostgresStore) FailSync(ctx context.Context, id string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = 'failed', completed_at = now(), error = $1 WHERE id = $2`,
		errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail sync %s", id)
	}
	return nil
}

func (s *PostgresStore) ListSyncs(ctx context.Context, limit int) ([]model.SyncEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, data_date, data_source, status, started_at, completed_at, rows_synced, error, metadata
		 FROM sync_log ORDER BY started_at DESC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list syncs")
	}
	defer rows.Close()

	var entries []model.SyncEntry
	for rows.Next() {
		var e model.SyncEntry
		var dataDate *time.Time
		var ds, status string
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Source, &dataDate, &ds, &status, &e.StartedAt, &e.CompletedAt, &e.RowsSynced, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync entry")
		}
		if dataDate != nil {
			e.DataDate = model.DateOnly(*dataDate)
		}
		e.DataSource = model.DataSource(ds)
		e.Status = model.SyncStatus(status)
		if errStr != nil {
			e.Error = *errStr
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
