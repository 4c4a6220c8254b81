package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fide-ratings/internal/model"
)

// Column formats. Fixed-width timestamps keep lexicographic and
// chronological order the same.
const (
	sqliteDate = "2006-01-02"
	sqliteTime = "2006-01-02T15:04:05.000000Z"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode
// and foreign keys. The store uses a single connection so the per-connection
// pragmas always apply.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS players (
	fide_id    TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	birth_year INTEGER,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rankings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	fide_id      TEXT NOT NULL REFERENCES players(fide_id),
	rank         INTEGER,
	rating       INTEGER NOT NULL,
	federation   TEXT NOT NULL DEFAULT '',
	scraped_date TEXT NOT NULL,
	scraped_at   TEXT NOT NULL,
	data_source  TEXT NOT NULL CHECK (data_source IN ('scraper', 'historical')),
	UNIQUE (fide_id, scraped_date)
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	data_date    TEXT,
	data_source  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	rows_synced  INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_rankings_scraped_date ON rankings(scraped_date, rating DESC);
CREATE INDEX IF NOT EXISTS idx_sync_log_started_at ON sync_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ExistingFIDEIDs(ctx context.Context) (model.IDSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fide_id FROM players`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query player ids")
	}
	defer rows.Close() //nolint:errcheck

	ids := model.NewIDSet()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan player id")
		}
		ids.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate player ids")
	}
	return ids, nil
}

// UpsertPlayers inserts players in one transaction, overwriting name and
// birth_year of existing rows.
func (s *SQLiteStore) UpsertPlayers(ctx context.Context, players []model.Player) (int64, error) {
	if len(players) == 0 {
		return 0, nil
	}
	now := time.Now().UTC().Format(sqliteTime)
	return s.execBatch(ctx, "upsert players",
		`INSERT INTO players (fide_id, name, birth_year, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(fide_id) DO UPDATE SET
			name = excluded.name,
			birth_year = excluded.birth_year,
			updated_at = excluded.updated_at`,
		len(players),
		func(i int) []any {
			p := players[i]
			return []any{p.FIDEID, p.Name, nullInt(p.BirthYear), now, now}
		},
	)
}

// InsertRankings inserts rankings in one transaction, leaving any existing
// row for the same (fide_id, scraped_date) untouched.
func (s *SQLiteStore) InsertRankings(ctx context.Context, rankings []model.Ranking) (int64, error) {
	if len(rankings) == 0 {
		return 0, nil
	}
	return s.execBatch(ctx, "insert rankings",
		`INSERT INTO rankings (fide_id, rank, rating, federation, scraped_date, scraped_at, data_source)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fide_id, scraped_date) DO NOTHING`,
		len(rankings),
		func(i int) []any {
			r := rankings[i]
			return []any{
				r.FIDEID, nullInt(r.Rank), r.Rating, r.Federation,
				r.ScrapedDate.UTC().Format(sqliteDate),
				r.ScrapedAt.UTC().Format(sqliteTime),
				string(r.DataSource),
			}
		},
	)
}

// execBatch runs one prepared statement n times in a transaction and sums the
// affected rows.
func (s *SQLiteStore) execBatch(ctx context.Context, op, query string, n int, args func(i int) []any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: begin tx", op)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: prepare", op)
	}
	defer stmt.Close() //nolint:errcheck

	var total int64
	for i := 0; i < n; i++ {
		res, err := stmt.ExecContext(ctx, args(i)...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: %s: row %d", op, i)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: %s: rows affected", op)
		}
		total += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: commit", op)
	}
	return total, nil
}

func (s *SQLiteStore) GetPlayer(ctx context.Context, fideID string) (*model.Player, error) {
	var p model.Player
	var birth sql.NullInt64
	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT fide_id, name, birth_year, created_at, updated_at FROM players WHERE fide_id = ?`,
		fideID,
	).Scan(&p.FIDEID, &p.Name, &birth, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get player %s", fideID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get player %s", fideID)
	}
	p.BirthYear = intPtr(birth)
	p.CreatedAt, _ = time.Parse(sqliteTime, created)
	p.UpdatedAt, _ = time.Parse(sqliteTime, updated)
	return &p, nil
}

func (s *SQLiteStore) PlayerRankings(ctx context.Context, fideID string) ([]model.Ranking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fide_id, rank, rating, federation, scraped_date, scraped_at, data_source
		 FROM rankings WHERE fide_id = ? ORDER BY scraped_date`,
		fideID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: player rankings %s", fideID)
	}
	return scanSQLiteRankings(rows)
}

func (s *SQLiteStore) RankingsOn(ctx context.Context, date time.Time, limit int) ([]model.Ranking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fide_id, rank, rating, federation, scraped_date, scraped_at, data_source
		 FROM rankings WHERE scraped_date = ? ORDER BY rating DESC, fide_id LIMIT ?`,
		model.DateOnly(date).Format(sqliteDate), listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rankings on date")
	}
	return scanSQLiteRankings(rows)
}

func scanSQLiteRankings(rows *sql.Rows) ([]model.Ranking, error) {
	defer rows.Close() //nolint:errcheck

	var out []model.Ranking
	for rows.Next() {
		var r model.Ranking
		var rank sql.NullInt64
		var date, at, ds string
		if err := rows.Scan(&r.FIDEID, &rank, &r.Rating, &r.Federation, &date, &at, &ds); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ranking")
		}
		var err error
		if r.ScrapedDate, err = time.Parse(sqliteDate, date); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse scraped_date %q", date)
		}
		if r.ScrapedAt, err = time.Parse(sqliteTime, at); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse scraped_at %q", at)
		}
		r.Rank = intPtr(rank)
		r.DataSource = model.DataSource(ds)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) StartSync(ctx context.Context, entry model.SyncEntry) (string, error) {
	id := uuid.New().String()
	var dataDate any
	if !entry.DataDate.IsZero() {
		dataDate = entry.DataDate.UTC().Format(sqliteDate)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (id, source, data_date, data_source, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, entry.Source, dataDate, string(entry.DataSource), string(model.SyncStatusRunning),
		time.Now().UTC().Format(sqliteTime),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: start sync for %s", entry.Source)
	}
	return id, nil
}

func (s *SQLiteStore) CompleteSync(ctx context.Context, id string, result *model.SyncResult) error {
	var meta any
	rowsSynced := int64(0)
	if result != nil {
		rowsSynced = result.RowsSynced
		if result.Metadata != nil {
			b, err := json.Marshal(result.Metadata)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal sync metadata")
			}
			meta = string(b)
		}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, rows_synced = ?, metadata = ? WHERE id = ?`,
		string(model.SyncStatusComplete), time.Now().UTC().Format(sqliteTime), rowsSynced, meta, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sync %s", id)
	}
	return checkRowsAffected(res, "sync", id)
}

func (s *SQLiteStore) FailSync(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.SyncStatusFailed), time.Now().UTC().Format(sqliteTime), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail sync %s", id)
	}
	return checkRowsAffected(res, "sync", id)
}

func (s *SQLiteStore) ListSyncs(ctx context.Context, limit int) ([]model.SyncEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, data_date, data_source, status, started_at, completed_at, rows_synced, error, metadata
		 FROM sync_log ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list syncs")
	}
	defer rows.Close() //nolint:errcheck

	var entries []model.SyncEntry
	for rows.Next() {
		var e model.SyncEntry
		var dataDate, completedAt, errStr, meta sql.NullString
		var ds, status, startedAt string
		if err := rows.Scan(&e.ID, &e.Source, &dataDate, &ds, &status, &startedAt, &completedAt, &e.RowsSynced, &errStr, &meta); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync entry")
		}
		e.DataSource = model.DataSource(ds)
		e.Status = model.SyncStatus(status)
		e.StartedAt, _ = time.Parse(sqliteTime, startedAt)
		if dataDate.Valid {
			e.DataDate, _ = time.Parse(sqliteDate, dataDate.String)
		}
		if completedAt.Valid {
			if t, err := time.Parse(sqliteTime, completedAt.String); err == nil {
				e.CompletedAt = &t
			}
		}
		e.Error = errStr.String
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
