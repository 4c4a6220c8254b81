package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/fide-ratings/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate_AppliesPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_init.sql"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sync_log`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs("002_sync_log.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_FailureReleasesLock(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS players`).WillReturnError(errors.New("permission denied"))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 001_init.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_LockFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WithArgs(migrationLockID).WillReturnError(errors.New("timeout"))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire migration advisory lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExistingFIDEIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT fide_id FROM players`).
		WillReturnRows(pgxmock.NewRows([]string{"fide_id"}).AddRow("1503014").AddRow("2016192"))

	ids, err := s.ExistingFIDEIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.True(t, ids.Has("1503014"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPlayers(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	birth := 1990

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_players"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_players"}, []string{"fide_id", "name", "birth_year", "updated_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("fide_id"\) DO UPDATE SET "name" = EXCLUDED."name", "birth_year" = EXCLUDED."birth_year", "updated_at" = EXCLUDED."updated_at"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertPlayers(context.Background(), []model.Player{
		{FIDEID: "1503014", Name: "Carlsen, Magnus", BirthYear: &birth},
		{FIDEID: "2016192", Name: "Nakamura, Hikaru"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertRankings_IgnoresConflicts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	date := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_rankings"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_rankings"},
		[]string{"fide_id", "rank", "rating", "federation", "scraped_date", "scraped_at", "data_source"}).
		WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("fide_id", "scraped_date"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.InsertRankings(context.Background(), []model.Ranking{
		{FIDEID: "1503014", Rating: 2839, Federation: "NOR", ScrapedDate: date, ScrapedAt: date, DataSource: model.DataSourceHistorical},
		{FIDEID: "2016192", Rating: 2802, Federation: "USA", ScrapedDate: date, ScrapedAt: date, DataSource: model.DataSourceHistorical},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertRankings_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := s.InsertRankings(context.Background(), []model.Ranking{{FIDEID: "1", Rating: 2500, DataSource: model.DataSourceHistorical}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert rankings")
}

func TestPostgresStore_GetPlayer_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT fide_id, name, birth_year, created_at, updated_at FROM players WHERE fide_id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetPlayer(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPlayer(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`FROM players WHERE fide_id = \$1`).
		WithArgs("1503014").
		WillReturnRows(pgxmock.NewRows([]string{"fide_id", "name", "birth_year", "created_at", "updated_at"}).
			AddRow("1503014", "Carlsen, Magnus", nil, now, now))

	p, err := s.GetPlayer(context.Background(), "1503014")
	require.NoError(t, err)
	assert.Equal(t, "Carlsen, Magnus", p.Name)
	assert.Nil(t, p.BirthYear)
	assert.Equal(t, now, p.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RankingsOn(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	date := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM rankings WHERE scraped_date = \$1 ORDER BY rating DESC, fide_id LIMIT \$2`).
		WithArgs(date, 10).
		WillReturnRows(pgxmock.NewRows([]string{"fide_id", "rank", "rating", "federation", "scraped_date", "scraped_at", "data_source"}).
			AddRow("1503014", nil, 2839, "NOR", date, date, "historical").
			AddRow("2016192", nil, 2802, "USA", date, date, "historical"))

	got, err := s.RankingsOn(context.Background(), date.Add(15*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2839, got[0].Rating)
	assert.Equal(t, model.DataSourceHistorical, got[1].DataSource)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PlayerRankings(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM rankings WHERE fide_id = \$1 ORDER BY scraped_date`).
		WithArgs("1503014").
		WillReturnRows(pgxmock.NewRows([]string{"fide_id", "rank", "rating", "federation", "scraped_date", "scraped_at", "data_source"}).
			AddRow("1503014", nil, 2831, "NOR", jan, jan, "historical").
			AddRow("1503014", nil, 2833, "NOR", feb, feb, "historical"))

	got, err := s.PlayerRankings(context.Background(), "1503014")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, feb, got[1].ScrapedDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SyncLifecycle(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO sync_log`).
		WithArgs(pgxmock.AnyArg(), "historical_data/standard_jan25frl.txt", pgxmock.AnyArg(), "historical").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.StartSync(ctx, model.SyncEntry{
		Source:     "historical_data/standard_jan25frl.txt",
		DataDate:   time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		DataSource: model.DataSourceHistorical,
	})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	mock.ExpectExec(`UPDATE sync_log\s+SET status = 'complete'`).
		WithArgs(int64(42), pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.CompleteSync(ctx, id, &model.SyncResult{RowsSynced: 42, Metadata: map[string]any{"valid": 50}}))

	mock.ExpectExec(`UPDATE sync_log SET status = 'failed'`).
		WithArgs("boom", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.FailSync(ctx, id, "boom"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSyncs(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2025, time.January, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM sync_log ORDER BY started_at DESC LIMIT \$1`).
		WithArgs(DefaultListLimit).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "data_date", "data_source", "status", "started_at", "completed_at", "rows_synced", "error", "metadata",
		}).AddRow("abc", "jan.txt", nil, "historical", "complete", started, nil, int64(12), nil, []byte(`{"valid":12}`)))

	entries, err := s.ListSyncs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.SyncStatusComplete, entries[0].Status)
	assert.Equal(t, int64(12), entries[0].RowsSynced)
	assert.Equal(t, float64(12), entries[0].Metadata["valid"])
	assert.True(t, entries[0].DataDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
