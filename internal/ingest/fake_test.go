package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sells-group/fide-ratings/internal/fidefile"
	"github.com/sells-group/fide-ratings/internal/model"
)

type rankingKey struct {
	id   string
	date time.Time
}

// memStore is an in-memory Store with the same conflict semantics as the
// database backends.
type memStore struct {
	mu       sync.Mutex
	players  map[string]model.Player
	rankings map[rankingKey]model.Ranking
	order    []rankingKey

	playerCalls  [][]model.Player
	rankingCalls [][]model.Ranking
	snapshots    int

	failPlayersAt  int // 1-based call index, 0 = never
	failRankingsAt int
	failErr        error
}

func newMemStore() *memStore {
	return &memStore{
		players:  make(map[string]model.Player),
		rankings: make(map[rankingKey]model.Ranking),
	}
}

func (m *memStore) ExistingFIDEIDs(context.Context) (model.IDSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
	ids := model.NewIDSet()
	for id := range m.players {
		ids.Add(id)
	}
	return ids, nil
}

func (m *memStore) UpsertPlayers(_ context.Context, players []model.Player) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerCalls = append(m.playerCalls, players)
	if m.failPlayersAt == len(m.playerCalls) {
		return 0, m.failErr
	}
	for _, p := range players {
		m.players[p.FIDEID] = p
	}
	return int64(len(players)), nil
}

func (m *memStore) InsertRankings(_ context.Context, rankings []model.Ranking) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rankingCalls = append(m.rankingCalls, rankings)
	if m.failRankingsAt == len(m.rankingCalls) {
		return 0, m.failErr
	}
	var n int64
	for _, r := range rankings {
		if _, ok := m.players[r.FIDEID]; !ok {
			return n, fmt.Errorf("foreign key violation: no player %s", r.FIDEID)
		}
		k := rankingKey{r.FIDEID, r.ScrapedDate}
		if _, ok := m.rankings[k]; ok {
			continue
		}
		m.rankings[k] = r
		m.order = append(m.order, k)
		n++
	}
	return n, nil
}

func (m *memStore) ranking(id string, date time.Time) (model.Ranking, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rankings[rankingKey{id, date}]
	return r, ok
}

// memRunLog records sync log calls.
type memRunLog struct {
	started   []model.SyncEntry
	completed map[string]*model.SyncResult
	failed    map[string]string
}

func newMemRunLog() *memRunLog {
	return &memRunLog{completed: map[string]*model.SyncResult{}, failed: map[string]string{}}
}

func (l *memRunLog) StartSync(_ context.Context, e model.SyncEntry) (string, error) {
	l.started = append(l.started, e)
	return e.DataDate.Format(DateLayout), nil
}

func (l *memRunLog) CompleteSync(_ context.Context, id string, r *model.SyncResult) error {
	l.completed[id] = r
	return nil
}

func (l *memRunLog) FailSync(_ context.Context, id string, msg string) error {
	l.failed[id] = msg
	return nil
}

// memMetrics counts observations.
type memMetrics struct {
	parsed   fidefile.Stats
	inserted int64
	runs     map[model.SyncStatus]int
}

func (m *memMetrics) RecordParse(s fidefile.Stats) {
	m.parsed.Valid += s.Valid
	m.parsed.SkippedInvalid += s.SkippedInvalid
	m.parsed.SkippedLowRating += s.SkippedLowRating
}

func (m *memMetrics) RecordWrite(_, inserted, _ int64) { m.inserted += inserted }

func (m *memMetrics) RecordRun(status model.SyncStatus, _ time.Duration) {
	if m.runs == nil {
		m.runs = map[model.SyncStatus]int{}
	}
	m.runs[status]++
}
