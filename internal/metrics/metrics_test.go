package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fide-ratings/internal/fidefile"
	"github.com/sells-group/fide-ratings/internal/model"
)

func TestCollector_Records(t *testing.T) {
	c := New()

	c.RecordParse(fidefile.Stats{Valid: 10, SkippedInvalid: 2, SkippedLowRating: 7})
	c.RecordWrite(3, 3, 1)
	c.RecordRun(model.SyncStatusComplete, 2*time.Second)
	c.RecordRun(model.SyncStatusFailed, time.Second)

	assert.Equal(t, float64(10), testutil.ToFloat64(c.RecordsParsed.WithLabelValues("valid")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.RecordsParsed.WithLabelValues("invalid")))
	assert.Equal(t, float64(7), testutil.ToFloat64(c.RecordsParsed.WithLabelValues("low_rating")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.PlayersUpserted))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.RankingsWritten.WithLabelValues("skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Runs.WithLabelValues("failed")))
	assert.Greater(t, testutil.ToFloat64(c.LastSuccess), float64(0))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.RecordParse(fidefile.Stats{Valid: 1})
	c.RecordWrite(1, 1, 0)
	c.RecordRun(model.SyncStatusComplete, time.Second)
	assert.NoError(t, c.Push(context.Background(), "http://unused", "job"))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.RecordWrite(5, 4, 1)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fide_rankings_total{outcome="inserted"} 4`)
}

func TestCollector_Push(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New()
	c.RecordParse(fidefile.Stats{Valid: 3})
	require.NoError(t, c.Push(context.Background(), srv.URL, "fide_ratings"))

	assert.Equal(t, "/metrics/job/fide_ratings", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestCollector_PushDisabled(t *testing.T) {
	assert.NoError(t, New().Push(context.Background(), "", "fide_ratings"))
}

func TestCollector_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "fide_ratings")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "metrics: push"))
}
