package fidefile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fide-ratings/internal/fetcher"
)

// DefaultBaseURL is where FIDE publishes monthly rating list archives.
const DefaultBaseURL = "http://ratings.fide.com/download"

// ErrNotPublished is returned when the archive for a month does not exist
// upstream yet. FIDE usually publishes a few days into the month.
var ErrNotPublished = eris.New("fidefile: rating list not published yet")

// MonthCode formats t as FIDE's archive month code, e.g. "oct24".
func MonthCode(t time.Time) string {
	return strings.ToLower(t.Format("Jan")) + t.Format("06")
}

// ParseMonthCode parses a code like "oct24" into the first day of that month
// in UTC.
func ParseMonthCode(code string) (time.Time, error) {
	if len(code) != 5 {
		return time.Time{}, eris.Errorf("fidefile: invalid month code %q (want e.g. oct24)", code)
	}
	t, err := time.Parse("Jan06", strings.ToUpper(code[:1])+strings.ToLower(code[1:3])+code[3:])
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "fidefile: invalid month code %q", code)
	}
	return t, nil
}

// FirstOfMonth returns midnight UTC on the first day of t's month.
func FirstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween lists the first day of every month from from to to inclusive.
func MonthsBetween(from, to time.Time) []time.Time {
	var months []time.Time
	for m := FirstOfMonth(from); !m.After(FirstOfMonth(to)); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

// TextFileName is the name of the extracted standard list for a month.
func TextFileName(month time.Time) string {
	return fmt.Sprintf("standard_%sfrl.txt", MonthCode(month))
}

// ArchiveURL returns the download URL of the standard list archive for month.
func ArchiveURL(baseURL string, month time.Time) string {
	return fmt.Sprintf("%s/standard_%sfrl.zip", strings.TrimRight(baseURL, "/"), MonthCode(month))
}

// Downloader fetches monthly archives into a data directory.
type Downloader struct {
	fetcher     fetcher.Fetcher
	baseURL     string
	dir         string
	concurrency int
}

// NewDownloader creates a Downloader writing into dir.
func NewDownloader(f fetcher.Fetcher, baseURL, dir string, concurrency int) *Downloader {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Downloader{fetcher: f, baseURL: baseURL, dir: dir, concurrency: concurrency}
}

// Fetch downloads and extracts the standard list for month, removes the
// archive, and returns the path of the extracted text file.
func (d *Downloader) Fetch(ctx context.Context, month time.Time) (string, error) {
	log := zap.L().With(zap.String("component", "fidefile.download"), zap.String("month", MonthCode(month)))

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "fidefile: create data dir %s", d.dir)
	}

	url := ArchiveURL(d.baseURL, month)
	zipPath := filepath.Join(d.dir, fmt.Sprintf("standard_%sfrl.zip", MonthCode(month)))

	log.Info("downloading rating list", zap.String("url", url))
	n, err := d.fetcher.DownloadToFile(ctx, url, zipPath)
	if err != nil {
		if fetcher.IsNotFound(err) {
			return "", eris.Wrapf(ErrNotPublished, "fidefile: %s", MonthCode(month))
		}
		return "", eris.Wrapf(err, "fidefile: download %s", MonthCode(month))
	}
	defer os.Remove(zipPath) //nolint:errcheck

	path, err := fetcher.ExtractText(zipPath, d.dir, TextFileName(month))
	if err != nil {
		return "", eris.Wrapf(err, "fidefile: extract %s", MonthCode(month))
	}

	log.Info("rating list ready", zap.String("path", path), zap.Int64("archive_bytes", n))
	return path, nil
}

// FetchResult is the outcome of fetching one month.
type FetchResult struct {
	Month time.Time
	Path  string
	Err   error
}

// FetchRange fetches every month from from to to inclusive with bounded
// concurrency. A failed month does not stop the others; inspect each
// result's Err. The returned error is non-nil only if ctx was canceled.
func (d *Downloader) FetchRange(ctx context.Context, from, to time.Time) ([]FetchResult, error) {
	months := MonthsBetween(from, to)
	results := make([]FetchResult, len(months))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, m := range months {
		g.Go(func() error {
			path, err := d.Fetch(gctx, m)
			results[i] = FetchResult{Month: m, Path: path, Err: err}
			if err != nil {
				zap.L().Warn("fidefile: month fetch failed", zap.String("month", MonthCode(m)), zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
