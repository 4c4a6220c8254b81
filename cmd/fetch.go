package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fide-ratings/internal/fetcher"
	"github.com/sells-group/fide-ratings/internal/fidefile"
	"github.com/sells-group/fide-ratings/internal/ingest"
)

var (
	fetchFrom string
	fetchTo   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download monthly rating lists into the data dir",
	Long:  "Downloads standard rating list archives month by month, extracts the text file and removes the archive. Defaults to the Oct 2024 to Oct 2025 preset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		from, to, err := fetchRange(fetchFrom, fetchTo)
		if err != nil {
			return err
		}

		dl := newDownloader()
		results, err := dl.FetchRange(ctx, from, to)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		rows := make([][]string, 0, len(results))
		var failed int
		for _, r := range results {
			status := r.Path
			if r.Err != nil {
				failed++
				status = "failed: " + r.Err.Error()
				if errors.Is(r.Err, fidefile.ErrNotPublished) {
					status = "not published yet"
				}
			}
			rows = append(rows, []string{fidefile.MonthCode(r.Month), status})
		}
		fmt.Fprintln(os.Stdout, renderTable([]string{"MONTH", "RESULT"}, rows, nil))

		if failed > 0 {
			return eris.Errorf("fetch: %d of %d months failed", failed, len(results))
		}
		return nil
	},
}

// fetchRange parses --from/--to month codes, falling back to the preset.
func fetchRange(from, to string) (time.Time, time.Time, error) {
	start, end := ingest.PresetFrom, ingest.PresetTo
	var err error
	if from != "" {
		if start, err = fidefile.ParseMonthCode(from); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if to != "" {
		if end, err = fidefile.ParseMonthCode(to); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, eris.Errorf("fetch: --to %s is before --from %s", fidefile.MonthCode(end), fidefile.MonthCode(start))
	}
	return start, end, nil
}

func newDownloader() *fidefile.Downloader {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
	})
	zap.L().Debug("downloader configured",
		zap.String("base_url", cfg.Fetch.BaseURL),
		zap.String("data_dir", cfg.Ingest.DataDir),
		zap.Int("concurrency", cfg.Fetch.Concurrency),
	)
	return fidefile.NewDownloader(f, cfg.Fetch.BaseURL, cfg.Ingest.DataDir, cfg.Fetch.Concurrency)
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "first month code, e.g. oct24 (default preset start)")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "last month code, e.g. oct25 (default preset end)")
	rootCmd.AddCommand(fetchCmd)
}
