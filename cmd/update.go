package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fide-ratings/internal/fidefile"
	"github.com/sells-group/fide-ratings/internal/ingest"
)

var updateMinRating int

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch and ingest the current month's rating list",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		month := fidefile.FirstOfMonth(time.Now())
		res, err := runUpdate(ctx, month, newDownloader().Fetch)
		if res != nil {
			fmt.Fprintln(os.Stdout, formatRuns([]ingest.RunResult{*res}))
		}
		return err
	},
}

// monthFetcher downloads one month's list and returns the extracted path.
type monthFetcher func(ctx context.Context, month time.Time) (string, error)

// runUpdate takes the run lock, fetches month into the data dir and seeds
// it. The download happens under the lock so a concurrent seed never reads
// a half-written file. A month not yet published yields a nil result and no
// error.
func runUpdate(ctx context.Context, month time.Time, fetch monthFetcher) (*ingest.RunResult, error) {
	env, err := initIngest(ctx)
	if err != nil {
		return nil, err
	}
	defer env.Close()

	path, err := fetch(ctx, month)
	if errors.Is(err, fidefile.ErrNotPublished) {
		zap.L().Info("rating list not published yet", zap.String("month", fidefile.MonthCode(month)))
		fmt.Fprintf(os.Stdout, "%s: not published yet\n", fidefile.MonthCode(month))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	src := ingest.Source{Path: path, Date: month}
	res, err := env.Seeder.SeedSource(ctx, src, minRating(updateMinRating))
	return &res, err
}

func init() {
	updateCmd.Flags().IntVar(&updateMinRating, "min-rating", 0, "admission threshold for new players (default from config)")
	rootCmd.AddCommand(updateCmd)
}
