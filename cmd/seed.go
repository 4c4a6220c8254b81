package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fide-ratings/internal/ingest"
)

var (
	seedFile            string
	seedDate            string
	seedAll             bool
	seedManifest        string
	seedMinRating       int
	seedContinueOnError bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Ingest historical rating list files",
	Long: `Parses FIDE standard rating list extracts and records a dated rating
observation for every admitted player. Sources are processed oldest first.

Exactly one of --file/--date, --all or --manifest selects the sources.`,
	Example: `  fide-ratings seed --file historical_data/standard_jan25frl.txt --date 2025-01-01
  fide-ratings seed --all
  fide-ratings seed --manifest backfill.yaml --continue-on-error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sources, err := resolveSources(seedFile, seedDate, seedAll, seedManifest, cfg.Ingest.DataDir)
		if err != nil {
			return err
		}

		env, err := initIngest(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := ingest.RunOpts{MinRating: minRating(seedMinRating)}
		if seedContinueOnError {
			opts.OnFailure = func(src ingest.Source, err error) ingest.Decision {
				zap.L().Warn("continuing after failed source", zap.String("source", src.String()), zap.Error(err))
				return ingest.Continue
			}
		}

		summary, runErr := env.Seeder.Run(ctx, sources, opts)
		if summary != nil && len(summary.Runs) > 0 {
			fmt.Fprintln(os.Stdout, formatRuns(summary.Runs))
		}
		if runErr != nil {
			return runErr
		}

		totals := summary.Totals()
		zap.L().Info("seed complete",
			zap.Int("sources", len(summary.Runs)),
			zap.Int("failed", summary.Failed),
			zap.Int64("players_upserted", totals.PlayersUpserted),
			zap.Int64("rankings_inserted", totals.RankingsInserted),
			zap.Int64("rankings_skipped", totals.RankingsSkipped),
		)
		if summary.Failed > 0 {
			return eris.Errorf("seed: %d of %d sources failed", summary.Failed, len(summary.Runs))
		}
		return nil
	},
}

// resolveSources turns the seed flags into a source list. Exactly one
// selection mode must be given.
func resolveSources(file, date string, all bool, manifest, dataDir string) ([]ingest.Source, error) {
	modes := 0
	if file != "" || date != "" {
		modes++
	}
	if all {
		modes++
	}
	if manifest != "" {
		modes++
	}
	if modes != 1 {
		return nil, eris.New("seed: specify exactly one of --file/--date, --all or --manifest")
	}

	switch {
	case all:
		return ingest.DefaultPreset(dataDir), nil
	case manifest != "":
		return ingest.LoadManifest(manifest)
	default:
		if file == "" || date == "" {
			return nil, eris.New("seed: --file and --date must be given together")
		}
		src, err := ingest.ParseSource(file, date)
		if err != nil {
			return nil, err
		}
		return []ingest.Source{src}, nil
	}
}

// minRating returns the flag value, or the configured threshold when the
// flag was left at zero.
func minRating(flag int) int {
	if flag > 0 {
		return flag
	}
	return cfg.Ingest.MinRating
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "rating list file to ingest")
	seedCmd.Flags().StringVar(&seedDate, "date", "", "observation date of --file (YYYY-MM-DD)")
	seedCmd.Flags().BoolVar(&seedAll, "all", false, "ingest the monthly preset (Oct 2024 to Oct 2025) from the data dir")
	seedCmd.Flags().StringVar(&seedManifest, "manifest", "", "YAML manifest listing files and dates")
	seedCmd.Flags().IntVar(&seedMinRating, "min-rating", 0, "admission threshold for new players (default from config)")
	seedCmd.Flags().BoolVar(&seedContinueOnError, "continue-on-error", false, "keep going after a source fails")
	rootCmd.AddCommand(seedCmd)
}
