package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/fide-ratings/internal/ingest"
)

var uploadFile string

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Record a scraped top-list snapshot as today's observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initIngest(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Seeder.Upload(ctx, uploadFile)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, formatRuns([]ingest.RunResult{res}))
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadFile, "file", "rankings_latest.json", "scraped snapshot (JSON array)")
	rootCmd.AddCommand(uploadCmd)
}
