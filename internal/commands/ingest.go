package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coopledger/coopledger/internal/logging"
	"github.com/coopledger/coopledger/internal/usecase/ingest"
)

func newIngestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Apply an NDJSON event feed to the ledger",
		Long: `Apply an NDJSON event feed to the ledger.

Each line is one event envelope with a type, a unique event_id, and a
payload. Events already processed are skipped, so re-running a file after
a partial failure completes the remainder.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening feed: %w", err)
			}
			defer file.Close()

			ctx := logging.WithLogger(cmd.Context(), app.logger)
			consumer := ingest.NewConsumer(app.store, app.capital, app.periods, app.metrics)
			summary, runErr := consumer.Run(ctx, ingest.NewNDJSONFeed(file))

			fmt.Printf("Processed %d, duplicates %d, rejected %d\n",
				summary.Processed, summary.Duplicates, summary.Rejected)
			return runErr
		},
	}
}
