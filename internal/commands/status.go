package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coopledger/coopledger/internal/domain"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ledger health: periods, equation checks, open faults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := cmd.Context()

			if err := app.store.Ping(ctx); err != nil {
				return fmt.Errorf("store unreachable: %w", err)
			}

			seq, err := app.store.Transactions().MaxSeq(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Ledger sequence: %d\n", seq)

			for _, basis := range []domain.Basis{domain.BasisBook, domain.BasisTax} {
				if err := app.balance.Check(ctx, basis); err != nil {
					fmt.Printf("%s world: EQUATION VIOLATION: %v\n", basis, err)
				} else {
					fmt.Printf("%s world: balanced\n", basis)
				}
				open, err := app.store.Faults().Open(ctx, basis)
				if err != nil {
					return err
				}
				for _, f := range open {
					fmt.Printf("  open fault %s since %s: %s\n",
						f.ID, f.DetectedAt.Format(time.RFC3339), f.Detail)
				}
			}

			periods, err := app.store.Periods().List(ctx)
			if err != nil {
				return err
			}
			for _, p := range periods {
				fmt.Printf("%-12s %s to %s  %s\n",
					p.Name, p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"), p.Status)
			}
			return nil
		},
	}
}
