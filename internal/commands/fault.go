package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newFaultCommand() *cobra.Command {
	faultCmd := &cobra.Command{
		Use:   "fault",
		Short: "Consistency fault operations",
	}
	faultCmd.AddCommand(newFaultListCommand())
	faultCmd.AddCommand(newFaultResolveCommand())
	return faultCmd
}

func newFaultListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List consistency faults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			faults, err := app.store.Faults().List(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range faults {
				status := "OPEN"
				if f.Resolved() {
					status = "resolved by " + f.ResolvedBy
				}
				fmt.Printf("%s  %s world, seq %d, %s\n  %s\n",
					f.ID, f.Basis, f.Seq, status, f.Detail)
			}
			return nil
		},
	}
}

func newFaultResolveCommand() *cobra.Command {
	var by string
	var note string

	cmd := &cobra.Command{
		Use:   "resolve <fault-id>",
		Short: "Resolve a fault and re-open its basis world for postings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing fault id: %w", err)
			}
			if err := app.ledger.ResolveFault(cmd.Context(), id, by, note); err != nil {
				return err
			}
			fmt.Printf("Resolved %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "who resolved the fault (required)")
	_ = cmd.MarkFlagRequired("by")
	cmd.Flags().StringVar(&note, "note", "", "what was corrected")

	return cmd
}
