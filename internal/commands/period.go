package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coopledger/coopledger/internal/domain"
)

func newPeriodCommand() *cobra.Command {
	periodCmd := &cobra.Command{
		Use:   "period",
		Short: "Period lifecycle operations",
	}
	periodCmd.AddCommand(newPeriodOpenCommand())
	periodCmd.AddCommand(newPeriodCloseCommand())
	periodCmd.AddCommand(newPeriodReopenCommand())
	periodCmd.AddCommand(newPeriodLockCommand())
	periodCmd.AddCommand(newPeriodStatusCommand())
	periodCmd.AddCommand(newPeriodListCommand())
	return periodCmd
}

func newPeriodOpenCommand() *cobra.Command {
	var name string
	var start string
	var end string

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a new accounting period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			startAt, err := time.Parse("2006-01-02", start)
			if err != nil {
				return fmt.Errorf("parsing --start: %w", err)
			}
			endAt, err := time.Parse("2006-01-02", end)
			if err != nil {
				return fmt.Errorf("parsing --end: %w", err)
			}
			period, err := app.periods.Open(cmd.Context(), name, startAt, endAt)
			if err != nil {
				return err
			}
			fmt.Printf("Opened %s: %s to %s\n",
				period.Name, period.Start.Format("2006-01-02"), period.End.Format("2006-01-02"))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "period name, e.g. FY2026 (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&start, "start", "", "start date, inclusive (YYYY-MM-DD, required)")
	_ = cmd.MarkFlagRequired("start")
	cmd.Flags().StringVar(&end, "end", "", "end date, exclusive (YYYY-MM-DD, required)")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func newPeriodCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close <period>",
		Short: "Run or resume the close sequence for a period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			period, err := app.resolvePeriod(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			state, err := app.periods.Close(cmd.Context(), period.ID)
			if errors.Is(err, domain.ErrAwaitingApproval) {
				fmt.Printf("Close of %s parked at %s: the allocation calculation needs approval\n",
					period.Name, state.Step)
				if state.CalculationID != nil {
					fmt.Printf("Approve with: coopledger allocation approve %s --approver <name>\n", state.CalculationID)
				}
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Close of %s reached %s\n", period.Name, state.Step)
			return nil
		},
	}
}

func newPeriodReopenCommand() *cobra.Command {
	var actor string
	var reason string

	cmd := &cobra.Command{
		Use:   "reopen <period>",
		Short: "Reopen a closed period for corrections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			period, err := app.resolvePeriod(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if _, err := app.periods.Reopen(cmd.Context(), period.ID, actor, reason); err != nil {
				return err
			}
			fmt.Printf("Reopened %s\n", period.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "who is reopening (required)")
	_ = cmd.MarkFlagRequired("actor")
	cmd.Flags().StringVar(&reason, "reason", "", "why the period is reopened (required)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func newPeriodLockCommand() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "lock <period>",
		Short: "Lock a closed period permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			period, err := app.resolvePeriod(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if _, err := app.periods.Lock(cmd.Context(), period.ID, actor); err != nil {
				return err
			}
			fmt.Printf("Locked %s\n", period.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "who is locking (required)")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func newPeriodStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <period>",
		Short: "Show a period's close progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			period, err := app.resolvePeriod(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			status, err := app.periods.Status(cmd.Context(), period.ID)
			if err != nil {
				return err
			}

			fmt.Printf("%s  %s to %s  %s\n",
				status.Period.Name,
				status.Period.Start.Format("2006-01-02"),
				status.Period.End.Format("2006-01-02"),
				status.Period.Status)
			if status.State != nil && status.State.Step != "" {
				fmt.Printf("Close progress: %s\n", status.State.Step)
			}
			if status.Calculation != nil {
				calc := status.Calculation
				fmt.Printf("Allocation %s: %s, net income %s, allocated %s\n",
					calc.ID, calc.Status, calc.NetIncome.StringFixed(2), calc.Allocated().StringFixed(2))
			}
			return nil
		},
	}
}

func newPeriodListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List periods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			periods, err := app.store.Periods().List(cmd.Context())
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
