package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var hundred = decimal.NewFromInt(100)

func newAllocationCommand() *cobra.Command {
	allocationCmd := &cobra.Command{
		Use:   "allocation",
		Short: "Allocation calculation operations",
	}
	allocationCmd.AddCommand(newAllocationShowCommand())
	allocationCmd.AddCommand(newAllocationApproveCommand())
	allocationCmd.AddCommand(newAllocationVoidCommand())
	return allocationCmd
}

func newAllocationShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <calculation-id>",
		Short: "Show a stored allocation calculation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing calculation id: %w", err)
			}
			calc, err := app.store.Calculations().GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Printf("Calculation %s  %s\n", calc.ID, calc.Status)
			fmt.Printf("Net income %s, formula %s, residual %s\n",
				calc.NetIncome.StringFixed(2), calc.Formula.Kind, calc.Residual.StringFixed(2))
			for _, r := range calc.Results {
				member, err := app.store.Members().GetByID(cmd.Context(), r.MemberID)
				if err != nil {
					return err
				}
				fmt.Printf("  %-10s weighted %12s  %7s%%  %12s\n",
					member.Code,
					r.WeightedTotal.StringFixed(2),
					r.Percentage.Mul(hundred).StringFixed(2),
					r.Amount.StringFixed(2))
			}
			fmt.Printf("Allocated %s\n", calc.Allocated().StringFixed(2))
			return nil
		},
	}
}

func newAllocationApproveCommand() *cobra.Command {
	var approver string

	cmd := &cobra.Command{
		Use:   "approve <calculation-id>",
		Short: "Approve a pending allocation calculation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing calculation id: %w", err)
			}
			calc, err := app.periods.Approve(cmd.Context(), id, approver)
			if err != nil {
				return err
			}
			fmt.Printf("Approved %s; resume with: coopledger period close <period>\n", calc.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&approver, "approver", "", "who is approving (required)")
	_ = cmd.MarkFlagRequired("approver")

	return cmd
}

func newAllocationVoidCommand() *cobra.Command {
	var actor string
	var reason string

	cmd := &cobra.Command{
		Use:   "void <calculation-id>",
		Short: "Void an unposted allocation calculation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing calculation id: %w", err)
			}
			if err := app.periods.VoidCalculation(cmd.Context(), id, actor, reason); err != nil {
				return err
			}
			fmt.Printf("Voided %s; the next close run recomputes the allocation\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "who is voiding (required)")
	_ = cmd.MarkFlagRequired("actor")
	cmd.Flags().StringVar(&reason, "reason", "", "why the calculation is wrong (required)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}
