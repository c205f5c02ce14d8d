package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coopledger/coopledger/internal/domain"
	"github.com/coopledger/coopledger/internal/usecase/report"
)

func newReportCommand() *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Reports over the ledger and member capital",
	}
	reportCmd.AddCommand(newTrialBalanceCommand())
	reportCmd.AddCommand(newStatementCommand())
	reportCmd.AddCommand(newDivergenceCommand())
	return reportCmd
}

func newTrialBalanceCommand() *cobra.Command {
	var basisFlag string
	var asOf string

	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Per-account signed balances for one basis world",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			basis, err := parseBasis(basisFlag)
			if err != nil {
				return err
			}
			var at time.Time
			if asOf != "" {
				if at, err = time.Parse("2006-01-02", asOf); err != nil {
					return fmt.Errorf("parsing --as-of: %w", err)
				}
			}

			balances, err := app.reports.TrialBalance(cmd.Context(), basis, at)
			if err != nil {
				return err
			}
			for _, b := range balances {
				if b.Balance.IsZero() {
					continue
				}
				fmt.Printf("%-6s %-35s %14s\n", b.Account.Code, b.Account.Name, b.Balance.StringFixed(2))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&basisFlag, "basis", "book", "basis world: book or tax")
	cmd.Flags().StringVar(&asOf, "as-of", "", "balances as of this date, inclusive (YYYY-MM-DD, default now)")

	return cmd
}

func newStatementCommand() *cobra.Command {
	var memberCode string
	var periodArg string

	cmd := &cobra.Command{
		Use:   "statement",
		Short: "A member's capital statement for a period, both basis worlds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			member, err := app.store.Members().GetByCode(cmd.Context(), memberCode)
			if err != nil {
				return err
			}
			period, err := app.resolvePeriod(cmd.Context(), periodArg)
			if err != nil {
				return err
			}
			statement, err := app.reports.Statement(cmd.Context(), member.ID, period.ID)
			if err != nil {
				return err
			}

			fmt.Printf("%s (%s), period %s\n", member.Name, member.Code, period.Name)
			printReconciliation("Book", statement.Book)
			printReconciliation("Tax", statement.Tax)
			return nil
		},
	}

	cmd.Flags().StringVar(&memberCode, "member", "", "member code (required)")
	_ = cmd.MarkFlagRequired("member")
	cmd.Flags().StringVar(&periodArg, "period", "", "period name or id (required)")
	_ = cmd.MarkFlagRequired("period")

	return cmd
}

func printReconciliation(label string, r *report.CapitalReconciliation) {
	fmt.Printf("%s capital\n", label)
	fmt.Printf("  Opening        %14s\n", r.Opening.StringFixed(2))
	fmt.Printf("  Contributions  %14s\n", r.Contributions.StringFixed(2))
	fmt.Printf("  Allocations    %14s\n", r.Allocations.StringFixed(2))
	fmt.Printf("  Distributions  %14s\n", r.Distributions.Neg().StringFixed(2))
	if !r.Other.IsZero() {
		fmt.Printf("  Other          %14s\n", r.Other.StringFixed(2))
	}
	fmt.Printf("  Closing        %14s\n", r.Closing.StringFixed(2))
}

func newDivergenceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "divergence",
		Short: "Members whose book and tax capital differ, with the layers explaining why",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			divergences, err := app.reports.Divergence(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range divergences {
				fmt.Printf("%-10s book %14s  tax %14s  delta %14s\n",
					d.Member.Code,
					d.BookBalance.StringFixed(2),
					d.TaxBalance.StringFixed(2),
					d.Delta.StringFixed(2))
				for _, l := range d.OpenLayers {
					fmt.Printf("    layer %s  %s %-12s %14s\n", l.LayerID, l.Origin, l.AssetRef, l.Amount.StringFixed(2))
				}
			}
			return nil
		},
	}
}

func parseBasis(s string) (domain.Basis, error) {
	switch strings.ToLower(s) {
	case "book", "":
		return domain.BasisBook, nil
	case "tax":
		return domain.BasisTax, nil
	default:
		return "", fmt.Errorf("basis must be book or tax, got %q", s)
	}
}
