package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/coopledger/coopledger/internal/domain"
)

func newPatronageCommand() *cobra.Command {
	patronageCmd := &cobra.Command{
		Use:   "patronage",
		Short: "Member activity records that feed the allocation formula",
	}
	patronageCmd.AddCommand(newPatronageRecordCommand())
	patronageCmd.AddCommand(newPatronageTotalsCommand())
	return patronageCmd
}

func newPatronageRecordCommand() *cobra.Command {
	var memberCode string
	var category string
	var amount string
	var date string
	var periodArg string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one unit of verified member activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := cmd.Context()

			member, err := app.store.Members().GetByCode(ctx, memberCode)
			if err != nil {
				return err
			}
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("parsing --amount: %w", err)
			}
			recordedAt := time.Now()
			if date != "" {
				if recordedAt, err = time.Parse("2006-01-02", date); err != nil {
					return fmt.Errorf("parsing --date: %w", err)
				}
			}

			var period *domain.Period
			if periodArg != "" {
				period, err = app.resolvePeriod(ctx, periodArg)
			} else {
				period, err = app.store.Periods().GetAt(ctx, recordedAt)
			}
			if err != nil {
				return err
			}
			if period.Status == domain.PeriodClosed || period.Status == domain.PeriodLocked {
				return fmt.Errorf("period %s: %w", period.Name, domain.ErrPeriodClosed)
			}

			record := &domain.Patronage{
				ID:         uuid.New(),
				MemberID:   member.ID,
				PeriodID:   period.ID,
				Category:   category,
				Amount:     value,
				RecordedAt: recordedAt,
			}
			if err := record.Validate(); err != nil {
				return err
			}
			if err := app.store.Patronage().Record(ctx, record); err != nil {
				return err
			}
			fmt.Printf("Recorded %s %s for %s in %s\n", value, category, member.Code, period.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&memberCode, "member", "", "member code (required)")
	_ = cmd.MarkFlagRequired("member")
	cmd.Flags().StringVar(&category, "category", "", "activity category, e.g. hours (required)")
	_ = cmd.MarkFlagRequired("category")
	cmd.Flags().StringVar(&amount, "amount", "", "activity amount (required)")
	_ = cmd.MarkFlagRequired("amount")
	cmd.Flags().StringVar(&date, "date", "", "activity date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&periodArg, "period", "", "period name or id (default: the period containing the date)")

	return cmd
}

func newPatronageTotalsCommand() *cobra.Command {
	var periodArg string

	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Per-member, per-category activity totals for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := cmd.Context()

			period, err := app.resolvePeriod(ctx, periodArg)
			if err != nil {
				return err
			}
			totals, err := app.store.Patronage().Totals(ctx, period.ID)
			if err != nil {
				return err
			}

			codes := make(map[uuid.UUID]string)
			members, err := app.store.Members().List(ctx)
			if err != nil {
				return err
			}
			for _, m := range members {
				codes[m.ID] = m.Code
			}

			for _, total := range totals {
				code := codes[total.MemberID]
				if code == "" {
					code = total.MemberID.String()
				}
				fmt.Printf("%-10s %-15s %14s\n", code, total.Category, total.Amount.StringFixed(2))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&periodArg, "period", "", "period name or id (required)")
	_ = cmd.MarkFlagRequired("period")

	return cmd
}
