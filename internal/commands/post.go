package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/coopledger/coopledger/internal/domain"
	"github.com/coopledger/coopledger/internal/usecase/ledger"
)

func newPostCommand() *cobra.Command {
	var date string
	var memo string
	var accrual bool
	var entries []string

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a balanced transaction",
		Long: `Post a balanced transaction into the ledger.

Each --entry takes the form CODE:debit:AMOUNT or CODE:credit:AMOUNT, e.g.

  coopledger post --date 2026-03-14 --memo "office rent" \
    --entry 5010:debit:1200.00 --entry 1010:credit:1200.00

Use --accrual for cutoff adjustments that must land in a period that is
already closing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			input := ledger.PostInput{Memo: memo, Accrual: accrual}
			if input.Date, err = time.Parse("2006-01-02", date); err != nil {
				return fmt.Errorf("parsing --date: %w", err)
			}
			for _, raw := range entries {
				entry, err := parseEntry(cmd, app, raw)
				if err != nil {
					return err
				}
				input.Entries = append(input.Entries, entry)
			}

			tx, err := app.ledger.Post(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Printf("Posted %s (seq %d, %s world, total %s)\n",
				tx.ID, tx.Seq, tx.Basis, tx.Total().StringFixed(2))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "effective date (YYYY-MM-DD, required)")
	_ = cmd.MarkFlagRequired("date")
	cmd.Flags().StringVar(&memo, "memo", "", "transaction memo")
	cmd.Flags().BoolVar(&accrual, "accrual", false, "mark as a cutoff adjustment")
	cmd.Flags().StringArrayVar(&entries, "entry", nil, "entry as CODE:debit|credit:AMOUNT (repeatable, required)")
	_ = cmd.MarkFlagRequired("entry")

	return cmd
}

func parseEntry(cmd *cobra.Command, app *app, raw string) (ledger.EntryInput, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return ledger.EntryInput{}, fmt.Errorf("entry %q: want CODE:debit|credit:AMOUNT", raw)
	}
	account, err := app.store.Accounts().GetByCode(cmd.Context(), parts[0])
	if err != nil {
		return ledger.EntryInput{}, err
	}
	var side domain.EntrySide
	switch strings.ToLower(parts[1]) {
	case "debit", "d":
		side = domain.SideDebit
	case "credit", "c":
		side = domain.SideCredit
	default:
		return ledger.EntryInput{}, fmt.Errorf("entry %q: side must be debit or credit", raw)
	}
	amount, err := decimal.NewFromString(parts[2])
	if err != nil {
		return ledger.EntryInput{}, fmt.Errorf("entry %q: %w", raw, err)
	}
	return ledger.EntryInput{AccountID: account.ID, Side: side, Amount: amount}, nil
}
