package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coopledger/coopledger/internal/usecase/capital"
)

func newMemberCommand() *cobra.Command {
	memberCmd := &cobra.Command{
		Use:   "member",
		Short: "Member operations",
	}
	memberCmd.AddCommand(newMemberEnrollCommand())
	memberCmd.AddCommand(newMemberListCommand())
	return memberCmd
}

func newMemberEnrollCommand() *cobra.Command {
	var code string
	var name string
	var joined string
	var deficitRestoration bool

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll a member and create its capital account pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			input := capital.EnrollInput{Code: code, Name: name, DeficitRestoration: deficitRestoration}
			if joined != "" {
				t, err := time.Parse("2006-01-02", joined)
				if err != nil {
					return fmt.Errorf("parsing --joined: %w", err)
				}
				input.JoinedAt = t
			}
			member, pair, err := app.capital.Enroll(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Printf("Enrolled %s (%s): book account %s, tax account %s\n",
				member.Name, member.Code, pair.BookAccountID, pair.TaxAccountID)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "member code (required)")
	_ = cmd.MarkFlagRequired("code")
	cmd.Flags().StringVar(&name, "name", "", "member name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&joined, "joined", "", "join date (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&deficitRestoration, "deficit-restoration", false, "member has signed a deficit restoration obligation")

	return cmd
}

func newMemberListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			members, err := app.store.Members().List(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range members {
				status := "active"
				if !m.Active {
					status = "inactive"
				}
				fmt.Printf("%-10s %-30s joined %s  %s\n",
					m.Code, m.Name, m.JoinedAt.Format("2006-01-02"), status)
			}
			return nil
		},
	}
}
