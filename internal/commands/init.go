package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coopledger/coopledger/internal/config"
	"github.com/coopledger/coopledger/internal/usecase/seeder"
)

func newInitCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the policy file, database, and system chart of accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "cooperative name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runInit(cmd *cobra.Command, name string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.PolicyPath); err == nil {
		return fmt.Errorf("policy file %s already exists", cfg.PolicyPath)
	}
	if err := config.SavePolicy(cfg.PolicyPath, config.DefaultPolicy(name)); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seeder.NewChartSeeder(store.Accounts()).Seed(cmd.Context()); err != nil {
		return fmt.Errorf("seeding chart of accounts: %w", err)
	}

	fmt.Printf("Initialized %s: policy %s, database %s (%s)\n",
		name, cfg.PolicyPath, cfg.DatabaseURL, cfg.DatabaseDriver)
	return nil
}
