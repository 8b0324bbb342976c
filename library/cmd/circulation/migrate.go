package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables and indexes of the configured SQL store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.close(cmd.Context()) }()

			if err = a.migrate(cmd.Context()); err != nil {
				return err
			}

			a.logger.Info("schema migrated", "store", string(cfg.Store))

			return nil
		},
	}
}
