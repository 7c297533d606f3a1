package main

import (
	"github.com/spf13/cobra"

	"github.com/suPer8Hu/comet/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the access_control and moderation tables, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", cfg.DBDriver)
		return nil
	},
}
