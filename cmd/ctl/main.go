// Command ctl runs operator tasks against the configured database.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"review-api/internal/app"
	"review-api/internal/core/config"
	"review-api/internal/core/database"
	"review-api/internal/core/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "ctl",
		Short:         "review-api operator commands",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $CONFIG_PATH or ./configs/config.local.yaml)")

	load := func() (*config.Config, *zap.Logger, func(), error) {
		_ = godotenv.Load()
		path := cfgPath
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		if path == "" {
			path = "./configs/config.local.yaml"
		}
		cfg, err := config.Read(path)
		if err != nil {
			return nil, nil, nil, err
		}
		l, cleanup := logger.FromConfig(cfg.Log)
		return cfg, l, cleanup, nil
	}

	root.AddCommand(newMigrateCmd(load), newCreateSuperuserCmd(load))
	return root
}

type loader func() (*config.Config, *zap.Logger, func(), error)

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update every table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, cleanup, err := load()
			if err != nil {
				return err
			}
			defer cleanup()
			db, err := app.OpenDB(cfg, l)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrated")
			return nil
		},
	}
}

func newCreateSuperuserCmd(load loader) *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create an admin account with the superuser flag",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, cleanup, err := load()
			if err != nil {
				return err
			}
			defer cleanup()
			a, err := app.Open(cfg, l, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			u, err := a.UserSvc.CreateSuperuser(cmd.Context(), username, email)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "superuser %s created\n", u.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
