package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tagforge/metastore/internal/config"
	"github.com/tagforge/metastore/internal/storage/sqlstore"
	"github.com/tagforge/metastore/internal/ui"
)

var initTenant string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file, database schema, and first tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		path, err := config.Write(cwd, cfg)
		if err != nil {
			// An existing config file is fine; init is re-runnable for
			// schema creation against a fresh database.
			fmt.Println(ui.RenderMuted(err.Error()))
		} else {
			fmt.Println("wrote", path)
		}

		code, err := cfg.DialectCode()
		if err != nil {
			return err
		}
		s, err := sqlstore.Open(ctx, sqlstore.Options{
			Dialect: code,
			DSN:     cfg.DSN,
		})
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		if err := s.InitSchema(ctx); err != nil {
			return err
		}
		fmt.Println("schema ready")

		if err := s.Start(ctx); err != nil {
			return err
		}
		if initTenant != "" {
			if err := s.CreateTenant(ctx, initTenant, "created by metastore init"); err != nil {
				return err
			}
			fmt.Println("tenant", ui.RenderAccent(initTenant), "created")
		}
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initTenant, "create-tenant", "", "also create a tenant with this code")
	rootCmd.AddCommand(initCmd)
}
