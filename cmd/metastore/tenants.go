package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tagforge/metastore/internal/ui"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Manage tenants",
}

var tenantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := openStore(ctx); err != nil {
			return err
		}
		defer closeStore()

		tenants, err := store.ListTenants(ctx)
		if err != nil {
			return err
		}
		if len(tenants) == 0 {
			fmt.Println(ui.RenderMuted("no tenants"))
			return nil
		}

		rows := make([][]string, len(tenants))
		for i, t := range tenants {
			rows[i] = []string{strconv.Itoa(t.ID), t.Code, t.Description}
		}
		fmt.Print(ui.Table([]string{"ID", "CODE", "DESCRIPTION"}, rows))
		return nil
	},
}

var tenantsAddDescription string

var tenantsAddCmd = &cobra.Command{
	Use:   "add <code>",
	Short: "Register a new tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := openStore(ctx); err != nil {
			return err
		}
		defer closeStore()

		if err := store.CreateTenant(ctx, args[0], tenantsAddDescription); err != nil {
			return err
		}
		fmt.Println("tenant", ui.RenderAccent(args[0]), "created")
		return nil
	},
}

func init() {
	tenantsAddCmd.Flags().StringVarP(&tenantsAddDescription, "description", "d", "", "tenant description")
	tenantsCmd.AddCommand(tenantsListCmd, tenantsAddCmd)
	rootCmd.AddCommand(tenantsCmd)
}
