package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagforge/metastore/internal/timeparsing"
	"github.com/tagforge/metastore/internal/types"
	"github.com/tagforge/metastore/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect config entries",
}

var (
	configVersion        int
	configAsOf           string
	configIncludeDeleted bool
)

var configGetCmd = &cobra.Command{
	Use:   "get <class> <key>",
	Short: "Show one config entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tenant, err := tenantArg()
		if err != nil {
			return err
		}

		key := types.ConfigKey{ConfigClass: args[0], ConfigKey: args[1], Latest: true}
		if configVersion > 0 {
			key = types.ConfigKey{ConfigClass: args[0], ConfigKey: args[1], Version: configVersion}
		}
		if configAsOf != "" {
			at, err := timeparsing.ParseAsOf(configAsOf, time.Now())
			if err != nil {
				return err
			}
			key = types.ConfigKey{ConfigClass: args[0], ConfigKey: args[1], AsOf: at}
		}

		if err := openStore(ctx); err != nil {
			return err
		}
		defer closeStore()

		entry, err := store.LoadConfigEntry(ctx, tenant, key, configIncludeDeleted)
		if err != nil {
			return err
		}
		printConfigEntry(entry)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list <class>",
	Short: "List the latest entries of a config class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tenant, err := tenantArg()
		if err != nil {
			return err
		}
		if err := openStore(ctx); err != nil {
			return err
		}
		defer closeStore()

		entries, err := store.ListConfigEntries(ctx, tenant, args[0], configIncludeDeleted)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println(ui.RenderMuted("no entries"))
			return nil
		}

		rows := make([][]string, len(entries))
		for i, e := range entries {
			state := ""
			if e.Deleted {
				state = "deleted"
			}
			rows[i] = []string{
				e.ConfigKey,
				strconv.Itoa(e.ConfigVersion),
				e.Timestamp.Format(time.RFC3339),
				strconv.Itoa(len(e.Payload)),
				state,
			}
		}
		fmt.Print(ui.Table([]string{"KEY", "VERSION", "TIMESTAMP", "BYTES", ""}, rows))
		return nil
	},
}

func printConfigEntry(e *types.ConfigEntry) {
	fmt.Println(ui.HeaderStyle.Render(fmt.Sprintf("%s / %s", e.ConfigClass, e.ConfigKey)))
	fmt.Printf("  version   %d%s\n", e.ConfigVersion, latestMarker(e.IsLatest))
	fmt.Printf("  timestamp %s\n", e.Timestamp.Format(time.RFC3339))
	fmt.Printf("  payload   %d bytes\n", len(e.Payload))
	if e.Deleted {
		fmt.Println("  " + ui.RenderError("deleted"))
	}
}

func init() {
	configGetCmd.Flags().IntVar(&configVersion, "version", 0, "explicit config version")
	configGetCmd.Flags().StringVar(&configAsOf, "as-of", "", "point in time to resolve the version at")
	configCmd.PersistentFlags().BoolVar(&configIncludeDeleted, "include-deleted", false, "include soft-deleted entries")
	configCmd.AddCommand(configGetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
