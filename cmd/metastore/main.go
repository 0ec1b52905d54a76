// Command metastore administers a metadata storage database: schema
// initialization, tenants, object and config inspection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagforge/metastore/internal/config"
	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/sqlstore"
	"github.com/tagforge/metastore/internal/telemetry"
	"github.com/tagforge/metastore/internal/ui"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfg   config.Config
	store storage.Store

	// Flag overrides for the config file.
	flagDatabase string
	flagDSN      string
	flagTenant   string

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:           "metastore",
	Short:         "Metadata storage layer administration",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if flagDatabase != "" {
			cfg.Database = flagDatabase
		}
		if flagDSN != "" {
			cfg.DSN = flagDSN
		}
		if flagTenant != "" {
			cfg.Tenant = flagTenant
		}
		return telemetry.Init(cmd.Context(), "metastore", Version)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	rootCmd.PersistentFlags().StringVar(&flagDatabase, "database", "", "database flavor (sqlite, mysql, mariadb, postgresql, dolt)")
	rootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "database connection string")
	rootCmd.PersistentFlags().StringVar(&flagTenant, "tenant", "", "tenant code")

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("error: "+err.Error()))
		os.Exit(1)
	}
}

// openStore connects to the configured database and starts the store.
// The caller is responsible for closeStore.
func openStore(ctx context.Context) error {
	code, err := cfg.DialectCode()
	if err != nil {
		return err
	}
	s, err := sqlstore.Open(ctx, sqlstore.Options{
		Dialect:      code,
		DSN:          cfg.DSN,
		SearchLimit:  cfg.SearchLimit,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	store = telemetry.WrapStore(s)
	return nil
}

func closeStore() {
	if store != nil {
		_ = store.Stop()
		_ = store.Close()
		store = nil
	}
}

// tenantArg resolves the tenant code from --tenant or the config file.
func tenantArg() (string, error) {
	if cfg.Tenant == "" {
		return "", fmt.Errorf("no tenant configured (use --tenant or set tenant in %s/%s)", config.DirName, config.FileName)
	}
	return cfg.Tenant, nil
}
