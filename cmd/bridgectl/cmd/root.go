package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xerxes-systems/xerxes-bridge/internal/config"
	"github.com/xerxes-systems/xerxes-bridge/internal/downstream"
	"github.com/xerxes-systems/xerxes-bridge/internal/rawlog"
	"github.com/xerxes-systems/xerxes-bridge/internal/store"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bridgectl",
	Short: "Xerxes Bridge operator CLI",
	Long: `bridgectl is the operator CLI for the Xerxes telemetry bridge.

Reconcile the fleet across raw log, canonical store and the downstream
platform, export device reports, maintain the device token map, and seed
test payloads against a running bridge.`,
	Version: "0.3.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		os.Exit(1)
	}
}

// openStore connects to the configured postgres store. bridgectl always
// needs real storage; memory mode is meaningless outside the service.
func openStore(ctx context.Context) (*store.Postgres, error) {
	pg, err := store.NewPostgres(ctx, cfg.Storage.Postgres.ConnString())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pg, nil
}

func newDownstream() *downstream.Client {
	return downstream.New(cfg.Downstream.BaseURL, cfg.Downstream.JWT, cfg.Downstream.AttemptTimeout)
}

// newPlatform returns the downstream view for reconciliation, with device id
// lookups cached in redis when the cache is configured.
func newPlatform() downstream.Platform {
	client := newDownstream()
	if !cfg.Cache.Enabled {
		return client
	}
	cached, err := downstream.NewIDCache(client, cfg.Cache.URL, cfg.Cache.TTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: device id cache unavailable: %v\n", err)
		return client
	}
	return cached
}

func newRawLog() rawlog.Log {
	if !cfg.RawLog.Enabled {
		return rawlog.Nop{}
	}
	osLog, err := rawlog.NewOpenSearch(rawlog.Config{
		URL:           cfg.RawLog.URL,
		Username:      cfg.RawLog.Username,
		Password:      cfg.RawLog.Password,
		TLSSkipVerify: cfg.RawLog.TLSSkipVerify,
		IndexPrefix:   cfg.RawLog.IndexPrefix,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: raw log unavailable: %v\n", err)
		return rawlog.Nop{}
	}
	return osLog
}
