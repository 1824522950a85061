package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/xerxes-systems/xerxes-bridge/internal/model"
	"github.com/xerxes-systems/xerxes-bridge/internal/tokens"
	"github.com/xerxes-systems/xerxes-bridge/pkg/output"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Device token map maintenance",
	Long:  "List, add and validate canonical-id to downstream token mappings",
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List token mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		links, err := tokens.NewPostgresSource(pg.Pool()).List(ctx)
		if err != nil {
			return fmt.Errorf("list token mappings: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(links)
		}

		table := output.NewTable([]string{"UUID", "Device ID", "Token", "Updated"})
		for _, l := range links {
			table.AddRow([]output.Cell{
				output.Plain(l.CanonicalID),
				output.Plain(l.DeviceID),
				output.Plain(truncate(l.AccessToken, 12)),
				output.Plain(l.UpdatedAt.Format("2006-01-02 15:04")),
			})
		}
		table.Render()
		return nil
	},
}

var tokensAddCmd = &cobra.Command{
	Use:   "add [uuid] [token]",
	Short: "Add or replace a token mapping",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		deviceID, _ := cmd.Flags().GetString("device-id")

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		link := model.DeviceLink{
			CanonicalID: args[0],
			DeviceID:    deviceID,
			AccessToken: args[1],
			UpdatedAt:   time.Now().UTC(),
		}
		if err := tokens.NewPostgresSource(pg.Pool()).Put(ctx, link); err != nil {
			return fmt.Errorf("store token mapping: %w", err)
		}

		if cfg.Cache.Enabled {
			if err := tokens.InvalidateEntry(ctx, cfg.Cache.URL, link.CanonicalID); err != nil {
				output.Warn("Cached mapping not invalidated, stale token may be used until TTL: %v", err)
			}
		}

		output.Success("Mapped %s -> %s", link.CanonicalID, truncate(link.AccessToken, 12))
		return nil
	},
}

var tokensValidateCmd = &cobra.Command{
	Use:   "validate [uuid]",
	Short: "Validate mapped tokens against the downstream platform",
	Long: `Validate one device's token, or every mapping when no uuid is given.
Validation is a read-only probe; nothing is written downstream.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		source := tokens.NewPostgresSource(pg.Pool())
		var links []model.DeviceLink
		if len(args) == 1 {
			link, err := source.Resolve(ctx, args[0])
			if err != nil {
				return fmt.Errorf("no mapping for %s: %w", args[0], err)
			}
			links = []model.DeviceLink{*link}
		} else {
			links, err = source.List(ctx)
			if err != nil {
				return fmt.Errorf("list token mappings: %w", err)
			}
		}

		client := newDownstream()
		invalid := 0
		for _, l := range links {
			ok, err := client.ValidateToken(ctx, l.AccessToken)
			switch {
			case err != nil:
				output.Warn("%s: validation inconclusive: %v", l.CanonicalID, err)
				invalid++
			case ok:
				output.Success("%s: token accepted", l.CanonicalID)
			default:
				output.Error("%s: token rejected", l.CanonicalID)
				invalid++
			}
		}
		if invalid > 0 {
			return fmt.Errorf("%d of %d mappings failed validation", invalid, len(links))
		}
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(tokensListCmd)
	tokensCmd.AddCommand(tokensAddCmd)
	tokensCmd.AddCommand(tokensValidateCmd)

	tokensAddCmd.Flags().String("device-id", "", "downstream device id for reconciliation")
}
