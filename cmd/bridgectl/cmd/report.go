package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/xerxes-systems/xerxes-bridge/internal/model"
	"github.com/xerxes-systems/xerxes-bridge/internal/tokens"
	"github.com/xerxes-systems/xerxes-bridge/pkg/output"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export a per-device CSV report",
	Long: `Export one CSV row per known device: aliases, downstream linkage,
last activity and record counts (lifetime and trailing 24h).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		devices, err := pg.ListDevices(ctx)
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}

		links, err := tokens.NewPostgresSource(pg.Pool()).List(ctx)
		if err != nil {
			return fmt.Errorf("list token mappings: %w", err)
		}
		linked := make(map[string]model.DeviceLink, len(links))
		for _, l := range links {
			linked[l.CanonicalID] = l
		}

		out := os.Stdout
		if path, _ := cmd.Flags().GetString("out"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create report file: %w", err)
			}
			defer f.Close()
			out = f
		}

		dayAgo := time.Now().UTC().Add(-24 * time.Hour)
		w := csv.NewWriter(out)
		header := []string{
			"uuid", "aliases", "device_id", "has_token",
			"first_seen", "last_seen", "last_real",
			"records_total", "records_24h",
		}
		if err := w.Write(header); err != nil {
			return err
		}

		for _, d := range devices {
			total, err := pg.CountRecords(ctx, d.CanonicalID, nil)
			if err != nil {
				return fmt.Errorf("count records for %s: %w", d.CanonicalID, err)
			}
			recent, err := pg.CountRecords(ctx, d.CanonicalID, &dayAgo)
			if err != nil {
				return fmt.Errorf("count recent records for %s: %w", d.CanonicalID, err)
			}

			link := linked[d.CanonicalID]
			lastReal := ""
			if d.LastRealTS != nil {
				lastReal = d.LastRealTS.UTC().Format(time.RFC3339)
			}
			row := []string{
				d.CanonicalID,
				strings.Join(d.Aliases, ";"),
				link.DeviceID,
				strconv.FormatBool(link.AccessToken != ""),
				d.FirstSeen.UTC().Format(time.RFC3339),
				d.LastSeenTS.UTC().Format(time.RFC3339),
				lastReal,
				strconv.FormatInt(total, 10),
				strconv.FormatInt(recent, 10),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}

		if out != os.Stdout {
			output.Success("Wrote %d device rows", len(devices))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringP("out", "o", "", "write CSV to file instead of stdout")
}
