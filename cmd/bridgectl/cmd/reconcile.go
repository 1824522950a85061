package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xerxes-systems/xerxes-bridge/internal/logging"
	"github.com/xerxes-systems/xerxes-bridge/internal/recon"
	"github.com/xerxes-systems/xerxes-bridge/pkg/output"
)

var stateColors = map[recon.State]*color.Color{
	recon.StateOK:                color.New(color.FgGreen),
	recon.StateMinorOffset:       color.New(color.FgYellow),
	recon.StateUnknown:           color.New(color.FgYellow),
	recon.StateDownstreamDelayed: color.New(color.FgRed),
	recon.StateNoDownstream:      color.New(color.FgRed),
	recon.StateIngestDrop:        color.New(color.FgRed, color.Bold),
	recon.StateOffline:           color.New(color.FgRed, color.Bold),
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Cross-check raw log, canonical store and downstream platform",
	Long: `Run a reconciliation pass over every device seen within the lookback
window and report where in the pipeline each device's data stops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		lookback, _ := cmd.Flags().GetDuration("lookback")
		if lookback <= 0 {
			lookback = cfg.Recon.Lookback
		}

		engine := recon.NewEngine(newRawLog(), pg, newPlatform(), recon.Config{
			Lookback: lookback,
			Workers:  cfg.Recon.Workers,
			Thresholds: recon.Thresholds{
				OKWindow:     cfg.Recon.OKWindow,
				DelayedAfter: cfg.Recon.DelayedAfter,
			},
		}, logging.Default())

		report, err := engine.Run(ctx)
		if err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(report)
		}

		output.Info("Reconciliation at %s (lookback %s, %d devices)",
			report.RanAt.Format(time.RFC3339), report.Lookback, len(report.Entries))

		table := output.NewTable([]string{"UUID", "RAW", "CANONICAL", "DOWNSTREAM", "STATE", "DETAIL"})
		for _, e := range report.Entries {
			table.AddRow([]output.Cell{
				output.Plain(e.CanonicalID),
				output.Plain(formatAge(e.RawTS, report.RanAt)),
				output.Plain(formatAge(e.CanonicalTS, report.RanAt)),
				output.Plain(formatAge(e.DownstreamTS, report.RanAt)),
				output.Colored(e.StateName, stateColors[e.State]),
				output.Plain(e.Detail),
			})
		}
		table.Render()

		fmt.Println()
		for _, state := range []recon.State{
			recon.StateOffline, recon.StateIngestDrop, recon.StateNoDownstream,
			recon.StateDownstreamDelayed, recon.StateMinorOffset, recon.StateUnknown,
			recon.StateOK,
		} {
			if n := report.Counts[state.String()]; n > 0 {
				stateColors[state].Printf("  %-20s %d\n", state.String(), n)
			}
		}
		return nil
	},
}

func formatAge(ts *time.Time, now time.Time) string {
	if ts == nil {
		return "-"
	}
	age := now.Sub(*ts)
	if age < 0 {
		age = 0
	}
	return age.Round(time.Second).String()
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().Duration("lookback", 0, "override the configured lookback window")
}
