package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"
	"github.com/xerxes-systems/xerxes-bridge/pkg/output"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Push generated device payloads at a running bridge",
	Long: `Generate fake sensor payloads and POST them at the ingest endpoint.
Both payload shapes are exercised: the current uuid/measurements/meta shape
and the legacy meta/values shape.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		apiKey, _ := cmd.Flags().GetString("api-key")
		count, _ := cmd.Flags().GetInt("count")
		devices, _ := cmd.Flags().GetInt("devices")
		interval, _ := cmd.Flags().GetDuration("interval")

		if apiKey == "" {
			apiKey = cfg.Auth.APIKey
		}

		client := &http.Client{Timeout: 10 * time.Second}
		sent, failed := 0, 0
		for i := 0; i < count; i++ {
			payload := generatePayload(rand.Intn(devices) + 1)

			body, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			req, err := http.NewRequest(http.MethodPost, url+"/bridge/ingest", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Bridge-Origin", "seed")
			if apiKey != "" {
				req.Header.Set("API-Key", apiKey)
			}

			res, err := client.Do(req)
			if err != nil {
				failed++
				output.Warn("send failed: %v", err)
			} else {
				res.Body.Close()
				if res.StatusCode >= 400 {
					failed++
					output.Warn("payload rejected: %s", res.Status)
				} else {
					sent++
				}
			}

			if interval > 0 && i < count-1 {
				time.Sleep(interval)
			}
		}

		if failed > 0 {
			output.Warn("Sent %d payloads, %d failed", sent, failed)
			return fmt.Errorf("%d of %d payloads failed", failed, count)
		}
		output.Success("Sent %d payloads to %s", sent, url)
		return nil
	},
}

// generatePayload builds one fake sensor payload. Roughly a third use the
// legacy meta/values shape, and a few are meta-only heartbeats.
func generatePayload(device int) map[string]any {
	uuid := fmt.Sprintf("sensor-%d", device)
	ts := time.Now().Add(-time.Duration(rand.Intn(600)) * time.Second)

	meta := map[string]any{
		"uuid": uuid,
		"power": map[string]any{
			"battery": map[string]any{
				"voltage": gofakeit.Float64Range(3.2, 4.2),
			},
		},
		"version": fmt.Sprintf("%d.%d.%d", gofakeit.Number(1, 3), gofakeit.Number(0, 9), gofakeit.Number(0, 20)),
		"modem": map[string]any{
			"signalQuality": gofakeit.Number(5, 31),
		},
	}

	values := map[string]any{
		"temp":     gofakeit.Float64Range(-10, 35),
		"rh":       gofakeit.Float64Range(20, 95),
		"pm1_0":    gofakeit.Float64Range(0, 25),
		"pm2_5":    gofakeit.Float64Range(0, 60),
		"pm10":     gofakeit.Float64Range(0, 80),
		"sound_db": gofakeit.Float64Range(30, 90),
		"voc":      gofakeit.Float64Range(50, 400),
	}

	switch rand.Intn(6) {
	case 0, 1:
		// Legacy shape: uuid only inside meta, seconds-resolution epoch.
		return map[string]any{
			"meta":   meta,
			"values": values,
			"ts":     ts.Unix(),
		}
	case 2:
		// Heartbeat: metadata without measurements.
		return map[string]any{
			"uuid": uuid,
			"meta": meta,
		}
	default:
		return map[string]any{
			"uuid":         uuid,
			"measurements": values,
			"meta":         meta,
			"ts":           ts.UnixMilli(),
		}
	}
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().String("url", "http://localhost:8080", "bridge base URL")
	seedCmd.Flags().String("api-key", "", "ingest API key (default: configured key)")
	seedCmd.Flags().Int("count", 100, "number of payloads to send")
	seedCmd.Flags().Int("devices", 10, "number of distinct devices")
	seedCmd.Flags().Duration("interval", 0, "delay between payloads")
}
