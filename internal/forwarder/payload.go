package forwarder

import "github.com/xerxes-systems/xerxes-bridge/internal/model"

// telemetryNames maps bridge measurement keys to the names the downstream
// platform dashboards expect. Keys without a mapping are not forwarded (the
// keys audit records what the store kept; the downstream surface is fixed).
var telemetryNames = map[string]string{
	"temp":            "temperature_c",
	"rh":              "humidity_pct",
	"pm1_0":           "pm1_ugm3",
	"pm2_5":           "pm25_ugm3",
	"pm4_0":           "pm4_ugm3",
	"pm10":            "pm10_ugm3",
	"sound_db":        "sound_dba",
	"voc":             "voc_index",
	"nox":             "nox_index",
	"light_low_gain":  "light_low_gain",
	"light_high_gain": "light_high_gain",
}

// CSQToRSSI converts a GSM signal-quality index (0..31) to dBm.
// Out-of-range values yield no reading.
func CSQToRSSI(csq int) (float64, bool) {
	if csq < 0 || csq > 31 {
		return 0, false
	}
	return float64(-113 + 2*csq), true
}

// Telemetry builds the downstream telemetry frame for one record: renamed
// measurements plus battery voltage and signal readings from meta.
func Telemetry(rec *model.CanonicalRecord) map[string]float64 {
	out := make(map[string]float64)
	for key, value := range rec.Measurements {
		if name, ok := telemetryNames[key]; ok {
			out[name] = value
		}
	}

	health := model.HealthFromMeta(rec.Meta)
	if health.BatteryV != nil {
		out["battery_v"] = *health.BatteryV
	}
	if health.CSQ != nil {
		out["csq"] = float64(*health.CSQ)
		if rssi, ok := CSQToRSSI(*health.CSQ); ok {
			out["rssi_dbm"] = rssi
		}
	}
	return out
}

// Attributes builds the downstream attribute set for one record.
func Attributes(rec *model.CanonicalRecord) map[string]any {
	attrs := make(map[string]any)
	attrs["uuid"] = rec.CanonicalID

	health := model.HealthFromMeta(rec.Meta)
	if health.FWVersion != "" {
		attrs["fw_version"] = health.FWVersion
	}
	if boot, ok := rec.Meta["bootCount"]; ok {
		attrs["boot_count"] = boot
	}
	return attrs
}
