package normalizer

import (
	"reflect"
	"testing"
	"time"
)

var receivedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNormalize_CurrentShape(t *testing.T) {
	raw := map[string]any{
		"uuid": "sensor-42",
		"measurements": map[string]any{
			"temp": 21.5,
			"rh":   48.0,
		},
		"meta": map[string]any{"version": "1.2.0"},
		"ts":   float64(1700000000000),
	}

	env, err := Normalize(raw, receivedAt)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if env.RawID != "sensor-42" {
		t.Errorf("RawID = %q, want %q", env.RawID, "sensor-42")
	}
	if env.TimestampMS != 1700000000000 {
		t.Errorf("TimestampMS = %d, want 1700000000000", env.TimestampMS)
	}
	if env.Measurements["temp"] != 21.5 {
		t.Errorf("Measurements[temp] = %v, want 21.5", env.Measurements["temp"])
	}
	if env.Passthrough {
		t.Error("Passthrough should be false for a clean payload")
	}
}

func TestNormalize_LegacyShape(t *testing.T) {
	raw := map[string]any{
		"meta": map[string]any{
			"uuid":    "sensor-7",
			"version": "0.9.1",
		},
		"values": map[string]any{
			"temp": 19.0,
		},
	}

	env, err := Normalize(raw, receivedAt)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if env.RawID != "sensor-7" {
		t.Errorf("RawID = %q, want %q (from meta.uuid)", env.RawID, "sensor-7")
	}
	if env.Measurements["temp"] != 19.0 {
		t.Errorf("Measurements[temp] = %v, want 19.0", env.Measurements["temp"])
	}
	if env.TimestampMS != receivedAt.UnixMilli() {
		t.Errorf("TimestampMS = %d, want receipt time %d", env.TimestampMS, receivedAt.UnixMilli())
	}
}

func TestNormalize_MetaUUIDUppercase(t *testing.T) {
	raw := map[string]any{
		"meta":   map[string]any{"UUID": "17"},
		"values": map[string]any{"temp": 1.0},
	}

	env, err := Normalize(raw, receivedAt)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if env.RawID != "17" {
		t.Errorf("RawID = %q, want %q", env.RawID, "17")
	}
}

func TestNormalize_NumericUUID(t *testing.T) {
	raw := map[string]any{
		"uuid":         float64(42),
		"measurements": map[string]any{"temp": 1.0},
	}

	env, err := Normalize(raw, receivedAt)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if env.RawID != "42" {
		t.Errorf("RawID = %q, want %q", env.RawID, "42")
	}
}

func TestNormalize_MissingIdentifier(t *testing.T) {
	raw := map[string]any{
		"measurements": map[string]any{"temp": 1.0},
	}

	if _, err := Normalize(raw, receivedAt); err == nil {
		t.Fatal("Normalize() should fail without an identifier")
	}
}

func TestNormalize_TimestampScaling(t *testing.T) {
	tests := []struct {
		name string
		ts   any
		want int64
	}{
		{"millis kept", float64(1700000000000), 1700000000000},
		{"seconds scaled", float64(1700000000), 1700000000000},
		{"absent uses receipt", nil, receivedAt.UnixMilli()},
		{"zero uses receipt", float64(0), receivedAt.UnixMilli()},
		{"negative uses receipt", float64(-5), receivedAt.UnixMilli()},
		{"threshold boundary scaled", float64(99_999_999_999), 99_999_999_999_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := map[string]any{
				"uuid":         "sensor-1",
				"measurements": map[string]any{"temp": 1.0},
			}
			if tt.ts != nil {
				raw["ts"] = tt.ts
			}

			env, err := Normalize(raw, receivedAt)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if env.TimestampMS != tt.want {
				t.Errorf("TimestampMS = %d, want %d", env.TimestampMS, tt.want)
			}
		})
	}
}

func TestNormalize_ValuesOverlayMeasurements(t *testing.T) {
	raw := map[string]any{
		"uuid": "sensor-1",
		"measurements": map[string]any{
			"temp": 10.0,
			"rh":   50.0,
		},
		"values": map[string]any{
			"temp": 20.0,
		},
	}

	env, err := Normalize(raw, receivedAt)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if env.Measurements["temp"] != 20.0 {
		t.Errorf("Measurements[temp] = %v, want 20.0 (values wins)", env.Measurements["temp"])
	}
	if env.Measurements["rh"] != 50.0 {
		t.Errorf("Measurements[rh] = %v, want 50.0", env.Measurements["rh"])
	}
}

func TestNormalize_DropsNonNumericLeaves(t *testing.T) {
	raw := map[string]any{
		"uuid": "sensor-1",
		"measurements": map[string]any{
			"temp":   21.5,
			"status": "ok",
			"gps":    map[string]any{"lat": 52.5},
		},
	}

	env, err := Normalize(raw, receivedAt)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if len(env.Measurements) != 1 {
		t.Errorf("Measurements = %v, want only temp", env.Measurements)
	}
	want := []string{"gps", "status"}
	if !reflect.DeepEqual(env.DroppedKeys, want) {
		t.Errorf("DroppedKeys = %v, want %v", env.DroppedKeys, want)
	}
}

func TestNormalize_DroppedKeySurvivesNumericOverlay(t *testing.T) {
	raw := map[string]any{
		"uuid": "sensor-1",
		"measurements": map[string]any{
			"temp": "broken",
		},
		"values": map[string]any{
			"temp": 21.5,
		},
	}

	env, err := Normalize(raw, receivedAt)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(env.DroppedKeys) != 0 {
		t.Errorf("DroppedKeys = %v, want none (values repaired the key)", env.DroppedKeys)
	}
	if env.Measurements["temp"] != 21.5 {
		t.Errorf("Measurements[temp] = %v, want 21.5", env.Measurements["temp"])
	}
}

func TestNormalize_EmptyPayload(t *testing.T) {
	raw := map[string]any{"uuid": "sensor-9"}

	env, err := Normalize(raw, receivedAt)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(env.Measurements) != 0 {
		t.Errorf("Measurements = %v, want empty", env.Measurements)
	}
	if env.Meta == nil {
		t.Error("Meta should never be nil")
	}
}
