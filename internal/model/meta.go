package model

// HealthAttrs are the coarse device health fields cached on DeviceState,
// flattened out of the nested meta object.
type HealthAttrs struct {
	BatteryV  *float64
	FWVersion string
	CSQ       *int
}

// HealthFromMeta extracts the cached health attributes from a meta object.
// Absent or malformed fields simply stay unset.
func HealthFromMeta(meta map[string]any) HealthAttrs {
	var out HealthAttrs

	if power, ok := meta["power"].(map[string]any); ok {
		if battery, ok := power["battery"].(map[string]any); ok {
			// Firmware generations disagree on the key name.
			if v, ok := asFloat(battery["voltage"]); ok {
				out.BatteryV = &v
			} else if v, ok := asFloat(battery["V"]); ok {
				out.BatteryV = &v
			}
		}
	}

	if v, ok := meta["version"].(string); ok {
		out.FWVersion = v
	}

	if modem, ok := meta["modem"].(map[string]any); ok {
		if q, ok := asFloat(modem["signalQuality"]); ok {
			csq := int(q)
			out.CSQ = &csq
		}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
