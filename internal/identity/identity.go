// Package identity deduplicates device identities. Devices report under a
// handful of spellings of the same id ("sensor-42", "SENSOR-42", "42"); the
// canonicalizer collapses the sensor-<digits> form to the bare digits and
// leaves everything else untouched apart from trimming.
package identity

import (
	"regexp"
	"strings"
)

var sensorPattern = regexp.MustCompile(`(?i)^sensor-(\d+)$`)

// Canonicalize maps a raw device identifier to its canonical id.
func Canonicalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := sensorPattern.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}
