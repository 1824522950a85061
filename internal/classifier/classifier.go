// Package classifier labels normalized envelopes as real or synthetic
// traffic. Classification is recorded, never used to silently drop data.
package classifier

import "github.com/xerxes-systems/xerxes-bridge/internal/model"

// Class is the traffic classification of one envelope.
type Class int

const (
	// Synthetic marks an envelope with neither usable metadata nor
	// measurement values.
	Synthetic Class = iota
	// Real marks an envelope carrying metadata or at least one measurement.
	Real
	// MetaOnly is the real sub-case with metadata but zero measurements:
	// device bookkeeping is updated but no measurement row is written.
	MetaOnly
)

func (c Class) String() string {
	switch c {
	case Real:
		return "real"
	case MetaOnly:
		return "meta_only"
	default:
		return "synthetic"
	}
}

// IsReal reports whether the class counts as real traffic.
func (c Class) IsReal() bool { return c != Synthetic }

// Classify assigns exactly one class to an envelope.
func Classify(env model.IngestEnvelope) Class {
	hasMeta := len(env.Meta) > 0
	hasMeasurements := len(env.Measurements) > 0

	switch {
	case hasMeasurements:
		return Real
	case hasMeta:
		return MetaOnly
	default:
		return Synthetic
	}
}
