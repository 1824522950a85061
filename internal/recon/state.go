// Package recon cross-checks three views of the fleet: what devices sent
// (raw log), what the bridge committed (canonical store), and what the
// downstream platform holds. It assigns each device a health state so drops
// can be localized to a pipeline segment instead of guessed at.
package recon

// State is the per-device verdict of a reconciliation run.
type State int

const (
	// StateOK means all three views agree within the tolerance window.
	StateOK State = iota

	// StateUnknown means a source could not be consulted for this device.
	StateUnknown

	// StateMinorOffset means canonical and downstream disagree by more
	// than the tolerance window but less than the delay threshold.
	StateMinorOffset

	// StateDownstreamDelayed means the downstream platform is lagging the
	// canonical store past the delay threshold.
	StateDownstreamDelayed

	// StateNoDownstream means the bridge committed data but the downstream
	// platform has no trace of the device.
	StateNoDownstream

	// StateIngestDrop means the device reached the bridge (raw log has it)
	// but nothing was committed. Loss is inside the bridge.
	StateIngestDrop

	// StateOffline means the device produced nothing within the lookback.
	StateOffline
)

var stateNames = map[State]string{
	StateOK:                "OK",
	StateUnknown:           "UNKNOWN",
	StateMinorOffset:       "MINOR_OFFSET",
	StateDownstreamDelayed: "DOWNSTREAM_DELAYED",
	StateNoDownstream:      "NO_DOWNSTREAM",
	StateIngestDrop:        "INGEST_DROP",
	StateOffline:           "OFFLINE",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Severity orders states for reporting: higher means worse. Offline devices
// and ingest drops outrank downstream problems, which outrank clock skew.
func (s State) Severity() int {
	switch s {
	case StateOffline, StateIngestDrop:
		return 4
	case StateNoDownstream, StateDownstreamDelayed:
		return 3
	case StateMinorOffset:
		return 2
	case StateUnknown:
		return 1
	default:
		return 0
	}
}
