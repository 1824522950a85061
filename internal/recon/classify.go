package recon

import "time"

// Thresholds are the tolerance windows for a reconciliation run.
type Thresholds struct {
	// OKWindow is the maximum canonical/downstream skew still considered
	// healthy.
	OKWindow time.Duration

	// DelayedAfter is how far the downstream platform may lag the
	// canonical store before the device is flagged as delayed.
	DelayedAfter time.Duration
}

// DefaultThresholds returns the operational defaults: fifteen minutes of
// tolerated skew, one hour before a lag counts as a delay.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OKWindow:     15 * time.Minute,
		DelayedAfter: 60 * time.Minute,
	}
}

// Classify assigns a state from the three per-device observations. A nil
// timestamp means the source has no trace of the device within the lookback.
// Decisions are made outside-in: device silence first, then bridge loss,
// then downstream presence, then skew.
func Classify(raw, canonical, downstream *time.Time, th Thresholds) State {
	if raw == nil && canonical == nil {
		return StateOffline
	}
	if canonical == nil {
		return StateIngestDrop
	}
	if downstream == nil {
		return StateNoDownstream
	}

	delta := downstream.Sub(*canonical)
	if delta < 0 && -delta > th.DelayedAfter {
		return StateDownstreamDelayed
	}
	if delta < 0 {
		delta = -delta
	}
	if delta <= th.OKWindow {
		return StateOK
	}
	return StateMinorOffset
}
