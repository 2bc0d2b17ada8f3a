package domain

import (
	"math"
	"time"
)

// Usage model constants.
const (
	// UsageHalfLife is the age at which an access counts half.
	UsageHalfLife = 7 * 24 * time.Hour

	// BounceDwell is the dwell below which a measured access is a bounce.
	BounceDwell = 10 * time.Second

	// UsageSaturation is the decayed access count that maps to frequency 1.
	UsageSaturation = 10.0
)

// Access is one recorded document view.
type Access struct {
	DocumentID string
	At         time.Time

	// Dwell is how long the document stayed open; 0 when not measured.
	Dwell time.Duration
}

// IsBounce reports whether the access was measured and left quickly.
func (a Access) IsBounce() bool {
	return a.Dwell > 0 && a.Dwell < BounceDwell
}

// ComputeUsageSignals derives the behavioural signals of one document from
// its access history. Each access decays with UsageHalfLife; accesses in the
// future count as fresh.
func ComputeUsageSignals(accesses []Access, now time.Time) UsageSignals {
	if len(accesses) == 0 {
		return UsageSignals{}
	}

	var latest time.Time
	decayed := 0.0
	measured, bounced := 0, 0
	for _, a := range accesses {
		if a.At.After(latest) {
			latest = a.At
		}
		decayed += decay(now.Sub(a.At))
		if a.Dwell > 0 {
			measured++
			if a.IsBounce() {
				bounced++
			}
		}
	}

	s := UsageSignals{
		Recency:   decay(now.Sub(latest)),
		Frequency: math.Min(1, decayed/UsageSaturation),
	}
	if measured > 0 {
		s.Bounce = float64(bounced) / float64(measured)
	}
	return s
}

func decay(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(UsageHalfLife))
}
