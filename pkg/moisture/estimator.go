package moisture

// Default raw endpoints: a reading of WetRaw is 100% moisture and DryRaw
// is 0%.
const (
	DefaultWetRaw = 800
	DefaultDryRaw = 3200
)

// Estimator linearly rescales a mean reading into a moisture percentage.
// Lower readings mean wetter soil. Values outside [WetRaw, DryRaw]
// extrapolate unless Clamp is set.
//
// By default the result is a whole number: the division truncates toward
// zero, so 1000 maps to 92. Fractional keeps the exact quotient (91.67).
type Estimator struct {
	WetRaw     int
	DryRaw     int
	Clamp      bool
	Fractional bool
}

func DefaultEstimator() Estimator {
	return Estimator{WetRaw: DefaultWetRaw, DryRaw: DefaultDryRaw}
}

func (e Estimator) Percent(mean int) float64 {
	if e.DryRaw == e.WetRaw {
		return 0
	}
	var p float64
	if e.Fractional {
		p = float64(mean-e.WetRaw)*(0-100)/float64(e.DryRaw-e.WetRaw) + 100
	} else {
		p = float64((mean-e.WetRaw)*(0-100)/(e.DryRaw-e.WetRaw) + 100)
	}
	if e.Clamp {
		if p < 0 {
			return 0
		}
		if p > 100 {
			return 100
		}
	}
	return p
}

// Report derives status and percentage from the sample's mean.
func (e Estimator) Report(s Sample, lang string) Report {
	return Report{
		Sample:  s,
		Status:  Classify(s.Mean).Label(lang),
		Percent: e.Percent(s.Mean),
	}
}
