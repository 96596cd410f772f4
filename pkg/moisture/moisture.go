package moisture

import "time"

// Status is the coarse soil condition derived from an aggregate mean.
type Status int

const (
	Problem Status = iota
	Waterlogged
	Adequate
	UnderWatered
	Dry
)

// Classification thresholds. Comparisons are strict, so a mean of exactly
// 500 is Waterlogged and 1900 is Dry.
const (
	dryAbove          = 1899
	underWateredAbove = 1399
	adequateAbove     = 1049
	waterloggedAbove  = 499
)

var labels = map[string][5]string{
	"en":    {"Problem", "Waterlogged", "Adequate", "Under-watered", "Dry"},
	"pt-BR": {"Problemas", "Encharcado", "Adequado", "Submolhado", "Seco"},
}

// Sample is one acquisition cycle: the raw channel values and their mean.
type Sample struct {
	Raw       []int     `json:"raw"`
	Mean      int       `json:"mean"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSample builds a sample whose mean is taken from raw.
func NewSample(raw []int, ts time.Time) Sample {
	cp := make([]int, len(raw))
	copy(cp, raw)
	return Sample{Raw: cp, Mean: Mean(cp...), Timestamp: ts}
}

// Report is a sample with its status and percentage, all derived from the
// same mean.
type Report struct {
	Sample
	Status  string  `json:"status"`
	Percent float64 `json:"moisture"`
}

// Mean returns the truncated integer average of values, or 0 when empty.
func Mean(values ...int) int {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return sum / len(values)
}

// Classify maps a mean reading to a Status, evaluated from the driest
// threshold down.
func Classify(mean int) Status {
	switch {
	case mean > dryAbove:
		return Dry
	case mean > underWateredAbove:
		return UnderWatered
	case mean > adequateAbove:
		return Adequate
	case mean > waterloggedAbove:
		return Waterlogged
	default:
		return Problem
	}
}

func (s Status) String() string { return s.Label("en") }

// Label returns the status name in the given language, falling back to
// English for unknown languages.
func (s Status) Label(lang string) string {
	l, ok := labels[lang]
	if !ok {
		l = labels["en"]
	}
	if s < Problem || s > Dry {
		return "Unknown"
	}
	return l[s]
}

// Languages lists the supported label languages.
func Languages() []string { return []string{"en", "pt-BR"} }
