package telemetry

// Status is the band a value falls into.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusLow     Status = "low"
	StatusNormal  Status = "normal"
	StatusHigh    Status = "high"
)

// Band is an inclusive normal range.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Classify places v relative to the band. A nil value is unknown.
func (b Band) Classify(v *float64) Status {
	switch {
	case v == nil:
		return StatusUnknown
	case *v < b.Low:
		return StatusLow
	case *v > b.High:
		return StatusHigh
	default:
		return StatusNormal
	}
}

// Bands holds the normal ranges for both measured quantities.
type Bands struct {
	Temperature Band `json:"temperature"`
	Humidity    Band `json:"humidity"`
}

// DefaultBands are the ranges the dashboard has always used.
var DefaultBands = Bands{
	Temperature: Band{Low: 20, High: 40},
	Humidity:    Band{Low: 30, High: 60},
}

// ReadingStatus is the classification of one reading.
type ReadingStatus struct {
	Temperature Status `json:"temperature"`
	Humidity    Status `json:"humidity"`
}

// Classify classifies both values of r.
func (b Bands) Classify(r Reading) ReadingStatus {
	return ReadingStatus{
		Temperature: b.Temperature.Classify(r.Temperature),
		Humidity:    b.Humidity.Classify(r.Humidity),
	}
}
