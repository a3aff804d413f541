package telemetry

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the canonical, timezone-naive rendering of a reading timestamp.
// Fractional seconds are trimmed when zero, which keeps the text form sortable.
const TimestampLayout = "2006-01-02 15:04:05.999999999"

// Reading is one timestamped temperature/humidity sample.
// Timestamp is the identity of a sample; Temperature and Humidity are nil when absent.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
}

// Key returns the value the series store indexes readings by.
func (r Reading) Key() int64 {
	return r.Timestamp.UnixNano()
}

// MarshalJSON renders the timestamp in TimestampLayout instead of RFC3339.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp   string   `json:"timestamp"`
		Temperature *float64 `json:"temperature"`
		Humidity    *float64 `json:"humidity"`
	}{
		Timestamp:   FormatTimestamp(r.Timestamp),
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
	})
}

// RawReading is one upstream record before normalization. Fields keep their raw JSON
// so that numbers sent as strings, nulls and missing keys can be told apart.
type RawReading struct {
	Temperature json.RawMessage `json:"temperature"`
	Humidity    json.RawMessage `json:"humidity"`
	Timestamp   json.RawMessage `json:"timestamp"`

	// Malformed is set by the feed client when the element was not a JSON object.
	Malformed bool `json:"-"`
}

// MergeResult reports what a merge did with a batch.
type MergeResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// CycleSummary is the outcome of one ingestion cycle.
type CycleSummary struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Fetched    int           `json:"fetched"`
	Inserted   int           `json:"inserted"`
	Duplicates int           `json:"duplicates"`
	Skipped    int           `json:"skipped"`
	Err        error         `json:"-"`
}

// Failed reports whether the cycle ended with an error.
func (s CycleSummary) Failed() bool {
	return s.Err != nil
}

// Float returns a pointer to v. Handy for building readings in code and tests.
func Float(v float64) *float64 {
	return &v
}
