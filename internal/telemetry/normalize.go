package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// timestampLayouts are tried in order. Layouts carrying a zone are converted to UTC
// before the zone is dropped; naive layouts are taken as written.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04",
	"2006-01-02",
}

// Readings are keyed by UnixNano, so only timestamps inside its range are accepted.
var (
	minTimestamp = time.Unix(0, math.MinInt64).UTC()
	maxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

const maxUnixMilli = math.MaxInt64 / int64(time.Millisecond)

// Representable reports whether t can be keyed, stored and read back unchanged.
func Representable(t time.Time) bool {
	return !t.Before(minTimestamp) && !t.After(maxTimestamp)
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp parses the textual forms upstream is known to send.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			ts = Naive(ts.UTC())
			return ts, Representable(ts)
		}
	}
	return time.Time{}, false
}

// parseRawTimestamp accepts a JSON string in one of the known layouts or a JSON number
// of unix seconds (milliseconds when the value is too large to be seconds). Values
// outside the representable range count as unparseable.
func parseRawTimestamp(raw json.RawMessage) (time.Time, bool) {
	if isAbsent(raw) {
		return time.Time{}, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseTimestamp(s)
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return time.Time{}, false
	}

	var ts time.Time
	if math.Abs(n) >= 1e12 {
		if math.Abs(n) > float64(maxUnixMilli) {
			return time.Time{}, false
		}
		ts = time.UnixMilli(int64(n))
	} else {
		sec, frac := math.Modf(n)
		ts = time.Unix(int64(sec), int64(frac*1e9))
	}
	ts = Naive(ts.UTC())
	return ts, Representable(ts)
}

// parseRawValue accepts a JSON number or a numeric string. Anything else, including
// NaN and infinities, is treated as absent.
func parseRawValue(raw json.RawMessage) *float64 {
	if isAbsent(raw) {
		return nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return nil
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// NormalizeRecord turns one raw upstream record into a Reading. A record whose
// timestamp is missing or unparseable is stamped with now. It fails with
// ErrMalformedRecord when the record is not an object or neither value parses.
func NormalizeRecord(raw RawReading, now time.Time) (Reading, error) {
	if raw.Malformed {
		return Reading{}, ErrMalformedRecord
	}

	temp := parseRawValue(raw.Temperature)
	hum := parseRawValue(raw.Humidity)
	if temp == nil && hum == nil {
		return Reading{}, ErrMalformedRecord
	}

	ts, ok := parseRawTimestamp(raw.Timestamp)
	if !ok {
		ts = now
	}

	return Reading{
		Timestamp:   ts,
		Temperature: temp,
		Humidity:    hum,
	}, nil
}

// Normalize converts a batch of raw records, returning the readings that survived and
// how many were skipped.
func Normalize(raws []RawReading, now time.Time) ([]Reading, int) {
	readings := lo.FilterMap(raws, func(raw RawReading, _ int) (Reading, bool) {
		r, err := NormalizeRecord(raw, now)
		return r, err == nil
	})
	return readings, len(raws) - len(readings)
}
