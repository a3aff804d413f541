package telemetry

import "time"

// Clock supplies the ingestion time used for records that carry no timestamp.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the UTC wall clock, stripped the same way upstream timestamps are.
var SystemClock Clock = ClockFunc(func() time.Time {
	return Naive(time.Now().UTC())
})

// Naive returns t's wall-clock reading as a UTC-located time with no monotonic part.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
