package telemetry

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ingestTime = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func rawOf(t *testing.T, s string) RawReading {
	t.Helper()
	var r RawReading
	require.NoError(t, json.Unmarshal([]byte(s), &r))
	return r
}

func TestNormalizeRecordDefaultsMissingTimestamp(t *testing.T) {
	r, err := NormalizeRecord(rawOf(t, `{"humidity": 41.0}`), ingestTime)
	require.NoError(t, err)

	assert.True(t, r.Timestamp.Equal(ingestTime))
	assert.Nil(t, r.Temperature)
	require.NotNil(t, r.Humidity)
	assert.Equal(t, 41.0, *r.Humidity)
}

func TestNormalizeRecord(t *testing.T) {
	tests := map[string]struct {
		in       string
		wantErr  bool
		wantTS   string
		wantTemp *float64
		wantHum  *float64
	}{
		"complete": {
			in:       `{"temperature": 25.0, "humidity": 40.0, "timestamp": "2025-06-10 10:00:00"}`,
			wantTS:   "2025-06-10 10:00:00",
			wantTemp: Float(25),
			wantHum:  Float(40),
		},
		"numeric strings": {
			in:       `{"temperature": " 25.5 ", "humidity": "40", "timestamp": "2025-06-10T10:00:00"}`,
			wantTS:   "2025-06-10 10:00:00",
			wantTemp: Float(25.5),
			wantHum:  Float(40),
		},
		"zoned timestamp converted to utc": {
			in:       `{"temperature": 25, "timestamp": "2025-06-10T15:30:00+05:30"}`,
			wantTS:   "2025-06-10 10:00:00",
			wantTemp: Float(25),
		},
		"http date": {
			in:       `{"temperature": 25, "timestamp": "Tue, 10 Jun 2025 10:00:00 GMT"}`,
			wantTS:   "2025-06-10 10:00:00",
			wantTemp: Float(25),
		},
		"unix seconds": {
			in:      `{"humidity": 40, "timestamp": 1749549600}`,
			wantTS:  "2025-06-10 10:00:00",
			wantHum: Float(40),
		},
		"unix milliseconds": {
			in:      `{"humidity": 40, "timestamp": 1749549600000}`,
			wantTS:  "2025-06-10 10:00:00",
			wantHum: Float(40),
		},
		"fractional seconds kept": {
			in:      `{"humidity": 40, "timestamp": "2025-06-10 10:00:00.25"}`,
			wantTS:  "2025-06-10 10:00:00.25",
			wantHum: Float(40),
		},
		"unparseable timestamp uses ingestion time": {
			in:       `{"temperature": 25, "timestamp": "soon"}`,
			wantTS:   "2025-06-10 12:00:00",
			wantTemp: Float(25),
		},
		"seconds beyond year 9999 use ingestion time": {
			in:       `{"temperature": 21, "timestamp": 253402300800}`,
			wantTS:   "2025-06-10 12:00:00",
			wantTemp: Float(21),
		},
		"overflowing number uses ingestion time": {
			in:       `{"temperature": 21, "timestamp": 1e20}`,
			wantTS:   "2025-06-10 12:00:00",
			wantTemp: Float(21),
		},
		"milliseconds after 2262 use ingestion time": {
			in:       `{"temperature": 21, "timestamp": 9300000000000}`,
			wantTS:   "2025-06-10 12:00:00",
			wantTemp: Float(21),
		},
		"text date after 2262 uses ingestion time": {
			in:       `{"temperature": 21, "timestamp": "2300-01-01 00:00:00"}`,
			wantTS:   "2025-06-10 12:00:00",
			wantTemp: Float(21),
		},
		"text date before 1678 uses ingestion time": {
			in:       `{"temperature": 21, "timestamp": "1600-01-01"}`,
			wantTS:   "2025-06-10 12:00:00",
			wantTemp: Float(21),
		},
		"unparseable temperature is absent": {
			in:      `{"temperature": "hot", "humidity": 40, "timestamp": "2025-06-10 10:00:00"}`,
			wantTS:  "2025-06-10 10:00:00",
			wantHum: Float(40),
		},
		"nan is absent": {
			in:       `{"temperature": 25, "humidity": "NaN", "timestamp": "2025-06-10 10:00:00"}`,
			wantTS:   "2025-06-10 10:00:00",
			wantTemp: Float(25),
		},
		"both values missing": {
			in:      `{"timestamp": "2025-06-10 10:00:00"}`,
			wantErr: true,
		},
		"both values unparseable": {
			in:      `{"temperature": null, "humidity": {"v": 1}, "timestamp": "2025-06-10 10:00:00"}`,
			wantErr: true,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r, err := NormalizeRecord(rawOf(t, tt.in), ingestTime)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTS, FormatTimestamp(r.Timestamp))
			assert.Equal(t, tt.wantTemp, r.Temperature)
			assert.Equal(t, tt.wantHum, r.Humidity)
		})
	}
}

func TestRepresentableTimestampsRoundTrip(t *testing.T) {
	tests := map[string]struct {
		ts   time.Time
		want bool
	}{
		"now":          {ingestTime, true},
		"last nano":    {time.Unix(0, math.MaxInt64).UTC(), true},
		"first nano":   {time.Unix(0, math.MinInt64).UTC(), true},
		"after range":  {time.Date(2262, 4, 12, 0, 0, 0, 0, time.UTC), false},
		"before range": {time.Date(1677, 9, 21, 0, 0, 0, 0, time.UTC), false},
		"year 10000":   {time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC), false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Representable(tt.ts))
			if !tt.want {
				return
			}
			back, ok := ParseTimestamp(FormatTimestamp(tt.ts))
			require.True(t, ok)
			assert.True(t, back.Equal(tt.ts))
			assert.Equal(t, tt.ts.UnixNano(), Reading{Timestamp: back}.Key())
		})
	}
}

func TestNormalizeCountsSkipped(t *testing.T) {
	raws := []RawReading{
		rawOf(t, `{"temperature": 25, "humidity": 40, "timestamp": "2025-06-10 10:00:00"}`),
		rawOf(t, `{}`),
		{Malformed: true},
		rawOf(t, `{"humidity": 41}`),
	}

	readings, skipped := Normalize(raws, ingestTime)
	assert.Len(t, readings, 2)
	assert.Equal(t, 2, skipped)
}

func TestBandsClassify(t *testing.T) {
	status := DefaultBands.Classify(Reading{Temperature: Float(19.9), Humidity: Float(60)})
	assert.Equal(t, ReadingStatus{Temperature: StatusLow, Humidity: StatusNormal}, status)

	status = DefaultBands.Classify(Reading{Humidity: Float(60.1)})
	assert.Equal(t, ReadingStatus{Temperature: StatusUnknown, Humidity: StatusHigh}, status)
}

func TestReadingJSON(t *testing.T) {
	b, err := json.Marshal(Reading{Timestamp: ingestTime, Humidity: Float(41)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp": "2025-06-10 12:00:00", "temperature": null, "humidity": 41}`, string(b))
}
