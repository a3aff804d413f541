package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/i474232898/dht-telemetry/internal/telemetry"
)

// Header is the column layout shared by the CSV journal and the export.
var Header = []string{"timestamp", "temperature", "humidity"}

// WriteCSV writes readings as CSV with Header as the first row. Absent values are empty cells.
func WriteCSV(w io.Writer, readings []telemetry.Reading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	if err := writeRecords(cw, readings); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeRecords(cw *csv.Writer, readings []telemetry.Reading) error {
	for _, r := range readings {
		if err := cw.Write(formatRecord(r)); err != nil {
			return err
		}
	}
	return nil
}

func formatRecord(r telemetry.Reading) []string {
	return []string{
		telemetry.FormatTimestamp(r.Timestamp),
		formatValue(r.Temperature),
		formatValue(r.Humidity),
	}
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseRecord(rec []string) (telemetry.Reading, error) {
	if len(rec) != len(Header) {
		return telemetry.Reading{}, fmt.Errorf("want %d fields, got %d", len(Header), len(rec))
	}
	ts, ok := telemetry.ParseTimestamp(rec[0])
	if !ok {
		return telemetry.Reading{}, fmt.Errorf("invalid timestamp %q", rec[0])
	}
	temp, err := parseValue(rec[1])
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("invalid temperature: %w", err)
	}
	hum, err := parseValue(rec[2])
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("invalid humidity: %w", err)
	}
	return telemetry.Reading{Timestamp: ts, Temperature: temp, Humidity: hum}, nil
}

func parseValue(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func isHeader(rec []string) bool {
	return slices.Equal(rec, Header)
}
