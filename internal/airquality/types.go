// Package airquality defines the core types shared across the ETL subsystems.
package airquality

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// TimestampLayout is the observation time format used by the feed and the fallback clock.
const TimestampLayout = "2006-01-02 15:04:05"

// StatusOK is the top-level status value reported by the feed on success.
const StatusOK = "ok"

// RawPayload is one feed response for one city, exactly as received.
type RawPayload struct {
	// City is the configured city identifier the poll was issued for.
	City string
	// Body holds the undecoded response bytes.
	Body []byte
	// Doc is Body decoded with json.Number preserved for numeric fields.
	Doc map[string]any
}

// DecodePayload parses a feed response body into a RawPayload.
func DecodePayload(city string, body []byte) (RawPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return RawPayload{}, fmt.Errorf("decode payload for %s: %w", city, err)
	}
	if doc == nil {
		return RawPayload{}, fmt.Errorf("decode payload for %s: empty document", city)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return RawPayload{}, fmt.Errorf("decode payload for %s: trailing data after document", city)
	}
	return RawPayload{
		City: city,
		Body: append([]byte(nil), body...),
		Doc:  doc,
	}, nil
}

// Status returns the top-level status string, or "" when absent.
func (p RawPayload) Status() string {
	s, _ := p.Doc["status"].(string)
	return s
}

// Record is the flat, typed row persisted for one city at one observation time.
// Nil pointers represent absent measurements.
type Record struct {
	Station     string    `json:"station"`
	City        string    `json:"city"`
	AQI         *float64  `json:"aqi"`
	PM25        *float64  `json:"pm25"`
	PM10        *float64  `json:"pm10"`
	CO          *float64  `json:"co"`
	NO2         *float64  `json:"no2"`
	O3          *float64  `json:"o3"`
	SO2         *float64  `json:"so2"`
	Dominentpol string    `json:"dominentpol"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	WindSpeed   *float64  `json:"wind_speed"`
	Pressure    *float64  `json:"pressure"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Timestamp   time.Time `json:"timestamp"`
}

// Key returns the natural key of the record.
func (r Record) Key() NaturalKey {
	return NaturalKey{Timestamp: r.Timestamp, City: r.City}
}

// NaturalKey identifies a stored record.
type NaturalKey struct {
	Timestamp time.Time
	City      string
}

// Batch is the set of records produced by one fetch cycle.
// A nil *Batch means no city yielded a record.
type Batch struct {
	Records []Record
}

// Len reports the number of records; it is safe on a nil batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Cities lists the cities present in the batch in record order.
func (b *Batch) Cities() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.Records))
	for _, r := range b.Records {
		out = append(out, r.City)
	}
	return out
}

// FetchRequest captures everything needed to poll one city.
type FetchRequest struct {
	City string
	URL  string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// BatchStored is the notification published after a batch is committed.
type BatchStored struct {
	RunID    string    `json:"run_id"`
	Cities   []string  `json:"cities"`
	Records  int       `json:"records"`
	StoredAt time.Time `json:"stored_at"`
}
