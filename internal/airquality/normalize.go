package airquality

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// UnknownStation is used when the feed omits the station name.
	UnknownStation = "Unknown Station"
	// UnknownPollutant is used when the dominant pollutant is absent or empty.
	UnknownPollutant = "unknown"
)

// SafeFloat coerces a raw feed scalar into a float. It returns nil for nil,
// the sentinels "-" and "NaN", non-finite values, and anything that does not parse.
func SafeFloat(v any) *float64 {
	var f float64
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(val)
		if s == "-" || s == "NaN" || isHexLiteral(s) {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	case json.Number:
		parsed, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Normalizer turns raw feed payloads into Records.
type Normalizer struct {
	clock  Clock
	logger *zap.Logger
}

// NewNormalizer constructs a Normalizer. The clock supplies the fallback
// observation time when the feed omits one.
func NewNormalizer(clock Clock, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{clock: clock, logger: logger}
}

// CheckStatus returns a *RejectedError when the payload status is not "ok".
func CheckStatus(payload RawPayload) error {
	status := payload.Status()
	if status == StatusOK {
		return nil
	}
	return &RejectedError{
		City:    payload.City,
		Status:  status,
		Message: providerMessage(payload.Doc),
	}
}

// Normalize converts one payload into a Record.
func (n *Normalizer) Normalize(payload RawPayload) (Record, error) {
	if err := CheckStatus(payload); err != nil {
		return Record{}, err
	}

	data := object(payload.Doc, "data")
	station := object(data, "city")
	iaqi := object(data, "iaqi")

	rec := Record{
		Station:     UnknownStation,
		City:        payload.City,
		AQI:         SafeFloat(data["aqi"]),
		PM25:        measurement(iaqi, "pm25"),
		PM10:        measurement(iaqi, "pm10"),
		CO:          measurement(iaqi, "co"),
		NO2:         measurement(iaqi, "no2"),
		O3:          measurement(iaqi, "o3"),
		SO2:         measurement(iaqi, "so2"),
		Dominentpol: UnknownPollutant,
		Temperature: measurement(iaqi, "t"),
		Humidity:    measurement(iaqi, "h"),
		WindSpeed:   measurement(iaqi, "w"),
		Pressure:    measurement(iaqi, "p"),
	}
	if name, ok := station["name"]; ok && name != nil {
		rec.Station = fmt.Sprint(name)
	}
	rec.Latitude, rec.Longitude = geoPair(station["geo"])
	if pol, ok := data["dominentpol"].(string); ok && pol != "" {
		rec.Dominentpol = pol
	}

	ts, err := n.observedAt(payload.City, object(data, "time"))
	if err != nil {
		return Record{}, err
	}
	rec.Timestamp = ts
	return rec, nil
}

func (n *Normalizer) observedAt(city string, timeInfo map[string]any) (time.Time, error) {
	raw, present := timeInfo["s"]
	var measured string
	switch v := raw.(type) {
	case nil:
	case string:
		measured = v
	default:
		return time.Time{}, fmt.Errorf("%w: %s: unexpected type %T", ErrMalformedTimestamp, city, raw)
	}
	if !present || measured == "" {
		measured = n.clock.Now().UTC().Format(TimestampLayout)
		n.logger.Warn("missing timestamp, using current UTC time",
			zap.String("city", city),
			zap.String("timestamp", measured),
		)
	}
	ts, err := time.Parse(TimestampLayout, measured)
	// time.Parse accepts a fractional-second suffix the layout does not name.
	if err != nil || ts.Format(TimestampLayout) != measured {
		return time.Time{}, fmt.Errorf("%w: %s: %q", ErrMalformedTimestamp, city, measured)
	}
	return ts, nil
}

// isHexLiteral reports whether s is a Go hex float such as "0x1p4", which
// strconv.ParseFloat accepts but the feed never means as a number.
func isHexLiteral(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

func object(doc map[string]any, key string) map[string]any {
	if doc == nil {
		return nil
	}
	m, _ := doc[key].(map[string]any)
	return m
}

func measurement(iaqi map[string]any, key string) *float64 {
	return SafeFloat(object(iaqi, key)["v"])
}

func geoPair(v any) (*float64, *float64) {
	pair, ok := v.([]any)
	if !ok {
		return nil, nil
	}
	var lat, lon *float64
	if len(pair) > 0 {
		lat = SafeFloat(pair[0])
	}
	if len(pair) > 1 {
		lon = SafeFloat(pair[1])
	}
	return lat, lon
}

func providerMessage(doc map[string]any) string {
	if msg, ok := doc["message"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := doc["data"].(string); ok && msg != "" {
		return msg
	}
	return "Unknown error"
}
