package reconcile

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawRecord is a single upstream trade-execution record as decoded from the
// exchange API or an ingest message. Key naming and value types vary across
// sources: numbers arrive as float64, json.Number, or numeric strings, and
// timestamps as epoch-milliseconds or RFC3339 strings.
type RawRecord map[string]any

// stringField returns the first non-empty string value among keys.
func (r RawRecord) stringField(keys ...string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		case json.Number:
			return s.String()
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case int:
			return strconv.Itoa(s)
		case int64:
			return strconv.FormatInt(s, 10)
		}
	}
	return ""
}

// floatField returns the first coercible numeric value among keys along with
// whether any of the keys was present and coercible.
func (r RawRecord) floatField(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			continue
		}
		if f, ok := coerceFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// safeFloat coerces v to a float64, substituting def for missing,
// non-numeric, NaN, or infinite values instead of failing.
func safeFloat(v any, def float64) float64 {
	f, ok := coerceFloat(v)
	if !ok {
		return def
	}
	return f
}

func coerceFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// timeField parses the first usable timestamp among keys. Accepts epoch
// milliseconds (int, float, or numeric string) and RFC3339 strings.
func (r RawRecord) timeField(keys ...string) (time.Time, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			continue
		}
		if ts, ok := coerceTime(v); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" || s == "0" {
			return time.Time{}, false
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpochMillis(ms)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpochMillis(int64(f))
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts, true
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
			return ts, true
		}
		return time.Time{}, false
	case float64:
		return fromEpochMillis(int64(t))
	case int:
		return fromEpochMillis(int64(t))
	case int64:
		return fromEpochMillis(t)
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			if f, ferr := t.Float64(); ferr == nil {
				return fromEpochMillis(int64(f))
			}
			return time.Time{}, false
		}
		return fromEpochMillis(ms)
	}
	return time.Time{}, false
}

func fromEpochMillis(ms int64) (time.Time, bool) {
	if ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
