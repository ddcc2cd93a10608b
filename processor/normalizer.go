package processor

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"marketpulse/models"
)

// MissingValue is the literal FRED sends for dates without data.
const MissingValue = "."

// ParseObservations converts a raw FRED payload into a normalized series. Entries
// with the missing sentinel, no value, or a value that does not parse as a finite
// number are dropped. The result is in ascending date order regardless of the
// order upstream used.
func ParseObservations(raw []models.RawObservation) []models.Observation {
	out := make([]models.Observation, 0, len(raw))
	for _, r := range raw {
		v, ok := parseValue(r.Value)
		if !ok {
			continue
		}
		out = append(out, models.Observation{Date: strings.TrimSpace(r.Date), Value: v})
	}
	return Normalize(out)
}

// Normalize drops non-finite values and sorts by date. The sort is stable so
// applying Normalize to its own output returns the same list.
func Normalize(obs []models.Observation) []models.Observation {
	out := make([]models.Observation, 0, len(obs))
	for _, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func parseValue(raw any) (float64, bool) {
	var v float64
	switch val := raw.(type) {
	case nil:
		return 0, false
	case string:
		s := strings.TrimSpace(val)
		if s == "" || s == MissingValue {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		v = f
	case float64:
		v = val
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
