package grid

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scale is the inclusive range grade values must fall into.
type Scale struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

var DefaultScale = Scale{Min: 0, Max: 10}

var (
	errValueRequired = errors.New("value is required")
	errValueNaN      = errors.New("value must be a number")
)

func (s Scale) isZero() bool { return s.Min == 0 && s.Max == 0 }

func (s Scale) String() string {
	return formatValue(s.Min) + " - " + formatValue(s.Max)
}

// Parse converts raw into a value within the scale. A decimal comma is accepted ("7,5").
func (s Scale) Parse(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errValueRequired
	}
	val, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, errValueNaN
	}
	if val < s.Min || val > s.Max {
		return 0, errors.Errorf("value must be between %s and %s", formatValue(s.Min), formatValue(s.Max))
	}
	return val, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
