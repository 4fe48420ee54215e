package telemetry

import (
	"math"
	"strconv"
	"strings"
)

// FormatValue renders a sensor value like the .NET "#.##" custom format:
// at most two fractional digits rounded half away from zero, no trailing
// zeros or thousands separator, a period as decimal point, and no integer
// digit when the integer part is zero (0.5 -> ".5").
// A value that renders empty (it rounds to zero) is reported as "0".
func FormatValue(v float32) string {
	s := formatHashPattern(float64(v))
	if s == "" {
		s = "0"
	}
	return s
}

func formatHashPattern(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	r := math.Round(f*100) / 100
	if r == 0 {
		return ""
	}

	s := strconv.FormatFloat(r, 'f', -1, 64)
	if strings.HasPrefix(s, "0.") {
		return s[1:]
	}
	if strings.HasPrefix(s, "-0.") {
		return "-" + s[2:]
	}
	return s
}
