package serialization

import (
	"math"
	"strconv"
)

// formatFloat renders a float the way .NET's invariant-culture ToString()
// does for the special values, and round-trippable decimal text otherwise.
func formatFloat(v float64, bitSize int) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	default:
		return strconv.FormatFloat(v, 'G', -1, bitSize)
	}
}

// parseFloat reverses formatFloat.
func parseFloat(s string, bitSize int) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, bitSize)
}
