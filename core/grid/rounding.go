package grid

import "math"

// tolerance keeps binary float artifacts such as 104.99999999 from moving a
// ceil or floor by a whole watt-hour.
const tolerance = 1e-9

func roundWh(x float64) float64 { return math.RoundToEven(x) }

func ceilWh(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Ceil(x - tolerance)
}

func floorWh(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Floor(x + tolerance)
}

// finite reports whether every value is neither NaN nor infinite.
func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
