// Package waydist implements the WayDistributor contract of spec.md
// §4.2: turning a sorted list of cluster weights into cache-way masks,
// grounded on original_source's cat-policy.cpp (SlowfirstClusteredOptimallyAdjusted
// and its per-model closures).
package waydist

import (
	"fmt"
	"math"
)

// Model names a parametric curve shape, matching the named models in
// cat-policy.cpp verbatim.
type Model string

const (
	Linear      Model = "linear"
	Quadratic   Model = "quadratic"
	Exponential Model = "exponential"
	ExpQuad     Model = "expquad"
	Log         Model = "log"
	LinLog      Model = "linlog"
	Camel       Model = "camel"
)

// AllModels lists every named model, in the order the original
// implementation previews them for debugging.
var AllModels = []Model{Linear, Quadratic, Exponential, ExpQuad, Log, LinLog, Camel}

// curve evaluates a model at x in [0, 1], matching cat-policy.cpp's
// per-model lambdas. Linear, quadratic, exponential and expquad span
// exactly [minWays, maxWays]. Log and linlog use fixed constants that
// climb 18 ways above their floor (minWays for log, always 2 for
// linlog), so they span [2, 20] only for that geometry. Camel uses
// fixed constants and spans roughly [7, 16] whatever the geometry.
// Results are not clamped to [minWays, maxWays].
func curve(m Model, x float64, minWays, maxWays uint32) (float64, error) {
	min := float64(minWays)
	max := float64(maxWays)

	switch m {
	case Linear:
		a := max - min
		x *= a
		return x + min, nil
	case Quadratic:
		a := math.Sqrt(max - min)
		x *= a
		return math.Pow(x, 2) + min, nil
	case Exponential:
		a := math.Log(max - min + 1)
		x *= a
		return math.Exp(x) + min - 1, nil
	case ExpQuad:
		a := math.Sqrt(math.Log(max - min + 1))
		x *= a
		return math.Exp(math.Pow(x, 2)) + min - 1, nil
	case Log:
		const a = 14.849
		x *= a
		return 15*math.Log10(x+1) + min, nil
	case LinLog:
		const a = 15.222
		x *= a
		if x == 0 {
			return 2, nil
		}
		return x*math.Log10(x) + 2, nil
	case Camel:
		const a = 21.522
		x *= a
		return (0.9*x-25)*math.Exp(0.1*x) + 0.005*math.Pow(x+40, 2) + x + 24, nil
	default:
		return 0, fmt.Errorf("waydist: unknown model %q", m)
	}
}

// Ways evaluates the curve at x and rounds to an integer way count,
// the conversion cat-policy.cpp applies right before building a mask.
func Ways(m Model, x float64, minWays, maxWays uint32) (uint32, error) {
	y, err := curve(m, x, minWays, maxWays)
	if err != nil {
		return 0, err
	}
	return uint32(math.Round(y)), nil
}

// Mask builds a cache bitmask spanning the given number of ways out of
// maxWays total, either packed from the low-order bit (the default) or
// from the high-order bit (when fromLeft is set, used by the
// alternate_sides option to keep adjacent clusters' masks from
// overlapping as tightly).
func Mask(ways, maxWays uint32, fromLeft bool) uint64 {
	if ways > maxWays {
		ways = maxWays
	}
	full := uint64(1)<<maxWays - 1
	if ways == 0 {
		return 0
	}
	low := uint64(1)<<ways - 1
	if !fromLeft {
		return low
	}
	return (full << (maxWays - ways)) & full
}
