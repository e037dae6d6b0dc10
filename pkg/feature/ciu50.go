package feature

import (
	"math"

	"github.com/RuotoloLab/CIUSuite2/internal/lsq"
)

// Logistic evaluates the four-parameter logistic bottom + (top-bottom) / (1 + exp(-k(x-x0))).
func Logistic(x, bottom, top, x0, k float64) float64 {
	return bottom + (top-bottom)/(1+math.Exp(-k*(x-x0)))
}

func logisticModel(x float64, p []float64) float64 {
	return Logistic(x, p[0], p[1], p[2], p[3])
}

// logisticMidpoint fits a logistic over the points of both flanking states and the points
// between them. The fit is accepted only when its midpoint lies between the last point of
// a and the first point of b.
func logisticMidpoint(cv, values []float64, a, b seg) (float64, bool) {
	lo, hi := cv[a.end], cv[b.start]
	xs := cv[a.start : b.end+1]
	ys := values[a.start : b.end+1]
	if len(xs) <= 4 || !(hi > lo) {
		return 0, false
	}

	initial := []float64{
		a.level(),
		b.level(),
		halfwayCrossing(cv, values, a, b),
		4 / (hi - lo),
	}
	res, err := lsq.Fit(lsq.Problem{X: xs, Y: ys, Model: logisticModel}, initial, lsq.Settings{})
	if err != nil {
		return 0, false
	}
	x0 := res.Params[2]
	if math.IsNaN(x0) || x0 < lo || x0 > hi {
		return 0, false
	}
	return x0, true
}
