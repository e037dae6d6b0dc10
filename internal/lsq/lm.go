// Package lsq implements Levenberg-Marquardt nonlinear least squares for one-dimensional
// curve fitting, reporting the parameter covariance the way curve fitting tools do.
package lsq

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotConverged is returned when the iteration limit is reached.
	ErrNotConverged = errors.New("lsq: maximum iterations reached without convergence")
	// ErrSingular is returned when the normal equations are numerically singular.
	ErrSingular = errors.New("lsq: singular normal equations")
	// ErrNonFinite is returned when the model produces NaN or Inf.
	ErrNonFinite = errors.New("lsq: non-finite residuals")
	// ErrUnderdetermined is returned when there are no more points than parameters.
	ErrUnderdetermined = errors.New("lsq: not enough points for the number of parameters")
)

// maxCondition is the largest condition number of J^T J accepted for the covariance.
const maxCondition = 1e14

// Problem describes a model f(x; p) fitted to samples (X, Y).
type Problem struct {
	X, Y []float64
	// Model evaluates f(x; p).
	Model func(x float64, p []float64) float64
	// Gradient writes df/dp at x into grad. When nil a central difference is used.
	Gradient func(grad []float64, x float64, p []float64)
}

// Settings controls the iteration.
type Settings struct {
	MaxIterations int     // default 200
	Tolerance     float64 // relative SSR / step tolerance, default 1e-10
	InitialLambda float64 // default 1e-3
}

func (s Settings) withDefaults() Settings {
	if s.MaxIterations <= 0 {
		s.MaxIterations = 200
	}
	if s.Tolerance <= 0 {
		s.Tolerance = 1e-10
	}
	if s.InitialLambda <= 0 {
		s.InitialLambda = 1e-3
	}
	return s
}

// Result is a converged fit.
type Result struct {
	Params     []float64
	Fitted     []float64
	SSR        float64 // residual sum of squares
	Iterations int
	Covariance *mat.SymDense // (J^T J)^-1 * SSR/(n-p)
}

// Fit minimizes the residual sum of squares starting from initial.
func Fit(prob Problem, initial []float64, settings Settings) (*Result, error) {
	s := settings.withDefaults()
	n, p := len(prob.X), len(initial)
	if len(prob.Y) != n {
		return nil, fmt.Errorf("lsq: %d x values but %d y values", n, len(prob.Y))
	}
	if n <= p {
		return nil, ErrUnderdetermined
	}

	grad := prob.Gradient
	if grad == nil {
		grad = centralDifference(prob.Model)
	}

	params := append([]float64(nil), initial...)
	trial := make([]float64, p)
	resid := make([]float64, n)
	ssr, ok := residuals(resid, prob, params)
	if !ok {
		return nil, ErrNonFinite
	}

	jac := mat.NewDense(n, p, nil)
	row := make([]float64, p)
	jtj := mat.NewSymDense(p, nil)
	jtr := mat.NewVecDense(p, nil)
	step := mat.NewVecDense(p, nil)
	damped := mat.NewSymDense(p, nil)
	lambda := s.InitialLambda
	converged := ssr == 0
	iter := 0

	for ; !converged && iter < s.MaxIterations; iter++ {
		for i, x := range prob.X {
			grad(row, x, params)
			jac.SetRow(i, row)
		}
		jtj.SymOuterK(1, jac.T())
		jtr.MulVec(jac.T(), mat.NewVecDense(n, resid))

		improved := false
		for !improved {
			damped.CopySym(jtj)
			for k := 0; k < p; k++ {
				d := math.Max(jtj.At(k, k), 1e-12)
				damped.SetSym(k, k, jtj.At(k, k)+lambda*d)
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= 10
			} else if err := chol.SolveVecTo(step, jtr); err != nil {
				lambda *= 10
			} else {
				for k := range trial {
					trial[k] = params[k] + step.AtVec(k)
				}
				trialResid := make([]float64, n)
				trialSSR, finite := residuals(trialResid, prob, trial)
				if finite && trialSSR < ssr {
					improved = true
					reduction := ssr - trialSSR
					stepNorm := floats.Norm(step.RawVector().Data, 2)
					copy(params, trial)
					copy(resid, trialResid)
					ssr = trialSSR
					lambda = math.Max(lambda/10, 1e-12)
					if reduction <= s.Tolerance*ssr || stepNorm <= s.Tolerance*(floats.Norm(params, 2)+s.Tolerance) || ssr == 0 {
						converged = true
					}
				} else {
					lambda *= 10
				}
			}
			// No step reduces the SSR: the current point is a minimum to working precision.
			if !improved && lambda > 1e16 {
				converged = true
				break
			}
		}
	}

	if !converged {
		return nil, ErrNotConverged
	}

	cov, err := covariance(prob, params, grad, ssr, n, p)
	if err != nil {
		return nil, err
	}

	fitted := make([]float64, n)
	for i, x := range prob.X {
		fitted[i] = prob.Model(x, params)
	}

	return &Result{
		Params:     params,
		Fitted:     fitted,
		SSR:        ssr,
		Iterations: iter,
		Covariance: cov,
	}, nil
}

func residuals(dst []float64, prob Problem, params []float64) (float64, bool) {
	ssr := 0.0
	for i, x := range prob.X {
		r := prob.Y[i] - prob.Model(x, params)
		dst[i] = r
		ssr += r * r
	}
	return ssr, !math.IsNaN(ssr) && !math.IsInf(ssr, 0)
}

func covariance(prob Problem, params []float64, grad func([]float64, float64, []float64), ssr float64, n, p int) (*mat.SymDense, error) {
	jac := mat.NewDense(n, p, nil)
	row := make([]float64, p)
	for i, x := range prob.X {
		grad(row, x, params)
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, ErrNonFinite
			}
		}
		jac.SetRow(i, row)
	}
	jtj := mat.NewSymDense(p, nil)
	jtj.SymOuterK(1, jac.T())

	var chol mat.Cholesky
	if !chol.Factorize(jtj) || chol.Cond() > maxCondition {
		return nil, ErrSingular
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, ErrSingular
	}
	inv.ScaleSym(ssr/float64(n-p), &inv)
	return &inv, nil
}

func centralDifference(model func(float64, []float64) float64) func([]float64, float64, []float64) {
	return func(grad []float64, x float64, p []float64) {
		q := append([]float64(nil), p...)
		for k := range p {
			h := 1e-6 * math.Max(math.Abs(p[k]), 1)
			q[k] = p[k] + h
			up := model(x, q)
			q[k] = p[k] - h
			down := model(x, q)
			q[k] = p[k]
			grad[k] = (up - down) / (2 * h)
		}
	}
}
