// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Options bound the search. Zero fields take the defaults below.
type Options struct {
	TolX    float64 // stop once the best x_scale moves less than this...
	TolF    float64 // ...and the best cost changes less than this
	Stall   int     // for this many consecutive iterations
	MaxIter int
	MaxEval int
	Step    float64 // initial simplex size
}

func DefaultOptions() Options {
	return Options{
		TolX:    1e-3,
		TolF:    1e-3,
		Stall:   5,
		MaxIter: 100,
		MaxEval: 100,
		Step:    0.05,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TolX <= 0 {
		o.TolX = d.TolX
	}
	if o.TolF <= 0 {
		o.TolF = d.TolF
	}
	if o.Stall <= 0 {
		o.Stall = d.Stall
	}
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.MaxEval <= 0 {
		o.MaxEval = d.MaxEval
	}
	if o.Step <= 0 {
		o.Step = d.Step
	}
	return o
}

type Result struct {
	XScale      float64 `json:"x_scale"`
	Cost        float64 `json:"cost"`
	Evaluations int     `json:"evaluations"`
	Iterations  int     `json:"iterations"`
	Status      string  `json:"status"`
}

// Optimize searches for the x_scale that minimises obj.Cost, starting at
// start. A replay error aborts the search.
func Optimize(obj Objective, start float64, opts Options) (Result, error) {
	opts = opts.withDefaults()

	var replayErr error
	evals := 0
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if replayErr != nil {
				return math.Inf(1)
			}
			cost, err := obj.Cost(x[0])
			evals++
			if err != nil {
				replayErr = err
				return math.Inf(1)
			}
			if math.IsNaN(cost) {
				cost = math.Inf(1)
			}
			log.WithFields(log.Fields{"eval": evals, "x_scale": x[0], "cost": cost}).Debug("calibration step")
			return cost
		},
		Status: func() (optimize.Status, error) {
			if replayErr != nil {
				return optimize.Failure, replayErr
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIter,
		FuncEvaluations: opts.MaxEval,
		Converger: &toleranceConverge{
			tolX:  opts.TolX,
			tolF:  opts.TolF,
			stall: opts.Stall,
		},
	}

	res, err := optimize.Minimize(problem, []float64{start}, settings, &optimize.NelderMead{SimplexSize: opts.Step})
	if replayErr != nil {
		return Result{}, fmt.Errorf("calibration replay: %w", replayErr)
	}
	if err != nil {
		return Result{}, fmt.Errorf("nelder-mead: %w", err)
	}
	return Result{
		XScale:      res.X[0],
		Cost:        res.F,
		Evaluations: res.FuncEvaluations,
		Iterations:  res.MajorIterations,
		Status:      res.Status.String(),
	}, nil
}

// toleranceConverge ends the search once the best vertex has stayed within
// tolX and its cost within tolF for stall major iterations in a row.
type toleranceConverge struct {
	tolX, tolF float64
	stall      int

	first bool
	x     []float64
	f     float64
	iter  int
}

func (c *toleranceConverge) Init(dim int) {
	c.first = true
	c.x = make([]float64, dim)
	c.f = 0
	c.iter = 0
}

func (c *toleranceConverge) Converged(loc *optimize.Location) optimize.Status {
	if c.first {
		c.first = false
		copy(c.x, loc.X)
		c.f = loc.F
		return optimize.NotTerminated
	}
	dx := floats.Distance(loc.X, c.x, math.Inf(1))
	df := math.Abs(loc.F - c.f)
	copy(c.x, loc.X)
	c.f = loc.F

	if dx > c.tolX || df > c.tolF {
		c.iter = 0
		return optimize.NotTerminated
	}
	c.iter++
	if c.iter < c.stall {
		return optimize.NotTerminated
	}
	return optimize.FunctionConvergence
}
