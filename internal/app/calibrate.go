// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_replay/internal/calibration"
	"github.com/relabs-tech/inertial_replay/internal/config"
	"github.com/relabs-tech/inertial_replay/internal/pipeline"
	"github.com/relabs-tech/inertial_replay/internal/recording"
)

type CalibrationOptions struct {
	Input     string
	Window    recording.Window
	Start     float64 // initial x_scale; 0 means 1
	Optimizer calibration.Options
	// Output receives the best parameters when set.
	Output string
	// Derived receives the events of a final replay with the best
	// parameters when set.
	Derived string
}

// RunCalibration searches for the magnetometer x scale that minimises the
// threshold cost over a recording.
func RunCalibration(ctx context.Context, cfg *config.Config, opts CalibrationOptions) (calibration.Result, error) {
	pc, err := cfg.Pipeline()
	if err != nil {
		return calibration.Result{}, err
	}
	events, sum, err := recording.ReadFile(opts.Input, cfg.SourceMap(), opts.Window)
	if err != nil {
		return calibration.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return calibration.Result{}, err
	}

	start := opts.Start
	if start == 0 {
		start = pipeline.DefaultParams().XScale
	}
	log.WithFields(log.Fields{
		"input":  opts.Input,
		"events": sum.Events,
		"start":  start,
	}).Info("calibration started")

	obj := calibration.Objective{Events: events, Config: pc}
	res, err := calibration.Optimize(obj, start, opts.Optimizer)
	if err != nil {
		return res, err
	}
	log.WithFields(log.Fields{
		"x_scale":     res.XScale,
		"cost":        res.Cost,
		"evaluations": res.Evaluations,
		"status":      res.Status,
	}).Info("calibration finished")

	if opts.Output != "" {
		if err := recording.SaveParams(opts.Output, pipeline.Params{XScale: res.XScale}); err != nil {
			return res, err
		}
		log.WithField("path", opts.Output).Info("parameters saved")
	}
	if opts.Derived != "" {
		stats, err := replayToFile(ctx, pc, pipeline.Params{XScale: res.XScale}, events, opts.Derived)
		if err != nil {
			return res, err
		}
		log.WithFields(log.Fields{
			"path":    opts.Derived,
			"derived": stats.Derived,
		}).Info("final replay written")
	}
	return res, nil
}
