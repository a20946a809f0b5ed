// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_replay/internal/orientation"
	"github.com/relabs-tech/inertial_replay/internal/sink"
	"github.com/relabs-tech/inertial_replay/internal/synthetic"
)

// RunSynthetic renders a motion plan to a recording at output.
func RunSynthetic(planPath, output string) (synthetic.Summary, error) {
	plan, err := synthetic.LoadPlan(planPath)
	if err != nil {
		return synthetic.Summary{}, err
	}
	out, err := sink.NewFileSink(output)
	if err != nil {
		return synthetic.Summary{}, err
	}
	sum, genErr := synthetic.Generate(plan, out.Write)
	if err := errors.Join(genErr, out.Close()); err != nil {
		return sum, err
	}

	final := orientation.PoseFromQuaternion(sum.Final)
	log.WithFields(log.Fields{
		"plan":    planPath,
		"output":  output,
		"samples": sum.Samples,
		"events":  out.Count(),
		"start":   sum.Start,
		"end":     sum.End,
		"yaw":     final.Yaw,
	}).Info("synthetic recording written")
	return sum, nil
}
