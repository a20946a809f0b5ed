// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration scores a magnetometer x-axis scale by replaying a
// recording and summing how far the field magnitude strays from its
// expected value, and drives a Nelder-Mead search over that score.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/pipeline"
)

// Objective is a full replay of Events behind a scalar cost. It holds no
// per-run state: every Cost call builds its own pipeline.
type Objective struct {
	Events []event.Event
	Config pipeline.Config
}

// Cost replays every event with the magnetometer x axis scaled by xScale
// and returns the sum of |values[0]| over the Threshold events produced.
// The same xScale and events always yield the same cost.
func (o Objective) Cost(xScale float64) (float64, error) {
	p, err := pipeline.New(o.Config, pipeline.Params{XScale: xScale})
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, ev := range o.Events {
		out, err := p.Update(ev)
		if err != nil && !skippable(err) {
			return 0, fmt.Errorf("replay at %.6f: %w", ev.Timestamp, err)
		}
		for _, d := range out {
			if d.Source == event.Threshold {
				sum += math.Abs(d.Values[0])
			}
		}
	}
	return sum, nil
}

// skippable reports errors that drop a single event without ending a replay.
func skippable(err error) bool {
	return errors.Is(err, event.ErrUnrecognizedSource) || errors.Is(err, pipeline.ErrMalformedEvent)
}
