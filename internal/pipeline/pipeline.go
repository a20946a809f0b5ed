// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pipeline is the ingest loop: one sensor event in, at most
// event.MaxDerived derived events out. A Pipeline is single-use state for one
// pass over a recording; build a new one per replay.
package pipeline

import (
	"fmt"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/orientation"
	"github.com/relabs-tech/inertial_replay/internal/raster"
)

// Stats counts what happened during a pass.
type Stats struct {
	Processed    int `json:"processed"`
	Unrecognized int `json:"unrecognized"`
	Errors       int `json:"errors"`
	Degenerate   int `json:"degenerate"`
	TimeSkips    int `json:"time_skips"`
	Spectra      int `json:"spectra"`
	Derived      int `json:"derived"`
	Dropped      int `json:"dropped"`
}

// Pipeline replays events through its processors. It is not safe for
// concurrent use.
type Pipeline struct {
	params Params

	fusion     *FusionProcessor
	spectrum   *SpectrumProcessor
	processors []Processor

	out   []event.Event
	stats Stats
}

// New validates cfg and builds the processors. Configuration errors are the
// only fatal errors a pipeline returns.
func New(cfg Config, params Params) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		params: params,
		out:    make([]event.Event, 0, event.MaxDerived),
	}
	p.fusion = NewFusionProcessor(cfg.Fusion, &p.stats)
	p.processors = append(p.processors, p.fusion)

	if cfg.Spectral.Source != event.Unknown {
		sp, err := NewSpectrumProcessor(cfg.Spectral, cfg.Raster, &p.stats)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		p.spectrum = sp
		p.processors = append(p.processors, sp)
	}
	p.processors = append(p.processors, NewThresholdProcessor(cfg.Threshold))
	return p, nil
}

func (p *Pipeline) Params() Params { return p.params }

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats { return p.stats }

// Orientation is the current fused estimate.
func (p *Pipeline) Orientation() orientation.Quaternion { return p.fusion.Orientation() }

// Raster returns the spectrogram image, or nil when the spectral branch is
// disabled.
func (p *Pipeline) Raster() *raster.ImageBuffer {
	if p.spectrum == nil {
		return nil
	}
	return p.spectrum.Image()
}

func (p *Pipeline) apply(ev event.Event) event.Event {
	if ev.Source == event.Magnetometer && ev.Count > 0 {
		ev.Values[0] *= p.params.XScale
	}
	return ev
}

// Update runs ev through every processor. The returned slice is owned by the
// pipeline and is overwritten by the next call. Unknown sources come back as
// *event.UnrecognizedSourceError with no derived events; callers skip them
// and carry on.
func (p *Pipeline) Update(ev event.Event) ([]event.Event, error) {
	out := p.out[:0]
	if !ev.Source.IsSensor() {
		p.stats.Unrecognized++
		return out, &event.UnrecognizedSourceError{ID: ev.Source.String()}
	}
	p.stats.Processed++
	ev = p.apply(ev)

	var firstErr error
	for _, proc := range p.processors {
		var err error
		out, err = proc.Process(ev, out)
		if err != nil {
			p.stats.Errors++
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", proc.Name(), err)
			}
		}
	}

	if len(out) > event.MaxDerived {
		p.stats.Dropped += len(out) - event.MaxDerived
		out = out[:event.MaxDerived]
	}
	p.stats.Derived += len(out)
	p.out = out
	return out, firstErr
}
