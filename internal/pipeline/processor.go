// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pipeline

import (
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/orientation"
	"github.com/relabs-tech/inertial_replay/internal/raster"
	"github.com/relabs-tech/inertial_replay/internal/spectral"
)

// ErrMalformedEvent is returned for sensor events without the channels a
// processor needs.
var ErrMalformedEvent = errors.New("pipeline: malformed event")

// Processor consumes one input event and appends its derived events to out.
type Processor interface {
	Name() string
	Process(ev event.Event, out []event.Event) ([]event.Event, error)
}

func vector(ev event.Event) (orientation.Vector3, error) {
	x, y, z, ok := ev.Vec3()
	if !ok {
		return orientation.Vector3{}, fmt.Errorf("%w: %s has %d values, want 3", ErrMalformedEvent, ev.Source, ev.Count)
	}
	return orientation.Vector3{X: float32(x), Y: float32(y), Z: float32(z)}, nil
}

// FusionProcessor threads the orientation through successive gyro samples
// and corrects it with the latest accelerometer and magnetometer readings.
type FusionProcessor struct {
	cfg   FusionConfig
	stats *Stats

	q         orientation.Quaternion
	accel     orientation.Vector3
	mag       orientation.Vector3
	haveAccel bool
	haveMag   bool
	lastGyro  float64
	haveGyro  bool
}

func NewFusionProcessor(cfg FusionConfig, stats *Stats) *FusionProcessor {
	q, err := orientation.Normalize(cfg.Initial)
	if err != nil {
		q = orientation.Identity()
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &FusionProcessor{cfg: cfg, stats: stats, q: q}
}

func (f *FusionProcessor) Name() string { return "fusion" }

// Orientation returns the current estimate.
func (f *FusionProcessor) Orientation() orientation.Quaternion { return f.q }

func (f *FusionProcessor) Process(ev event.Event, out []event.Event) ([]event.Event, error) {
	switch ev.Source {
	case event.Accelerometer:
		v, err := vector(ev)
		if err != nil {
			return out, err
		}
		f.accel = v
		if f.cfg.SeedFromAccel && !f.haveAccel && !f.haveGyro {
			f.q = orientation.ComputePoseFromAccel(float64(v.X), float64(v.Y), float64(v.Z)).Quaternion()
		}
		f.haveAccel = true
	case event.Magnetometer:
		v, err := vector(ev)
		if err != nil {
			return out, err
		}
		f.mag = v
		f.haveMag = true
	case event.Gyroscope:
		omega, err := vector(ev)
		if err != nil {
			return out, err
		}
		f.step(ev.Timestamp, omega)
		out = f.emit(ev.Timestamp, out)
	}
	return out, nil
}

func (f *FusionProcessor) step(ts float64, omega orientation.Vector3) {
	dt := ts - f.lastGyro
	first := !f.haveGyro
	f.haveGyro = true
	f.lastGyro = ts
	if first {
		return
	}
	if !(dt > 0) || dt > f.cfg.MaxStep {
		f.stats.TimeSkips++
		log.WithFields(log.Fields{"timestamp": ts, "dt": dt}).Debug("gyro gap outside integration range, re-anchoring")
		return
	}

	var (
		q   orientation.Quaternion
		err error
	)
	if f.haveAccel && f.haveMag {
		q, err = orientation.SensorFusion(f.q, omega, f.accel, f.mag, f.cfg.AccelRef, f.cfg.MagRef,
			float32(dt), f.cfg.GainAccel, f.cfg.GainMag)
	} else {
		q, err = orientation.IntegrateGyroscope(f.q, omega, float32(dt))
	}

	switch {
	case err == nil:
		f.q = q
	case errors.Is(err, orientation.ErrDegenerateMeasurement):
		// q is the integrated orientation without correction.
		f.q = q
		f.stats.Degenerate++
		log.WithField("timestamp", ts).WithError(err).Debug("correction skipped")
	default:
		f.stats.Degenerate++
		log.WithField("timestamp", ts).WithError(err).Debug("keeping previous orientation")
	}
}

func (f *FusionProcessor) emit(ts float64, out []event.Event) []event.Event {
	e := orientation.QuaternionToEuler(f.q)
	return append(out,
		event.Must(ts, event.Orientation, float64(f.q.W), float64(f.q.X), float64(f.q.Y), float64(f.q.Z)),
		event.Must(ts, event.Euler, float64(e.Roll), float64(e.Pitch), float64(e.Yaw)),
	)
}

// SpectrumProcessor feeds one channel of one source into the spectrogram and
// paints every spectrum into the raster.
type SpectrumProcessor struct {
	cfg    SpectralConfig
	engine *spectral.Spectrogram
	image  *raster.ImageBuffer
	quant  raster.Quantizer
	stats  *Stats
}

func NewSpectrumProcessor(cfg SpectralConfig, rc RasterConfig, stats *Stats) (*SpectrumProcessor, error) {
	engine, err := spectral.New(cfg.Engine)
	if err != nil {
		return nil, err
	}
	img, err := raster.NewImageBuffer(rc.Width, rc.Height)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &SpectrumProcessor{cfg: cfg, engine: engine, image: img, quant: rc.Quantizer, stats: stats}, nil
}

func (s *SpectrumProcessor) Name() string                  { return "spectrum" }
func (s *SpectrumProcessor) Engine() *spectral.Spectrogram { return s.engine }
func (s *SpectrumProcessor) Image() *raster.ImageBuffer    { return s.image }

func (s *SpectrumProcessor) Process(ev event.Event, out []event.Event) ([]event.Event, error) {
	if ev.Source != s.cfg.Source {
		return out, nil
	}
	if s.cfg.Channel >= ev.Count {
		return out, fmt.Errorf("%w: %s has no channel %d", ErrMalformedEvent, ev.Source, s.cfg.Channel)
	}
	mags, ok, err := s.engine.Update(ev.Values[s.cfg.Channel])
	if err != nil {
		return out, fmt.Errorf("spectrum at %.6f: %w", ev.Timestamp, err)
	}
	if !ok {
		return out, nil
	}
	s.stats.Spectra++
	s.image.PushSpectrum(mags, s.quant)
	bin, mag := spectral.DominantBin(mags)
	hz := s.engine.BinFrequency(bin, s.cfg.SampleRate)
	return append(out, event.Must(ev.Timestamp, event.DominantFrequency, float64(bin), hz, mag)), nil
}

// ThresholdProcessor measures how far the magnetometer magnitude sits from
// the expected field strength. These events drive the calibration cost.
type ThresholdProcessor struct {
	cfg ThresholdConfig
}

func NewThresholdProcessor(cfg ThresholdConfig) *ThresholdProcessor {
	return &ThresholdProcessor{cfg: cfg}
}

func (t *ThresholdProcessor) Name() string { return "threshold" }

func (t *ThresholdProcessor) Process(ev event.Event, out []event.Event) ([]event.Event, error) {
	if ev.Source != event.Magnetometer {
		return out, nil
	}
	x, y, z, ok := ev.Vec3()
	if !ok {
		return out, fmt.Errorf("%w: %s has %d values, want 3", ErrMalformedEvent, ev.Source, ev.Count)
	}
	norm := math.Sqrt(x*x + y*y + z*z)
	return append(out, event.Must(ev.Timestamp, event.Threshold, norm-t.cfg.FieldNorm, norm)), nil
}
