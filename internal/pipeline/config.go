// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/orientation"
	"github.com/relabs-tech/inertial_replay/internal/raster"
	"github.com/relabs-tech/inertial_replay/internal/spectral"
)

// ErrConfiguration wraps every validation failure of a Config.
var ErrConfiguration = errors.New("pipeline: invalid configuration")

// FusionConfig holds the complementary-filter settings. Gains are per
// correction step, not per second.
type FusionConfig struct {
	GainAccel float32
	GainMag   float32
	AccelRef  orientation.Vector3 // world gravity direction
	MagRef    orientation.Vector3 // world magnetic direction
	// MaxStep is the largest gyro interval, in seconds, that is integrated.
	// Longer gaps re-anchor the clock instead.
	MaxStep       float64
	SeedFromAccel bool
	Initial       orientation.Quaternion
}

// SpectralConfig selects the scalar channel that feeds the spectrogram.
// Source Unknown disables the spectral branch.
type SpectralConfig struct {
	Source     event.SourceID
	Channel    int
	SampleRate float64
	Engine     spectral.Config
}

// RasterConfig sizes the spectrogram image and picks its intensity mapping.
type RasterConfig struct {
	Width     int
	Height    int
	Quantizer raster.Quantizer
}

type ThresholdConfig struct {
	// FieldNorm is the expected magnitude of the calibrated magnetic field.
	FieldNorm float64
}

// Config is static for the life of a Pipeline.
type Config struct {
	Fusion    FusionConfig
	Spectral  SpectralConfig
	Raster    RasterConfig
	Threshold ThresholdConfig
}

// Params are the tunables a calibration run varies between replays.
type Params struct {
	XScale float64 `json:"x_scale" yaml:"x_scale"`
}

// DefaultParams leaves the magnetometer uncorrected.
func DefaultParams() Params {
	return Params{XScale: 1}
}

func DefaultConfig() Config {
	return Config{
		Fusion: FusionConfig{
			GainAccel: 0.05,
			GainMag:   0.05,
			AccelRef:  orientation.Vector3{X: 0, Y: 0, Z: 1},
			MagRef:    orientation.Vector3{X: 1, Y: 0, Z: 0},
			MaxStep:   0.5,
			Initial:   orientation.Identity(),
		},
		Spectral: SpectralConfig{
			Source:     event.Accelerometer,
			Channel:    0,
			SampleRate: 100,
			Engine: spectral.Config{
				WindowSize: 256,
				Window:     spectral.Rectangular,
				Overflow:   spectral.OverflowReject,
			},
		},
		Raster: RasterConfig{
			Width:     512,
			Height:    128,
			Quantizer: raster.Quantizer{Scale: 1, Policy: raster.Wrap},
		},
		Threshold: ThresholdConfig{FieldNorm: 1},
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	f := c.Fusion
	if !(f.GainAccel >= 0) || !(f.GainMag >= 0) {
		return fmt.Errorf("%w: fusion gains must be >= 0, got %v/%v", ErrConfiguration, f.GainAccel, f.GainMag)
	}
	if _, err := f.AccelRef.Normalize(); err != nil {
		return fmt.Errorf("%w: accel reference: %v", ErrConfiguration, err)
	}
	if _, err := f.MagRef.Normalize(); err != nil {
		return fmt.Errorf("%w: mag reference: %v", ErrConfiguration, err)
	}
	if !(f.MaxStep > 0) {
		return fmt.Errorf("%w: max step %v must be > 0", ErrConfiguration, f.MaxStep)
	}
	if _, err := orientation.Normalize(f.Initial); err != nil {
		return fmt.Errorf("%w: initial orientation: %v", ErrConfiguration, err)
	}

	s := c.Spectral
	if s.Source != event.Unknown {
		if !s.Source.IsSensor() {
			return fmt.Errorf("%w: spectral source %v is not a sensor", ErrConfiguration, s.Source)
		}
		if s.Channel < 0 || s.Channel >= event.MaxValues {
			return fmt.Errorf("%w: spectral channel %d out of range", ErrConfiguration, s.Channel)
		}
		if !(s.SampleRate > 0) || !finite(s.SampleRate) {
			return fmt.Errorf("%w: sample rate %v must be > 0", ErrConfiguration, s.SampleRate)
		}
		if c.Raster.Width <= 0 || c.Raster.Height <= 0 {
			return fmt.Errorf("%w: image size %dx%d", ErrConfiguration, c.Raster.Width, c.Raster.Height)
		}
	}

	if !finite(c.Threshold.FieldNorm) || c.Threshold.FieldNorm < 0 {
		return fmt.Errorf("%w: field norm %v", ErrConfiguration, c.Threshold.FieldNorm)
	}
	return nil
}
