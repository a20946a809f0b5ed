// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package spectral turns a scalar sample stream into a sliding magnitude
// spectrum: a ring of window_size samples, an optional taper, an in-place
// radix-2 FFT and a half-window hop between outputs.
package spectral

import (
	"errors"
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrConfiguration is returned by New for an unusable Config.
	ErrConfiguration = errors.New("spectral: invalid configuration")
	// ErrBufferOverflow is returned when a sample arrives with the window full.
	ErrBufferOverflow = errors.New("spectral: buffer overflow")
)

// Config fixes the window length, window function and overflow policy.
type Config struct {
	WindowSize int
	Window     WindowFunction
	Overflow   OverflowPolicy
}

// Spectrogram owns every buffer it needs; nothing is allocated after New.
type Spectrogram struct {
	cfg Config

	buffer []float64
	cursor int

	hann    []float64
	scratch []complex128
	twiddle []complex128
	mags    []float64
}

// New allocates every buffer for cfg. WindowSize must be a power of two.
func New(cfg Config) (*Spectrogram, error) {
	if cfg.WindowSize < 2 || !IsPowerOfTwo(cfg.WindowSize) {
		return nil, fmt.Errorf("%w: window size %d must be a power of two >= 2", ErrConfiguration, cfg.WindowSize)
	}
	switch cfg.Window {
	case Rectangular, Hann:
	default:
		return nil, fmt.Errorf("%w: window function %v", ErrConfiguration, cfg.Window)
	}
	switch cfg.Overflow {
	case OverflowReject, OverflowForceShift:
	default:
		return nil, fmt.Errorf("%w: overflow policy %v", ErrConfiguration, cfg.Overflow)
	}

	n := cfg.WindowSize
	return &Spectrogram{
		cfg:     cfg,
		buffer:  make([]float64, n),
		hann:    hannTable(n),
		scratch: make([]complex128, n),
		twiddle: twiddles(n),
		mags:    make([]float64, n/2),
	}, nil
}

func (s *Spectrogram) Config() Config        { return s.cfg }
func (s *Spectrogram) WindowSize() int       { return len(s.buffer) }
func (s *Spectrogram) Buffered() int         { return s.cursor }
func (s *Spectrogram) Ready() bool           { return s.cursor == len(s.buffer) }
func (s *Spectrogram) Hop() int              { return len(s.buffer) / 2 }
func (s *Spectrogram) Magnitudes() []float64 { return s.mags }

// Append stores one sample. It never overwrites: a full buffer returns
// ErrBufferOverflow and the sample is not stored.
func (s *Spectrogram) Append(sample float64) error {
	if s.cursor >= len(s.buffer) {
		return ErrBufferOverflow
	}
	s.buffer[s.cursor] = sample
	s.cursor++
	return nil
}

// Transform computes the magnitudes of bins [0, N/2) over the buffer, then
// drops the oldest N/2 samples. Slots past the cursor read as zero, so an
// early transform is zero-padded. The returned slice is reused by the next
// call.
func (s *Spectrogram) Transform() []float64 {
	for i, v := range s.buffer {
		if s.cfg.Window == Hann {
			v *= s.hann[i]
		}
		s.scratch[i] = complex(v, 0)
	}
	transform(s.scratch, s.twiddle)
	for i := range s.mags {
		s.mags[i] = cmplx.Abs(s.scratch[i])
	}
	s.shift()
	return s.mags
}

func (s *Spectrogram) shift() {
	hop := s.Hop()
	copy(s.buffer, s.buffer[hop:])
	clear(s.buffer[len(s.buffer)-hop:])
	s.cursor -= hop
	if s.cursor < 0 {
		s.cursor = 0
	}
}

// Update appends sample and returns a fresh spectrum whenever a full window
// is available. Overflow only happens when Append was called directly on a
// full buffer; the configured OverflowPolicy decides the outcome.
func (s *Spectrogram) Update(sample float64) ([]float64, bool, error) {
	if err := s.Append(sample); err != nil {
		if s.cfg.Overflow != OverflowForceShift {
			return nil, false, err
		}
		mags := s.Transform()
		if err := s.Append(sample); err != nil {
			return nil, false, err
		}
		return mags, true, nil
	}
	if s.Ready() {
		return s.Transform(), true, nil
	}
	return nil, false, nil
}

// Reset clears the samples and cursor so the engine can start a new pass.
func (s *Spectrogram) Reset() {
	clear(s.buffer)
	clear(s.mags)
	s.cursor = 0
}

// BinFrequency is the centre frequency in Hz of bin for the given sample rate.
func (s *Spectrogram) BinFrequency(bin int, sampleRate float64) float64 {
	return float64(bin) * sampleRate / float64(len(s.buffer))
}

// DominantBin returns the index and value of the largest magnitude.
func DominantBin(mags []float64) (int, float64) {
	if len(mags) == 0 {
		return -1, 0
	}
	i := floats.MaxIdx(mags)
	return i, mags[i]
}
