// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package spectral

import (
	"fmt"
	"math"
	"strings"
)

// WindowFunction selects the taper applied to each window before the FFT.
type WindowFunction int

const (
	// Rectangular applies no taper.
	Rectangular WindowFunction = iota
	// Hann applies 0.5·(1 − cos(2πi/(N−1))).
	Hann
)

func (w WindowFunction) String() string {
	switch w {
	case Rectangular:
		return "rectangular"
	case Hann:
		return "hann"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// ParseWindowFunction accepts "rectangular" (or "rect", "none") and "hann".
func ParseWindowFunction(s string) (WindowFunction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rectangular", "rect", "none":
		return Rectangular, nil
	case "hann", "hanning":
		return Hann, nil
	}
	return Rectangular, fmt.Errorf("%w: unknown window function %q", ErrConfiguration, s)
}

// OverflowPolicy decides what Update does when a sample arrives and the
// buffer is already full.
type OverflowPolicy int

const (
	// OverflowReject drops the sample and returns ErrBufferOverflow.
	OverflowReject OverflowPolicy = iota
	// OverflowForceShift transforms the full buffer early, then appends.
	OverflowForceShift
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowReject:
		return "reject"
	case OverflowForceShift:
		return "shift"
	default:
		return fmt.Sprintf("overflow(%d)", int(p))
	}
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return OverflowReject, nil
	case "shift", "force_shift":
		return OverflowForceShift, nil
	}
	return OverflowReject, fmt.Errorf("%w: unknown overflow policy %q", ErrConfiguration, s)
}

func hannTable(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
