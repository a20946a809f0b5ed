// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package raster

import (
	"fmt"
	"math"
	"strings"
)

// QuantizationPolicy maps scaled magnitudes outside [0, 255] to a byte.
type QuantizationPolicy int

const (
	// Wrap keeps floor(m/scale) mod 256. Loud bins cycle through the grey
	// ramp instead of saturating.
	Wrap QuantizationPolicy = iota
	// Clamp saturates at 255.
	Clamp
)

func (p QuantizationPolicy) String() string {
	switch p {
	case Wrap:
		return "wrap"
	case Clamp:
		return "clamp"
	default:
		return fmt.Sprintf("quantization(%d)", int(p))
	}
}

func ParseQuantizationPolicy(s string) (QuantizationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wrap", "mod":
		return Wrap, nil
	case "clamp", "saturate":
		return Clamp, nil
	}
	return Wrap, fmt.Errorf("%w: unknown quantization policy %q", ErrConfiguration, s)
}

// Quantizer converts a spectral magnitude into a grey level.
type Quantizer struct {
	Scale  float64
	Policy QuantizationPolicy
}

// Intensity returns the grey level for magnitude m. NaN, negative and zero
// magnitudes are black. A non-positive Scale is treated as 1.
func (q Quantizer) Intensity(m float64) uint8 {
	if !(m > 0) {
		return 0
	}
	scale := q.Scale
	if !(scale > 0) {
		scale = 1
	}
	v := math.Floor(m / scale)

	if q.Policy == Clamp {
		if v >= 255 {
			return 255
		}
		return uint8(v)
	}
	if math.IsInf(v, 0) {
		return 0
	}
	return uint8(math.Mod(v, 256))
}
