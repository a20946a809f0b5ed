// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package synthetic

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/inertial_replay/internal/orientation"
)

var ErrInvalidPlan = errors.New("synthetic: invalid plan")

type Quat struct {
	W float32 `yaml:"w"`
	X float32 `yaml:"x"`
	Y float32 `yaml:"y"`
	Z float32 `yaml:"z"`
}

type Vec struct {
	X float32 `yaml:"x"`
	Y float32 `yaml:"y"`
	Z float32 `yaml:"z"`
}

func (v Vec) vector() orientation.Vector3 {
	return orientation.Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

type RPY struct {
	Roll  float64 `yaml:"roll"`
	Pitch float64 `yaml:"pitch"`
	Yaw   float64 `yaml:"yaw"`
}

type Initialization struct {
	Q           Quat    `yaml:"q"`
	StartTimeNs uint64  `yaml:"start_time_ns"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Segment sweeps through RotationRPYDegrees, applied in equal body-frame
// steps, over DurationS seconds.
type Segment struct {
	Name               string  `yaml:"name"`
	DurationS          float64 `yaml:"duration_s"`
	RotationRPYDegrees RPY     `yaml:"rotation_rpy_degrees"`
}

type Plan struct {
	Initialization Initialization `yaml:"initialization"`
	AccelRef       *Vec           `yaml:"accel_ref,omitempty"`
	MagRef         *Vec           `yaml:"mag_ref,omitempty"`
	// MagDistortion multiplies each magnetometer axis after rotation.
	MagDistortion *Vec      `yaml:"mag_distortion,omitempty"`
	Segments      []Segment `yaml:"segments"`
}

func ParsePlan(data []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse plan: %w", err)
	}
	return p, p.Validate()
}

func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan: %w", err)
	}
	p, err := ParsePlan(data)
	if err != nil {
		return p, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func (p Plan) Validate() error {
	ini := p.Initialization
	if !(ini.SampleRate > 0) || math.IsInf(ini.SampleRate, 0) {
		return fmt.Errorf("%w: sample_rate %v must be > 0", ErrInvalidPlan, ini.SampleRate)
	}
	q := p.initialQ()
	if _, err := orientation.Normalize(q); err != nil {
		return fmt.Errorf("%w: initial q: %v", ErrInvalidPlan, err)
	}
	if len(p.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidPlan)
	}
	for i, s := range p.Segments {
		if !(s.DurationS > 0) {
			return fmt.Errorf("%w: segment %d (%s): duration_s %v must be > 0", ErrInvalidPlan, i, s.Name, s.DurationS)
		}
	}
	return nil
}

// initialQ treats an all-zero q as "not set".
func (p Plan) initialQ() orientation.Quaternion {
	q := p.Initialization.Q
	if q == (Quat{}) {
		return orientation.Identity()
	}
	return orientation.Quaternion{W: q.W, X: q.X, Y: q.Y, Z: q.Z}
}

func (p Plan) accelRef() orientation.Vector3 {
	if p.AccelRef == nil {
		return orientation.Vector3{Z: 1}
	}
	return p.AccelRef.vector()
}

func (p Plan) magRef() orientation.Vector3 {
	if p.MagRef == nil {
		return orientation.Vector3{X: 1}
	}
	return p.MagRef.vector()
}

func (p Plan) magDistortion() orientation.Vector3 {
	if p.MagDistortion == nil {
		return orientation.Vector3{X: 1, Y: 1, Z: 1}
	}
	return p.MagDistortion.vector()
}
