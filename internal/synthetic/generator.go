// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package synthetic produces recordings of a device following a scripted
// sequence of rotations, with sensor readings that match the fusion frame
// convention exactly.
package synthetic

import (
	"math"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/orientation"
)

// Summary reports what Generate produced.
type Summary struct {
	Samples int
	Start   float64
	End     float64
	Final   orientation.Quaternion
}

// Generate walks the plan and hands each event to emit, in the order
// magnetometer, accelerometer, gyroscope for every sample. It stops at the
// first emit error.
func Generate(p Plan, emit func(event.Event) error) (Summary, error) {
	if err := p.Validate(); err != nil {
		return Summary{}, err
	}
	q, _ := orientation.Normalize(p.initialQ())
	accelRef, magRef, distortion := p.accelRef(), p.magRef(), p.magDistortion()

	rate := p.Initialization.SampleRate
	interval := uint64(1e9 / rate)
	now := p.Initialization.StartTimeNs
	dt := float64(interval) / 1e9

	sum := Summary{Start: float64(now) / 1e9}
	for _, seg := range p.Segments {
		n := int(seg.DurationS * rate)
		if n < 1 {
			n = 1
		}
		step := orientation.EulerToQuaternion(orientation.EulerAngles{
			Roll:  float32(orientation.DegToRad(seg.RotationRPYDegrees.Roll / float64(n))),
			Pitch: float32(orientation.DegToRad(seg.RotationRPYDegrees.Pitch / float64(n))),
			Yaw:   float32(orientation.DegToRad(seg.RotationRPYDegrees.Yaw / float64(n))),
		})
		omega := bodyRate(step, dt)

		end := now + uint64(seg.DurationS*1e9)
		for now < end {
			q = orientation.Multiply(q, step)
			q, _ = orientation.Normalize(q)

			ts := float64(now) / 1e9
			inv := orientation.Conjugate(q)
			m := orientation.RotateVector(magRef, inv)
			a := orientation.RotateVector(accelRef, inv)
			for _, ev := range []event.Event{
				event.Must(ts, event.Magnetometer,
					float64(m.X*distortion.X), float64(m.Y*distortion.Y), float64(m.Z*distortion.Z)),
				event.Must(ts, event.Accelerometer, float64(a.X), float64(a.Y), float64(a.Z)),
				event.Must(ts, event.Gyroscope, float64(omega.X), float64(omega.Y), float64(omega.Z)),
			} {
				if err := emit(ev); err != nil {
					return sum, err
				}
			}
			sum.Samples++
			sum.End = ts
			now += interval
		}
	}
	sum.Final = q
	return sum, nil
}

// bodyRate is the constant angular velocity that turns by step in dt.
func bodyRate(step orientation.Quaternion, dt float64) orientation.Vector3 {
	if step.W < 0 {
		step = orientation.Quaternion{W: -step.W, X: -step.X, Y: -step.Y, Z: -step.Z}
	}
	v := orientation.Vector3{X: step.X, Y: step.Y, Z: step.Z}
	s := v.Norm()
	if s == 0 {
		return orientation.Vector3{}
	}
	angle := 2 * math.Atan2(s, float64(step.W))
	return v.Scale(float32(angle / s / dt))
}

// Collect runs Generate and returns every event in memory.
func Collect(p Plan) ([]event.Event, Summary, error) {
	var evs []event.Event
	sum, err := Generate(p, func(ev event.Event) error {
		evs = append(evs, ev)
		return nil
	})
	return evs, sum, err
}
