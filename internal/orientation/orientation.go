// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package orientation holds the quaternion math and the complementary
// filter used to fuse gyroscope, accelerometer and magnetometer samples.
// Every function is pure; the only state is the quaternion the caller
// threads from one step to the next.
package orientation

import (
	"math"
)

// Pose is the presentation form of an orientation, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// PoseFromQuaternion converts q to degrees for display and JSON output.
func PoseFromQuaternion(q Quaternion) Pose {
	e := QuaternionToEuler(q)
	return Pose{
		Roll:  RadToDeg(float64(e.Roll)),
		Pitch: RadToDeg(float64(e.Pitch)),
		Yaw:   RadToDeg(float64(e.Yaw)),
	}
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is left at 0; the magnetometer correction resolves heading later.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  RadToDeg(rollRad),
		Pitch: RadToDeg(pitchRad),
		Yaw:   0,
	}
}

// Quaternion converts the pose back to an orientation quaternion.
func (p Pose) Quaternion() Quaternion {
	return EulerToQuaternion(EulerAngles{
		Roll:  float32(DegToRad(p.Roll)),
		Pitch: float32(DegToRad(p.Pitch)),
		Yaw:   float32(DegToRad(p.Yaw)),
	})
}
