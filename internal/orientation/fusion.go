// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import "fmt"

// ErrorCorrection pulls q toward the attitude implied by the measured
// gravity and magnetic directions.
//
// The world references are brought into the body frame with the current
// estimate, the cross product of each measurement with its estimate gives a
// small-angle error vector, and the weighted sum kA·eA + kM·eM is applied as
// q + q ⊗ (0, e/2). Gains fold in the sample period.
//
// An axis perpendicular to both references is seen by both error terms, so
// when kA+kM exceeds 1 the sum along that axis is scaled back by 1/(kA+kM).
// Each axis then contracts by at most its own gain per call and unit gains
// remove a small error in one step.
func ErrorCorrection(q Quaternion, accel, mag, accelRef, magRef Vector3, kA, kM float32) (Quaternion, error) {
	a, err := accel.Normalize()
	if err != nil {
		return q, fmt.Errorf("accelerometer: %w", err)
	}
	m, err := mag.Normalize()
	if err != nil {
		return q, fmt.Errorf("magnetometer: %w", err)
	}

	inv := Conjugate(q)
	accelEst := RotateVector(accelRef, inv)
	magEst := RotateVector(magRef, inv)

	accelErr := Cross(a, accelEst)
	magErr := Cross(m, magEst)
	total := accelErr.Scale(kA).Add(magErr.Scale(kM))
	if sum := kA + kM; sum > 1 {
		if shared, err := Cross(accelEst, magEst).Normalize(); err == nil {
			along := dot(total, shared) * (1 - 1/sum)
			total = total.Add(shared.Scale(-along))
		}
	}

	correction := Multiply(q, pure(total.Scale(0.5)))
	return Normalize(q.add(correction))
}

// SensorFusion runs one complementary-filter step: gyro integration
// followed by accelerometer/magnetometer correction.
func SensorFusion(q Quaternion, omega, accel, mag, accelRef, magRef Vector3, dt, kA, kM float32) (Quaternion, error) {
	q, err := IntegrateGyroscope(q, omega, dt)
	if err != nil {
		return q, err
	}
	return ErrorCorrection(q, accel, mag, accelRef, magRef, kA, kM)
}
