// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"math"
)

var (
	// ErrDegenerateOrientation is returned when a quaternion has a zero or
	// non-finite norm and cannot be normalized.
	ErrDegenerateOrientation = errors.New("orientation: degenerate quaternion")
	// ErrDegenerateMeasurement is returned for zero-length or non-finite
	// direction measurements.
	ErrDegenerateMeasurement = errors.New("orientation: degenerate measurement")
)

// Quaternion is (w, x, y, z). Orientation quaternions rotate body-frame
// vectors into the world frame.
type Quaternion struct {
	W, X, Y, Z float32
}

// Vector3 is a direction or angular rate.
type Vector3 struct {
	X, Y, Z float32
}

// EulerAngles are ZYX (yaw, then pitch, then roll) angles in radians.
type EulerAngles struct {
	Roll, Pitch, Yaw float32
}

// Identity returns the zero rotation.
func Identity() Quaternion {
	return Quaternion{W: 1}
}

func (q Quaternion) add(o Quaternion) Quaternion {
	return Quaternion{W: q.W + o.W, X: q.X + o.X, Y: q.Y + o.Y, Z: q.Z + o.Z}
}

// Norm is the Euclidean length of the four components.
func (q Quaternion) Norm() float64 {
	w, x, y, z := float64(q.W), float64(q.X), float64(q.Y), float64(q.Z)
	return math.Sqrt(w*w + x*x + y*y + z*z)
}

// Normalize divides q by its norm. On a zero or non-finite norm q is
// returned untouched together with ErrDegenerateOrientation.
func Normalize(q Quaternion) (Quaternion, error) {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return q, ErrDegenerateOrientation
	}
	return Quaternion{
		W: float32(float64(q.W) / n),
		X: float32(float64(q.X) / n),
		Y: float32(float64(q.Y) / n),
		Z: float32(float64(q.Z) / n),
	}, nil
}

// Multiply returns the Hamilton product q1 ⊗ q2.
func Multiply(q1, q2 Quaternion) Quaternion {
	return Quaternion{
		W: q1.W*q2.W - q1.X*q2.X - q1.Y*q2.Y - q1.Z*q2.Z,
		X: q1.W*q2.X + q1.X*q2.W + q1.Y*q2.Z - q1.Z*q2.Y,
		Y: q1.W*q2.Y - q1.X*q2.Z + q1.Y*q2.W + q1.Z*q2.X,
		Z: q1.W*q2.Z + q1.X*q2.Y - q1.Y*q2.X + q1.Z*q2.W,
	}
}

// Conjugate negates the vector part; for unit quaternions this is the inverse.
func Conjugate(q Quaternion) Quaternion {
	return Quaternion{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

func pure(v Vector3) Quaternion {
	return Quaternion{X: v.X, Y: v.Y, Z: v.Z}
}

// RotateVector applies the active rotation q ⊗ (0,v) ⊗ q*.
func RotateVector(v Vector3, q Quaternion) Vector3 {
	r := Multiply(Multiply(q, pure(v)), Conjugate(q))
	return Vector3{X: r.X, Y: r.Y, Z: r.Z}
}

// IntegrateGyroscope advances q by the body rate omega over dt seconds
// using q + q ⊗ (0, ω·dt/2). This is only accurate while |ω|·dt is small.
func IntegrateGyroscope(q Quaternion, omega Vector3, dt float32) (Quaternion, error) {
	if omega == (Vector3{}) {
		return Normalize(q)
	}
	half := dt / 2
	delta := Multiply(q, pure(omega.Scale(half)))
	return Normalize(q.add(delta))
}

// Cross returns a × b.
func Cross(a, b Vector3) Vector3 {
	return Vector3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func dot(a, b Vector3) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector3) Scale(k float32) Vector3 {
	return Vector3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

func (v Vector3) Norm() float64 {
	x, y, z := float64(v.X), float64(v.Y), float64(v.Z)
	return math.Sqrt(x*x + y*y + z*z)
}

// Normalize returns the unit vector along v.
func (v Vector3) Normalize() (Vector3, error) {
	n := v.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return v, ErrDegenerateMeasurement
	}
	return Vector3{
		X: float32(float64(v.X) / n),
		Y: float32(float64(v.Y) / n),
		Z: float32(float64(v.Z) / n),
	}, nil
}

// QuaternionToEuler converts to ZYX angles. Pitch saturates at ±π/2 when
// rounding pushes its sine outside [-1, 1].
func QuaternionToEuler(q Quaternion) EulerAngles {
	w, x, y, z := float64(q.W), float64(q.X), float64(q.Y), float64(q.Z)

	roll := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	var pitch float64
	sinp := 2 * (w*y - z*x)
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	yaw := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	return EulerAngles{Roll: float32(roll), Pitch: float32(pitch), Yaw: float32(yaw)}
}

// EulerToQuaternion is the inverse of QuaternionToEuler.
func EulerToQuaternion(e EulerAngles) Quaternion {
	cy := math.Cos(float64(e.Yaw) * 0.5)
	sy := math.Sin(float64(e.Yaw) * 0.5)
	cp := math.Cos(float64(e.Pitch) * 0.5)
	sp := math.Sin(float64(e.Pitch) * 0.5)
	cr := math.Cos(float64(e.Roll) * 0.5)
	sr := math.Sin(float64(e.Roll) * 0.5)

	return Quaternion{
		W: float32(cr*cp*cy + sr*sp*sy),
		X: float32(sr*cp*cy - cr*sp*sy),
		Y: float32(cr*sp*cy + sr*cp*sy),
		Z: float32(cr*cp*sy - sr*sp*cy),
	}
}

func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
