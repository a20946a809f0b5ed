package orientation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertQuatNear(t *testing.T, want, got Quaternion, tol float64) {
	t.Helper()
	dot := want.W*got.W + want.X*got.X + want.Y*got.Y + want.Z*got.Z
	if dot < 0 {
		got = Quaternion{W: -got.W, X: -got.X, Y: -got.Y, Z: -got.Z}
	}
	assert.InDelta(t, want.W, got.W, tol, "w")
	assert.InDelta(t, want.X, got.X, tol, "x")
	assert.InDelta(t, want.Y, got.Y, tol, "y")
	assert.InDelta(t, want.Z, got.Z, tol, "z")
}

func assertVecNear(t *testing.T, want, got Vector3, tol float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, "x")
	assert.InDelta(t, want.Y, got.Y, tol, "y")
	assert.InDelta(t, want.Z, got.Z, tol, "z")
}

var sampleAngles = []EulerAngles{
	{0, 0, 0},
	{0.3, 0, 0},
	{0, -0.4, 0},
	{0, 0, 2.5},
	{0.2, -0.1, 0.3},
	{-1.2, 0.7, -2.9},
	{3.0, 1.2, 0.5},
}

func TestNormalizeIsIdempotentOnUnitQuaternions(t *testing.T) {
	for _, e := range sampleAngles {
		q := EulerToQuaternion(e)
		n, err := Normalize(q)
		require.NoError(t, err)
		assertQuatNear(t, q, n, 1e-6)
		assert.InDelta(t, 1.0, n.Norm(), 1e-6)
	}
}

func TestNormalizeScalesToUnitLength(t *testing.T) {
	n, err := Normalize(Quaternion{W: 2, X: 0, Y: 0, Z: 0})
	require.NoError(t, err)
	assert.Equal(t, Identity(), n)

	n, err = Normalize(Quaternion{W: 1, X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	assertQuatNear(t, Quaternion{W: 0.5, X: 0.5, Y: 0.5, Z: 0.5}, n, 1e-7)
}

func TestNormalizeRejectsDegenerateNorms(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	for name, q := range map[string]Quaternion{
		"zero": {},
		"nan":  {W: nan, X: 0.1},
		"inf":  {W: 1, Z: inf},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(q)
			assert.ErrorIs(t, err, ErrDegenerateOrientation)
		})
	}
}

func TestMultiply(t *testing.T) {
	i := Quaternion{X: 1}
	j := Quaternion{Y: 1}
	k := Quaternion{Z: 1}

	assert.Equal(t, k, Multiply(i, j))
	assert.Equal(t, Quaternion{Z: -1}, Multiply(j, i))
	assert.Equal(t, Quaternion{W: -1}, Multiply(k, k))

	q := EulerToQuaternion(EulerAngles{Roll: 0.3, Pitch: -0.2, Yaw: 1.1})
	assert.Equal(t, q, Multiply(Identity(), q))
	assert.Equal(t, q, Multiply(q, Identity()))

	qx := EulerToQuaternion(EulerAngles{Roll: math.Pi / 2})
	qy := EulerToQuaternion(EulerAngles{Pitch: math.Pi / 2})
	assert.NotEqual(t, Multiply(qx, qy), Multiply(qy, qx))

	// q ⊗ q* is the identity for unit quaternions.
	assertQuatNear(t, Identity(), Multiply(q, Conjugate(q)), 1e-6)
}

func TestRotateVectorIdentity(t *testing.T) {
	for _, v := range []Vector3{{1, 0, 0}, {0, -2, 0}, {0.3, 0.4, -5}, {}} {
		assert.Equal(t, v, RotateVector(v, Identity()))
	}
}

func TestRotateVectorYaw(t *testing.T) {
	q := EulerToQuaternion(EulerAngles{Yaw: math.Pi / 2})
	assertVecNear(t, Vector3{0, 1, 0}, RotateVector(Vector3{1, 0, 0}, q), 1e-6)

	// The conjugate undoes the rotation.
	v := Vector3{0.2, -0.7, 0.4}
	back := RotateVector(RotateVector(v, q), Conjugate(q))
	assertVecNear(t, v, back, 1e-6)
}

func TestIntegrateGyroscopeZeroRateKeepsOrientation(t *testing.T) {
	q := EulerToQuaternion(EulerAngles{Roll: 0.2, Pitch: -0.1, Yaw: 0.3})
	for _, dt := range []float32{0, 0.001, 1, 1e6, float32(math.Inf(1))} {
		got, err := IntegrateGyroscope(q, Vector3{}, dt)
		require.NoError(t, err)
		assertQuatNear(t, q, got, 1e-6)
	}
}

func TestIntegrateGyroscopeAccumulatesYaw(t *testing.T) {
	q := Identity()
	var err error
	for i := 0; i < 1000; i++ {
		q, err = IntegrateGyroscope(q, Vector3{Z: 1}, 0.001)
		require.NoError(t, err)
	}
	e := QuaternionToEuler(q)
	assert.InDelta(t, 1.0, e.Yaw, 2e-3)
	assert.InDelta(t, 0.0, e.Roll, 1e-5)
	assert.InDelta(t, 0.0, e.Pitch, 1e-5)
	assert.InDelta(t, 1.0, q.Norm(), 1e-6)
}

func TestEulerRoundTrip(t *testing.T) {
	for _, e := range sampleAngles {
		q := EulerToQuaternion(e)
		back := EulerToQuaternion(QuaternionToEuler(q))
		assertQuatNear(t, q, back, 1e-5)
	}
}

func TestEulerToQuaternionKnownValues(t *testing.T) {
	s := float32(math.Sqrt2 / 2)
	assertQuatNear(t, Quaternion{W: s, Z: s}, EulerToQuaternion(EulerAngles{Yaw: math.Pi / 2}), 1e-7)
	assertQuatNear(t, Quaternion{W: s, X: s}, EulerToQuaternion(EulerAngles{Roll: math.Pi / 2}), 1e-7)
	assertQuatNear(t, Quaternion{W: s, Y: s}, EulerToQuaternion(EulerAngles{Pitch: math.Pi / 2}), 1e-7)
}

func TestQuaternionToEulerClampsPitch(t *testing.T) {
	// 2(wy - zx) = 1.00027, just outside the asin domain.
	e := QuaternionToEuler(Quaternion{W: 0.7072, Y: 0.7072})
	assert.False(t, math.IsNaN(float64(e.Pitch)))
	assert.InDelta(t, math.Pi/2, e.Pitch, 1e-7)

	e = QuaternionToEuler(Quaternion{W: 0.7072, Y: -0.7072})
	assert.InDelta(t, -math.Pi/2, e.Pitch, 1e-7)
}

var (
	gravityRef = Vector3{0, 0, 1}
	northRef   = Vector3{1, 0, 0}
)

func TestErrorCorrectionConvergesToIdentity(t *testing.T) {
	starts := map[string]EulerAngles{
		"roll":       {Roll: 0.3},
		"large roll": {Roll: 0.6},
		"yaw":        {Yaw: 0.3},
		"negative":   {Yaw: -0.8},
		"pitch":      {Pitch: 0.3},
		"back pitch": {Pitch: -0.6},
		"mixed":      {Roll: 0.2, Pitch: 0.3, Yaw: 0.2},
		"large":      {Roll: 0.5, Pitch: -0.4, Yaw: 1.0},
	}
	for name, start := range starts {
		t.Run(name, func(t *testing.T) {
			q := EulerToQuaternion(start)
			var err error
			for i := 0; i < 5; i++ {
				q, err = SensorFusion(q, Vector3{}, gravityRef, northRef, gravityRef, northRef, 0.01, 1, 1)
				require.NoError(t, err)
			}
			assertQuatNear(t, Identity(), q, 1e-4)
		})
	}
}

func TestErrorCorrectionPitchDoesNotOscillate(t *testing.T) {
	// Pitch is seen by both references; gains summing past 1 must not overshoot it.
	for _, gains := range [][2]float32{{0.8, 0.8}, {1, 1}, {1.5, 0.5}} {
		q := EulerToQuaternion(EulerAngles{Pitch: 0.3})
		for i := 0; i < 3; i++ {
			var err error
			q, err = ErrorCorrection(q, gravityRef, northRef, gravityRef, northRef, gains[0], gains[1])
			require.NoError(t, err)
			pitch := QuaternionToEuler(q).Pitch
			assert.GreaterOrEqual(t, pitch, float32(-1e-6), "gains %v step %d", gains, i)
			assert.Less(t, pitch, float32(0.01), "gains %v step %d", gains, i)
		}
	}
}

func TestErrorCorrectionAtRestIsStable(t *testing.T) {
	q, err := ErrorCorrection(Identity(), Vector3{0, 0, 9.81}, Vector3{30, 0, 0}, gravityRef, northRef, 1, 1)
	require.NoError(t, err)
	assertQuatNear(t, Identity(), q, 1e-7)
}

func TestSensorFusionTracksStaticOrientation(t *testing.T) {
	truth := EulerToQuaternion(EulerAngles{Roll: 0.4, Pitch: -0.2, Yaw: 1.0})
	accel := RotateVector(gravityRef, Conjugate(truth))
	mag := RotateVector(northRef, Conjugate(truth))

	q := Identity()
	var err error
	for i := 0; i < 80; i++ {
		q, err = SensorFusion(q, Vector3{}, accel, mag, gravityRef, northRef, 0.01, 0.5, 0.5)
		require.NoError(t, err)
	}
	assertQuatNear(t, truth, q, 1e-3)
}

func TestErrorCorrectionRejectsZeroMeasurements(t *testing.T) {
	q := EulerToQuaternion(EulerAngles{Roll: 0.1})

	got, err := ErrorCorrection(q, Vector3{}, northRef, gravityRef, northRef, 1, 1)
	assert.ErrorIs(t, err, ErrDegenerateMeasurement)
	assert.Equal(t, q, got)

	got, err = ErrorCorrection(q, gravityRef, Vector3{}, gravityRef, northRef, 1, 1)
	assert.ErrorIs(t, err, ErrDegenerateMeasurement)
	assert.Equal(t, q, got)
}

func TestComputePoseFromAccelMatchesFrameConvention(t *testing.T) {
	q := EulerToQuaternion(EulerAngles{Roll: float32(DegToRad(20)), Pitch: float32(DegToRad(-10))})
	g := RotateVector(gravityRef, Conjugate(q))

	pose := ComputePoseFromAccel(float64(g.X), float64(g.Y), float64(g.Z))
	assert.InDelta(t, 20.0, pose.Roll, 1e-3)
	assert.InDelta(t, -10.0, pose.Pitch, 1e-3)
	assert.Zero(t, pose.Yaw)
}

func TestPoseRoundTrip(t *testing.T) {
	q := EulerToQuaternion(EulerAngles{Roll: 0.5, Pitch: 0.25, Yaw: -1.5})
	pose := PoseFromQuaternion(q)
	assert.InDelta(t, RadToDeg(-1.5), pose.Yaw, 1e-3)
	assertQuatNear(t, q, pose.Quaternion(), 1e-5)
}
