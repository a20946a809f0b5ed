package spectral

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/dsp/fourier"
)

func TestNewValidatesWindowSize(t *testing.T) {
	for _, n := range []int{-4, 0, 1, 3, 255, 1000} {
		_, err := New(Config{WindowSize: n})
		assert.ErrorIs(t, err, ErrConfiguration, "size %d", n)
	}
	for _, n := range []int{2, 4, 256, 4096} {
		s, err := New(Config{WindowSize: n})
		require.NoError(t, err, "size %d", n)
		assert.Equal(t, n, s.WindowSize())
		assert.Len(t, s.Magnitudes(), n/2)
		assert.Len(t, s.hann, n)
	}
}

func TestNewRejectsUnknownEnums(t *testing.T) {
	_, err := New(Config{WindowSize: 8, Window: WindowFunction(9)})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = New(Config{WindowSize: 8, Overflow: OverflowPolicy(9)})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestZeroWindowGivesZeroSpectrum(t *testing.T) {
	for n := 2; n <= 1024; n <<= 1 {
		s, err := New(Config{WindowSize: n, Window: Hann})
		require.NoError(t, err)
		var mags []float64
		var ok bool
		for i := 0; i < n; i++ {
			mags, ok, err = s.Update(0)
			require.NoError(t, err)
		}
		require.True(t, ok)
		for _, m := range mags {
			assert.Zero(t, m)
		}
	}
}

func TestFFTMatchesGonum(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, n := range []int{2, 8, 64, 512} {
		samples := make([]float64, n)
		x := make([]complex128, n)
		for i := range samples {
			samples[i] = rng.NormFloat64()
			x[i] = complex(samples[i], 0)
		}
		require.NoError(t, FFT(x))

		want := fourier.NewFFT(n).Coefficients(nil, samples)
		for k, c := range want {
			assert.InDelta(t, real(c), real(x[k]), 1e-9, "n=%d bin %d re", n, k)
			assert.InDelta(t, imag(c), imag(x[k]), 1e-9, "n=%d bin %d im", n, k)
		}
	}
}

func TestFFTRejectsBadLength(t *testing.T) {
	assert.ErrorIs(t, FFT(make([]complex128, 12)), ErrConfiguration)
	assert.ErrorIs(t, FFT(nil), ErrConfiguration)
}

func TestHalfWindowHop(t *testing.T) {
	const n = 16
	s, err := New(Config{WindowSize: n})
	require.NoError(t, err)

	var outputs []int
	for i := 0; i < 200; i++ {
		_, ok, err := s.Update(float64(i))
		require.NoError(t, err)
		if ok {
			outputs = append(outputs, i)
			assert.Equal(t, n/2, s.Buffered())
		}
	}
	require.NotEmpty(t, outputs)
	assert.Equal(t, n-1, outputs[0])
	for i := 1; i < len(outputs); i++ {
		assert.Equal(t, n/2, outputs[i]-outputs[i-1])
	}
}

func TestShiftKeepsNewestHalf(t *testing.T) {
	s, err := New(Config{WindowSize: 8})
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		_, _, err = s.Update(float64(i + 1))
		require.NoError(t, err)
	}
	assert.Equal(t, []float64{5, 6, 7, 8, 0, 0, 0, 0}, s.buffer)
}

func sine(freq, rate float64, i int) float64 {
	return math.Sin(2 * math.Pi * freq * float64(i) / rate)
}

func TestDominantBinOfSine(t *testing.T) {
	const (
		n    = 256
		rate = 1000.0
		freq = 10.0
	)
	want := int(math.Round(freq * n / rate))

	for _, w := range []WindowFunction{Rectangular, Hann} {
		t.Run(w.String(), func(t *testing.T) {
			s, err := New(Config{WindowSize: n, Window: w})
			require.NoError(t, err)

			spectra := 0
			for i := 0; i < 4000; i++ {
				mags, ok, err := s.Update(sine(freq, rate, i))
				require.NoError(t, err)
				if !ok {
					continue
				}
				spectra++
				bin, _ := DominantBin(mags)
				assert.InDelta(t, want, bin, 1, "spectrum %d", spectra)
				assert.InDelta(t, freq, s.BinFrequency(bin, rate), rate/n+1e-9)
			}
			assert.Greater(t, spectra, 20)
		})
	}
}

func TestExactBinMagnitude(t *testing.T) {
	const n = 256
	s, err := New(Config{WindowSize: n})
	require.NoError(t, err)

	// 31.25 Hz at 1 kHz is exactly bin 8 for N=256.
	var mags []float64
	for i := 0; i < n; i++ {
		mags, _, err = s.Update(sine(31.25, 1000, i))
		require.NoError(t, err)
	}
	bin, peak := DominantBin(mags)
	assert.Equal(t, 8, bin)
	assert.InDelta(t, n/2, peak, 1e-9)
}

func TestHannOnlyWhenConfigured(t *testing.T) {
	const n = 64
	run := func(w WindowFunction) []float64 {
		s, err := New(Config{WindowSize: n, Window: w})
		require.NoError(t, err)
		var mags []float64
		for i := 0; i < n; i++ {
			mags, _, err = s.Update(1)
			require.NoError(t, err)
		}
		return append([]float64(nil), mags...)
	}

	rect := run(Rectangular)
	hann := run(Hann)

	// A constant signal lands entirely in DC without a taper.
	assert.InDelta(t, n, rect[0], 1e-9)
	for _, m := range rect[1:] {
		assert.InDelta(t, 0, m, 1e-9)
	}

	var sum float64
	for _, c := range hannTable(n) {
		sum += c
	}
	assert.InDelta(t, sum, hann[0], 1e-9)
	assert.Greater(t, hann[1], 1.0)
}

func TestOverflowPolicies(t *testing.T) {
	fill := func(p OverflowPolicy) *Spectrogram {
		s, err := New(Config{WindowSize: 8, Overflow: p})
		require.NoError(t, err)
		for i := 0; i < 8; i++ {
			require.NoError(t, s.Append(float64(i)))
		}
		require.True(t, s.Ready())
		assert.ErrorIs(t, s.Append(99), ErrBufferOverflow)
		return s
	}

	t.Run("reject", func(t *testing.T) {
		s := fill(OverflowReject)
		mags, ok, err := s.Update(99)
		assert.ErrorIs(t, err, ErrBufferOverflow)
		assert.False(t, ok)
		assert.Nil(t, mags)
		assert.Equal(t, 8, s.Buffered())
	})

	t.Run("shift", func(t *testing.T) {
		s := fill(OverflowForceShift)
		mags, ok, err := s.Update(99)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Len(t, mags, 4)
		assert.Equal(t, 5, s.Buffered())
		assert.Equal(t, 99.0, s.buffer[4])
	})
}

func TestResetClearsState(t *testing.T) {
	s, err := New(Config{WindowSize: 4})
	require.NoError(t, err)
	require.NoError(t, s.Append(3))
	require.NoError(t, s.Append(4))
	s.Reset()
	assert.Zero(t, s.Buffered())
	assert.Equal(t, []float64{0, 0, 0, 0}, s.buffer)
}

func TestParseEnums(t *testing.T) {
	tests := []struct {
		in   string
		want WindowFunction
		err  bool
	}{
		{"", Rectangular, false},
		{"rect", Rectangular, false},
		{"Hann", Hann, false},
		{"blackman", Rectangular, true},
	}
	for _, tt := range tests {
		got, err := ParseWindowFunction(tt.in)
		if tt.err {
			assert.ErrorIs(t, err, ErrConfiguration)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	p, err := ParseOverflowPolicy("shift")
	require.NoError(t, err)
	assert.Equal(t, OverflowForceShift, p)
	_, err = ParseOverflowPolicy("wrap")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestDominantBinEmpty(t *testing.T) {
	bin, v := DominantBin(nil)
	assert.Equal(t, -1, bin)
	assert.Zero(t, v)
}
