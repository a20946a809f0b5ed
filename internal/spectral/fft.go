// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package spectral

import (
	"fmt"
	"math"
	"math/cmplx"
)

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// FFT computes the forward DFT of x in place (e^{-2πi·kn/N} convention).
// len(x) must be a power of two.
func FFT(x []complex128) error {
	if !IsPowerOfTwo(len(x)) {
		return fmt.Errorf("%w: fft length %d is not a power of two", ErrConfiguration, len(x))
	}
	transform(x, twiddles(len(x)))
	return nil
}

// twiddles returns W_N^k for k in [0, N/2).
func twiddles(n int) []complex128 {
	t := make([]complex128, n/2)
	for k := range t {
		t[k] = cmplx.Rect(1, -2*math.Pi*float64(k)/float64(n))
	}
	return t
}

// transform is an iterative radix-2 Cooley-Tukey pass. tw must come from
// twiddles(len(x)); nothing is allocated.
func transform(x []complex128, tw []complex128) {
	n := len(x)

	// bit-reversal permutation
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := tw[k*step]
				a := x[start+k]
				b := x[start+k+half] * w
				x[start+k] = a + b
				x[start+k+half] = a - b
			}
		}
	}
}
