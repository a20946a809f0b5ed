// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package raster keeps a width×height RGBA spectrogram whose columns form a
// ring. New spectra overwrite the oldest column; reading from Current()
// onward and wrapping yields the columns oldest first.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrConfiguration is returned for bad image sizes, column lengths and
// quantization names.
var ErrConfiguration = errors.New("raster: invalid configuration")

// ImageBuffer stores pixels in one flat row-major slice; pixel (x, y) starts
// at y*Stride + 4*x.
type ImageBuffer struct {
	Width  int
	Height int
	Stride int

	pix     []uint8
	current int
}

// NewImageBuffer allocates an opaque black raster.
func NewImageBuffer(width, height int) (*ImageBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrConfiguration, width, height)
	}
	b := &ImageBuffer{
		Width:  width,
		Height: height,
		Stride: 4 * width,
		pix:    make([]uint8, 4*width*height),
	}
	b.Reset()
	return b, nil
}

// Reset blacks out every pixel and rewinds the cursor.
func (b *ImageBuffer) Reset() {
	for i := 0; i < len(b.pix); i += 4 {
		b.pix[i], b.pix[i+1], b.pix[i+2], b.pix[i+3] = 0, 0, 0, 0xff
	}
	b.current = 0
}

// Current is the column the next update overwrites, which is also the
// oldest column.
func (b *ImageBuffer) Current() int { return b.current }

// Pix exposes the raw row-major buffer of Width*Height*4 bytes.
func (b *ImageBuffer) Pix() []uint8 { return b.pix }

func (b *ImageBuffer) offset(x, y int) int { return y*b.Stride + 4*x }

func (b *ImageBuffer) At(x, y int) color.RGBA {
	i := b.offset(x, y)
	return color.RGBA{R: b.pix[i], G: b.pix[i+1], B: b.pix[i+2], A: b.pix[i+3]}
}

// ColumnAt copies storage column x, top row first.
func (b *ImageBuffer) ColumnAt(x int) []color.RGBA {
	col := make([]color.RGBA, b.Height)
	for y := range col {
		col[y] = b.At(x, y)
	}
	return col
}

// rowBin maps raster row y to a spectrum index: row 0 is the highest
// frequency and the bottom row is bin 0. Sizes that differ are sampled by
// nearest lower index.
func (b *ImageBuffer) rowBin(y, bins int) int {
	return (b.Height - 1 - y) * bins / b.Height
}

// SpectrumToColumn renders mags as one grey column of Height pixels.
func (b *ImageBuffer) SpectrumToColumn(mags []float64, q Quantizer) []color.RGBA {
	col := make([]color.RGBA, b.Height)
	for y := range col {
		var v uint8
		if len(mags) > 0 {
			v = q.Intensity(mags[b.rowBin(y, len(mags))])
		}
		col[y] = color.RGBA{R: v, G: v, B: v, A: 0xff}
	}
	return col
}

// UpdateSlidingWindow overwrites the column at the cursor and advances it.
func (b *ImageBuffer) UpdateSlidingWindow(col []color.RGBA) error {
	if len(col) != b.Height {
		return fmt.Errorf("%w: column has %d pixels, want %d", ErrConfiguration, len(col), b.Height)
	}
	x := b.current
	for y, c := range col {
		i := b.offset(x, y)
		b.pix[i], b.pix[i+1], b.pix[i+2], b.pix[i+3] = c.R, c.G, c.B, c.A
	}
	b.advance()
	return nil
}

// PushSpectrum is SpectrumToColumn followed by UpdateSlidingWindow without
// the intermediate allocation.
func (b *ImageBuffer) PushSpectrum(mags []float64, q Quantizer) {
	x := b.current
	for y := 0; y < b.Height; y++ {
		var v uint8
		if len(mags) > 0 {
			v = q.Intensity(mags[b.rowBin(y, len(mags))])
		}
		i := b.offset(x, y)
		b.pix[i], b.pix[i+1], b.pix[i+2], b.pix[i+3] = v, v, v, 0xff
	}
	b.advance()
}

func (b *ImageBuffer) advance() {
	b.current = (b.current + 1) % b.Width
}

// Chronological unrolls the ring into a new image, oldest column on the left.
func (b *ImageBuffer) Chronological() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for x := 0; x < b.Width; x++ {
		src := 4 * ((b.current + x) % b.Width)
		dst := 4 * x
		for y := 0; y < b.Height; y++ {
			copy(img.Pix[y*img.Stride+dst:y*img.Stride+dst+4], b.pix[y*b.Stride+src:y*b.Stride+src+4])
		}
	}
	return img
}
