// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/orientation"
)

var errEmptyTrace = errors.New("trace: no orientation samples")

// Trace collects Euler outputs for an angle-over-time plot.
type Trace struct {
	roll, pitch, yaw plotter.XYs
}

// Add records ev if it is an Euler event.
func (t *Trace) Add(ev event.Event) {
	if ev.Source != event.Euler || ev.Count < 3 {
		return
	}
	t.roll = append(t.roll, plotter.XY{X: ev.Timestamp, Y: orientation.RadToDeg(ev.Values[0])})
	t.pitch = append(t.pitch, plotter.XY{X: ev.Timestamp, Y: orientation.RadToDeg(ev.Values[1])})
	t.yaw = append(t.yaw, plotter.XY{X: ev.Timestamp, Y: orientation.RadToDeg(ev.Values[2])})
}

func (t *Trace) Len() int { return len(t.roll) }

func (t *Trace) plot(title string) (*plot.Plot, error) {
	if t.Len() == 0 {
		return nil, errEmptyTrace
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Angle (deg)"

	series := []struct {
		name string
		xys  plotter.XYs
		col  color.Color
	}{
		{"roll", t.roll, color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}},
		{"pitch", t.pitch, color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}},
		{"yaw", t.yaw, color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.xys)
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", s.name, err)
		}
		line.Color = s.col
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// Save renders the trace to a PNG, SVG or PDF file chosen by extension.
func (t *Trace) Save(path, title string) error {
	p, err := t.plot(title)
	if err != nil {
		return err
	}
	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}

// WritePNG renders the trace as PNG to w.
func (t *Trace) WritePNG(w io.Writer, title string) error {
	p, err := t.plot(title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
