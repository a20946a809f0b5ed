// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package event defines the streaming record shared by every engine.
package event

import (
	"errors"
	"fmt"
)

// MaxValues is the fixed capacity of an event's value array.
const MaxValues = 32

// MaxDerived bounds how many derived events a single input may produce.
const MaxDerived = 4

var ErrTooManyValues = errors.New("event: too many values")

// Event represents a single timestamped sample or derived result.
// It is a plain value; engines receive copies.
type Event struct {
	Timestamp float64 // seconds
	Source    SourceID
	Count     int
	Values    [MaxValues]float64
}

// New builds an event from a value list. Values beyond MaxValues are
// dropped and ErrTooManyValues is returned alongside the truncated event.
func New(ts float64, src SourceID, values ...float64) (Event, error) {
	ev := Event{Timestamp: ts, Source: src}
	n := copy(ev.Values[:], values)
	ev.Count = n
	if len(values) > MaxValues {
		return ev, fmt.Errorf("%w: %d > %d", ErrTooManyValues, len(values), MaxValues)
	}
	return ev, nil
}

// Must is New for callers that know the value count is in range.
func Must(ts float64, src SourceID, values ...float64) Event {
	ev, err := New(ts, src, values...)
	if err != nil {
		panic(err)
	}
	return ev
}

// Channels returns the populated prefix of Values.
func (e Event) Channels() []float64 {
	return e.Values[:e.Count]
}

// Channel returns value i, or 0 when the event carries fewer channels.
func (e Event) Channel(i int) float64 {
	if i < 0 || i >= e.Count {
		return 0
	}
	return e.Values[i]
}

// Vec3 returns the first three channels, the layout used by all inertial sources.
func (e Event) Vec3() (x, y, z float64, ok bool) {
	if e.Count < 3 {
		return 0, 0, 0, false
	}
	return e.Values[0], e.Values[1], e.Values[2], true
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%.6f%v", e.Source, e.Timestamp, e.Channels())
}
