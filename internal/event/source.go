// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package event

import (
	"errors"
	"fmt"
	"strconv"
)

// SourceID identifies who produced an event. Raw sensor ids keep the
// numbering of the recording tool; derived ids start at 100.
type SourceID uint32

const (
	Unknown       SourceID = 0
	Accelerometer SourceID = 1
	Magnetometer  SourceID = 2
	Gyroscope     SourceID = 4

	Orientation       SourceID = 100 // w, x, y, z
	Euler             SourceID = 101 // roll, pitch, yaw (rad)
	DominantFrequency SourceID = 102 // bin, hz, magnitude

	// Threshold marks events that feed the calibration objective.
	Threshold SourceID = 1000
)

var sourceNames = map[SourceID]string{
	Accelerometer:     "acc",
	Magnetometer:      "mag",
	Gyroscope:         "gyro",
	Orientation:       "orientation",
	Euler:             "euler",
	DominantFrequency: "dominant_frequency",
	Threshold:         "mag_threshold",
}

// IsDerived reports whether the id belongs to an engine output.
func (s SourceID) IsDerived() bool {
	return s >= Orientation
}

// IsSensor reports whether the id is one of the three raw inertial sources.
func (s SourceID) IsSensor() bool {
	return s == Accelerometer || s == Magnetometer || s == Gyroscope
}

func (s SourceID) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "source(" + strconv.FormatUint(uint64(s), 10) + ")"
}

// ParseSourceName resolves a canonical name ("acc", "mag", ...) to its id.
func ParseSourceName(name string) (SourceID, bool) {
	for id, n := range sourceNames {
		if n == name {
			return id, true
		}
	}
	return Unknown, false
}

var ErrUnrecognizedSource = errors.New("event: unrecognized source")

// UnrecognizedSourceError is returned for records whose id maps to no
// known source. It is non-fatal: the record is skipped.
type UnrecognizedSourceError struct {
	ID string
}

func (e *UnrecognizedSourceError) Error() string {
	return fmt.Sprintf("unrecognized source id %q", e.ID)
}

func (e *UnrecognizedSourceError) Is(target error) bool {
	return target == ErrUnrecognizedSource
}

// SourceMap translates recording topic ids into source ids.
type SourceMap map[string]SourceID

// DefaultSourceMap is the topic layout of the lpom recordings.
func DefaultSourceMap() SourceMap {
	return SourceMap{
		"lpom-1":  Magnetometer,
		"lpom-15": Accelerometer,
		"lpom-62": Gyroscope,
	}
}

// Resolve maps a topic id to a source. Canonical names ("acc", "gyro",
// "mag") are accepted as a fallback so synthetic recordings need no map.
func (m SourceMap) Resolve(id string) (SourceID, error) {
	if src, ok := m[id]; ok {
		return src, nil
	}
	if src, ok := ParseSourceName(id); ok {
		return src, nil
	}
	return Unknown, &UnrecognizedSourceError{ID: id}
}
