// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sink delivers derived events to files and MQTT topics.
package sink

import (
	"errors"
	"fmt"
	"os"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/recording"
)

// Sink receives replay output events.
type Sink interface {
	Write(ev event.Event) error
	Close() error
}

// FileSink appends events to a JSON-lines file.
type FileSink struct {
	f *os.File
	w *recording.Writer
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &FileSink{f: f, w: recording.NewWriter(f)}, nil
}

func (s *FileSink) Write(ev event.Event) error { return s.w.Write(ev) }

// Count is the number of events written.
func (s *FileSink) Count() int { return s.w.Count() }

func (s *FileSink) Close() error {
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	return errors.Join(flushErr, closeErr)
}

// Multi writes every event to each sink in turn.
type Multi []Sink

func (m Multi) Write(ev event.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filter forwards only the sources Keep accepts.
type Filter struct {
	Sink
	Keep func(event.SourceID) bool
}

func (f Filter) Write(ev event.Event) error {
	if f.Keep != nil && !f.Keep(ev.Source) {
		return nil
	}
	return f.Sink.Write(ev)
}
