// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package recording reads and writes event streams as JSON lines, one
// {"id", "timestamp", "values"} object per line.
package recording

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_replay/internal/event"
)

const maxLineBytes = 1 << 20

// Record is the on-disk shape of one event.
type Record struct {
	ID        string    `json:"id"`
	Timestamp float64   `json:"timestamp"`
	Values    []float64 `json:"values"`
}

// Reader decodes events line by line.
type Reader struct {
	sc      *bufio.Scanner
	sources event.SourceMap
	line    int
}

func NewReader(r io.Reader, sources event.SourceMap) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	if sources == nil {
		sources = event.DefaultSourceMap()
	}
	return &Reader{sc: sc, sources: sources}
}

// Line is the 1-based number of the last line read.
func (r *Reader) Line() int { return r.line }

// Next returns the next event, or io.EOF. An id missing from the source map
// yields *event.UnrecognizedSourceError and more than event.MaxValues values
// yields a truncated event with event.ErrTooManyValues; both are per-line
// and reading can continue.
func (r *Reader) Next() (event.Event, error) {
	for r.sc.Scan() {
		r.line++
		raw := r.sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return event.Event{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		src, err := r.sources.Resolve(rec.ID)
		if err != nil {
			return event.Event{}, err
		}
		ev, err := event.New(rec.Timestamp, src, rec.Values...)
		if err != nil {
			return ev, fmt.Errorf("line %d: %w", r.line, err)
		}
		return ev, nil
	}
	if err := r.sc.Err(); err != nil {
		return event.Event{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return event.Event{}, io.EOF
}

// Window limits a read to Start <= timestamp <= End. A zero End means no
// upper bound.
type Window struct {
	Start float64
	End   float64
}

func (w Window) contains(ts float64) bool {
	if ts < w.Start {
		return false
	}
	return w.End == 0 || ts <= w.End
}

// Summary describes what ReadAll kept and dropped.
type Summary struct {
	Lines        int            `json:"lines"`
	Events       int            `json:"events"`
	OutOfWindow  int            `json:"out_of_window"`
	OutOfOrder   int            `json:"out_of_order"`
	Truncated    int            `json:"truncated"`
	Unrecognized map[string]int `json:"unrecognized,omitempty"`
}

// ReadAll loads every event inside w. Unknown ids are counted and skipped;
// malformed JSON ends the read.
func ReadAll(r io.Reader, sources event.SourceMap, w Window) ([]event.Event, Summary, error) {
	rd := NewReader(r, sources)
	var (
		events []event.Event
		sum    Summary
		last   float64
	)
	for {
		ev, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var unrecognized *event.UnrecognizedSourceError
		switch {
		case errors.As(err, &unrecognized):
			if sum.Unrecognized == nil {
				sum.Unrecognized = make(map[string]int)
			}
			if sum.Unrecognized[unrecognized.ID] == 0 {
				log.WithField("id", unrecognized.ID).Warn("skipping events with unrecognized source")
			}
			sum.Unrecognized[unrecognized.ID]++
			continue
		case errors.Is(err, event.ErrTooManyValues):
			sum.Truncated++
		case err != nil:
			sum.Lines = rd.Line()
			return events, sum, err
		}

		if !w.contains(ev.Timestamp) {
			sum.OutOfWindow++
			continue
		}
		if len(events) > 0 && ev.Timestamp < last {
			sum.OutOfOrder++
			log.WithFields(log.Fields{"line": rd.Line(), "timestamp": ev.Timestamp, "previous": last}).Debug("timestamp went backwards")
		}
		last = ev.Timestamp
		events = append(events, ev)
	}
	sum.Lines = rd.Line()
	sum.Events = len(events)
	return events, sum, nil
}

// ReadFile is ReadAll over the file at path.
func ReadFile(path string, sources event.SourceMap, w Window) ([]event.Event, Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()
	events, sum, err := ReadAll(f, sources, w)
	if err != nil {
		return events, sum, fmt.Errorf("%s: %w", path, err)
	}
	return events, sum, nil
}

// Writer encodes events as JSON lines. The id is the source name.
type Writer struct {
	bw  *bufio.Writer
	enc *json.Encoder
	n   int
}

func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{bw: bw, enc: json.NewEncoder(bw)}
}

func (w *Writer) Write(ev event.Event) error {
	rec := Record{ID: ev.Source.String(), Timestamp: ev.Timestamp, Values: ev.Channels()}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}
	w.n++
	return nil
}

// Count is the number of events written so far.
func (w *Writer) Count() int { return w.n }

func (w *Writer) Flush() error {
	return w.bw.Flush()
}
