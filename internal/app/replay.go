// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_replay/internal/config"
	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/orientation"
	"github.com/relabs-tech/inertial_replay/internal/pipeline"
	"github.com/relabs-tech/inertial_replay/internal/raster"
	"github.com/relabs-tech/inertial_replay/internal/recording"
	"github.com/relabs-tech/inertial_replay/internal/sink"
)

// ReplayOptions select the input and the artifacts a replay writes. Empty
// paths disable the corresponding output.
type ReplayOptions struct {
	Input      string
	Window     recording.Window
	ParamsFile string

	Output     string // derived events, JSON lines
	Image      string // spectrogram PNG
	ImageScale int
	Trace      string // orientation plot
	Publish    bool   // derived events to MQTT
	// Embed adds the spectrogram to the report as base64 PNG.
	Embed bool
}

// ReplayReport summarises one replay.
type ReplayReport struct {
	RunID     string            `json:"run_id"`
	Params    pipeline.Params   `json:"params"`
	Recording recording.Summary `json:"recording"`
	Stats     pipeline.Stats    `json:"stats"`
	Final     orientation.Pose  `json:"final"`
	// TracePoints is the number of Euler samples plotted; zero without a trace.
	TracePoints int `json:"trace_points,omitempty"`

	Spectrogram string `json:"spectrogram,omitempty"`
}

func loadParams(path string) (pipeline.Params, error) {
	if path == "" {
		return pipeline.DefaultParams(), nil
	}
	return recording.LoadParams(path)
}

func openSinks(cfg *config.Config, opts ReplayOptions, runID string) (sink.Multi, error) {
	var sinks sink.Multi
	if opts.Output != "" {
		fs, err := sink.NewFileSink(opts.Output)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if opts.Publish {
		ms, err := sink.DialMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-"+runID[:8], cfg.MQTTTopicPrefix)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, ms)
	}
	return sinks, nil
}

// RunReplay pushes a recording through the pipeline once. Per-event errors
// are counted and logged; ctx cancellation stops between events.
func RunReplay(ctx context.Context, cfg *config.Config, opts ReplayOptions) (ReplayReport, error) {
	report := ReplayReport{RunID: uuid.NewString()}
	logger := log.WithField("run", report.RunID)

	params, err := loadParams(opts.ParamsFile)
	if err != nil {
		return report, err
	}
	report.Params = params

	pc, err := cfg.Pipeline()
	if err != nil {
		return report, err
	}
	p, err := pipeline.New(pc, params)
	if err != nil {
		return report, err
	}

	events, sum, err := recording.ReadFile(opts.Input, cfg.SourceMap(), opts.Window)
	report.Recording = sum
	if err != nil {
		return report, err
	}
	logger.WithFields(log.Fields{
		"input":        opts.Input,
		"events":       sum.Events,
		"out_of_order": sum.OutOfOrder,
		"x_scale":      params.XScale,
	}).Info("replay started")

	sinks, err := openSinks(cfg, opts, report.RunID)
	if err != nil {
		return report, err
	}

	var trace *Trace
	if opts.Trace != "" {
		trace = &Trace{}
	}
	runErr := replayEvents(ctx, p, events, func(ev event.Event) error {
		if trace != nil {
			trace.Add(ev)
		}
		return sinks.Write(ev)
	})
	closeErr := sinks.Close()

	report.Stats = p.Stats()
	report.Final = orientation.PoseFromQuaternion(p.Orientation())
	if err := errors.Join(runErr, closeErr); err != nil {
		return report, err
	}

	if opts.Image != "" {
		if err := saveSpectrogram(p.Raster(), opts.Image, opts.ImageScale, report.RunID, params); err != nil {
			return report, err
		}
		logger.WithField("path", opts.Image).Info("spectrogram written")
	}
	if opts.Embed {
		if p.Raster() == nil {
			return report, errNoRaster
		}
		if report.Spectrogram, err = raster.Base64PNG(p.Raster().Chronological()); err != nil {
			return report, err
		}
	}
	if trace != nil {
		report.TracePoints = trace.Len()
		if err := trace.Save(opts.Trace, "Orientation "+report.RunID[:8]); err != nil {
			return report, fmt.Errorf("orientation trace: %w", err)
		}
		logger.WithField("path", opts.Trace).Info("orientation trace written")
	}

	logger.WithFields(log.Fields{
		"processed": report.Stats.Processed,
		"derived":   report.Stats.Derived,
		"errors":    report.Stats.Errors,
		"roll":      report.Final.Roll,
		"pitch":     report.Final.Pitch,
		"yaw":       report.Final.Yaw,
	}).Info("replay finished")
	return report, nil
}

// replayEvents feeds events to p in order and hands every derived event to
// emit. Pipeline errors drop the event; emit errors end the replay.
func replayEvents(ctx context.Context, p *pipeline.Pipeline, events []event.Event, emit func(event.Event) error) error {
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := p.Update(ev)
		if err != nil {
			log.WithFields(log.Fields{"index": i, "timestamp": ev.Timestamp}).Debugf("event dropped: %v", err)
		}
		for _, d := range out {
			if err := emit(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// replayToFile runs a fresh pipeline over events and writes every derived
// event to path.
func replayToFile(ctx context.Context, pc pipeline.Config, params pipeline.Params, events []event.Event, path string) (pipeline.Stats, error) {
	p, err := pipeline.New(pc, params)
	if err != nil {
		return pipeline.Stats{}, err
	}
	out, err := sink.NewFileSink(path)
	if err != nil {
		return pipeline.Stats{}, err
	}
	runErr := replayEvents(ctx, p, events, out.Write)
	return p.Stats(), errors.Join(runErr, out.Close())
}

var errNoRaster = errors.New("spectrogram output requested but SPECTRAL_SOURCE is none")

func saveSpectrogram(buf *raster.ImageBuffer, path string, scale int, runID string, params pipeline.Params) error {
	if buf == nil {
		return errNoRaster
	}
	img := raster.Scale(buf.Chronological(), scale)
	raster.Annotate(img, "run "+runID[:8], fmt.Sprintf("x_scale %.4f", params.XScale))
	return raster.SavePNG(path, img)
}
