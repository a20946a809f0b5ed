// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/inertial_replay/internal/app"
	"github.com/relabs-tech/inertial_replay/internal/calibration"
	"github.com/relabs-tech/inertial_replay/internal/config"
	"github.com/relabs-tech/inertial_replay/internal/recording"
)

const (
	DefaultConfigPath = "inertial_replay.conf"
	ConfigEnv         = "INERTIAL_REPLAY_CONFIG"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inertial_replay",
		Short: "post-process IMU recordings: orientation, spectrogram and calibration",
		Long: `inertial_replay replays recorded accelerometer, gyroscope and magnetometer
streams through a complementary orientation filter, a sliding FFT spectrogram
and a magnetometer threshold stage, and tunes the magnetometer x scale
against the threshold cost.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			setLogLevel(debug)
			return nil
		},
	}
	RootCmdFlags(cmd)
	return cmd
}

func setLogLevel(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func RootCmdFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "configuration file (KEY=VALUE), defaults to $"+ConfigEnv)
	cmd.PersistentFlags().Bool("debug", false, "toggle debug logging")
	cmd.PersistentFlags().StringArray("set", nil, "override a configuration key, e.g. --set FUSION_GAIN_MAG=0.1")
}

// loadConfig resolves the configuration in the order: --config, the
// environment variable, built-in defaults. --set overrides and --debug are
// applied last.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv(ConfigEnv)
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
		log.WithField("path", path).Debug("configuration loaded")
	}

	overrides, _ := cmd.Flags().GetStringArray("set")
	for _, kv := range overrides {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: expected KEY=VALUE", kv)
		}
		if err := cfg.Set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("--set: %w", err)
		}
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setLogLevel(cfg.Debug)
	return cfg, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func windowFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("start", 0, "ignore events before this timestamp (s)")
	cmd.Flags().Float64("end", 0, "ignore events after this timestamp (s), 0 for no limit")
}

func window(cmd *cobra.Command) recording.Window {
	start, _ := cmd.Flags().GetFloat64("start")
	end, _ := cmd.Flags().GetFloat64("end")
	return recording.Window{Start: start, End: end}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ReplayCmdFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "recording to replay (JSON lines)")
	cmd.Flags().StringP("output", "o", "", "write derived events to this file")
	cmd.Flags().String("image", "", "write the spectrogram PNG here")
	cmd.Flags().Int("image-scale", 1, "integer upscaling factor for --image")
	cmd.Flags().String("trace", "", "write an orientation plot (png, svg or pdf)")
	cmd.Flags().String("params", "", "parameter file from calibrate")
	cmd.Flags().Bool("publish", false, "publish derived events to MQTT")
	cmd.Flags().Bool("base64", false, "include the spectrogram PNG as base64 in the report")
	windowFlags(cmd)
	_ = cmd.MarkFlagRequired("input")
}

func ReplayCmdRunE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	opts := app.ReplayOptions{Window: window(cmd)}
	opts.Input, _ = cmd.Flags().GetString("input")
	opts.Output, _ = cmd.Flags().GetString("output")
	opts.Image, _ = cmd.Flags().GetString("image")
	opts.ImageScale, _ = cmd.Flags().GetInt("image-scale")
	opts.Trace, _ = cmd.Flags().GetString("trace")
	opts.ParamsFile, _ = cmd.Flags().GetString("params")
	opts.Publish, _ = cmd.Flags().GetBool("publish")
	opts.Embed, _ = cmd.Flags().GetBool("base64")

	report, err := app.RunReplay(ctx, cfg, opts)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "replay",
		Short:   "replay a recording through the pipeline",
		Example: `  inertial_replay replay -i run.jsonl -o derived.jsonl --image spectrogram.png --image-scale 2`,
		RunE:    ReplayCmdRunE,
	}
	ReplayCmdFlags(cmd)
	return cmd
}

func CalibrateCmdFlags(cmd *cobra.Command) {
	d := calibration.DefaultOptions()
	cmd.Flags().StringP("input", "i", "", "recording to calibrate against")
	cmd.Flags().StringP("output", "o", "params.yaml", "write the best parameters here")
	cmd.Flags().String("derived", "", "replay with the best parameters and write derived events here")
	cmd.Flags().Float64("x-scale", 1, "initial magnetometer x scale")
	cmd.Flags().Float64("step", d.Step, "initial simplex size")
	cmd.Flags().Float64("tol-x", d.TolX, "x_scale tolerance")
	cmd.Flags().Float64("tol-f", d.TolF, "cost tolerance")
	cmd.Flags().Int("max-eval", d.MaxEval, "cost evaluation budget")
	windowFlags(cmd)
	_ = cmd.MarkFlagRequired("input")
}

func CalibrateCmdRunE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	opts := app.CalibrationOptions{Window: window(cmd), Optimizer: calibration.DefaultOptions()}
	opts.Input, _ = cmd.Flags().GetString("input")
	opts.Output, _ = cmd.Flags().GetString("output")
	opts.Derived, _ = cmd.Flags().GetString("derived")
	opts.Start, _ = cmd.Flags().GetFloat64("x-scale")
	opts.Optimizer.Step, _ = cmd.Flags().GetFloat64("step")
	opts.Optimizer.TolX, _ = cmd.Flags().GetFloat64("tol-x")
	opts.Optimizer.TolF, _ = cmd.Flags().GetFloat64("tol-f")
	opts.Optimizer.MaxEval, _ = cmd.Flags().GetInt("max-eval")

	res, err := app.RunCalibration(ctx, cfg, opts)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "search for the magnetometer x scale",
		Long: `calibrate replays the recording once per candidate x_scale and minimises the
sum of |measured field norm - MAG_FIELD_NORM| with Nelder-Mead.`,
		Example: `  inertial_replay calibrate -i run.jsonl -o params.yaml`,
		RunE:    CalibrateCmdRunE,
	}
	CalibrateCmdFlags(cmd)
	return cmd
}

func SynthCmdFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("plan", "p", "", "motion plan (YAML)")
	cmd.Flags().StringP("output", "o", "synthetic.jsonl", "recording to write")
	_ = cmd.MarkFlagRequired("plan")
}

func newSynthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "synth",
		Short:   "render a motion plan to a synthetic recording",
		Example: `  inertial_replay synth -p plan.yaml -o synthetic.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, _ := cmd.Flags().GetString("plan")
			output, _ := cmd.Flags().GetString("output")
			sum, err := app.RunSynthetic(plan, output)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	SynthCmdFlags(cmd)
	return cmd
}

func ServeCmdFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "recording to replay")
	cmd.Flags().String("params", "", "parameter file from calibrate")
	cmd.Flags().String("addr", "", "listen address, defaults to :WEB_SERVER_PORT")
	cmd.Flags().Float64("speed", -1, "replay speed factor, 0 for as fast as possible (defaults to WEB_REPLAY_SPEED)")
	windowFlags(cmd)
	_ = cmd.MarkFlagRequired("input")
}

func ServeCmdRunE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if speed, _ := cmd.Flags().GetFloat64("speed"); speed >= 0 {
		cfg.WebReplaySpeed = speed
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	opts := app.WebOptions{Window: window(cmd)}
	opts.Input, _ = cmd.Flags().GetString("input")
	opts.ParamsFile, _ = cmd.Flags().GetString("params")
	opts.Addr, _ = cmd.Flags().GetString("addr")
	return app.RunWeb(ctx, cfg, opts)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "replay a recording behind a live web view",
		Example: `  inertial_replay serve -i run.jsonl --speed 2`,
		RunE:    ServeCmdRunE,
	}
	ServeCmdFlags(cmd)
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "print derived events published to MQTT",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			return app.RunWatch(ctx, cfg, cmd.OutOrStdout())
		},
	}
	return cmd
}

func InitCmdFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", DefaultConfigPath, "configuration file to write")
}

var errExists = errors.New("file exists, pass --yes to overwrite")

func InitCmdRunE(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if p, _ := cmd.Flags().GetBool("print"); p {
		return config.Dump(cmd.OutOrStdout(), cfg)
	}
	path, _ := cmd.Flags().GetString("output")
	yes, _ := cmd.Flags().GetBool("yes")
	if _, err := os.Stat(path); err == nil && !yes {
		return fmt.Errorf("%s: %w", path, errExists)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := config.Dump(f, cfg); err != nil {
		f.Close()
		return err
	}
	log.WithField("path", path).Info("configuration template written")
	return f.Close()
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "init create a configuration template",
		Long: `init create a configuration template with every key at its default.
If --print flag is present, the configuration will be printed to stdout.
If --yes / -y flag is present, an existing file will be overwritten.`,
		Example: `  inertial_replay init --print
  inertial_replay init -o lab.conf -y`,
		RunE: InitCmdRunE,
	}
	InitCmdFlags(cmd)
	return cmd
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	root := newRootCmd()
	root.AddCommand(
		newReplayCmd(),
		newCalibrateCmd(),
		newSynthCmd(),
		newServeCmd(),
		newWatchCmd(),
		newInitCmd(),
	)
	return root
}

func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
