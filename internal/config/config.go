// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/orientation"
	"github.com/relabs-tech/inertial_replay/internal/pipeline"
	"github.com/relabs-tech/inertial_replay/internal/raster"
	"github.com/relabs-tech/inertial_replay/internal/spectral"
)

// Config holds all application configuration values.
type Config struct {
	// Recording topic ids
	SourceAccel string
	SourceGyro  string
	SourceMag   string

	// Fusion
	FusionGainAccel     float64
	FusionGainMag       float64
	FusionAccelRef      [3]float64
	FusionMagRef        [3]float64
	FusionMaxDT         float64 // seconds
	FusionSeedFromAccel bool
	FusionInitialQ      [4]float64 // w, x, y, z

	// Spectrogram
	SpectralWindowSize int
	SpectralWindow     string // "rectangular" or "hann"
	SpectralSource     string // "acc", "gyro", "mag" or "none"
	SpectralChannel    int
	SpectralSampleRate float64 // Hz
	SpectralOverflow   string  // "reject" or "shift"

	// Image
	ImageWidth          int
	ImageHeight         int
	ImageIntensityScale float64
	ImageQuantization   string // "wrap" or "clamp"

	// Calibration
	MagFieldNorm float64

	// MQTT
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	// Web Server
	WebServerPort  int
	WebReplaySpeed float64 // 0 replays as fast as possible

	Debug bool
}

// Default returns a configuration in which every key has a usable value, so
// an empty file is valid.
func Default() *Config {
	return &Config{
		SourceAccel: "lpom-15",
		SourceGyro:  "lpom-62",
		SourceMag:   "lpom-1",

		FusionGainAccel: 0.05,
		FusionGainMag:   0.05,
		FusionAccelRef:  [3]float64{0, 0, 1},
		FusionMagRef:    [3]float64{1, 0, 0},
		FusionMaxDT:     0.5,
		FusionInitialQ:  [4]float64{1, 0, 0, 0},

		SpectralWindowSize: 256,
		SpectralWindow:     "rectangular",
		SpectralSource:     "acc",
		SpectralChannel:    0,
		SpectralSampleRate: 100,
		SpectralOverflow:   "reject",

		ImageWidth:          512,
		ImageHeight:         128,
		ImageIntensityScale: 1,
		ImageQuantization:   "wrap",

		MagFieldNorm: 1,

		MQTTBroker:      "tcp://localhost:1883",
		MQTTClientID:    "inertial-replay",
		MQTTTopicPrefix: "inertial_replay",

		WebServerPort:  8080,
		WebReplaySpeed: 1,
	}
}

// Load reads the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines. Blank lines and lines starting with # are
// ignored.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.Set(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// parseFloats reads exactly len(dst) comma separated numbers.
func parseFloats(key, value string, dst []float64) error {
	fields := strings.Split(value, ",")
	if len(fields) != len(dst) {
		return fmt.Errorf("%s needs %d comma separated values, got %q", key, len(dst), value)
	}
	for i, f := range fields {
		v, err := parseFloat(key, strings.TrimSpace(f))
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

// Set assigns one key. Command line flags use it to override file values.
func (c *Config) Set(key, value string) error {
	var err error
	switch key {
	// Sources
	case "SOURCE_ACCEL":
		c.SourceAccel = value
	case "SOURCE_GYRO":
		c.SourceGyro = value
	case "SOURCE_MAG":
		c.SourceMag = value

	// Fusion
	case "FUSION_GAIN_ACCEL":
		c.FusionGainAccel, err = parseFloat(key, value)
	case "FUSION_GAIN_MAG":
		c.FusionGainMag, err = parseFloat(key, value)
	case "FUSION_ACCEL_REF":
		err = parseFloats(key, value, c.FusionAccelRef[:])
	case "FUSION_MAG_REF":
		err = parseFloats(key, value, c.FusionMagRef[:])
	case "FUSION_MAX_DT":
		c.FusionMaxDT, err = parseFloat(key, value)
	case "FUSION_SEED_FROM_ACCEL":
		c.FusionSeedFromAccel, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	case "FUSION_INITIAL_Q":
		err = parseFloats(key, value, c.FusionInitialQ[:])

	// Spectrogram
	case "SPECTRAL_WINDOW_SIZE":
		c.SpectralWindowSize, err = parseInt(key, value)
		if err == nil && !spectral.IsPowerOfTwo(c.SpectralWindowSize) {
			err = fmt.Errorf("SPECTRAL_WINDOW_SIZE must be a power of two, got %d", c.SpectralWindowSize)
		}
	case "SPECTRAL_WINDOW":
		c.SpectralWindow = strings.ToLower(value)
	case "SPECTRAL_SOURCE":
		c.SpectralSource = strings.ToLower(value)
	case "SPECTRAL_CHANNEL":
		c.SpectralChannel, err = parseInt(key, value)
		if err == nil && (c.SpectralChannel < 0 || c.SpectralChannel >= event.MaxValues) {
			err = fmt.Errorf("SPECTRAL_CHANNEL must be 0-%d, got %d", event.MaxValues-1, c.SpectralChannel)
		}
	case "SPECTRAL_SAMPLE_RATE":
		c.SpectralSampleRate, err = parseFloat(key, value)
	case "SPECTRAL_OVERFLOW":
		c.SpectralOverflow = strings.ToLower(value)

	// Image
	case "IMAGE_WIDTH":
		c.ImageWidth, err = parseInt(key, value)
	case "IMAGE_HEIGHT":
		c.ImageHeight, err = parseInt(key, value)
	case "IMAGE_INTENSITY_SCALE":
		c.ImageIntensityScale, err = parseFloat(key, value)
	case "IMAGE_QUANTIZATION":
		c.ImageQuantization = strings.ToLower(value)

	case "MAG_FIELD_NORM":
		c.MagFieldNorm, err = parseFloat(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC_PREFIX":
		c.MQTTTopicPrefix = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)
		if err == nil && (c.WebServerPort < 0 || c.WebServerPort > 65535) {
			err = fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", c.WebServerPort)
		}
	case "WEB_REPLAY_SPEED":
		c.WebReplaySpeed, err = parseFloat(key, value)

	case "DEBUG":
		c.Debug, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

// Validate checks cross-field constraints by building the pipeline
// configuration.
func (c *Config) Validate() error {
	if c.SourceAccel == "" || c.SourceGyro == "" || c.SourceMag == "" {
		return fmt.Errorf("SOURCE_ACCEL, SOURCE_GYRO and SOURCE_MAG are required")
	}
	if c.SourceAccel == c.SourceGyro || c.SourceAccel == c.SourceMag || c.SourceGyro == c.SourceMag {
		return fmt.Errorf("SOURCE_ACCEL, SOURCE_GYRO and SOURCE_MAG must be distinct, got %q, %q, %q",
			c.SourceAccel, c.SourceGyro, c.SourceMag)
	}
	pc, err := c.Pipeline()
	if err != nil {
		return err
	}
	if err := pc.Validate(); err != nil {
		return err
	}
	if c.MQTTTopicPrefix == "" {
		return fmt.Errorf("MQTT_TOPIC_PREFIX is required")
	}
	if c.WebReplaySpeed < 0 {
		return fmt.Errorf("WEB_REPLAY_SPEED must be >= 0, got %v", c.WebReplaySpeed)
	}
	return nil
}

// SourceMap maps the configured recording ids to sensors.
func (c *Config) SourceMap() event.SourceMap {
	return event.SourceMap{
		c.SourceAccel: event.Accelerometer,
		c.SourceGyro:  event.Gyroscope,
		c.SourceMag:   event.Magnetometer,
	}
}

func vec(v [3]float64) orientation.Vector3 {
	return orientation.Vector3{X: float32(v[0]), Y: float32(v[1]), Z: float32(v[2])}
}

// Pipeline converts the file settings to a pipeline.Config.
func (c *Config) Pipeline() (pipeline.Config, error) {
	window, err := spectral.ParseWindowFunction(c.SpectralWindow)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("SPECTRAL_WINDOW: %w", err)
	}
	overflow, err := spectral.ParseOverflowPolicy(c.SpectralOverflow)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("SPECTRAL_OVERFLOW: %w", err)
	}
	quant, err := raster.ParseQuantizationPolicy(c.ImageQuantization)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("IMAGE_QUANTIZATION: %w", err)
	}

	source := event.Unknown
	if c.SpectralSource != "" && c.SpectralSource != "none" {
		src, ok := event.ParseSourceName(c.SpectralSource)
		if !ok || !src.IsSensor() {
			return pipeline.Config{}, fmt.Errorf("SPECTRAL_SOURCE must be acc, gyro, mag or none, got %q", c.SpectralSource)
		}
		source = src
	}

	q := c.FusionInitialQ
	return pipeline.Config{
		Fusion: pipeline.FusionConfig{
			GainAccel:     float32(c.FusionGainAccel),
			GainMag:       float32(c.FusionGainMag),
			AccelRef:      vec(c.FusionAccelRef),
			MagRef:        vec(c.FusionMagRef),
			MaxStep:       c.FusionMaxDT,
			SeedFromAccel: c.FusionSeedFromAccel,
			Initial:       orientation.Quaternion{W: float32(q[0]), X: float32(q[1]), Y: float32(q[2]), Z: float32(q[3])},
		},
		Spectral: pipeline.SpectralConfig{
			Source:     source,
			Channel:    c.SpectralChannel,
			SampleRate: c.SpectralSampleRate,
			Engine: spectral.Config{
				WindowSize: c.SpectralWindowSize,
				Window:     window,
				Overflow:   overflow,
			},
		},
		Raster: pipeline.RasterConfig{
			Width:     c.ImageWidth,
			Height:    c.ImageHeight,
			Quantizer: raster.Quantizer{Scale: c.ImageIntensityScale, Policy: quant},
		},
		Threshold: pipeline.ThresholdConfig{FieldNorm: c.MagFieldNorm},
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ",")
}

// Dump writes cfg in the file format Load reads.
func Dump(w io.Writer, c *Config) error {
	sections := []struct {
		title string
		keys  [][2]string
	}{
		{"Recording topic ids", [][2]string{
			{"SOURCE_ACCEL", c.SourceAccel},
			{"SOURCE_GYRO", c.SourceGyro},
			{"SOURCE_MAG", c.SourceMag},
		}},
		{"Fusion (gains are per correction step)", [][2]string{
			{"FUSION_GAIN_ACCEL", formatFloat(c.FusionGainAccel)},
			{"FUSION_GAIN_MAG", formatFloat(c.FusionGainMag)},
			{"FUSION_ACCEL_REF", formatFloats(c.FusionAccelRef[:])},
			{"FUSION_MAG_REF", formatFloats(c.FusionMagRef[:])},
			{"FUSION_MAX_DT", formatFloat(c.FusionMaxDT)},
			{"FUSION_SEED_FROM_ACCEL", strconv.FormatBool(c.FusionSeedFromAccel)},
			{"FUSION_INITIAL_Q", formatFloats(c.FusionInitialQ[:])},
		}},
		{"Spectrogram (SPECTRAL_SOURCE=none disables it)", [][2]string{
			{"SPECTRAL_WINDOW_SIZE", strconv.Itoa(c.SpectralWindowSize)},
			{"SPECTRAL_WINDOW", c.SpectralWindow},
			{"SPECTRAL_SOURCE", c.SpectralSource},
			{"SPECTRAL_CHANNEL", strconv.Itoa(c.SpectralChannel)},
			{"SPECTRAL_SAMPLE_RATE", formatFloat(c.SpectralSampleRate)},
			{"SPECTRAL_OVERFLOW", c.SpectralOverflow},
		}},
		{"Image", [][2]string{
			{"IMAGE_WIDTH", strconv.Itoa(c.ImageWidth)},
			{"IMAGE_HEIGHT", strconv.Itoa(c.ImageHeight)},
			{"IMAGE_INTENSITY_SCALE", formatFloat(c.ImageIntensityScale)},
			{"IMAGE_QUANTIZATION", c.ImageQuantization},
		}},
		{"Calibration", [][2]string{
			{"MAG_FIELD_NORM", formatFloat(c.MagFieldNorm)},
		}},
		{"MQTT", [][2]string{
			{"MQTT_BROKER", c.MQTTBroker},
			{"MQTT_CLIENT_ID", c.MQTTClientID},
			{"MQTT_TOPIC_PREFIX", c.MQTTTopicPrefix},
		}},
		{"Web Server", [][2]string{
			{"WEB_SERVER_PORT", strconv.Itoa(c.WebServerPort)},
			{"WEB_REPLAY_SPEED", formatFloat(c.WebReplaySpeed)},
		}},
		{"Logging", [][2]string{
			{"DEBUG", strconv.FormatBool(c.Debug)},
		}},
	}

	bw := bufio.NewWriter(w)
	for i, s := range sections {
		if i > 0 {
			fmt.Fprintln(bw)
		}
		fmt.Fprintf(bw, "# %s\n", s.title)
		for _, kv := range s.keys {
			fmt.Fprintf(bw, "%s=%s\n", kv[0], kv[1])
		}
	}
	return bw.Flush()
}
