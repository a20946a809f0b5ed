package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_replay/internal/app"
	"github.com/relabs-tech/inertial_replay/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(ConfigEnv, "")
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInitPrint(t *testing.T) {
	out, err := run(t, "init", "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "FUSION_GAIN_ACCEL=0.05\n")

	cfg, err := config.Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab.conf")

	_, err := run(t, "init", "-o", path)
	require.NoError(t, err)

	_, err = run(t, "init", "-o", path)
	assert.ErrorIs(t, err, errExists)

	_, err = run(t, "init", "-o", path, "-y")
	assert.NoError(t, err)
}

const plan = `
initialization:
  sample_rate: 50
segments:
  - name: turn
    duration_s: 2
    rotation_rpy_degrees: {roll: 0, pitch: 0, yaw: 45}
`

func TestSynthThenReplay(t *testing.T) {
	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(plan), 0o644))
	recPath := filepath.Join(dir, "rec.jsonl")

	_, err := run(t, "synth", "-p", planPath, "-o", recPath)
	require.NoError(t, err)

	confPath := filepath.Join(dir, "replay.conf")
	require.NoError(t, os.WriteFile(confPath, []byte("SPECTRAL_WINDOW_SIZE=16\nIMAGE_WIDTH=8\nIMAGE_HEIGHT=8\n"), 0o644))

	out, err := run(t, "replay", "--config", confPath, "-i", recPath,
		"--set", "SPECTRAL_WINDOW=hann", "--end", "1")
	require.NoError(t, err)

	var report app.ReplayReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 51*3, report.Recording.Events)
	assert.Equal(t, 49*3, report.Recording.OutOfWindow)
	assert.Equal(t, report.Recording.Events, report.Stats.Processed)
	assert.InDelta(t, 22.95, report.Final.Yaw, 1.0)
}

func TestBadOverride(t *testing.T) {
	_, err := run(t, "replay", "-i", "x.jsonl", "--set", "FUSION_GAIN_MAG")
	assert.ErrorContains(t, err, "expected KEY=VALUE")

	_, err = run(t, "replay", "-i", "x.jsonl", "--set", "NOT_A_KEY=1")
	assert.ErrorContains(t, err, "unknown config key")
}

func TestReplayRequiresInput(t *testing.T) {
	_, err := run(t, "replay")
	assert.ErrorContains(t, err, `required flag(s) "input" not set`)
}
