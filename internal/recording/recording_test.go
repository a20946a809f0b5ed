package recording

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/pipeline"
)

const sample = `{"id": "lpom-15", "timestamp": 0.00, "values": [0, 0, 9.81]}
{"id": "lpom-1", "timestamp": 0.01, "values": [30, -2, 4]}

{"id": "lpom-99", "timestamp": 0.015, "values": [1]}
{"id": "lpom-62", "timestamp": 0.02, "values": [0.1, 0.2, 0.3]}
{"id": "gyro", "timestamp": 0.03, "values": [0, 0, 0]}
`

func TestReaderNext(t *testing.T) {
	r := NewReader(strings.NewReader(sample), nil)

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, event.Accelerometer, ev.Source)
	assert.Equal(t, []float64{0, 0, 9.81}, ev.Channels())

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, event.Magnetometer, ev.Source)
	assert.Equal(t, 0.01, ev.Timestamp)

	_, err = r.Next()
	var unrecognized *event.UnrecognizedSourceError
	require.ErrorAs(t, err, &unrecognized)
	assert.Equal(t, "lpom-99", unrecognized.ID)
	assert.Equal(t, 4, r.Line())

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, event.Gyroscope, ev.Source)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, event.Gyroscope, ev.Source)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderMalformedJSON(t *testing.T) {
	r := NewReader(strings.NewReader("{\"id\": \"acc\"\n"), nil)
	_, err := r.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestReadAllSummary(t *testing.T) {
	input := sample + `{"id": "acc", "timestamp": 0.025, "values": [1, 2, 3]}` + "\n"
	events, sum, err := ReadAll(strings.NewReader(input), event.DefaultSourceMap(), Window{})
	require.NoError(t, err)

	assert.Len(t, events, 5)
	assert.Equal(t, 5, sum.Events)
	assert.Equal(t, 7, sum.Lines)
	assert.Equal(t, 1, sum.OutOfOrder)
	assert.Equal(t, map[string]int{"lpom-99": 1}, sum.Unrecognized)
}

func TestReadAllWindow(t *testing.T) {
	events, sum, err := ReadAll(strings.NewReader(sample), nil, Window{Start: 0.005, End: 0.02})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 0.01, events[0].Timestamp)
	assert.Equal(t, 0.02, events[1].Timestamp)
	assert.Equal(t, 2, sum.OutOfWindow)
}

func TestReadAllTruncatesWideEvents(t *testing.T) {
	values := make([]float64, event.MaxValues+4)
	line, err := json.Marshal(Record{ID: "acc", Timestamp: 1, Values: values})
	require.NoError(t, err)

	events, sum, err := ReadAll(bytes.NewReader(line), nil, Window{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.MaxValues, events[0].Count)
	assert.Equal(t, 1, sum.Truncated)
}

func TestWriterRoundTrip(t *testing.T) {
	in := []event.Event{
		event.Must(0.5, event.Threshold, -0.25, 0.75),
		event.Must(0.6, event.Orientation, 1, 0, 0, 0),
		event.Must(0.7, event.Accelerometer, 0, 0, 1),
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, ev := range in {
		require.NoError(t, w.Write(ev))
	}
	require.NoError(t, w.Flush())
	assert.Equal(t, 3, w.Count())
	assert.True(t, strings.HasPrefix(buf.String(), `{"id":"mag_threshold","timestamp":0.5,"values":[-0.25,0.75]}`))

	out, _, err := ReadAll(&buf, event.SourceMap{}, Window{})
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadFileMissing(t *testing.T) {
	_, _, err := ReadFile(filepath.Join(t.TempDir(), "nope.jsonl"), nil, Window{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParamsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, SaveParams(path, pipeline.Params{XScale: 0.8125}))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8125, p.XScale)
}

func TestLoadParamsAcceptsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"x_scale": 1.5}`), 0o644))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, 1.5, p.XScale)

	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	p, err = LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultParams(), p)
}
