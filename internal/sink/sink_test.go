package sink

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/recording"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                       { return !t.timeout }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                     { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

type message struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	sent  []message
	token *fakeToken
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	p.sent = append(p.sent, message{topic: topic, payload: payload.([]byte)})
	if p.token != nil {
		return p.token
	}
	return &fakeToken{}
}

type collector struct {
	events []event.Event
	closed bool
	err    error
}

func (c *collector) Write(ev event.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

func (c *collector) Close() error {
	c.closed = true
	return c.err
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "replay/orientation", Topic("replay", event.Orientation))
	assert.Equal(t, "replay/mag_threshold", Topic("replay/", event.Threshold))
}

func TestMQTTSinkPublishesRecords(t *testing.T) {
	pub := &fakePublisher{}
	s := NewMQTTSink(pub, "lab/run1")

	require.NoError(t, s.Write(event.Must(1.5, event.Orientation, 1, 0, 0, 0)))
	require.NoError(t, s.Write(event.Must(2, event.Threshold, -0.25, 0.75)))
	require.NoError(t, s.Close())

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "lab/run1/orientation", pub.sent[0].topic)
	assert.Equal(t, "lab/run1/mag_threshold", pub.sent[1].topic)
	assert.Equal(t, 2, s.Published())

	var rec recording.Record
	require.NoError(t, json.Unmarshal(pub.sent[1].payload, &rec))
	want := recording.Record{ID: "mag_threshold", Timestamp: 2, Values: []float64{-0.25, 0.75}}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestMQTTSinkReportsFailures(t *testing.T) {
	refused := errors.New("not authorized")
	pub := &fakePublisher{token: &fakeToken{err: refused}}
	s := NewMQTTSink(pub, "x")

	err := s.Write(event.Must(0, event.Euler, 0, 0, 0))
	assert.ErrorIs(t, err, refused)
	assert.Zero(t, s.Published())

	pub.token = &fakeToken{timeout: true}
	err = s.Write(event.Must(0, event.Euler, 0, 0, 0))
	assert.ErrorIs(t, err, ErrPublishTimeout)
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := NewFileSink(path)
	require.NoError(t, err)

	in := []event.Event{
		event.Must(0.1, event.Orientation, 1, 0, 0, 0),
		event.Must(0.1, event.Euler, 0, 0, 0),
		event.Must(0.2, event.Threshold, 0.5, 1.5),
	}
	for _, ev := range in {
		require.NoError(t, s.Write(ev))
	}
	assert.Equal(t, 3, s.Count())
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	events, sum, err := recording.ReadAll(f, nil, recording.Window{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Events)
	if diff := cmp.Diff(in, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &collector{}, &collector{err: errors.New("disk full")}
	m := Multi{a, b}

	err := m.Write(event.Must(0, event.Orientation, 1, 0, 0, 0))
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)

	assert.Error(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestFilter(t *testing.T) {
	c := &collector{}
	f := Filter{Sink: c, Keep: func(src event.SourceID) bool { return src == event.Threshold }}

	require.NoError(t, f.Write(event.Must(0, event.Orientation, 1, 0, 0, 0)))
	require.NoError(t, f.Write(event.Must(0, event.Threshold, 0, 1)))
	require.Len(t, c.events, 1)
	assert.Equal(t, event.Threshold, c.events[0].Source)
}
