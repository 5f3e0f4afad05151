package eventsink

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	closed   bool
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakePublisher) Close() {
	f.closed = true
}

func TestNATSSinkPublishesConfigEvent(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSinkWithConnection(pub)

	sink.OnConfig("run-1", "SR=48000 CH=1", "SR=48000 CH=1")
	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "latencytest.run-1.config", pub.subjects[0])

	var evt runEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &evt))
	assert.Equal(t, "run-1", evt.RunID)
	assert.Equal(t, "config", evt.Kind)
	assert.Equal(t, "SR=48000 CH=1", evt.OutputCfg)
}

func TestNATSSinkPublishesCompletedEvent(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSinkWithConnection(pub)

	top3 := []CandidatePair{{DelayMs: 100, Correlation: 0.9}}
	sink.OnCompleted("run-2", "/tmp/out.m4a", 0, 100.5, top3)

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "latencytest.run-2.completed", pub.subjects[0])

	var evt runEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &evt))
	assert.Equal(t, "/tmp/out.m4a", evt.OutputPath)
	assert.InDelta(t, 100.5, evt.AvgDelayMs, 1e-9)
	require.Len(t, evt.Top3, 1)
}

func TestNATSSinkPublishesErrorEvent(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSinkWithConnection(pub)

	sink.OnError("run-3", "stream open failed", 7)
	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "latencytest.run-3.error", pub.subjects[0])

	var evt runEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &evt))
	assert.Equal(t, "stream open failed", evt.Message)
	assert.Equal(t, 7, evt.ErrorCode)
}

func TestNATSSinkCloseDelegates(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSinkWithConnection(pub)
	sink.Close()
	assert.True(t, pub.closed)
}

func TestLogSinkImplementsSink(t *testing.T) {
	var _ Sink = LogSink{}
	var _ Sink = (*NATSSink)(nil)
}
