package proctor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradlink/proctor/internal/events"
)

type exportedAnswers struct {
	Answers []struct {
		QuestionID string  `json:"question_id"`
		AnswerText string  `json:"answer_text"`
		AudioBytes int     `json:"audio_bytes"`
		Score      float64 `json:"score"`
	} `json:"answers"`
}

func fetchExport(t *testing.T, fx *fixture) exportedAnswers {
	t.Helper()
	sid := fx.ctrl.Snapshot().SessionID
	require.NotEmpty(t, sid)

	raw, err := fx.client.Export(context.Background(), sid)
	require.NoError(t, err)

	var out exportedAnswers
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func waitQuestion(t *testing.T, fx *fixture, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := fx.ctrl.Snapshot()
		return snap.Question != nil && snap.Question.ID == id
	}, waitFor, 2*time.Millisecond, "question %s never became active", id)
}

func waitEventCount(t *testing.T, fx *fixture, typ events.Type, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(fx.sink.byType(typ)) >= n
	}, waitFor, 2*time.Millisecond, "never saw %d %s events", n, typ)
}

func TestStopBeforeRecordingSubmitsStoppedSentinel(t *testing.T) {
	cfg := testCfg()
	cfg.PrepWindow = 2 * time.Second // stop always lands in the prep phase
	cfg.RecordWindow = 2 * time.Second
	fx := newFixture(t, cfg)

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))
	waitQuestion(t, fx, "q1")
	fx.ctrl.StopRecording()

	waitQuestion(t, fx, "q2")
	fx.ctrl.StopRecording()

	select {
	case <-fx.ctrl.Done():
	case <-time.After(waitFor):
		t.Fatal("interview did not finish")
	}

	exp := fetchExport(t, fx)
	require.Len(t, exp.Answers, 2)
	for _, a := range exp.Answers {
		assert.Equal(t, StoppedAnswerText, a.AnswerText)
		assert.Zero(t, a.Score)
	}
}

func TestTimerExpirySubmitsTimeoutSentinel(t *testing.T) {
	cfg := testCfg()
	cfg.PrepWindow = 150 * time.Millisecond
	cfg.RecordWindow = 100 * time.Millisecond
	cfg.CountdownInterval = 25 * time.Millisecond
	fx := newFixture(t, cfg)

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))
	// recorder creation fails once the stream is gone, so the overall
	// timer is the only submission path left
	require.NoError(t, fx.devices.Mic.Close())

	select {
	case <-fx.ctrl.Done():
	case <-time.After(waitFor):
		t.Fatal("interview did not finish")
	}

	exp := fetchExport(t, fx)
	require.Len(t, exp.Answers, 2)
	for _, a := range exp.Answers {
		assert.Equal(t, TimeoutAnswerText, a.AnswerText)
		assert.Zero(t, a.Score)
	}
}

func TestRecordedAnswerIsUploaded(t *testing.T) {
	cfg := testCfg()
	cfg.PrepWindow = 20 * time.Millisecond
	cfg.RecordWindow = 5 * time.Second
	fx := newFixture(t, cfg)

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))
	waitEventCount(t, fx, events.TypeRecordingStarted, 1)

	fx.ctrl.StopRecording()
	fx.ctrl.StopRecording() // double stop must not double-submit

	require.Eventually(t, func() bool {
		return fx.ctrl.Snapshot().Answered == 1
	}, waitFor, 2*time.Millisecond)

	exp := fetchExport(t, fx)
	require.Len(t, exp.Answers, 1)
	assert.Equal(t, "q1", exp.Answers[0].QuestionID)
	assert.Equal(t, len("chunk-one")+len("chunk-two"), exp.Answers[0].AudioBytes)
	assert.Empty(t, exp.Answers[0].AnswerText)
}

func TestOneRecorderPerQuestion(t *testing.T) {
	cfg := testCfg()
	cfg.PrepWindow = 20 * time.Millisecond
	cfg.RecordWindow = 5 * time.Second
	fx := newFixture(t, cfg)

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))
	waitEventCount(t, fx, events.TypeRecordingStarted, 1)
	fx.ctrl.StopRecording()
	waitEventCount(t, fx, events.TypeRecordingStarted, 2)

	fx.ctrl.mu.Lock()
	rec := fx.ctrl.rec
	fx.ctrl.mu.Unlock()
	require.NotNil(t, rec)
	assert.Equal(t, "q2", rec.questionID)
	assert.False(t, rec.discard)
}

func TestEndSessionDiscardsActiveRecording(t *testing.T) {
	cfg := testCfg()
	cfg.PrepWindow = 20 * time.Millisecond
	cfg.RecordWindow = 5 * time.Second
	fx := newFixture(t, cfg)

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))
	waitEventCount(t, fx, events.TypeRecordingStarted, 1)

	require.NoError(t, fx.ctrl.EndSession(context.Background()))

	require.Eventually(t, func() bool {
		return fx.sink.hasMessage(events.TypeRecordingStopped, "recording discarded")
	}, waitFor, 2*time.Millisecond)
	assert.Equal(t, 0, fx.ctrl.Snapshot().Answered)
}

func TestEmptyRecordingFallsBackToStoppedSentinel(t *testing.T) {
	cfg := testCfg()
	cfg.PrepWindow = 20 * time.Millisecond
	cfg.RecordWindow = 40 * time.Millisecond
	fx := newFixture(t, cfg)
	fx.devices.Mic.SetPayload() // recorder produces nothing

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))

	select {
	case <-fx.ctrl.Done():
	case <-time.After(waitFor):
		t.Fatal("interview did not finish")
	}
	assert.True(t, fx.sink.hasMessage(events.TypeRecordingStopped, "no audio captured"))

	exp := fetchExport(t, fx)
	require.Len(t, exp.Answers, 2)
	assert.Equal(t, StoppedAnswerText, exp.Answers[0].AnswerText)
}

func TestLevelMeterTracksAmplitude(t *testing.T) {
	cfg := testCfg()
	cfg.PrepWindow = 5 * time.Second
	cfg.RecordWindow = 5 * time.Second
	fx := newFixture(t, cfg)
	fx.devices.Mic.SetAmplitude(0.5)

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))

	// sine RMS at amplitude 0.5 is ~0.354, which maps to ~71%
	require.Eventually(t, func() bool {
		lvl := fx.ctrl.Snapshot().Level
		return lvl >= 60 && lvl <= 80
	}, waitFor, 5*time.Millisecond)

	fx.devices.Mic.SetAmplitude(0)
	require.Eventually(t, func() bool {
		return fx.ctrl.Snapshot().Level <= 2
	}, waitFor, 5*time.Millisecond)
}
