package proctor

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradlink/proctor/config"
	"github.com/gradlink/proctor/internal/events"
	"github.com/gradlink/proctor/internal/models"
	"github.com/gradlink/proctor/internal/providers/facemesh"
	"github.com/gradlink/proctor/internal/providers/media"
	"github.com/gradlink/proctor/internal/scoring"
	"github.com/gradlink/proctor/internal/scoringstub"
	"github.com/gradlink/proctor/internal/storage"
	"github.com/gradlink/proctor/internal/utils"
)

const waitFor = 5 * time.Second

func testCfg() config.ProctorConfig {
	return config.ProctorConfig{
		PrepWindow:        40 * time.Millisecond,
		RecordWindow:      60 * time.Millisecond,
		IntroDelay:        5 * time.Millisecond,
		AwayThreshold:     500 * time.Millisecond,
		SignalStale:       250 * time.Millisecond,
		WarningCooldown:   100 * time.Millisecond,
		MaxWarnings:       3,
		CountdownInterval: 20 * time.Millisecond,
		ViolationInterval: 20 * time.Millisecond,
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// captureSink records every published event for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *captureSink) Publish(_ context.Context, ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) byType(t events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (s *captureSink) hasMessage(t events.Type, msg string) bool {
	for _, ev := range s.byType(t) {
		if ev.Message == msg {
			return true
		}
	}
	return false
}

type fixture struct {
	ctrl    *Controller
	devices *media.SimDevices
	engine  *facemesh.Scripted
	sink    *captureSink
	server  *httptest.Server
	client  *scoring.Client
}

// newFixture wires a controller against the in-process scoring stub with
// compressed timing so full interview runs finish in well under a second.
func newFixture(t *testing.T, cfg config.ProctorConfig) *fixture {
	t.Helper()

	log := testLogger()
	server := httptest.NewServer(scoringstub.New(log).Router())
	t.Cleanup(server.Close)

	devices := media.NewSimDevices()
	devices.Mic.SetPayload([]byte("chunk-one"), []byte("chunk-two"))
	engine := facemesh.NewScripted()
	engine.SetResultFn(facemesh.LookingFace)

	sink := &captureSink{}
	client := scoring.NewClient(server.URL, 2*time.Second, log)

	ctrl, err := New(cfg, Deps{
		Client:  client,
		Devices: devices,
		Engine:  engine,
		Sink:    sink,
		Logger:  log,
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	return &fixture{
		ctrl:    ctrl,
		devices: devices,
		engine:  engine,
		sink:    sink,
		server:  server,
		client:  client,
	}
}

func backendRoles() []models.Role {
	return []models.Role{{Name: "Backend Engineer", Confidence: 0.9}}
}

func waitStage(t *testing.T, ctrl *Controller, stage Stage) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ctrl.Snapshot().Stage == stage
	}, waitFor, 5*time.Millisecond, "expected stage %s", stage)
}

func TestFullInterviewProducesReport(t *testing.T) {
	fx := newFixture(t, testCfg())

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))

	select {
	case <-fx.ctrl.Done():
	case <-time.After(waitFor):
		t.Fatal("interview did not finish")
	}

	snap := fx.ctrl.Snapshot()
	assert.Equal(t, StageReport, snap.Stage)
	assert.Equal(t, 2, snap.TotalQuestions)
	assert.Equal(t, 2, snap.Answered)
	assert.False(t, snap.Locked)

	require.NotNil(t, snap.Report)
	require.NotNil(t, snap.Report.TotalRawScore)
	require.NotNil(t, snap.Report.MaxPossible)
	// two audio answers at the stub's audio score
	assert.InDelta(t, 6.0, *snap.Report.TotalRawScore, 0.001)
	assert.InDelta(t, 10.0, *snap.Report.MaxPossible, 0.001)

	assert.True(t, fx.sink.hasMessage(events.TypeCompleted, "interview complete"))
	assert.Len(t, fx.sink.byType(events.TypeRecordingStarted), 2)
}

func TestReportAndExportDownload(t *testing.T) {
	fx := newFixture(t, testCfg())
	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))

	select {
	case <-fx.ctrl.Done():
	case <-time.After(waitFor):
		t.Fatal("interview did not finish")
	}

	dir := t.TempDir()
	w, err := storage.NewLocalDir(dir)
	require.NoError(t, err)

	repPath, err := fx.ctrl.DownloadReport(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(repPath))
	info, err := os.Stat(repPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	expPath, err := fx.ctrl.DownloadExport(context.Background(), w)
	require.NoError(t, err)
	_, err = os.Stat(expPath)
	require.NoError(t, err)
}

func TestStartRejectsEmptyRoles(t *testing.T) {
	fx := newFixture(t, testCfg())

	err := fx.ctrl.StartInterview(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}

func TestStartRejectsConcurrentSession(t *testing.T) {
	cfg := testCfg()
	cfg.PrepWindow = time.Second // hold the session open
	fx := newFixture(t, cfg)

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))
	waitStage(t, fx.ctrl, StageQuestioning)

	err := fx.ctrl.StartInterview(context.Background(), backendRoles())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
}

func TestMicrophoneDenialCancelsInterview(t *testing.T) {
	fx := newFixture(t, testCfg())
	fx.devices.MicErr = errors.New("permission denied")

	err := fx.ctrl.StartInterview(context.Background(), backendRoles())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodePermissionDenied))
	assert.Contains(t, err.Error(), "microphone unavailable")

	snap := fx.ctrl.Snapshot()
	assert.Equal(t, StageIdle, snap.Stage)
	assert.Empty(t, snap.SessionID)
	assert.True(t, fx.sink.hasMessage(events.TypeStatus, "interview cancelled: microphone unavailable"))
}

func TestCameraDenialCancelsInterview(t *testing.T) {
	fx := newFixture(t, testCfg())
	fx.devices.CameraErr = errors.New("permission denied")

	err := fx.ctrl.StartInterview(context.Background(), backendRoles())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodePermissionDenied))
	assert.Contains(t, err.Error(), "camera unavailable")
	assert.Equal(t, StageIdle, fx.ctrl.Snapshot().Stage)
}

func TestEndSessionTearsDownAndIsIdempotent(t *testing.T) {
	cfg := testCfg()
	cfg.PrepWindow = time.Second
	fx := newFixture(t, cfg)

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))
	waitStage(t, fx.ctrl, StageQuestioning)

	require.NoError(t, fx.ctrl.EndSession(context.Background()))

	snap := fx.ctrl.Snapshot()
	assert.Equal(t, StageIdle, snap.Stage)
	assert.Empty(t, snap.SessionID)
	assert.Equal(t, 0, fx.ctrl.reg.Len())

	// second end and close must be no-ops, not panics
	require.NoError(t, fx.ctrl.EndSession(context.Background()))
	fx.ctrl.Close()
	fx.ctrl.Close()
	assert.Equal(t, 0, fx.ctrl.reg.Len())

	select {
	case <-fx.ctrl.Done():
	default:
		t.Fatal("done channel should be closed after end")
	}
}

func TestResetAllowsNewSession(t *testing.T) {
	cfg := testCfg()
	cfg.PrepWindow = time.Second
	fx := newFixture(t, cfg)

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))
	waitStage(t, fx.ctrl, StageQuestioning)
	require.NoError(t, fx.ctrl.EndSession(context.Background()))

	fx.ctrl.Reset()
	assert.Equal(t, StageIdle, fx.ctrl.Snapshot().Stage)

	require.NoError(t, fx.ctrl.StartInterview(context.Background(), backendRoles()))
	waitStage(t, fx.ctrl, StageQuestioning)
}

func TestLoadNextQuestionWithoutSessionIsNoop(t *testing.T) {
	fx := newFixture(t, testCfg())

	require.NoError(t, fx.ctrl.LoadNextQuestion(context.Background()))
	assert.Equal(t, "no active interview", fx.ctrl.Snapshot().Status)
}
