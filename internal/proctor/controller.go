package proctor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gradlink/proctor/config"
	"github.com/gradlink/proctor/internal/events"
	"github.com/gradlink/proctor/internal/models"
	"github.com/gradlink/proctor/internal/providers/facemesh"
	"github.com/gradlink/proctor/internal/providers/media"
	"github.com/gradlink/proctor/internal/providers/speech"
	"github.com/gradlink/proctor/internal/scoring"
	"github.com/gradlink/proctor/internal/storage"
	"github.com/gradlink/proctor/internal/utils"
)

// Stage is the session state machine position.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageStarting    Stage = "starting"
	StageIntro       Stage = "intro"
	StageQuestioning Stage = "questioning"
	StageReport      Stage = "report"
	StageLocked      Stage = "locked"
)

// Sentinel answer texts used when no audio is available. The two cases are
// deliberately distinguishable server-side.
const (
	TimeoutAnswerText = "[no answer: time expired]"
	StoppedAnswerText = "[no answer: stopped before speaking]"
)

const introScript = "Welcome to your AI interview. Each question will be read aloud; " +
	"you will have time to prepare, then your answer will be recorded automatically. " +
	"Please keep your eyes on the screen for the duration of the interview."

const (
	meterInterval = 50 * time.Millisecond
	frameInterval = 33 * time.Millisecond
	countdownTick = time.Second
	violationTick = time.Second
)

// Deps are the injected collaborators of a Controller.
type Deps struct {
	Client  *scoring.Client
	Devices media.Devices
	Engine  facemesh.Engine
	Synth   speech.Synthesizer
	Sink    events.Sink
	Logger  *logrus.Logger
}

// Controller is the client-side interview proctoring engine: it owns the
// session/question cycle, the per-question clock, audio capture, the gaze
// monitor, and the teardown of all of them. All state transitions are
// serialized by one mutex; network I/O runs outside it and completions are
// validated against a session epoch and a per-question generation counter
// before they are applied.
type Controller struct {
	cfg     config.ProctorConfig
	log     *logrus.Logger
	client  *scoring.Client
	devices media.Devices
	engine  facemesh.Engine
	synth   speech.Synthesizer
	sink    events.Sink

	reg *Registry

	mu             sync.Mutex
	epoch          int
	cycleGen       int
	stage          Stage
	sessionID      string
	totalQuestions int
	answered       int
	roles          []models.Role
	question       *models.Question
	locked         bool
	timerFired     bool
	remaining      int
	statusMsg      string
	report         *models.Report
	export         json.RawMessage

	mic    media.Microphone
	camera media.Camera
	level  int

	rec *recordingSession

	inferBusy     bool
	isOnScreen    bool
	lastSignalAt  time.Time
	awaySince     *time.Time
	warnings      int
	lastWarningAt time.Time

	done     chan struct{}
	doneOnce sync.Once
}

func New(cfg config.ProctorConfig, deps Deps) (*Controller, error) {
	if deps.Client == nil || deps.Devices == nil || deps.Engine == nil {
		return nil, errors.New("proctor.New: Client, Devices, and Engine must be set")
	}
	if deps.Synth == nil {
		deps.Synth = speech.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if cfg.MaxWarnings <= 0 {
		cfg.MaxWarnings = 5
	}

	return &Controller{
		cfg:     cfg,
		log:     deps.Logger,
		client:  deps.Client,
		devices: deps.Devices,
		engine:  deps.Engine,
		synth:   deps.Synth,
		sink:    deps.Sink,
		reg:     NewRegistry(),
		stage:   StageIdle,
		done:    make(chan struct{}),
	}, nil
}

// Done is closed when the session reaches a terminal outcome (report ready,
// lockout, or explicit end).
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) signalDoneLocked() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Controller) emitLocked(t events.Type, msg string) {
	c.statusMsg = msg
	if c.sink == nil {
		return
	}
	ev := events.Event{
		Type:      t,
		SessionID: c.sessionID,
		Message:   msg,
		Warning:   c.warnings,
		At:        time.Now().UTC(),
	}
	if c.question != nil {
		ev.QuestionID = c.question.ID
	}
	c.sink.Publish(context.Background(), ev)
}

// StartInterview begins a new session for the given roles: registers the
// session server-side, acquires microphone and camera, plays the scripted
// introduction, then requests the first question. Acquisition failure
// deletes the server session and reports a cancellation error.
func (c *Controller) StartInterview(ctx context.Context, roles []models.Role) error {
	const op = "Controller.StartInterview"

	c.mu.Lock()
	if c.locked {
		c.mu.Unlock()
		return utils.E(utils.CodeLocked, op, "interview is locked after repeated proctoring violations", nil)
	}
	if len(roles) == 0 {
		c.mu.Unlock()
		return utils.E(utils.CodeInvalidArgument, op, "at least one role is required", nil)
	}
	if c.stage != StageIdle && c.stage != StageReport {
		c.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "an interview is already in progress", nil)
	}

	c.epoch++
	ep := c.epoch
	c.stage = StageStarting
	c.roles = roles
	c.warnings = 0
	c.awaySince = nil
	c.lastWarningAt = time.Time{}
	c.answered = 0
	c.report = nil
	c.export = nil
	c.emitLocked(events.TypeStatus, "starting interview")
	c.mu.Unlock()

	res, err := c.client.StartInterview(ctx, roles)
	if err != nil {
		c.failStart(ep, utils.UserMessage(err))
		return err
	}

	c.mu.Lock()
	if c.epoch != ep || c.locked {
		c.mu.Unlock()
		_ = c.client.DeleteSession(ctx, res.SessionID)
		return utils.E(utils.CodeConflict, op, "session superseded", nil)
	}
	c.sessionID = res.SessionID
	c.totalQuestions = res.TotalQuestions
	c.emitLocked(events.TypeStatus, "requesting camera and microphone access")
	c.mu.Unlock()

	mic, micErr := c.devices.OpenMicrophone(ctx)
	cam, camErr := c.devices.OpenCamera(ctx, media.CameraConfig{Width: 640, Height: 480, FacingFront: true})
	var engErr error
	if camErr == nil {
		engErr = c.engine.Configure(facemesh.DefaultOptions())
	}

	if micErr != nil || camErr != nil || engErr != nil {
		if mic != nil {
			_ = mic.Close()
		}
		if cam != nil {
			_ = cam.Close()
		}
		_ = c.client.DeleteSession(ctx, res.SessionID)

		reason := "camera unavailable"
		cause := camErr
		switch {
		case micErr != nil:
			reason = "microphone unavailable"
			cause = micErr
		case engErr != nil:
			reason = "face tracking unavailable"
			cause = engErr
		}
		c.failStart(ep, "interview cancelled: "+reason)
		return utils.E(utils.CodePermissionDenied, op, "interview cancelled: "+reason, cause)
	}

	c.mu.Lock()
	if c.epoch != ep || c.locked {
		c.mu.Unlock()
		_ = mic.Close()
		_ = cam.Close()
		_ = c.client.DeleteSession(ctx, res.SessionID)
		return utils.E(utils.CodeConflict, op, "session superseded", nil)
	}
	c.installMicLocked(mic)
	c.installCameraLocked(cam)
	c.stage = StageIntro
	c.emitLocked(events.TypeStatus, "interview starting")
	c.mu.Unlock()

	go func() {
		if err := c.synth.Speak(ctx, introScript); err != nil {
			c.log.WithError(err).Debug("intro speech failed")
		}
	}()
	c.reg.afterFunc(taskIntro, c.cfg.IntroDelay, func() {
		_ = c.LoadNextQuestion(context.Background())
	})
	return nil
}

func (c *Controller) failStart(ep int, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ep {
		return
	}
	c.stage = StageIdle
	c.sessionID = ""
	c.emitLocked(events.TypeStatus, msg)
}

// LoadNextQuestion requests the next prompt and installs it, or triggers
// graceful completion when the queue is exhausted. A locked or sessionless
// controller reports a transient status and does nothing.
func (c *Controller) LoadNextQuestion(ctx context.Context) error {
	const op = "Controller.LoadNextQuestion"

	c.mu.Lock()
	if c.locked || c.sessionID == "" {
		c.emitLocked(events.TypeStatus, "no active interview")
		c.mu.Unlock()
		return nil
	}
	sid := c.sessionID
	ep := c.epoch
	c.mu.Unlock()

	q, err := c.client.NextQuestion(ctx, sid)

	c.mu.Lock()
	if c.epoch != ep || c.locked {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.emitLocked(events.TypeStatus, utils.UserMessage(err))
		c.mu.Unlock()
		return err
	}
	if q == nil {
		c.completeLocked()
		c.mu.Unlock()
		return nil
	}
	c.setQuestionLocked(q)
	c.mu.Unlock()
	return nil
}

// setQuestionLocked is the single synchronization point of the question
// cycle: it cancels every per-question timer, marks any draining recorder
// for discard, then installs the new question (nil tears down only).
func (c *Controller) setQuestionLocked(q *models.Question) {
	c.cycleGen++
	c.reg.CancelPrefix(questionTaskPrefix)
	c.timerFired = false

	if c.rec != nil {
		c.rec.discard = true
		rec := c.rec.rec
		go func() { _ = rec.RequestStop() }()
		c.rec = nil
	}

	c.question = q
	if q == nil {
		return
	}
	if c.locked {
		c.question = nil
		return
	}

	c.stage = StageQuestioning
	c.startCycleLocked(q)
}

// handlePostAnswerLocked branches on whether questions remain after an
// accepted answer.
func (c *Controller) handlePostAnswerLocked(hasMore bool) {
	c.answered++
	if !hasMore {
		c.completeLocked()
		return
	}
	go func() { _ = c.LoadNextQuestion(context.Background()) }()
}

// submitFallback submits a sentinel text answer (timeout or stopped-early)
// for the given question. Runs its own network call; results are applied
// only if the session and question cycle are still current.
func (c *Controller) submitFallback(ep, gen int, questionID, text string) {
	c.mu.Lock()
	sid := c.sessionID
	c.mu.Unlock()
	if sid == "" {
		return
	}

	hasMore, err := c.client.SubmitAnswer(context.Background(), sid, questionID, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ep || c.locked {
		return
	}
	if err != nil {
		c.emitLocked(events.TypeStatus, utils.UserMessage(err))
		return
	}
	if gen != c.cycleGen {
		return
	}
	c.handlePostAnswerLocked(hasMore)
}

// completeLocked performs the graceful end of the question cycle: tears the
// cycle down, releases capture, then fetches the report and export bundle.
func (c *Controller) completeLocked() {
	c.setQuestionLocked(nil)
	c.releaseMediaLocked()
	c.emitLocked(events.TypeStatus, "all questions answered, preparing your report")

	ep := c.epoch
	sid := c.sessionID
	go c.fetchReport(ep, sid)
}

func (c *Controller) fetchReport(ep int, sid string) {
	rep, err := c.client.Report(context.Background(), sid)
	var export json.RawMessage
	if err == nil {
		// best-effort; the report alone is enough to finish
		export, _ = c.client.Export(context.Background(), sid)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ep {
		return
	}
	if err != nil {
		c.emitLocked(events.TypeStatus, utils.UserMessage(err))
		return
	}
	c.report = rep
	c.export = export
	c.stage = StageReport
	c.emitLocked(events.TypeCompleted, "interview complete")
	c.signalDoneLocked()
}

// EndSession aborts the interview: full local cleanup plus server-side
// session deletion.
func (c *Controller) EndSession(ctx context.Context) error {
	c.mu.Lock()
	sid := c.sessionID
	c.epoch++ // in-flight completions for this session are now stale
	c.setQuestionLocked(nil)
	c.releaseMediaLocked()
	c.reg.CancelAll()
	c.sessionID = ""
	if !c.locked {
		c.stage = StageIdle
	}
	c.emitLocked(events.TypeStatus, "interview ended")
	c.signalDoneLocked()
	c.mu.Unlock()

	if sid != "" {
		return c.client.DeleteSession(ctx, sid)
	}
	return nil
}

// Close releases every resource and timer. Safe to call repeatedly and
// after EndSession; used for component teardown.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec != nil {
		c.rec.discard = true
		rec := c.rec.rec
		go func() { _ = rec.RequestStop() }()
		c.rec = nil
	}
	c.reg.CancelAll()
	c.releaseMediaLocked()
	c.question = nil
	c.cycleGen++
	c.epoch++
	c.signalDoneLocked()
}

// releaseMediaLocked stops the capture loops and releases the microphone,
// camera, and inference engine. No-op when already released.
func (c *Controller) releaseMediaLocked() {
	c.reg.Cancel(taskMeter)
	c.reg.Cancel(taskGazeFeed)
	c.reg.Cancel(taskGazeViolation)

	if c.mic != nil {
		_ = c.mic.Close()
		c.mic = nil
	}
	if c.camera != nil {
		_ = c.camera.Close()
		c.camera = nil
	}
	c.level = 0
	c.inferBusy = false
	c.isOnScreen = false
	c.awaySince = nil
}

// Reset returns a finished (including locked) controller to idle so a brand
// new session can be started. Mirrors remounting the interview screen.
func (c *Controller) Reset() {
	c.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.stage = StageIdle
	c.sessionID = ""
	c.totalQuestions = 0
	c.answered = 0
	c.roles = nil
	c.locked = false
	c.warnings = 0
	c.lastWarningAt = time.Time{}
	c.report = nil
	c.export = nil
	c.statusMsg = ""
	c.done = make(chan struct{})
	c.doneOnce = sync.Once{}
}

// Snapshot is a read-only view of the engine for the monitor API and CLI.
type Snapshot struct {
	Stage          Stage            `json:"stage"`
	SessionID      string           `json:"session_id,omitempty"`
	TotalQuestions int              `json:"total_questions"`
	Answered       int              `json:"answered"`
	Question       *models.Question `json:"question,omitempty"`
	Remaining      int              `json:"remaining_seconds"`
	Warnings       int              `json:"warnings"`
	Locked         bool             `json:"locked"`
	Level          int              `json:"level"`
	Status         string           `json:"status,omitempty"`
	Report         *models.Report   `json:"report,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var q *models.Question
	if c.question != nil {
		cp := *c.question
		q = &cp
	}
	return Snapshot{
		Stage:          c.stage,
		SessionID:      c.sessionID,
		TotalQuestions: c.totalQuestions,
		Answered:       c.answered,
		Question:       q,
		Remaining:      c.remaining,
		Warnings:       c.warnings,
		Locked:         c.locked,
		Level:          c.level,
		Status:         c.statusMsg,
		Report:         c.report,
	}
}

// DownloadReport writes the already-fetched report as a local JSON file.
func (c *Controller) DownloadReport(ctx context.Context, w storage.BundleWriter) (string, error) {
	const op = "Controller.DownloadReport"

	c.mu.Lock()
	rep := c.report
	sid := c.sessionID
	c.mu.Unlock()

	if rep == nil {
		return "", utils.E(utils.CodeNotFound, op, "no report available yet", nil)
	}
	return w.WriteJSON(ctx, "interview_report_"+sid+".json", rep)
}

// DownloadExport writes the already-fetched raw answer bundle locally.
func (c *Controller) DownloadExport(ctx context.Context, w storage.BundleWriter) (string, error) {
	const op = "Controller.DownloadExport"

	c.mu.Lock()
	export := c.export
	sid := c.sessionID
	c.mu.Unlock()

	if len(export) == 0 {
		return "", utils.E(utils.CodeNotFound, op, "no export available yet", nil)
	}
	return w.WriteJSON(ctx, "interview_answers_"+sid+".json", export)
}
