package proctor

import (
	"context"
	"math"

	"github.com/gradlink/proctor/internal/events"
	"github.com/gradlink/proctor/internal/providers/media"
	"github.com/gradlink/proctor/internal/utils"
)

// Audio capture subsystem: one persistent microphone stream per interview,
// one recorder per question. The level meter runs session-scoped; the
// recorder and its auto-stop timer are question-scoped.

const (
	meterSampleWindow = 512
	pcmMaxAmplitude   = 32768.0
	// Typical voice RMS tops out well below full scale; 0.5 maps to 100%.
	maxExpectedRMS = 0.5
)

// recordingSession is the state of one audio capture. At most one
// non-discarded session exists at a time; starting a new recording marks
// any still-draining predecessor for discard first.
type recordingSession struct {
	rec        media.Recorder
	mimeType   string
	questionID string
	gen        int
	chunks     [][]byte
	size       int

	discard       bool // output is dropped instead of uploaded
	stopRequested bool // guards double stop (manual vs auto)
}

func (rs *recordingSession) blob() []byte {
	if rs.size == 0 {
		return nil
	}
	out := make([]byte, 0, rs.size)
	for _, chunk := range rs.chunks {
		out = append(out, chunk...)
	}
	return out
}

// installMicLocked adopts the acquired microphone and starts the live
// level-meter loop.
func (c *Controller) installMicLocked(mic media.Microphone) {
	c.mic = mic
	c.reg.tickerLoop(taskMeter, meterInterval, c.onMeterTick)
}

func (c *Controller) onMeterTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mic == nil {
		return
	}

	buf := make([]int16, meterSampleWindow)
	n, err := c.mic.ReadSamples(buf)
	if err != nil || n == 0 {
		c.level = 0
		return
	}

	var sumSquares float64
	for _, s := range buf[:n] {
		v := float64(s) / pcmMaxAmplitude
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(n))

	level := int(math.Round(rms / maxExpectedRMS * 100))
	if level > 100 {
		level = 100
	}
	c.level = level
}

// startRecordingLocked creates the per-question recorder on the shared mic
// stream and schedules the automatic stop at the end of the record window.
func (c *Controller) startRecordingLocked() {
	if c.locked || c.question == nil || c.mic == nil {
		return
	}

	if c.rec != nil {
		// still draining from a superseded cycle
		c.rec.discard = true
		old := c.rec.rec
		go func() { _ = old.RequestStop() }()
		c.rec = nil
	}

	mime := media.PickMimeType(c.mic)
	rec, err := c.mic.NewRecorder(mime)
	if err != nil {
		c.emitLocked(events.TypeStatus, "could not start recording")
		c.log.WithError(err).Error("recorder creation failed")
		return
	}

	rs := &recordingSession{
		rec:        rec,
		mimeType:   rec.MimeType(),
		questionID: c.question.ID,
		gen:        c.cycleGen,
	}
	rec.OnData(func(chunk []byte) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if rs.discard || len(chunk) == 0 {
			return
		}
		rs.chunks = append(rs.chunks, chunk)
		rs.size += len(chunk)
	})
	rec.OnStop(func() { c.onRecorderStop(rs) })

	if err := rec.Start(); err != nil {
		c.emitLocked(events.TypeStatus, "could not start recording")
		c.log.WithError(err).Error("recorder start failed")
		return
	}
	c.rec = rs

	gen := c.cycleGen
	c.reg.afterFunc(taskAutoStop, c.cfg.RecordWindow, func() {
		c.onAutoStop(gen)
	})
	c.emitLocked(events.TypeRecordingStarted, "recording your answer")
}

func (c *Controller) onAutoStop(gen int) {
	c.mu.Lock()
	rs := c.rec
	if gen != c.cycleGen || rs == nil || rs.stopRequested {
		c.mu.Unlock()
		return
	}
	rs.stopRequested = true
	rec := rs.rec
	c.mu.Unlock()

	_ = rec.RequestStop()
}

// StopRecording is the user-initiated "Stop & Submit". With an active
// recorder it requests the stop and lets the completion handler submit;
// without one it submits the stopped-early fallback directly.
func (c *Controller) StopRecording() {
	c.mu.Lock()
	if c.locked || c.question == nil {
		c.mu.Unlock()
		return
	}

	if rs := c.rec; rs != nil {
		if rs.stopRequested {
			c.mu.Unlock()
			return
		}
		rs.stopRequested = true
		c.reg.Cancel(taskAutoStop)
		rec := rs.rec
		c.mu.Unlock()
		_ = rec.RequestStop()
		return
	}

	if c.timerFired {
		c.mu.Unlock()
		return
	}
	c.timerFired = true
	qid := c.question.ID
	gen := c.cycleGen
	ep := c.epoch
	c.emitLocked(events.TypeStatus, "submitting answer")
	c.mu.Unlock()

	go c.submitFallback(ep, gen, qid, StoppedAnswerText)
}

// onRecorderStop processes one finished recording: discarded output is
// dropped, an empty result becomes the stopped-early fallback, and a
// non-empty blob is uploaded tagged with the question it was recorded for.
func (c *Controller) onRecorderStop(rs *recordingSession) {
	c.mu.Lock()
	if c.rec == rs {
		c.rec = nil
	}
	if rs.discard {
		c.level = 0
		c.emitLocked(events.TypeRecordingStopped, "recording discarded")
		c.mu.Unlock()
		return
	}

	// The stop path owns submission for this question now.
	c.timerFired = true
	ep := c.epoch
	qid := rs.questionID
	sid := c.sessionID
	blob := rs.blob()

	if len(blob) == 0 {
		c.emitLocked(events.TypeRecordingStopped, "no audio captured")
		c.mu.Unlock()
		c.submitFallback(ep, rs.gen, qid, StoppedAnswerText)
		return
	}

	ext := media.FileExtension(rs.mimeType)
	c.emitLocked(events.TypeRecordingStopped, "uploading your answer")
	c.mu.Unlock()

	hasMore, err := c.client.SubmitAudioAnswer(context.Background(), sid, qid, blob, ext)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ep || c.locked {
		return
	}
	if err != nil {
		c.emitLocked(events.TypeStatus, utils.UserMessage(err))
		return
	}
	if rs.gen != c.cycleGen {
		return
	}
	c.handlePostAnswerLocked(hasMore)
}
