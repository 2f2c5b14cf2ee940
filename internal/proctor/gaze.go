package proctor

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gradlink/proctor/internal/events"
	"github.com/gradlink/proctor/internal/providers/facemesh"
	"github.com/gradlink/proctor/internal/providers/media"
)

// Gaze/attention monitor: a per-frame inference feed derives a binary
// "looking at screen" signal, and an independent violation ticker turns
// sustained inattention into discrete warnings, escalating to forced
// termination at the configured maximum. Both loops are session-scoped and
// survive question transitions.

const (
	minEyeOpenness = 0.12
	irisBandLow    = 0.20
	irisBandHigh   = 0.80
)

// installCameraLocked adopts the acquired camera, binds the inference
// result callback, and starts the feed and violation loops.
func (c *Controller) installCameraLocked(cam media.Camera) {
	c.camera = cam
	c.isOnScreen = false
	c.lastSignalAt = time.Time{}
	c.awaySince = nil

	c.engine.OnResult(c.onFrameResult)
	c.reg.tickerLoop(taskGazeFeed, frameInterval, c.onFrameTick)

	tick := c.cfg.ViolationInterval
	if tick <= 0 {
		tick = violationTick
	}
	c.reg.tickerLoop(taskGazeViolation, tick, c.onGazeTick)
}

// onFrameTick feeds the current video frame to the inference engine
// whenever it is idle and the camera has data. The busy flag prevents
// overlapping inference calls.
func (c *Controller) onFrameTick() {
	c.mu.Lock()
	cam := c.camera
	if cam == nil || c.inferBusy {
		c.mu.Unlock()
		return
	}
	frame, ok := cam.Frame()
	if !ok {
		c.mu.Unlock()
		return
	}
	c.inferBusy = true
	c.mu.Unlock()

	if err := c.engine.SubmitFrame(context.Background(), frame); err != nil {
		c.mu.Lock()
		c.inferBusy = false
		c.mu.Unlock()
		c.log.WithError(err).Debug("frame inference failed")
	}
}

func (c *Controller) onFrameResult(res facemesh.Result) {
	looking := lookingAtScreen(res)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inferBusy = false
	c.isOnScreen = looking
	c.lastSignalAt = time.Now()
}

// onGazeTick is the 1 Hz violation monitor. Attention requires a fresh
// signal and an on-screen gaze; sustained absence past the away threshold
// issues a warning, rate-limited by the warning cooldown.
func (c *Controller) onGazeTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked || c.sessionID == "" || c.camera == nil {
		return
	}

	now := time.Now()
	fresh := !c.lastSignalAt.IsZero() && now.Sub(c.lastSignalAt) < c.cfg.SignalStale
	if fresh && c.isOnScreen {
		c.awaySince = nil
		return
	}

	if c.awaySince == nil {
		t := now
		c.awaySince = &t
		c.emitLocked(events.TypeStatus, "please look back at the screen")
		return
	}

	if now.Sub(*c.awaySince) < c.cfg.AwayThreshold {
		return
	}
	if !c.lastWarningAt.IsZero() && now.Sub(c.lastWarningAt) < c.cfg.WarningCooldown {
		return
	}
	c.issueWarningLocked(now)
}

func (c *Controller) issueWarningLocked(now time.Time) {
	c.warnings++
	c.lastWarningAt = now
	// a fresh away window must elapse before the next warning
	t := now
	c.awaySince = &t

	c.emitLocked(events.TypeWarning,
		"attention warning "+strconv.Itoa(c.warnings)+" of "+strconv.Itoa(c.cfg.MaxWarnings))
	c.log.WithFields(logrus.Fields{
		"session_id": c.sessionID,
		"warnings":   c.warnings,
	}).Warn("sustained inattention detected")

	if c.warnings >= c.cfg.MaxWarnings {
		c.forceTerminateLocked()
	}
}

// forceTerminateLocked is the proctoring lockout: one-way per session.
func (c *Controller) forceTerminateLocked() {
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
	c.locked = true
	c.stage = StageLocked
	c.emitLocked(events.TypeLockout, "interview terminated after repeated inattention")
	c.signalDoneLocked()
}

// lookingAtScreen derives the binary attention signal from eye and iris
// landmarks: both eyes open past a minimum ratio and both irises within a
// centered horizontal band. No detected face yields false.
func lookingAtScreen(res facemesh.Result) bool {
	if len(res.Faces) == 0 {
		return false
	}
	face := res.Faces[0]
	if len(face) <= facemesh.RightIris {
		return false
	}

	leftOpen := eyeOpenness(face, facemesh.LeftEyeTop, facemesh.LeftEyeBottom,
		facemesh.LeftEyeOuter, facemesh.LeftEyeInner)
	rightOpen := eyeOpenness(face, facemesh.RightEyeTop, facemesh.RightEyeBottom,
		facemesh.RightEyeInner, facemesh.RightEyeOuter)
	if leftOpen < minEyeOpenness || rightOpen < minEyeOpenness {
		return false
	}

	leftIris := irisRatio(face, facemesh.LeftEyeOuter, facemesh.LeftEyeInner, facemesh.LeftIris)
	rightIris := irisRatio(face, facemesh.RightEyeInner, facemesh.RightEyeOuter, facemesh.RightIris)
	if leftIris < irisBandLow || leftIris > irisBandHigh {
		return false
	}
	if rightIris < irisBandLow || rightIris > irisBandHigh {
		return false
	}
	return true
}

// eyeOpenness is the vertical eyelid distance over the horizontal eye width.
func eyeOpenness(face []facemesh.Landmark, top, bottom, cornerA, cornerB int) float64 {
	width := math.Abs(face[cornerA].X - face[cornerB].X)
	if width == 0 {
		return 0
	}
	return math.Abs(face[top].Y-face[bottom].Y) / width
}

// irisRatio is the iris center's horizontal position within the eye's
// horizontal extent, 0 at the leftmost corner and 1 at the rightmost.
func irisRatio(face []facemesh.Landmark, cornerA, cornerB, iris int) float64 {
	minX := math.Min(face[cornerA].X, face[cornerB].X)
	maxX := math.Max(face[cornerA].X, face[cornerB].X)
	width := maxX - minX
	if width == 0 {
		return -1
	}
	return (face[iris].X - minX) / width
}
