package proctor

import (
	"context"

	"github.com/gradlink/proctor/internal/events"
	"github.com/gradlink/proctor/internal/models"
)

// Per-question clock. Two phases: a preparation window in which the
// question is spoken, then a recording window with automatic capture. An
// independent overall countdown covers both phases and triggers the
// timeout-answer fallback only when no recorder is active at expiry (an
// active recorder's own stop path is authoritative; the timerFired guard
// suppresses duplicate submission).

func (c *Controller) startCycleLocked(q *models.Question) {
	gen := c.cycleGen

	question := q.Question
	go func() {
		if err := c.synth.Speak(context.Background(), question); err != nil {
			c.log.WithError(err).Debug("question speech failed")
		}
	}()

	c.emitLocked(events.TypeQuestion, "question ready: "+q.ID)
	c.emitLocked(events.TypeStatus, "prepare your answer")

	c.reg.afterFunc(taskPrep, c.cfg.PrepWindow, func() {
		c.onPrepElapsed(gen)
	})

	tick := c.cfg.CountdownInterval
	if tick <= 0 {
		tick = countdownTick
	}
	total := c.cfg.PrepWindow + c.cfg.RecordWindow
	c.remaining = int((total + tick - 1) / tick)
	c.reg.tickerLoop(taskCountdown, tick, func() {
		c.onCountdownTick(gen)
	})
}

func (c *Controller) onPrepElapsed(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.cycleGen || c.locked || c.question == nil {
		return
	}
	c.startRecordingLocked()
}

func (c *Controller) onCountdownTick(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.cycleGen || c.locked || c.question == nil {
		return
	}

	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		return
	}
	c.reg.Cancel(taskCountdown)

	// The recorder's own stop path owns submission while one is active.
	if c.rec != nil || c.timerFired {
		return
	}
	c.timerFired = true
	qid := c.question.ID
	ep := c.epoch
	c.emitLocked(events.TypeStatus, "time expired, submitting answer")
	go c.submitFallback(ep, gen, qid, TimeoutAnswerText)
}
