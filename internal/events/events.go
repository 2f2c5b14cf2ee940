package events

import (
	"context"
	"time"
)

type Type string

const (
	TypeStatus           Type = "status"
	TypeQuestion         Type = "question"
	TypeRecordingStarted Type = "recording_started"
	TypeRecordingStopped Type = "recording_stopped"
	TypeWarning          Type = "warning"
	TypeLockout          Type = "lockout"
	TypeCompleted        Type = "completed"
)

// Event is one observable proctoring transition, published for the
// invigilator feed and the local log.
type Event struct {
	Type       Type      `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	QuestionID string    `json:"question_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	Warning    int       `json:"warning,omitempty"` // warning count at emit time
	At         time.Time `json:"at"`
}

// Sink receives proctoring events. Publish must not block the engine;
// implementations queue or drop under pressure.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// Multi fans one event out to several sinks.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, ev)
		}
	}
}
