package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// LogSink writes events to the structured log.
type LogSink struct {
	Logger *logrus.Logger
}

func (s *LogSink) Publish(_ context.Context, ev Event) {
	if s.Logger == nil {
		return
	}
	entry := s.Logger.WithFields(logrus.Fields{
		"event":      string(ev.Type),
		"session_id": ev.SessionID,
	})
	if ev.QuestionID != "" {
		entry = entry.WithField("question_id", ev.QuestionID)
	}
	if ev.Warning > 0 {
		entry = entry.WithField("warning", ev.Warning)
	}

	switch ev.Type {
	case TypeWarning:
		entry.Warn(ev.Message)
	case TypeLockout:
		entry.Error(ev.Message)
	default:
		entry.Info(ev.Message)
	}
}

// RedisSink publishes events as JSON to a per-session pub/sub channel so a
// remote invigilator dashboard can follow the session live.
type RedisSink struct {
	Client *redis.Client
	Logger *logrus.Logger
}

func channelFor(sessionID string) string {
	if sessionID == "" {
		sessionID = "pending"
	}
	return "proctor:session:" + sessionID + ":events"
}

// Publish is asynchronous: the engine emits while holding its state lock,
// so the network hop must never block the caller.
func (s *RedisSink) Publish(ctx context.Context, ev Event) {
	if s.Client == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	go func() {
		if err := s.Client.Publish(ctx, channelFor(ev.SessionID), string(payload)).Err(); err != nil && s.Logger != nil {
			s.Logger.WithError(err).Debug("event publish failed")
		}
	}()
}
