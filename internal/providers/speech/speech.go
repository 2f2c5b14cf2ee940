package speech

import "context"

// Synthesizer reads interview prompts aloud. Speak blocks until the
// utterance has been handed to the audio output (not until playback ends).
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
	Close() error
}

// Noop discards all utterances. Used when no audio output is configured.
type Noop struct{}

func (Noop) Speak(context.Context, string) error { return nil }
func (Noop) Close() error                        { return nil }
