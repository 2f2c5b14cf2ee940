package speech

import (
	"context"
	"io"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

// GoogleTTS synthesizes prompts with Cloud Text-to-Speech and writes the
// LINEAR16 audio to an injected player sink.
type GoogleTTS struct {
	c      *texttospeech.Client
	player io.Writer

	Language     string
	Voice        string
	SampleRateHz int32
}

func NewGoogleTTS(ctx context.Context, player io.Writer) (*GoogleTTS, error) {
	c, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleTTS{
		c:            c,
		player:       player,
		Language:     "en-US",
		SampleRateHz: 24000,
	}, nil
}

func (g *GoogleTTS) Close() error { return g.c.Close() }

func (g *GoogleTTS) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	voice := &ttspb.VoiceSelectionParams{LanguageCode: g.Language}
	if g.Voice != "" {
		voice.Name = g.Voice
	}

	resp, err := g.c.SynthesizeSpeech(ctx, &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{
			InputSource: &ttspb.SynthesisInput_Text{Text: text},
		},
		Voice: voice,
		AudioConfig: &ttspb.AudioConfig{
			AudioEncoding:   ttspb.AudioEncoding_LINEAR16,
			SampleRateHertz: g.SampleRateHz,
		},
	})
	if err != nil {
		return err
	}

	if g.player != nil {
		if _, err := g.player.Write(resp.AudioContent); err != nil {
			return err
		}
	}
	return nil
}
