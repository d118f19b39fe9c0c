// README: Google Cloud Text-to-Speech synthesizer returning base64 MP3 audio.
package speech

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

var ErrNoAudio = errors.New("tts: no audio content returned")

// Audio is encoded speech ready for the device to play.
type Audio struct {
	Base64 string `json:"base64"`
	MIME   string `json:"mime"`
}

// Synthesizer turns plain text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}

type TTSConfig struct {
	APIKey          string
	CredentialsFile string
	LanguageCode    string
	VoiceName       string
}

// GoogleTTS calls texttospeech.googleapis.com v1 text:synthesize.
type GoogleTTS struct {
	svc   *texttospeech.Service
	voice *texttospeech.VoiceSelectionParams
}

// NewGoogleTTS authenticates with an API key when set, else with a
// service-account file, else with application default credentials.
func NewGoogleTTS(ctx context.Context, cfg TTSConfig) (*GoogleTTS, error) {
	var opts []option.ClientOption
	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tts: create service: %w", err)
	}

	lang := cfg.LanguageCode
	if lang == "" {
		lang = "en-US"
	}
	return &GoogleTTS{
		svc: svc,
		voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: lang,
			SsmlGender:   "FEMALE",
			Name:         cfg.VoiceName,
		},
	}, nil
}

func (g *GoogleTTS) Synthesize(ctx context.Context, text string) (Audio, error) {
	resp, err := g.svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: g.voice,
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  1.0,
		},
	}).Context(ctx).Do()
	if err != nil {
		return Audio{}, fmt.Errorf("tts: synthesize: %w", err)
	}
	if resp.AudioContent == "" {
		return Audio{}, ErrNoAudio
	}
	return Audio{Base64: resp.AudioContent, MIME: "audio/mp3"}, nil
}
