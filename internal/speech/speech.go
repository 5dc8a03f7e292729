// Package speech provides text-to-speech and speech-to-text, either through
// the shopping agent's voice endpoints or directly through OpenAI.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	ProviderAgent  = "agent"
	ProviderOpenAI = "openai"

	DefaultVoice = "nova"
)

var (
	ErrUnknownProvider = errors.New("unknown speech provider")
	ErrNoAPIKey        = errors.New("OPENAI_API_KEY not set")
)

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Service does both directions.
type Service interface {
	Synthesizer
	Transcriber
}

// Select returns the service for provider. agent backs the "agent" provider;
// the "openai" provider needs apiKey.
func Select(provider string, agent Service, apiKey, voice string) (Service, error) {
	switch provider {
	case "", ProviderAgent:
		return agent, nil
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, ErrNoAPIKey
		}
		return NewOpenAI(voice, option.WithAPIKey(apiKey)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// OpenAI speaks with tts-1 and listens with whisper-1, matching what the
// agent's own voice endpoints use.
type OpenAI struct {
	client openai.Client
	voice  openai.AudioSpeechNewParamsVoice
}

func NewOpenAI(voice string, opts ...option.RequestOption) *OpenAI {
	if voice == "" {
		voice = DefaultVoice
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		voice:  openai.AudioSpeechNewParamsVoice(voice),
	}
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModelTTS1,
		Voice:          o.voice,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	return audio, nil
}

func (o *OpenAI) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	tr, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  namedReader{Reader: audio, name: filename},
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return tr.Text, nil
}

// namedReader carries the upload's file name, which the API uses to detect
// the audio format.
type namedReader struct {
	io.Reader
	name string
}

func (r namedReader) Filename() string {
	return r.name
}
