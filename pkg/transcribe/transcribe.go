// Package transcribe converts voice-note audio to text. The only
// implementation speaks to Groq's Whisper endpoint through the
// OpenAI-compatible audio API.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Transcriber turns an audio payload into text. An empty string with a nil
// error means the audio carried no usable speech.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

const groqBaseURL = "https://api.groq.com/openai/v1"

const whisperModel = "whisper-large-v3-turbo"

var _ Transcriber = (*GroqTranscriber)(nil)

// GroqTranscriber transcribes through Groq's hosted Whisper.
type GroqTranscriber struct {
	client   openai.Client
	language string
}

func NewGroqTranscriber(apiKey, language string) *GroqTranscriber {
	return &GroqTranscriber{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(groqBaseURL),
		),
		language: language,
	}
}

func (g *GroqTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio payload")
	}

	resp, err := g.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(bytes.NewReader(audio), fileName(mimeType), mimeType),
		Model:    whisperModel,
		Language: openai.String(g.language),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	// Whisper emits stray punctuation or a lone letter on silence; treat
	// anything under three runes as no speech.
	if len([]rune(text)) < 3 {
		return "", nil
	}
	return text, nil
}

func fileName(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "audio.mp3"
	case strings.Contains(mimeType, "wav"):
		return "audio.wav"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return "audio.m4a"
	default:
		return "audio.ogg"
	}
}
