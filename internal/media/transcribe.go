package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/soyeahso/tripdesk/internal/domain"
)

// Transcriber converts speech to text through an OpenAI-compatible
// transcription endpoint.
type Transcriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewTranscriber creates a transcriber. An empty baseURL uses OpenAI.
func NewTranscriber(apiKey, baseURL, model, language string) *Transcriber {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &Transcriber{client: openai.NewClientWithConfig(cfg), model: model, language: language}
}

// Transcribe returns the trimmed transcript of an audio attachment.
func (t *Transcriber) Transcribe(ctx context.Context, audio domain.Attachment) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("transcribing: empty audio")
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "audio" + extension(audio.MimeType),
		Reader:   bytes.NewReader(audio.Data),
		Language: t.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcribing: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func extension(mime string) string {
	switch mime {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/mp4", "audio/m4a":
		return ".m4a"
	default:
		return ".wav"
	}
}
