// Package media turns audio and image attachments into text the dialog
// router can work with.
package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/tripdesk/internal/config"
	"github.com/soyeahso/tripdesk/internal/domain"
	"github.com/soyeahso/tripdesk/internal/llm"
	"github.com/soyeahso/tripdesk/internal/logging"
)

// Defaults match Groq's hosted models.
const (
	DefaultBaseURL         = "https://api.groq.com/openai/v1"
	DefaultTranscribeModel = "whisper-large-v3-turbo"
	DefaultVisionModel     = "llama-3.2-90b-vision-preview"
)

// Adapter prepares the text of a turn from its attachments. A nil
// transcriber or describer leaves that kind of attachment unhandled.
type Adapter struct {
	transcriber *Transcriber
	describer   *Describer
	log         *logging.Logger
}

// NewAdapter creates an adapter from its parts; either may be nil.
func NewAdapter(t *Transcriber, d *Describer, log *logging.Logger) *Adapter {
	return &Adapter{transcriber: t, describer: d, log: log.Sub("media")}
}

// FromConfig builds an adapter over an OpenAI-compatible endpoint. It returns
// nil when media handling is disabled.
func FromConfig(cfg config.MediaConfig, log *logging.Logger) *Adapter {
	if !cfg.Enabled {
		return nil
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	tm := cfg.TranscribeModel
	if tm == "" {
		tm = DefaultTranscribeModel
	}
	vm := cfg.VisionModel
	if vm == "" {
		vm = DefaultVisionModel
	}
	return NewAdapter(
		NewTranscriber(cfg.APIKey, base, tm, cfg.Language),
		NewDescriber(llm.NewOpenAIClient(cfg.APIKey, vm, base)),
		log,
	)
}

// Prepare returns the text to route for turn. An audio attachment replaces
// the text with its transcript; each image appends an "[Image Analysis: ...]"
// line.
func (a *Adapter) Prepare(ctx context.Context, turn domain.Turn) (string, error) {
	text := turn.Text
	if a == nil {
		return text, nil
	}
	// Transcripts first so image analysis sees the spoken request.
	for _, m := range turn.Media {
		if !strings.HasPrefix(m.MimeType, "audio/") || a.transcriber == nil {
			continue
		}
		transcript, err := a.transcriber.Transcribe(ctx, m)
		if err != nil {
			return "", err
		}
		a.log.Debug().Str("thread", turn.ThreadID).Int("chars", len(transcript)).Msg("audio transcribed")
		text = transcript
	}
	for _, m := range turn.Media {
		if !strings.HasPrefix(m.MimeType, "image/") || a.describer == nil {
			continue
		}
		desc, err := a.describer.Describe(ctx, text, llm.Image{MimeType: m.MimeType, Data: m.Data})
		if err != nil {
			return "", err
		}
		a.log.Debug().Str("thread", turn.ThreadID).Msg("image described")
		text += fmt.Sprintf("\n[Image Analysis: %s]", desc)
	}
	return text, nil
}
