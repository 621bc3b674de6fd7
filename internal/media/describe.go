package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/tripdesk/internal/llm"
)

const describeFallback = "Describe this image for a travel assistant."

// Describer asks a vision model about an image in the context of the user's
// message.
type Describer struct {
	client    llm.Client
	maxTokens int
}

// NewDescriber creates a describer over a vision-capable client.
func NewDescriber(client llm.Client) *Describer {
	return &Describer{client: client, maxTokens: 1000}
}

// Describe returns the model's analysis of img.
func (d *Describer) Describe(ctx context.Context, text string, img llm.Image) (string, error) {
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		prompt = describeFallback
	}
	resp, err := d.client.Complete(ctx, llm.CompletionRequest{
		Messages:  []llm.Message{{Role: "user", Content: prompt, Images: []llm.Image{img}}},
		MaxTokens: d.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("describing image: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
