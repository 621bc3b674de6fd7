package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiClient talks to the Gemini API through the official genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini client. baseURL may be empty.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Name returns the provider name.
func (c *GeminiClient) Name() string { return "gemini" }

// Complete sends a non-streaming completion request.
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := c.modelFor(req)

	resp, err := c.client.Models.GenerateContent(ctx, model, geminiContents(req.Messages), geminiConfig(req))
	if err != nil {
		return nil, wrapError(c.Name(), err)
	}

	out := &CompletionResponse{Model: model}
	collectGemini(out, resp)
	out.Duration = time.Since(start)
	return out, nil
}

// Stream sends a streaming completion request. Function calls arrive whole
// in a single chunk and are collected into the final response.
func (c *GeminiClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent, 16)
	model := c.modelFor(req)

	go func() {
		defer close(ch)
		start := time.Now()
		out := &CompletionResponse{Model: model}

		for chunk, err := range c.client.Models.GenerateContentStream(ctx, model, geminiContents(req.Messages), geminiConfig(req)) {
			if err != nil {
				ch <- StreamEvent{Type: "error", Error: wrapError(c.Name(), err).Error()}
				return
			}
			before := len(out.Content)
			collectGemini(out, chunk)
			if delta := out.Content[before:]; delta != "" {
				ch <- StreamEvent{Type: "delta", Content: delta}
			}
		}

		out.Duration = time.Since(start)
		ch <- StreamEvent{Type: "done", Response: out}
	}()

	return ch, nil
}

func (c *GeminiClient) modelFor(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

// collectGemini appends text, function calls, and usage from one response
// (or stream chunk) into out.
func collectGemini(out *CompletionResponse, resp *genai.GenerateContentResponse) {
	if resp == nil {
		return
	}
	out.Content += resp.Text()
	for _, fc := range resp.FunctionCalls() {
		id := fc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: fc.Name, Input: mustJSON(fc.Args)})
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		out.StopReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage.InputTokens = int(u.PromptTokenCount)
		out.Usage.OutputTokens = int(u.CandidatesTokenCount)
	}
}

func geminiConfig(req CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: schemaValue(t.InputSchema),
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if req.ResponseSchema != "" {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = schemaValue(req.ResponseSchema)
	}
	return cfg
}

// geminiContents maps the conversation onto user/model contents. Consecutive
// tool results are grouped into one user content, as the API expects.
func geminiContents(msgs []Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			var parts []*genai.Part
			if strings.TrimSpace(m.Content) != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: argsMap(tc.Input),
				}})
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))

		case RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}}
			if n := len(out); n > 0 && out[n-1].Role == genai.RoleUser && out[n-1].Parts[0].FunctionResponse != nil {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))

		default:
			parts := []*genai.Part{genai.NewPartFromText(m.Content)}
			for _, img := range m.Images {
				parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
			}
			out = append(out, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	return out
}

// schemaValue turns a JSON Schema string into a value the SDKs can marshal.
func schemaValue(schema string) json.RawMessage {
	if strings.TrimSpace(schema) == "" {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return json.RawMessage(schema)
}
