package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

// Stream uses StreamFunc when set, otherwise it replays Complete as a single
// delta followed by the final response.
func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return replay(resp), nil
}

// replay turns a finished response into a closed event channel.
func replay(resp *CompletionResponse) <-chan StreamEvent {
	ch := make(chan StreamEvent, 2)
	if resp.Content != "" {
		ch <- StreamEvent{Type: "delta", Content: resp.Content}
	}
	ch <- StreamEvent{Type: "done", Response: resp}
	close(ch)
	return ch
}
