package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/tripdesk/internal/llm"
	"github.com/soyeahso/tripdesk/internal/logging"
)

// FailoverClient is an llm.Client over a model chain: the primary model,
// then each fallback, moving on only when a provider fails in a way another
// provider might not.
type FailoverClient struct {
	registry *llm.Registry
	models   []string
	log      *logging.Logger
}

func NewFailoverClient(registry *llm.Registry, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		registry: registry,
		models:   append([]string{primary}, fallbacks...),
		log:      log.Sub("llm.failover"),
	}
}

func (f *FailoverClient) Name() string { return "failover:" + f.models[0] }

func (f *FailoverClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return walkChain(f, req, func(c llm.Client, r llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return c.Complete(ctx, r)
	})
}

// Stream fails over only while opening the stream. Errors delivered on the
// channel belong to the provider that opened it.
func (f *FailoverClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	return walkChain(f, req, func(c llm.Client, r llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		return c.Stream(ctx, r)
	})
}

func walkChain[T any](f *FailoverClient, req llm.CompletionRequest, call func(llm.Client, llm.CompletionRequest) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for _, model := range f.models {
		client, err := f.registry.Resolve(model)
		if err != nil {
			f.log.Debug().Str("model", model).Err(err).Msg("model has no provider")
			lastErr = err
			continue
		}
		req.Model = model
		out, err := call(client, req)
		if err == nil {
			return out, nil
		}
		if !isRetryable(err) {
			return zero, err
		}
		f.log.Warn().Str("model", model).Err(err).Msg("provider failed, trying next model")
		lastErr = err
	}
	return zero, lastErr
}

var retryableStatus = map[int]bool{401: true, 403: true, 429: true, 500: true, 502: true, 503: true, 529: true}

// isRetryable reports whether another provider might succeed where this one
// failed: auth and quota problems, server errors and overload.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *llm.ProviderError
	if errors.As(err, &pe) && retryableStatus[pe.Code] {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"overloaded", "rate limit", "capacity", "timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
