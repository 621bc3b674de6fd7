package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// wrapError normalizes SDK errors into a *ProviderError carrying the HTTP
// status when the SDK exposes one. Context errors pass through untouched.
func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	pe := &ProviderError{Provider: provider, Message: err.Error(), Err: err}

	var gerr genai.APIError
	var oerr *openai.APIError
	var rerr *openai.RequestError
	var aerr *anthropic.Error
	switch {
	case errors.As(err, &gerr):
		pe.Code = gerr.Code
		pe.Message = gerr.Message
	case errors.As(err, &oerr):
		pe.Code = oerr.HTTPStatusCode
		pe.Message = oerr.Message
	case errors.As(err, &rerr):
		pe.Code = rerr.HTTPStatusCode
	case errors.As(err, &aerr):
		pe.Code = aerr.StatusCode
	}
	return pe
}
