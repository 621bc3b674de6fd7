// Package tools implements the domain tools agents call: inventory search,
// bookings, destination lookup and recall memories.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/soyeahso/tripdesk/internal/agent"
	"github.com/soyeahso/tripdesk/internal/llm"
)

// Handler runs a tool for caller with decoded arguments. A string result is
// returned to the model as is; anything else is encoded as JSON.
type Handler[A any] func(ctx context.Context, caller string, args A) (any, error)

// ArgError reports arguments the model can correct. It is returned to the
// model as text rather than failing the turn.
type ArgError struct {
	Msg string
}

func (e *ArgError) Error() string { return e.Msg }

func argErrorf(format string, a ...any) error {
	return &ArgError{Msg: fmt.Sprintf(format, a...)}
}

// Func is an agent.Tool whose input schema is derived from its argument type.
type Func[A any] struct {
	name        string
	description string
	schema      string
	handler     Handler[A]
}

var _ agent.Tool = (*Func[struct{}])(nil)

// NewFunc creates a tool. The schema comes from A's json and jsonschema
// tags: fields without omitempty are required.
func NewFunc[A any](name, description string, h Handler[A]) (*Func[A], error) {
	s, err := jsonschema.For[A](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", name, err)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding schema for %s: %w", name, err)
	}
	return &Func[A]{name: name, description: description, schema: string(raw), handler: h}, nil
}

// MustFunc is NewFunc that panics on error.
func MustFunc[A any](name, description string, h Handler[A]) *Func[A] {
	f, err := NewFunc(name, description, h)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Func[A]) Name() string        { return f.name }
func (f *Func[A]) Description() string { return f.description }
func (f *Func[A]) InputSchema() string { return f.schema }

// Execute decodes input, repairing malformed JSON where possible, and runs
// the handler.
func (f *Func[A]) Execute(ctx context.Context, caller, input string) (string, error) {
	var args A
	if err := llm.UnmarshalJSON(input, &args); err != nil {
		return fmt.Sprintf("Invalid arguments for %s: %v", f.name, err), nil
	}
	out, err := f.handler(ctx, caller, args)
	if err != nil {
		var ae *ArgError
		if errors.As(err, &ae) {
			return ae.Msg, nil
		}
		return "", err
	}
	if s, ok := out.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encoding %s result: %w", f.name, err)
	}
	return string(data), nil
}
