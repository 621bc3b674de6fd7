package agent

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/soyeahso/tripdesk/internal/llm"
)

// Definition is the static configuration of one agent: its prompt and the
// tools bound to its model calls. Definitions are immutable once built.
type Definition struct {
	ID     string
	Name   string
	Prompt *template.Template

	// Tools are executed in place by the router.
	Tools *ToolRegistry

	// Control tools are never executed; the router interprets them as
	// dialog transitions (transfers on the primary agent, CompleteOrEscalate
	// on specialists).
	Control []llm.ToolDefinition
}

// PromptData is the data a prompt template renders with.
type PromptData struct {
	Caller string
	Recall string
	Now    string
}

// NewPrompt parses a prompt template, panicking on syntax errors.
func NewPrompt(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Parse(text))
}

// ToolDefinitions returns the domain and control tools offered to the model.
func (d *Definition) ToolDefinitions() []llm.ToolDefinition {
	defs := d.Tools.Definitions()
	return append(defs, d.Control...)
}

// IsControl reports whether name is one of the definition's control tools.
func (d *Definition) IsControl(name string) bool {
	for _, c := range d.Control {
		if c.Name == name {
			return true
		}
	}
	return false
}

// System renders the system prompt for a caller and recall context.
func (d *Definition) System(caller string, recall []string, now time.Time) (string, error) {
	if d.Prompt == nil {
		return "", nil
	}
	var b strings.Builder
	err := d.Prompt.Execute(&b, PromptData{
		Caller: caller,
		Recall: FormatRecall(recall),
		Now:    now.Format(time.RFC1123),
	})
	if err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", d.ID, err)
	}
	return b.String(), nil
}

// FormatRecall renders memory snippets as a bullet list, or "None." if empty.
func FormatRecall(recall []string) string {
	if len(recall) == 0 {
		return "None."
	}
	var b strings.Builder
	for i, r := range recall {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(r)
	}
	return b.String()
}
