package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/tripdesk/internal/agent"
	"github.com/soyeahso/tripdesk/internal/memory"
)

// Tool names.
const (
	SearchRecallMemories = "search_recall_memories"
	SaveRecallMemory     = "save_recall_memory"
	LookupDestinations   = "lookup_destinations"
)

// DestinationPassages is the number of passages lookup_destinations returns.
const DestinationPassages = 3

// Memories is the recall surface the memory tools need.
type Memories interface {
	Search(ctx context.Context, owner, query string, k int) ([]memory.Hit, error)
	Save(ctx context.Context, owner, text string) (*memory.Record, error)
	K() int
}

// Destinations looks up destination guide passages.
type Destinations interface {
	Lookup(ctx context.Context, query string, k int) ([]string, error)
}

type searchRecallArgs struct {
	Query string `json:"query" jsonschema:"What to look for in the user's memories"`
}

type saveRecallArgs struct {
	Memory string `json:"memory" jsonschema:"A durable fact about the user, stated as one sentence"`
}

type lookupDestinationsArgs struct {
	Query string `json:"query" jsonschema:"Destination, region or activity to look up"`
}

// MemoryTools returns search_recall_memories and save_recall_memory. Both
// are scoped to the calling user.
func MemoryTools(m Memories) []agent.Tool {
	search := MustFunc(SearchRecallMemories,
		"Search the current user's saved memories.",
		func(ctx context.Context, caller string, a searchRecallArgs) (any, error) {
			hits, err := m.Search(ctx, caller, a.Query, m.K())
			if errors.Is(err, memory.ErrNoOwner) {
				return nil, argErrorf("Memories are unavailable without a user.")
			}
			if err != nil {
				return nil, err
			}
			texts := make([]string, len(hits))
			for i, h := range hits {
				texts[i] = h.Text
			}
			return texts, nil
		})
	save := MustFunc(SaveRecallMemory,
		"Save a durable fact about the current user, such as a preference or constraint, for future conversations.",
		func(ctx context.Context, caller string, a saveRecallArgs) (any, error) {
			if strings.TrimSpace(a.Memory) == "" {
				return nil, argErrorf("memory is required.")
			}
			if _, err := m.Save(ctx, caller, a.Memory); err != nil {
				if errors.Is(err, memory.ErrNoOwner) {
					return nil, argErrorf("Memories are unavailable without a user.")
				}
				return nil, err
			}
			return "Memory saved.", nil
		})
	return []agent.Tool{search, save}
}

// LookupDestinationsTool returns lookup_destinations over d.
func LookupDestinationsTool(d Destinations) agent.Tool {
	return MustFunc(LookupDestinations,
		"Look up travel guide information about tourist destinations.",
		func(ctx context.Context, _ string, a lookupDestinationsArgs) (any, error) {
			if strings.TrimSpace(a.Query) == "" {
				return nil, argErrorf("query is required.")
			}
			return d.Lookup(ctx, a.Query, DestinationPassages)
		})
}
