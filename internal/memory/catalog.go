package memory

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/tripdesk/internal/logging"
)

// CatalogOwner tags destination passages so they share a store with user
// memories without ever matching a caller.
const CatalogOwner = "catalog:destinations"

//go:embed destinations.txt
var defaultDestinations string

var headingRE = regexp.MustCompile(`(?m)^\d+\.\s`)

// SplitPassages cuts text at numbered headings ("1. ", "2. ", ...). Text
// before the first heading is dropped.
func SplitPassages(text string) []string {
	starts := headingRE.FindAllStringIndex(text, -1)
	var out []string
	for i, loc := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		if p := strings.TrimSpace(text[loc[0]:end]); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Catalog is the searchable destination guide behind lookup_destinations.
type Catalog struct {
	store    Store
	embedder Embedder
	log      *logging.Logger
}

// NewCatalog creates an empty catalog over store.
func NewCatalog(store Store, embedder Embedder, log *logging.Logger) *Catalog {
	return &Catalog{store: store, embedder: embedder, log: log.Sub("memory.catalog")}
}

// Load indexes every passage of text and returns how many were added.
func (c *Catalog) Load(ctx context.Context, text string) (int, error) {
	passages := SplitPassages(text)
	for i, p := range passages {
		vec, err := c.embedder.Embed(ctx, p)
		if err != nil {
			return i, fmt.Errorf("embedding passage %d: %w", i+1, err)
		}
		rec := Record{ID: uuid.NewString(), Owner: CatalogOwner, Text: p, Vector: vec, CreatedAt: time.Now().UTC()}
		if err := c.store.Add(ctx, rec); err != nil {
			return i, fmt.Errorf("storing passage %d: %w", i+1, err)
		}
	}
	c.log.Info().Int("passages", len(passages)).Msg("destination catalog loaded")
	return len(passages), nil
}

// LoadFile loads a catalog file, or the built-in guide when path is empty.
func (c *Catalog) LoadFile(ctx context.Context, path string) (int, error) {
	if path == "" {
		return c.Load(ctx, defaultDestinations)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading destinations: %w", err)
	}
	return c.Load(ctx, string(data))
}

// Lookup returns the k passages nearest to query.
func (c *Catalog) Lookup(ctx context.Context, query string, k int) ([]string, error) {
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	hits, err := c.store.Search(ctx, CatalogOwner, vec, k)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Text
	}
	return out, nil
}
