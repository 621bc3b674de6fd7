package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/tripdesk/internal/booking"
	"github.com/soyeahso/tripdesk/internal/memory"
	"github.com/soyeahso/tripdesk/internal/travel"
)

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the assistants and the tools each one can call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printAgents(cmd.OutOrStdout())
		},
	}
}

// printAgents renders the agent graph. The graph is built over throwaway
// in-memory backends since only its shape is shown.
func printAgents(w io.Writer) error {
	embed := memory.HashEmbedder{}
	g, err := travel.NewGraph(travel.Deps{
		Bookings:     booking.NewMemoryStore(),
		Memories:     memory.NewRecall(memory.NewInMemoryStore(), embed, log),
		Destinations: memory.NewCatalog(memory.NewInMemoryStore(), embed, log),
	})
	if err != nil {
		return err
	}
	for _, a := range g.Agents() {
		marker := ""
		if a.IsPrimary {
			marker = " (entry)"
		}
		fmt.Fprintf(w, "  %-8s %s%s\n", a.ID, a.Name, marker)
		fmt.Fprintf(w, "           tools: %s\n", strings.Join(a.Tools, ", "))
	}
	return nil
}
