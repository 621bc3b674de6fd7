package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/soyeahso/tripdesk/internal/config"
	"github.com/soyeahso/tripdesk/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tripdesk status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printStatus(cmd.OutOrStdout(), paths, cfg)
			return nil
		},
	}
}

func printStatus(w io.Writer, p config.Paths, c config.Config) {
	fmt.Fprintf(w, "tripdesk %s (commit %s)\n\n", version.Version, version.Commit)

	fmt.Fprintf(w, "Config:     %s", p.Config)
	if _, err := os.Stat(p.Config); os.IsNotExist(err) {
		fmt.Fprint(w, " (not found, using defaults)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Data:       %s\n", p.Data)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Gateway:    port=%d bind=%s auth=%s tls=%v metrics=%v\n",
		c.Gateway.Port, c.Gateway.Bind, c.Gateway.Auth.Mode, c.Gateway.TLS.Enabled, c.Gateway.Metrics)

	key := "missing"
	if c.LLM.APIKey != "" {
		key = "set"
	}
	fmt.Fprintf(w, "LLM:        provider=%s model=%s key=%s fallbacks=%d\n",
		c.LLM.Provider, c.LLM.Model, key, len(c.LLM.Fallbacks))
	fmt.Fprintf(w, "Agents:     maxAttempts=%d maxToolRounds=%d turnTimeout=%s\n",
		c.Agents.MaxAttempts, c.Agents.MaxToolRounds, c.Agents.TurnTimeoutDuration())
	fmt.Fprintf(w, "Bookings:   store=%s\n", c.Booking.Store)
	fmt.Fprintf(w, "Checkpoint: store=%s\n", c.Checkpoint.Store)
	if c.Memory.Enabled {
		fmt.Fprintf(w, "Memory:     store=%s embedder=%s k=%d analyze=%v\n",
			c.Memory.Store, c.Memory.Embedder, c.Memory.K, c.Memory.Analyze)
	} else {
		fmt.Fprintln(w, "Memory:     disabled")
	}
	if c.Media.Enabled {
		fmt.Fprintf(w, "Media:      transcribe=%s vision=%s\n", c.Media.TranscribeModel, c.Media.VisionModel)
	} else {
		fmt.Fprintln(w, "Media:      disabled")
	}

	issues := config.Validate(&c)
	if len(issues) > 0 {
		fmt.Fprintf(w, "\nValidation issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(w, "  - %s\n", issue)
		}
	}
}
