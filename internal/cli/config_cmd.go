package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/tripdesk/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the config file by dotted key",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a config value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRawConfig(args[0], false, func(raw map[string]any, path []string) error {
					val, ok := config.Lookup(raw, path)
					if !ok {
						return fmt.Errorf("key %q not found", args[0])
					}
					return printValue(cmd.OutOrStdout(), val)
				})
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a config value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				value := parseValue(args[1])
				return withRawConfig(args[0], true, func(raw map[string]any, path []string) error {
					config.Assign(raw, path, value)
					fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", args[0], value)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a config value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRawConfig(args[0], true, func(raw map[string]any, path []string) error {
					if !config.Remove(raw, path) {
						return fmt.Errorf("key %q not found", args[0])
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
			},
		},
	)
	return cmd
}

// withRawConfig loads the config file as a map, hands fn the parsed key and
// writes the map back when save is set and fn succeeded.
func withRawConfig(key string, save bool, fn func(raw map[string]any, path []string) error) error {
	path, err := config.ParseKey(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return err
	}
	if err := fn(raw, path); err != nil {
		return err
	}
	if !save {
		return nil
	}
	return config.SaveRaw(paths.Config, raw)
}

// printValue writes scalars as-is and maps or lists as YAML.
func printValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}

// parseValue interprets a command-line value as a bool, int, float or string.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
