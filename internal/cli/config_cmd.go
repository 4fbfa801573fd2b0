package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyike/PolyCortex/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(root.config().Redacted(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", root.mgr.Path(), data)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.config()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := cfg.RequireCredentials(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%s / %s)\n", cfg.LLMProvider, cfg.Model)
			if cfg.TavilyAPIKey == "" {
				fmt.Fprintln(out, "Note: no Tavily key, search_tavily is disabled")
			}
			if cfg.ExaAPIKey == "" {
				fmt.Fprintln(out, "Note: no Exa key, search_exa is disabled")
			}
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:     "set JSON",
		Short:   "Merge a JSON object into config.json",
		Example: `  polycortex config set '{"max_loops": 4, "keep_history": false}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			before := root.mgr.Get()
			if err := root.mgr.UpdateFromJSON(args[0]); err != nil {
				return err
			}
			changed := config.Changed(before, root.mgr.Get())
			if len(changed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s\n", root.mgr.Path(), strings.Join(changed, ", "))
			return nil
		},
	})

	return configCmd
}
