package cli

import (
	"fmt"
	"strings"

	"github.com/dyike/PolyCortex/internal/display"
	"github.com/dyike/PolyCortex/internal/storage"
	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Shared(root.config())
			if err != nil {
				return err
			}
			defer storage.CloseShared()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			display.History(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func newShowCmd(root *rootOptions) *cobra.Command {
	var (
		events    bool
		exportDir string
	)
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a stored run with its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Shared(root.config())
			if err != nil {
				return err
			}
			defer storage.CloseShared()

			ctx := cmd.Context()
			run, err := store.GetRun(ctx, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			msgs, err := store.RunMessages(ctx, run.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			display.Run(out, run, msgs)

			if events {
				evs, err := store.RunEvents(ctx, run.ID)
				if err != nil {
					return err
				}
				for _, ev := range evs {
					display.Progress(out, ev)
				}
			}
			if exportDir != "" {
				md, err := display.Markdown(run, msgs)
				if err != nil {
					return err
				}
				path, err := display.WriteMarkdown(exportDir, run.ID+".md", md)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Report written to %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&exportDir, "export", "", "Also write a markdown report into this directory")
	cmd.Flags().BoolVar(&events, "events", false, "Also list the node events of the run")
	return cmd
}
