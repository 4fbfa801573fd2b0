package cli

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/dyike/PolyCortex/internal/debug"
	"github.com/dyike/PolyCortex/internal/display"
	"github.com/dyike/PolyCortex/internal/execution"
	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/dyike/PolyCortex/internal/storage"
	"github.com/dyike/PolyCortex/internal/trading"
	"github.com/dyike/PolyCortex/models"
	"github.com/dyike/PolyCortex/pkg/app"
	"github.com/spf13/cobra"
)

type runOptions struct {
	funds        float64
	positions    []string
	instructions string
	transcript   bool
	noExecute    bool
	einoDebug    bool
	quiet        bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [MARKET_ID]",
		Short: "Research, analyse and decide on one Polymarket market",
		Long: `Run the research, analysis and trade phases for a Polymarket market.
MARKET_ID is the numeric Gamma id or the 0x condition id. Without it you are prompted.

Example: polycortex run 253591 --funds 25 --position 7132...=10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			marketID := ""
			if len(args) == 1 {
				marketID = strings.TrimSpace(args[0])
			}
			if marketID != "" {
				if err := ValidateMarketID(marketID); err != nil {
					return fmt.Errorf("invalid market id %q: %w", marketID, err)
				}
			}
			if marketID == "" {
				if !isInteractive() {
					return fmt.Errorf("market id is required")
				}
				id, err := PromptForMarketID()
				if err != nil {
					return err
				}
				marketID = id
			}

			positions, err := parsePositions(opts.positions)
			if err != nil {
				return err
			}
			cfg := root.config()
			funds := cfg.AvailableFunds
			if cmd.Flags().Changed("funds") {
				funds = opts.funds
			}
			in := &models.InputState{
				MarketID:           marketID,
				Positions:          positions,
				AvailableFunds:     &funds,
				CustomInstructions: opts.instructions,
				KeepTranscript:     opts.transcript,
			}
			if err := in.Validate(); err != nil {
				return fmt.Errorf("invalid input: %w", err)
			}
			return runMarket(cmd, root, opts, in)
		},
	}

	cmd.Flags().Float64Var(&opts.funds, "funds", 0, "Available funds in USDC (default from config)")
	cmd.Flags().StringArrayVar(&opts.positions, "position", nil, "Held position as TOKEN_ID=SIZE, repeatable")
	cmd.Flags().StringVar(&opts.instructions, "instructions", "", "Extra instructions appended to every agent prompt")
	cmd.Flags().BoolVar(&opts.transcript, "transcript", false, "Keep and store the full conversation")
	cmd.Flags().BoolVar(&opts.noExecute, "no-execute", false, "Do not hand the decision to the dry-run order sink")
	cmd.Flags().BoolVar(&opts.einoDebug, "eino-debug", false, "Start the eino visual debug server")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Hide per-node progress")
	return cmd
}

func runMarket(cmd *cobra.Command, root *rootOptions, opts *runOptions, in *models.InputState) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logging.Default())

	cfg := root.config()
	if opts.einoDebug {
		cfg.EinoDebugEnabled = true
	}
	if err := debug.NewEinoDebugger(cfg).Initialize(ctx); err != nil {
		return err
	}

	rt, err := app.NewRuntime(root.mgr)
	if err != nil {
		return err
	}
	defer rt.Close()

	store, err := storage.Shared(cfg)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer storage.CloseShared()

	sessionOpts := []trading.Option{
		trading.WithStore(store),
		trading.WithOutput(cmd.OutOrStdout()),
	}
	if !opts.noExecute {
		sessionOpts = append(sessionOpts, trading.WithSink(execution.NewDryRunSink()))
	}
	if !opts.quiet {
		errOut := cmd.ErrOrStderr()
		sessionOpts = append(sessionOpts, trading.WithProgress(func(ev models.RunEvent) {
			display.Progress(errOut, ev)
		}))
	}

	session, err := trading.NewSession(rt.Engine().Graph, sessionOpts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Market %s  funds %.2f  positions %s\n",
		in.MarketID, *in.AvailableFunds, formatPositions(in.Positions))
	res, err := session.Execute(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nRun %s stored. Inspect it with: polycortex show %s\n", res.RunID, res.RunID)
	return nil
}

// parsePositions reads TOKEN_ID=SIZE pairs; a repeated token is summed.
func parsePositions(raw []string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for _, item := range raw {
		token, sizeStr, ok := strings.Cut(item, "=")
		token, sizeStr = strings.TrimSpace(token), strings.TrimSpace(sizeStr)
		if !ok || token == "" || sizeStr == "" {
			return nil, fmt.Errorf("invalid position %q, want TOKEN_ID=SIZE", item)
		}
		size, err := strconv.ParseFloat(sizeStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid size in position %q: %w", item, err)
		}
		if math.IsNaN(size) || math.IsInf(size, 0) || size < 0 {
			return nil, fmt.Errorf("position %q must have a finite non-negative size", item)
		}
		out[token] += size
	}
	return out, nil
}

func formatPositions(p map[string]float64) string {
	if len(p) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, p[k]))
	}
	return strings.Join(parts, ", ")
}
