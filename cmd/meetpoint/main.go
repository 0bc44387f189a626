// Command meetpoint solves a meeting-point problem from a YAML group file
// without running the API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/samirrijal/meetpoint/internal/bootstrap"
	"github.com/samirrijal/meetpoint/internal/core/usecases"
	"github.com/samirrijal/meetpoint/internal/pkg/config"
	"github.com/samirrijal/meetpoint/internal/pkg/logging"
)

var version = "dev"

type options struct {
	file     string
	mode     string
	goal     string
	noRefine bool
	noCache  bool
	osrmURL  string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "meetpoint",
		Short:         "Find the fairest meeting point for a group",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version,
	}
	root.PersistentFlags().StringVarP(&opts.file, "file", "f", "", "group YAML file (- for stdin)")
	root.PersistentFlags().StringVar(&opts.mode, "mode", "", "travel mode: DRIVING_CAR, CYCLING_REGULAR or FOOT_WALKING")
	root.PersistentFlags().StringVar(&opts.goal, "goal", "", "optimization goal: MINIMAX, MINIMIZE_VARIANCE or MINIMIZE_TOTAL")
	root.PersistentFlags().BoolVar(&opts.noCache, "no-cache", false, "bypass the matrix cache")
	root.PersistentFlags().StringVar(&opts.osrmURL, "osrm-url", "", "override oracle.base_url")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")
	_ = root.MarkPersistentFlagRequired("file")

	solve := &cobra.Command{
		Use:   "solve",
		Short: "Run the full multi-phase search",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, group, cleanup, err := setup(opts, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer cleanup()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := svc.FindMeetingPoint(ctx, group.request(opts.mode, opts.goal, opts.noRefine))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	solve.Flags().BoolVar(&opts.noRefine, "no-refine", false, "skip local refinement")

	evaluate := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the candidates listed in the group file",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, group, cleanup, err := setup(opts, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer cleanup()
			if len(group.Candidates) == 0 {
				return fmt.Errorf("group file has no candidates")
			}
			res, err := svc.EvaluateCandidates(cmd.Context(), group.evaluation(opts.mode, opts.goal))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	root.AddCommand(solve, evaluate)
	return root
}

// setup loads configuration and the group file and builds the service. The
// matrix cache is optional here: when it cannot be reached the search runs
// uncached.
func setup(opts *options, stdin io.Reader) (*usecases.MeetingPointService, *groupFile, func(), error) {
	cfg, err := config.Load("meetpoint-cli")
	if err != nil {
		return nil, nil, nil, err
	}
	logging.Setup(opts.logLevel, "text", cfg.Telemetry.ServiceName)

	if opts.osrmURL != "" {
		cfg.Oracle.BaseURL = opts.osrmURL
	}
	if opts.noCache {
		cfg.Cache.Backend = "none"
	}

	group, err := openGroup(opts.file, stdin)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {}
	cache, err := bootstrap.NewCache(cfg.Cache)
	if err != nil {
		slog.Warn("matrix cache unavailable, running uncached", "backend", cfg.Cache.Backend, "error", err)
	} else if cache != nil {
		cleanup = cache.Close
	}
	svc := usecases.NewMeetingPointService(bootstrap.Oracle(cfg, cache), nil, bootstrap.SearchConfig(cfg))
	return svc, group, cleanup, nil
}

func openGroup(path string, stdin io.Reader) (*groupFile, error) {
	if path == "-" {
		return readGroup(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readGroup(f)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
