package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fathom/internal/config"
	"fathom/internal/console"
	"fathom/internal/session"
	"fathom/internal/tui"
	"fathom/internal/worker"
)

// ErrRunFailed signals a run that completed without success. The message is
// already on screen; main only needs the non-zero exit code.
var ErrRunFailed = fmt.Errorf("run failed")

func runResearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	query := strings.TrimSpace(strings.Join(args, " "))

	// Interactive mode needs a terminal and no query argument; everything
	// else runs single-shot.
	if query == "" {
		if !isTerminalFile(os.Stdin) || !isTerminalFile(os.Stdout) {
			out := console.NewOutput(cfg.JSON, cfg.Quiet, os.Stdout, os.Stderr)
			out.Error("MISSING_QUERY", "query is required")
			fmt.Fprintln(os.Stderr, "Usage: fathom <query>")
			return ErrRunFailed
		}
		return tui.Run(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}

	return runSingleShot(cmd.Context(), cfg, query)
}

func runSingleShot(ctx context.Context, cfg *config.Config, query string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	out := console.NewOutput(cfg.JSON, cfg.Quiet, os.Stdout, os.Stderr)
	front := console.New(out, os.Stdin, os.Stderr, cfg.RequestConfig(), logger)

	sess := session.New(cfg, worker.StderrInherit, front, logger)
	front.Bind(sess)

	if ctx == nil {
		ctx = context.Background()
	}

	outcome := sess.Run(ctx, query)
	if outcome.Err != nil {
		out.Error("", outcome.Err.Error())
		return ErrRunFailed
	}

	out.Complete(outcome.Success, outcome.RunID, outcome.Dir)

	if !outcome.Success {
		return ErrRunFailed
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	model, _ := flags.GetString("model")
	searchCount, _ := flags.GetInt("search-count")
	maxIterations, _ := flags.GetInt("max-iterations")
	maxSearches, _ := flags.GetInt("max-searches")
	noAutoDecide, _ := flags.GetBool("no-auto-decide")
	jsonMode, _ := flags.GetBool("json")
	quiet, _ := flags.GetBool("quiet")
	runsDir, _ := flags.GetString("runs-dir")
	workerCmd, _ := flags.GetString("worker-cmd")

	return config.Load(config.Overrides{
		Model:         model,
		SearchCount:   searchCount,
		MaxIterations: maxIterations,
		MaxSearches:   maxSearches,
		NoAutoDecide:  noAutoDecide,
		JSON:          jsonMode,
		Quiet:         quiet,
		RunsDir:       runsDir,
		WorkerCmd:     workerCmd,
	})
}

func isTerminalFile(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
