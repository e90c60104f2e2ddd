package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fathom [query...]",
	Short: "Deep-research session launcher",
	Long: `fathom launches a research worker process, streams its progress, and
persists every prompt, response and report under the runs directory.

With a query argument it runs once and exits. Without arguments on a
terminal it opens the interactive chat interface.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runResearch,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("model", "", "model name for the worker (default gpt-4o)")
	flags.Int("search-count", 0, "initial number of searches to plan")
	flags.Int("max-iterations", 0, "maximum research iterations")
	flags.Int("max-searches", 0, "maximum total searches")
	flags.Bool("no-auto-decide", false, "ask for confirmation after clarifying answers")
	flags.Bool("json", false, "emit machine-readable JSON lines on stdout")
	flags.BoolP("quiet", "q", false, "suppress progress output")
	flags.String("runs-dir", "", "directory for run artifacts (default runs)")
	flags.String("worker-cmd", "", "worker command line, space-separated")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
