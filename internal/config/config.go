package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"fathom/internal/protocol"
)

// Defaults applied when neither flag nor environment variable is set.
const (
	DefaultModel         = "gpt-4o"
	DefaultSearchCount   = 5
	DefaultMaxIterations = 10
	DefaultMaxSearches   = 15
	DefaultRunsDir       = "runs"
)

// DefaultWorkerCmd launches the research worker process.
func DefaultWorkerCmd() []string {
	return []string{"uv", "run", "python", "-m", "fathom.worker"}
}

// Config is the resolved runtime configuration for one invocation.
type Config struct {
	Model         string
	SearchCount   int
	MaxIterations int
	MaxSearches   int
	AutoDecide    bool

	JSON  bool
	Quiet bool

	RunsDir   string
	WorkerCmd []string
}

// Overrides carries explicit flag values. Zero values mean "not set";
// environment variables fill the gaps, then defaults.
type Overrides struct {
	Model         string
	SearchCount   int
	MaxIterations int
	MaxSearches   int
	NoAutoDecide  bool
	JSON          bool
	Quiet         bool
	RunsDir       string
	WorkerCmd     string
}

// Load merges flag overrides over FATHOM_* environment variables over
// defaults and validates the result.
func Load(ov Overrides) (*Config, error) {
	cfg := &Config{
		Model:         stringOr(ov.Model, envString("FATHOM_MODEL"), DefaultModel),
		SearchCount:   intOr(ov.SearchCount, envInt("FATHOM_SEARCH_COUNT"), DefaultSearchCount),
		MaxIterations: intOr(ov.MaxIterations, envInt("FATHOM_MAX_ITERATIONS"), DefaultMaxIterations),
		MaxSearches:   intOr(ov.MaxSearches, envInt("FATHOM_MAX_SEARCHES"), DefaultMaxSearches),
		AutoDecide:    true,
		JSON:          ov.JSON,
		Quiet:         ov.Quiet,
		RunsDir:       stringOr(ov.RunsDir, envString("FATHOM_RUNS_DIR"), DefaultRunsDir),
		WorkerCmd:     workerCmd(ov.WorkerCmd),
	}

	if ov.NoAutoDecide {
		cfg.AutoDecide = false
	} else if v, ok := envBool("FATHOM_AUTO_DECIDE"); ok {
		cfg.AutoDecide = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and returns user-friendly errors.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("configuration error: model must not be empty (set --model or FATHOM_MODEL)")
	}
	if c.SearchCount < 1 {
		return fmt.Errorf("configuration error: search count must be at least 1, got %d", c.SearchCount)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("configuration error: max iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.MaxSearches < c.SearchCount {
		return fmt.Errorf("configuration error: max searches (%d) must not be below the initial search count (%d)",
			c.MaxSearches, c.SearchCount)
	}
	if len(c.WorkerCmd) == 0 {
		return fmt.Errorf("configuration error: worker command must not be empty (set --worker-cmd or FATHOM_WORKER_CMD)")
	}
	return nil
}

// RequestConfig returns the subset of the configuration forwarded to the
// worker in the session request.
func (c *Config) RequestConfig() protocol.RequestConfig {
	return protocol.RequestConfig{
		Model:         c.Model,
		SearchCount:   c.SearchCount,
		MaxIterations: c.MaxIterations,
		MaxSearches:   c.MaxSearches,
		AutoDecide:    c.AutoDecide,
	}
}

func workerCmd(override string) []string {
	if override != "" {
		return strings.Fields(override)
	}
	if env := os.Getenv("FATHOM_WORKER_CMD"); env != "" {
		return strings.Fields(env)
	}
	return DefaultWorkerCmd()
}

func stringOr(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intOr(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func envString(key string) string {
	return os.Getenv(key)
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
