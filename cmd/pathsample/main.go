// Command pathsample estimates log Bayes factors by path sampling and
// stepping-stone sampling, and inspects the traces of past runs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/danielorbach/go-component"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/learking/pathsampling"
)

// envPrefix prefixes the environment variables that override configuration
// values, e.g. PATHSAMPLE_STEPS.
const envPrefix = "PATHSAMPLE"

var rootCmd = &cobra.Command{
	Use:   "pathsample",
	Short: "Estimate marginal likelihoods and Bayes factors by path sampling",
	Long: `pathsample runs annealed MCMC chains along a path between two models (or
between the prior and posterior of a single model) and combines their traces
into an estimate of the log Bayes factor.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := slog.LevelInfo
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		cmd.SetContext(component.InjectLogger(cmd.Context(), logger))
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file; defaults apply when empty")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug messages")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file named by the --config flag, if any,
// and applies the overrides of the environment.
func loadConfig(cmd *cobra.Command) (pathsampling.Config, error) {
	name, _ := cmd.Flags().GetString("config")
	cfg := pathsampling.DefaultConfig()
	if name != "" {
		f, err := os.Open(name)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		if cfg, err = pathsampling.LoadConfig(f); err != nil {
			return cfg, fmt.Errorf("%s: %w", name, err)
		}
	}
	return applyEnv(cfg)
}

func applyEnv(cfg pathsampling.Config) (pathsampling.Config, error) {
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
