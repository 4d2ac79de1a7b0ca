package main

import (
	"fmt"

	"github.com/danielorbach/go-component"
	"github.com/spf13/cobra"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/learking/pathsampling/estimate"
	"github.com/learking/pathsampling/tracelog"
)

var analyseCmd = &cobra.Command{
	Use:   "analyse <bucket-url> <run>",
	Short: "Estimate the log Bayes factor from the stored traces of a run",
	Long: `analyse reads the traces a run stored in a blob bucket, e.g.
file:///var/lib/pathsample, and estimates the log Bayes factor with the scheme,
alpha and burn-in percentage of the configuration.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		bucket, err := blob.OpenBucket(ctx, args[0])
		if err != nil {
			return fmt.Errorf("open bucket: %w", err)
		}
		defer bucket.Close()

		traces, err := tracelog.ReadRun(ctx, bucket, args[1])
		if err != nil {
			return err
		}
		component.Logger(ctx).Debug("Read traces", "run", args[1], "steps", len(traces))
		result, err := estimate.Estimate(traces, cfg.Scheme, cfg.Alpha, cfg.BurnInPercentage)
		if err != nil {
			return err
		}
		if plain, _ := cmd.Flags().GetBool("plain"); plain {
			return result.Format(cmd.OutOrStdout())
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderResult(result))
		return nil
	},
}

func init() {
	analyseCmd.Flags().Bool("plain", false, "print a fixed-width table without styling")
	rootCmd.AddCommand(analyseCmd)
}
