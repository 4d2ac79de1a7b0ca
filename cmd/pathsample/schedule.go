package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/learking/pathsampling"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the interpolation coefficients of the configured steps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		steps, err := pathsampling.Steps(cfg)
		if err != nil {
			return err
		}
		rows := make([][]string, len(steps))
		for i, s := range steps {
			rows[i] = []string{
				s.Name(len(steps)),
				strconv.FormatFloat(s.Beta, 'g', 6, 64),
				strconv.Itoa(s.BurnIn),
				strconv.Itoa(s.ChainLength),
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schedule, alpha %v\n", cfg.Scheme.Effective(cfg.Alpha), cfg.Alpha)
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Step", "Beta", "Burn-in", "Chain"}, rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
