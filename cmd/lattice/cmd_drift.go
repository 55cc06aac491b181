package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func driftCmd() *cobra.Command {
	var baselinePath string

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Detect population drift between a baseline store and the current one",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			baseline, err := loadStore(baselinePath)
			if err != nil {
				return err
			}
			current, err := loadStore(storePath(cmd))
			if err != nil {
				return err
			}
			checker, err := newChecker(cmd, logger)
			if err != nil {
				return err
			}

			m := newMonitor(checker)
			m.CreateSnapshot(baseline, "baseline")
			result, err := m.DetectDrift(current)
			if err != nil {
				return err
			}

			if err := printJSON(result); err != nil {
				return err
			}
			if result.HasDrift {
				color.Yellow("drift detected: %d change(s)", result.TotalChanges)
			} else {
				color.Green("no drift")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baselinePath, "baseline", "", "path to the baseline JSON store file")
	_ = cmd.MarkFlagRequired("baseline")
	return cmd
}
