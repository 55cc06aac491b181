package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lattice-go/lattice/integrity"
)

func repairCmd() *cobra.Command {
	var (
		dryRun     bool
		errorsOnly bool
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Check the store and apply mechanical repairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			es, err := loadStore(storePath(cmd))
			if err != nil {
				return err
			}
			checker, err := newChecker(cmd, logger)
			if err != nil {
				return err
			}

			report := checker.Check(es)
			if len(report.Violations) == 0 {
				color.Green("nothing to repair: store is clean")
				return nil
			}

			result := checker.Repair(es, report, integrity.RepairOptions{
				DryRun:     dryRun,
				ErrorsOnly: errorsOnly,
			})

			for _, rec := range result.Repairs {
				status := color.GreenString("ok")
				if !rec.Success {
					status = color.RedString("failed: " + rec.Error)
				}
				fmt.Printf("%-8s %s:%s  %s\n",
					rec.Action, rec.Violation.EntityType, rec.Violation.EntityID, status)
			}
			for _, v := range result.Remaining {
				fmt.Printf("%s remaining: %s:%s  %s\n",
					severityTag(v.Severity), v.EntityType, v.EntityID, v.Message)
			}

			if dryRun {
				color.Yellow("dry run: store left unchanged")
				return nil
			}

			target := outPath
			if target == "" {
				target = storePath(cmd)
			}
			if err := saveStore(target, result.Entities); err != nil {
				return err
			}
			color.Green("repaired store written to %s (%d applied, %d remaining)",
				target, len(result.Repairs), len(result.Remaining))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute repairs without writing anything")
	cmd.Flags().BoolVar(&errorsOnly, "errors-only", false, "repair error-severity violations only")
	cmd.Flags().StringVar(&outPath, "out", "", "write the repaired store to this path instead of in place")
	return cmd
}
