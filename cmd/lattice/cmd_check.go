package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lattice-go/lattice/integrity"
)

func checkCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run an integrity check over the store",
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
			if asJSON {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printReport(report)
			}

			if !report.Valid {
				return fmt.Errorf("store is invalid: %d error(s)", report.Stats.Errors)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}

func printReport(report integrity.Report) {
	for _, v := range report.Violations {
		fmt.Printf("%s  %-12s %s:%s  %s\n",
			severityTag(v.Severity), v.Type, v.EntityType, v.EntityID, v.Message)
	}
	if report.Valid {
		color.Green("valid: %d entities checked, %d warning(s), %d info",
			report.Stats.EntitiesChecked, report.Stats.Warnings, report.Stats.Infos)
	} else {
		color.Red("invalid: %d error(s), %d warning(s) across %d entities",
			report.Stats.Errors, report.Stats.Warnings, report.Stats.EntitiesChecked)
	}
}

func severityTag(s integrity.Severity) string {
	switch s {
	case integrity.SeverityError:
		return color.RedString("ERROR")
	case integrity.SeverityWarning:
		return color.YellowString("WARN ")
	default:
		return color.CyanString("INFO ")
	}
}
