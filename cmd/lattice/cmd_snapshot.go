package main

import (
	"github.com/spf13/cobra"

	"github.com/lattice-go/lattice/integrity"
	"github.com/lattice-go/lattice/monitor"
)

func snapshotCmd() *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fingerprint the store's entity population",
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

			m := monitor.New(monitor.Config{Checker: checker, Logger: logger})
			snap := m.CreateSnapshot(es, label)
			return printJSON(snap)
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "label stored with the snapshot")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print entity counts per type",
		RunE: func(cmd *cobra.Command, args []string) error {
			es, err := loadStore(storePath(cmd))
			if err != nil {
				return err
			}
			counts := map[string]any{}
			total := 0
			for typ, em := range es {
				counts[typ] = len(em)
				total += len(em)
			}
			counts["total"] = total
			return printJSON(counts)
		},
	}
}

// newMonitor builds a monitor from config for commands that need one.
func newMonitor(checker *integrity.Checker) *monitor.Monitor {
	return monitor.New(monitor.Config{
		Checker:       checker,
		CheckInterval: cfg.Monitor.CheckInterval,
		AutoRepair:    cfg.Monitor.AutoRepair,
		MaxSnapshots:  cfg.Monitor.MaxSnapshots,
		MaxHistory:    cfg.Monitor.MaxHistory,
		Logger:        newLogger(),
	})
}
