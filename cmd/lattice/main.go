package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lattice-go/lattice/integrity"
	"github.com/lattice-go/lattice/internal/config"
	"github.com/lattice-go/lattice/internal/rules"
	"github.com/lattice-go/lattice/store"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "lattice",
		Short: "lattice — normalized entity store integrity tooling",
		Long:  "Lattice checks, repairs and monitors a schema-driven normalized entity store kept in a JSON file, using declarative YAML integrity rules.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("store", "", "path to the JSON store file (overrides config)")
	rootCmd.PersistentFlags().String("rules", "", "path to the YAML rules file (overrides config)")

	rootCmd.AddCommand(
		checkCmd(),
		repairCmd(),
		snapshotCmd(),
		driftCmd(),
		statsCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func storePath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("store"); path != "" {
		return path
	}
	return cfg.Store.Path
}

func rulesPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("rules"); path != "" {
		return path
	}
	return cfg.Store.RulesPath
}

// loadStore reads a JSON store file of the shape {type: {id: entity}}.
func loadStore(path string) (store.Entities, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading store file: %w", err)
	}
	var es store.Entities
	if err := json.Unmarshal(raw, &es); err != nil {
		return nil, fmt.Errorf("parsing store file %s: %w", path, err)
	}
	return es, nil
}

func saveStore(path string, es store.Entities) error {
	raw, err := json.MarshalIndent(es, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	return nil
}

// newChecker builds the checker from the rules file, falling back to the
// config-level checker settings for anything the file does not set.
func newChecker(cmd *cobra.Command, logger *slog.Logger) (*integrity.Checker, error) {
	path := rulesPath(cmd)
	f, err := rules.Load(path)
	if err != nil {
		return nil, err
	}
	checkerCfg := f.CheckerConfig(logger)
	if checkerCfg.IDField == "" {
		checkerCfg.IDField = cfg.Checker.IDField
	}
	checkerCfg.DetectOrphans = checkerCfg.DetectOrphans || cfg.Checker.DetectOrphans
	checkerCfg.FailFast = checkerCfg.FailFast || cfg.Checker.FailFast
	return integrity.NewChecker(checkerCfg), nil
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
