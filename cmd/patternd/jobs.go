package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// jobTimeout bounds a one-shot maintenance run.
const jobTimeout = 10 * time.Minute

// patternsFile is the --patterns flag for one-shot jobs.
var patternsFile string

func init() {
	decayCmd.Flags().StringVar(&patternsFile, "patterns", "", "JSON file of patterns to process")
	sweepCmd.Flags().StringVar(&patternsFile, "patterns", "", "JSON file of patterns to process")
}

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run the score decay job once",
	Long: `Apply time decay to every pattern in the given snapshot and report
how many dropped below the review threshold. Persisted adaptive state is
updated through the configured state store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(func(ctx context.Context, a *app) error {
			tenants, err := a.registry.ListTenants(ctx)
			if err != nil {
				return err
			}
			for _, tenant := range tenants {
				patterns, err := a.registry.ListPatterns(ctx, tenant)
				if err != nil {
					return err
				}
				result := a.engine.RunDecayJob(ctx, patterns, a.cfg.Quality.DecayThreshold)
				a.logger.Info("decay completed",
					zap.String("tenant", tenant),
					zap.Int("processed", result.ProcessedCount),
					zap.Strings("dropped_below_threshold", result.DroppedBelowThreshold),
				)
			}
			return nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the anomaly detection sweep once",
	Long: `Scan every tenant in the given snapshot for burst creation,
low-quality flooding, and duplicate spam. Findings are recorded in the
anomaly store and printed as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(func(ctx context.Context, a *app) error {
			results, err := a.detector.RunDetectionSweep(ctx, "")
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		})
	},
}

// runOneShot wires the app, loads the pattern snapshot, and runs the job
// under a bounded context.
func runOneShot(job func(ctx context.Context, a *app) error) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if patternsFile != "" {
		n, err := loadPatterns(a.registry, patternsFile)
		if err != nil {
			return err
		}
		a.logger.Info("loaded pattern snapshot",
			zap.String("file", patternsFile),
			zap.Int("patterns", n),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return job(ctx, a)
}

// loadPatterns reads a JSON array of patterns into the registry.
func loadPatterns(registry *pattern.Registry, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading patterns file: %w", err)
	}

	var patterns []*pattern.Pattern
	if err := json.Unmarshal(data, &patterns); err != nil {
		return 0, fmt.Errorf("parsing patterns file: %w", err)
	}

	for _, p := range patterns {
		if err := registry.Register(p); err != nil {
			return 0, fmt.Errorf("pattern %s: %w", p.ID, err)
		}
	}
	return len(patterns), nil
}
