// facevec aggregates per-identity face feature vectors in SQLite and flags
// photos that stray from an identity's mean or median.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/viant/sqlite-facevec/engine"
	"github.com/viant/sqlite-facevec/feature"
	"github.com/viant/sqlite-facevec/featureadmin"
	"github.com/viant/sqlite-facevec/internal/config"
)

var (
	version   = "0.1.0"
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "facevec",
	Short: "Face feature aggregation and outlier detection",
	Long: `facevec stores face feature vectors per identity in SQLite, keeps a mean
and a coordinate-wise median for each identity and reports samples whose
Euclidean distance from either reference exceeds a threshold.

Vectors come from an external encoder as JSON lines:
  {"identity":"child1","label":"child1_a.jpg","vector":[...]}`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "facevec %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
		fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: facevec.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides store.path)")

	initCmd.Flags().Bool("force", false, "overwrite an existing config file")

	ingestCmd.Flags().StringP("photos", "p", "", "photo directory; ingest discovered photos using the encodings as lookup")
	ingestCmd.Flags().Int("batch-size", 0, "samples per write batch (overrides ingest.batch_size)")
	ingestCmd.Flags().Int("dimension", 0, "required vector dimension (overrides ingest.dimension)")

	watchCmd.Flags().Duration("debounce", 0, "quiet period before a file is ingested (overrides ingest.debounce)")

	for _, cmd := range []*cobra.Command{outliersCmd, reportCmd} {
		cmd.Flags().Float64P("threshold", "t", -1, "distance threshold (overrides outliers.threshold)")
		cmd.Flags().Bool("json", false, "output as JSON")
	}
	reportCmd.Flags().Int("workers", 0, "concurrent identities (overrides outliers.workers)")

	matchCmd.Flags().String("vector", "", "comma separated probe vector")
	matchCmd.Flags().String("encodings", "", "encoder output file; the first vector is the probe")
	matchCmd.Flags().Int("k", 0, "number of matches (overrides match.k)")
	matchCmd.Flags().Float64("max-distance", -1, "maximum distance, 0 for unlimited (overrides match.max_distance)")
	matchCmd.Flags().String("reference", "", "mean or median (overrides match.reference)")
	matchCmd.Flags().String("index", "", "bruteforce or cover (overrides match.index)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(photosCmd)
	rootCmd.AddCommand(outliersCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(identitiesCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(queryCmd)
}

// loadConfig loads the configuration and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, warnings, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		slog.Debug(w)
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Store.Path = db
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs[0])
	}
	return cfg, nil
}

// openStore opens the configured database with the SQL extensions
// registered.
func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, *feature.SQLiteStore, error) {
	if err := engine.RegisterVectorFunctions(); err != nil {
		return nil, nil, err
	}
	if err := featureadmin.Install(); err != nil {
		return nil, nil, err
	}
	db, err := engine.OpenFile(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Store.Path, err)
	}
	store, err := feature.NewSQLiteStore(ctx, db, feature.WithLogger(slog.Default()))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

func setupLogging() {
	if logLevel == "" || logFormat == "" {
		if cfg, _, err := config.Load(cfgFile); err == nil {
			if logLevel == "" {
				logLevel = cfg.Logging.Level
			}
			if logFormat == "" {
				logFormat = cfg.Logging.Format
			}
		}
	}

	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
