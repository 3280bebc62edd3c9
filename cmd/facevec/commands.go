package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/viant/sqlite-facevec/aggregate"
	"github.com/viant/sqlite-facevec/archive"
	"github.com/viant/sqlite-facevec/feature"
	"github.com/viant/sqlite-facevec/featureadmin"
	"github.com/viant/sqlite-facevec/internal/config"
	"github.com/viant/sqlite-facevec/match"
	"github.com/viant/sqlite-facevec/outlier"
	"github.com/viant/sqlite-facevec/photos"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file and create the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			slog.Info("config exists, keeping it", "path", path)
		} else if err := config.Save(path, config.DefaultConfig()); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, _, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "config: %s\ndatabase: %s\n", path, cfg.Store.Path)
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <encodings.jsonl[.zst]>...",
	Short: "Store encoder output as samples and append mean and median per identity",
	Long: `Reads encoder JSON lines and ingests them per identity. With --photos the
photo tree drives ingestion: every discovered photo is looked up in the
encoder output and photos without an encoding are counted as failures.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if n, _ := cmd.Flags().GetInt("batch-size"); n > 0 {
			cfg.Ingest.BatchSize = n
		}
		if n, _ := cmd.Flags().GetInt("dimension"); n > 0 {
			cfg.Ingest.Dimension = n
		}
		photoDir, _ := cmd.Flags().GetString("photos")

		ctx := cmd.Context()
		db, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		var batches []archive.Batch
		for _, path := range args {
			b, err := readEncodingsFile(path)
			if err != nil {
				return err
			}
			batches = append(batches, b...)
		}
		batches = archive.MergeBatches(batches)
		agg := newAggregator(store, cfg)
		var totals aggregate.Totals
		if photoDir == "" {
			totals, err = ingestBatches(ctx, cmd.OutOrStdout(), agg, batches)
		} else {
			totals, err = ingestPhotos(ctx, cmd.OutOrStdout(), agg, photoDir, archive.LookupEncoder(batches))
		}
		if err != nil {
			return err
		}
		printTotals(cmd.OutOrStdout(), totals)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest encoder output files as they appear in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if d, _ := cmd.Flags().GetDuration("debounce"); d > 0 {
			cfg.Ingest.Debounce = d
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		w, err := photos.NewWatcher(args[0],
			photos.WithFilter(archive.IsEncodingFile),
			photos.WithDebounce(cfg.Ingest.Debounce),
			photos.WithWatchLogger(slog.Default()))
		if err != nil {
			return err
		}
		agg := newAggregator(store, cfg)
		out := cmd.OutOrStdout()
		return w.Watch(ctx, func(ctx context.Context, paths []string) {
			var batches []archive.Batch
			for _, path := range paths {
				b, err := readEncodingsFile(path)
				if err != nil {
					slog.Warn("skipping encodings file", "path", path, "error", err)
					continue
				}
				batches = append(batches, b...)
			}
			if len(batches) == 0 {
				return
			}
			totals, err := ingestBatches(ctx, out, agg, archive.MergeBatches(batches))
			if err != nil {
				slog.Error("ingest failed", "paths", paths, "error", err)
				return
			}
			slog.Info("ingested", "files", len(paths), "identities", totals.Identities, "stored", totals.Stored, "failed", totals.Failed)
		})
	},
}

var photosCmd = &cobra.Command{
	Use:   "photos [dir]",
	Short: "List identities found in a photo directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir := cfg.Photos.Dir
		if len(args) > 0 {
			dir = args[0]
		}
		groups, err := photos.Discover(dir)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(groups))
		for id := range groups {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "IDENTITY\tPHOTOS")
		for _, id := range ids {
			fmt.Fprintf(tw, "%s\t%d\n", id, len(groups[id]))
		}
		return tw.Flush()
	},
}

var outliersCmd = &cobra.Command{
	Use:   "outliers <identity>",
	Short: "Report samples of one identity beyond the threshold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyThreshold(cmd, cfg)
		ctx := cmd.Context()
		db, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		report, err := outlier.New(store).FindOutliers(ctx, args[0], cfg.Outliers.Threshold)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), toReportView(report))
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [identity]...",
	Short: "Report outliers for several identities (all when none given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyThreshold(cmd, cfg)
		if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
			cfg.Outliers.Workers = n
		}
		ctx := cmd.Context()
		db, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ids := args
		if len(ids) == 0 {
			if ids, err = store.Identities(ctx); err != nil {
				return err
			}
		}
		detector := outlier.New(store, outlier.WithWorkers(cfg.Outliers.Workers), outlier.WithLogger(slog.Default()))
		batch, err := detector.Report(ctx, ids, cfg.Outliers.Threshold)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			views := make([]reportView, len(batch.Reports))
			for i, r := range batch.Reports {
				views[i] = toReportView(r)
			}
			return writeJSON(out, map[string]any{
				"threshold":   batch.Threshold,
				"total":       batch.Total,
				"from_mean":   batch.FromMean,
				"from_median": batch.FromMedian,
				"identities":  views,
				"skipped":     batch.Skipped,
			})
		}
		for _, r := range batch.Reports {
			printReport(out, r)
		}
		for _, id := range batch.Skipped {
			fmt.Fprintf(out, "%s: skipped, no aggregates\n", id)
		}
		fmt.Fprintf(out, "\n%d identities, %d skipped, %d samples, %d from mean, %d from median (threshold %g)\n",
			len(batch.Reports), len(batch.Skipped), batch.Total, batch.FromMean, batch.FromMedian, batch.Threshold)
		return nil
	},
}

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List stored identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		ids, err := store.Identities(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Find the identities closest to a probe vector",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if k, _ := cmd.Flags().GetInt("k"); k > 0 {
			cfg.Match.K = k
		}
		if d, _ := cmd.Flags().GetFloat64("max-distance"); d >= 0 {
			cfg.Match.MaxDistance = d
		}
		if ref, _ := cmd.Flags().GetString("reference"); ref != "" {
			cfg.Match.Reference = ref
		}
		if idx, _ := cmd.Flags().GetString("index"); idx != "" {
			cfg.Match.Index = idx
		}
		probe, err := readProbe(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		reference := feature.KindMean
		if cfg.Match.Reference == "median" {
			reference = feature.KindMedian
		}
		m, err := match.Build(ctx, store, reference, match.IndexKind(cfg.Match.Index), match.WithLogger(slog.Default()))
		if err != nil {
			return err
		}
		matches, err := m.Nearest(probe, cfg.Match.K, cfg.Match.MaxDistance)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no match")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "IDENTITY\tDISTANCE")
		for _, mt := range matches {
			fmt.Fprintf(tw, "%s\t%.4f\n", mt.IdentityID, mt.Distance)
		}
		return tw.Flush()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file.jsonl.zst>",
	Short: "Export all records as zstd-compressed JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		n, err := archive.Export(ctx, store, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", n, args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl.zst>",
	Short: "Append records from an export file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := archive.Import(ctx, f, store)
		if err != nil {
			return fmt.Errorf("imported %d records before failing: %w", n, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d records from %s\n", n, args[0])
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run SQL with feature_l2, feature_dim and the feature_outliers module available",
	Long: `Runs a read query against the feature database. The feature_outliers
virtual table module is registered, for example:

  CREATE VIRTUAL TABLE IF NOT EXISTS fo USING feature_outliers(identity_id);
  SELECT * FROM fo WHERE identity_id MATCH 'child1' AND threshold = 0.6;`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		detector := outlier.New(store, outlier.WithLogger(slog.Default()))
		if err := featureadmin.Register(db, detector, featureadmin.WithDefaultThreshold(cfg.Outliers.Threshold)); err != nil {
			return err
		}
		rows, err := db.QueryContext(ctx, args[0])
		if err != nil {
			return err
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.ToUpper(strings.Join(cols, "\t")))
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			cells := make([]string, len(values))
			for i, v := range values {
				if b, ok := v.([]byte); ok {
					cells[i] = fmt.Sprintf("<%d bytes>", len(b))
					continue
				}
				cells[i] = fmt.Sprint(v)
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return tw.Flush()
	},
}

func newAggregator(store feature.Store, cfg *config.Config) *aggregate.Aggregator {
	return aggregate.New(store,
		aggregate.WithBatchSize(cfg.Ingest.BatchSize),
		aggregate.WithDimension(cfg.Ingest.Dimension),
		aggregate.WithLogger(slog.Default()))
}

func readEncodingsFile(path string) ([]archive.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	batches, err := archive.ReadEncodings(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return batches, nil
}

func ingestBatches(ctx context.Context, out io.Writer, agg *aggregate.Aggregator, batches []archive.Batch) (aggregate.Totals, error) {
	var totals aggregate.Totals
	for _, b := range batches {
		summary, err := agg.IngestIdentity(ctx, b.IdentityID, b.Photos)
		totals.Add(summary)
		if err != nil {
			return totals, err
		}
		printSummary(out, summary)
	}
	return totals, nil
}

func ingestPhotos(ctx context.Context, out io.Writer, agg *aggregate.Aggregator, dir string, enc aggregate.Encoder) (aggregate.Totals, error) {
	var totals aggregate.Totals
	groups, err := photos.Discover(dir)
	if err != nil {
		return totals, err
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		summary, err := agg.IngestPaths(ctx, id, groups[id], enc)
		totals.Add(summary)
		if err != nil {
			return totals, err
		}
		printSummary(out, summary)
	}
	return totals, nil
}

func printSummary(out io.Writer, s *aggregate.Summary) {
	status := "aggregated"
	if !s.Aggregated() {
		status = "no aggregates"
	}
	fmt.Fprintf(out, "%s: %d photos, %d stored, %d failed, %s\n", s.IdentityID, s.Processed, s.Stored, s.Failed, status)
	for _, f := range s.Failures {
		fmt.Fprintf(out, "  %s: %v\n", f.Label, f.Err)
	}
}

func printTotals(out io.Writer, t aggregate.Totals) {
	fmt.Fprintf(out, "\n%d identities, %d photos, %d stored, %d failed, %d aggregated\n",
		t.Identities, t.Processed, t.Stored, t.Failed, t.Aggregated)
}

func applyThreshold(cmd *cobra.Command, cfg *config.Config) {
	if t, _ := cmd.Flags().GetFloat64("threshold"); t >= 0 {
		cfg.Outliers.Threshold = t
	}
}

type outlierView struct {
	RecordID int64   `json:"record_id"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

type reportView struct {
	Identity   string        `json:"identity"`
	Threshold  float64       `json:"threshold"`
	Total      int           `json:"total"`
	FromMean   []outlierView `json:"from_mean"`
	FromMedian []outlierView `json:"from_median"`
}

func toReportView(r *outlier.Report) reportView {
	convert := func(list []outlier.Outlier) []outlierView {
		out := make([]outlierView, len(list))
		for i, o := range list {
			out[i] = outlierView{RecordID: o.Record.ID, Label: o.Record.SourceLabel, Distance: o.Distance}
		}
		return out
	}
	return reportView{
		Identity:   r.IdentityID,
		Threshold:  r.Threshold,
		Total:      r.Total,
		FromMean:   convert(r.FromMean),
		FromMedian: convert(r.FromMedian),
	}
}

func printReport(out io.Writer, r *outlier.Report) {
	fmt.Fprintf(out, "%s: %d samples\n", r.IdentityID, r.Total)
	for _, ref := range []outlier.Reference{outlier.ReferenceMean, outlier.ReferenceMedian} {
		list := r.Outliers(ref)
		fmt.Fprintf(out, "  from %s: %d\n", ref, len(list))
		for _, o := range list {
			fmt.Fprintf(out, "    %s\t%.4f\n", o.Record.SourceLabel, o.Distance)
		}
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := gojson.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readProbe(cmd *cobra.Command) ([]float64, error) {
	raw, _ := cmd.Flags().GetString("vector")
	file, _ := cmd.Flags().GetString("encodings")
	switch {
	case raw != "" && file != "":
		return nil, fmt.Errorf("use either --vector or --encodings")
	case raw != "":
		return parseVector(raw)
	case file != "":
		batches, err := readEncodingsFile(file)
		if err != nil {
			return nil, err
		}
		for _, b := range batches {
			for _, p := range b.Photos {
				if p.Err == nil && len(p.Vector) > 0 {
					return p.Vector, nil
				}
			}
		}
		return nil, fmt.Errorf("%s: no usable vector", file)
	}
	return nil, fmt.Errorf("a probe is required: --vector or --encodings")
}

func parseVector(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	return out, nil
}
