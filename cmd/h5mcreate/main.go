// Command h5mcreate is the create front-end named in §6: builds a new
// store from a directory of CSV shards.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	h5mobaku "github.com/ryuzot/h5mobaku"
	"github.com/ryuzot/h5mobaku/internal/csvsource"
	"github.com/ryuzot/h5mobaku/internal/ingest"
	"github.com/ryuzot/h5mobaku/internal/logger"
	"github.com/ryuzot/h5mobaku/internal/matrix"
	"github.com/ryuzot/h5mobaku/internal/meshid"
)

var (
	output    string
	directory string
	pattern   string
	batch     int
	bulkWrite bool
	vdsSource string
	vdsSplit  uint32
	epochFlag string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "h5mcreate",
		Short: "Build a population-by-mesh store from CSV shards",
	}
	cmd.AddCommand(ingestCmd())
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Create a store and ingest a directory of CSV shards into it",
		Args:  cobra.NoArgs,
		RunE:  runIngest,
	}
	cmd.Flags().StringVar(&output, "output", "", "path of the store file to create")
	cmd.Flags().StringVar(&directory, "directory", "", "directory to scan for CSV shards")
	cmd.Flags().StringVar(&pattern, "pattern", "*.csv", "glob pattern for CSV shard filenames")
	cmd.Flags().IntVar(&batch, "batch", 0, "number of CSV-reader producers (0 picks automatically, capped at 32)")
	cmd.Flags().BoolVar(&bulkWrite, "bulk-write", false, "use bulk-year ingestion mode instead of streaming-cell mode")
	cmd.Flags().StringVar(&vdsSource, "vds-source", "", "path to a historical store to compose this store's result against as a virtual matrix")
	cmd.Flags().Uint32Var(&vdsSplit, "vds-year", 0, "hour-index split point for --vds-source composition")
	cmd.Flags().StringVar(&epochFlag, "epoch", "", "store epoch, format 2006-01-02 15:04:05 (default: midnight of the first record's date)")
	cmd.MarkFlagRequired("output")
	cmd.MarkFlagRequired("directory")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := logger.New(os.Stderr)

	files, err := findShards(directory, pattern)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("h5mcreate: no CSV shards matched %s in %s", pattern, directory)
	}
	log.Info("discovered shards", zap.Int("count", len(files)))

	universe, epoch, err := scanUniverseAndEpoch(files, epochFlag)
	if err != nil {
		return err
	}
	log.Info("scanned mesh universe", zap.String("mesh_count", humanize.Comma(int64(len(universe)))), zap.String("epoch", epoch))

	store, err := h5mobaku.Create(output, universe, epoch, h5mobaku.DefaultCreateConfig(), log)
	if err != nil {
		return err
	}
	defer store.Close()

	m, _ := store.Matrix()
	mode := ingest.StreamingCell
	if bulkWrite {
		mode = ingest.BulkYear
	}
	p := ingest.New(m, store.Resolver(), store.Calendar(), log, ingest.Config{Mode: mode, Producers: batch})

	report, err := p.Run(context.Background(), files)
	if err != nil {
		return err
	}
	log.Info("ingestion complete",
		zap.String("rows_processed", humanize.Comma(int64(report.RowsProcessed))),
		zap.Int("unique_timestamps", report.UniqueTimestamps),
		zap.String("errors", humanize.Comma(int64(report.Errors))))

	if vdsSource != "" {
		hist, err := h5mobaku.Open(vdsSource, matrix.CacheOptions{}, log)
		if err != nil {
			return fmt.Errorf("h5mcreate: open vds source %s: %w", vdsSource, err)
		}
		defer hist.Close()

		composed, err := h5mobaku.ComposeVirtual(hist, store, vdsSplit, log)
		if err != nil {
			return err
		}
		t, n := composed.GetDimensions()
		log.Info("virtual composition built", zap.Uint32("t", t), zap.Uint32("n", n), zap.Uint32("split_t", vdsSplit))
	}

	return nil
}

func findShards(dir, glob string) ([]string, error) {
	all, err := csvsource.FindCSVFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("h5mcreate: scan %s: %w", dir, err)
	}
	if glob == "" || glob == "*.csv" {
		return all, nil
	}
	var matched []string
	for _, f := range all {
		ok, err := filepath.Match(glob, filepath.Base(f))
		if err != nil {
			return nil, fmt.Errorf("h5mcreate: bad pattern %q: %w", glob, err)
		}
		if ok {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

// scanUniverseAndEpoch makes one pass over every shard to collect the
// distinct mesh keys that will make up the new store's universe and, when
// epochOverride is empty, to derive a default epoch from the first valid
// record's date at midnight.
func scanUniverseAndEpoch(files []string, epochOverride string) ([]uint32, string, error) {
	seen := make(map[uint32]struct{})
	var firstDate uint32

	for _, path := range files {
		reader, err := csvsource.Open(path)
		if err != nil {
			continue
		}
		for {
			rec, err := reader.Next()
			if errors.Is(err, io.EOF) || errors.Is(err, csvsource.ErrBadHeader) {
				break
			}
			if errors.Is(err, csvsource.ErrMalformedRecord) {
				continue
			}
			if err != nil {
				break
			}
			seen[uint32(rec.Area)] = struct{}{}
			if firstDate == 0 {
				firstDate = rec.Date
			}
		}
		reader.Close()
	}

	if len(seen) == 0 {
		return nil, "", fmt.Errorf("h5mcreate: no valid records found across %d shard(s)", len(files))
	}

	// meshid.NewResolver(universe, true) requires the exceptional 10-digit
	// key to sit at the final index regardless of where it falls in
	// numeric order, so it's pulled out of the scanned set, the rest is
	// sorted normally, and it's appended last.
	delete(seen, meshid.ExceptionKey)
	universe := make([]uint32, 0, len(seen)+1)
	for k := range seen {
		universe = append(universe, k)
	}
	sort.Slice(universe, func(i, j int) bool { return universe[i] < universe[j] })
	universe = append(universe, meshid.ExceptionKey)

	epoch := epochOverride
	if epoch == "" {
		year, month, day := firstDate/10000, (firstDate/100)%100, firstDate%100
		epoch = fmt.Sprintf("%04d-%02d-%02d 00:00:00", year, month, day)
	}
	return universe, epoch, nil
}
