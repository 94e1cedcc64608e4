// Package ingest runs the parallel CSV-to-matrix ingestion pipeline: a
// fixed pool of CSV-reader producers statically partitioned over the
// input file list, feeding either a single matrix-writer consumer through
// a bounded queue (streaming-cell mode) or a dense per-year buffer that is
// written to the matrix in one call (bulk-year mode).
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ryuzot/h5mobaku/internal/calendar"
	"github.com/ryuzot/h5mobaku/internal/csvsource"
	"github.com/ryuzot/h5mobaku/internal/matrix"
	"github.com/ryuzot/h5mobaku/internal/meshid"
	"github.com/ryuzot/h5mobaku/internal/workqueue"
)

// Mode selects the pipeline's operating mode.
type Mode int

const (
	// StreamingCell is the default mode: one work item per record,
	// through the bounded queue, to a single consumer.
	StreamingCell Mode = iota
	// BulkYear assembles one calendar year of cells into a dense
	// in-memory buffer and writes the matrix once.
	BulkYear
)

// MaxProducers caps the producer pool, matching the "up to 32 CSV-reader
// producers" topology.
const MaxProducers = 32

// Config configures one ingestion run.
type Config struct {
	Mode          Mode
	QueueCapacity int // 0 uses workqueue.DefaultCapacity
	Producers     int // 0 uses min(len(files), MaxProducers)
}

// Pipeline runs CSV ingestion against one matrix handle, using resolver
// for mesh-key lookups and cal for hour-index arithmetic. A Pipeline is
// built once per ingestion run; it is not reused across runs because the
// bulk-mode year invariant is a run-level property.
type Pipeline struct {
	m        *matrix.Matrix
	resolver *meshid.Resolver
	cal      *calendar.Calendar
	log      *zap.Logger
	cfg      Config
}

// New returns a Pipeline. log may be nil, in which case a no-op logger is
// used.
func New(m *matrix.Matrix, resolver *meshid.Resolver, cal *calendar.Calendar, log *zap.Logger, cfg Config) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{m: m, resolver: resolver, cal: cal, log: log.Named("ingest"), cfg: cfg}
}

// Run ingests every file in files and returns the aggregated report. In
// BulkYear mode, when the bulk run reports errBulkUnavailable (an empty
// bulk buffer, or no readable record to fix the run year), Run falls back
// to StreamingCell for this run rather than failing outright. A failed
// mmap of the bulk buffer is absorbed inside bulk mode by a plain slice
// allocation and does not trigger this fallback.
func (p *Pipeline) Run(ctx context.Context, files []string) (Report, error) {
	if p.cfg.Mode == BulkYear {
		report, err := p.runBulk(ctx, files)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, errBulkUnavailable) {
			return report, err
		}
		p.log.Warn("bulk-year buffer unavailable, falling back to streaming-cell mode", zap.Error(err))
	}
	return p.runStreaming(ctx, files)
}

func (p *Pipeline) producerCount(nFiles int) int {
	n := p.cfg.Producers
	if n <= 0 {
		n = nFiles
	}
	if n > MaxProducers {
		n = MaxProducers
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (p *Pipeline) partition(files []string, producers int) [][]string {
	buckets := make([][]string, producers)
	for i, f := range files {
		buckets[i%producers] = append(buckets[i%producers], f)
	}
	return buckets
}

// runStreaming is the default ingestion mode.
func (p *Pipeline) runStreaming(ctx context.Context, files []string) (Report, error) {
	if len(files) == 0 {
		return Report{}, nil
	}

	producers := p.producerCount(len(files))
	buckets := p.partition(files, producers)
	queue := workqueue.New(p.cfg.QueueCapacity)

	st := &stats{}
	ts := newTimestampSet()

	var producerGroup errgroup.Group
	for i, myFiles := range buckets {
		i, myFiles := i, myFiles
		producerGroup.Go(func() error {
			return p.runProducer(ctx, i, myFiles, queue, st, ts)
		})
	}

	var g errgroup.Group
	g.Go(func() error {
		return p.runConsumer(ctx, queue)
	})
	g.Go(func() error {
		err := producerGroup.Wait()
		queue.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := p.m.Flush(); err != nil {
		return Report{}, fmt.Errorf("ingest: flush: %w", err)
	}

	rows, errs := st.snapshot()
	return Report{RowsProcessed: rows, UniqueTimestamps: ts.len(), Errors: errs}, nil
}

func (p *Pipeline) runProducer(ctx context.Context, id int, files []string, queue *workqueue.Queue, st *stats, ts *timestampSet) error {
	for _, path := range files {
		if err := p.runProducerFile(ctx, path, queue, st, ts); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, workqueue.ErrClosed) {
				return err
			}
			p.log.Error("csv reader producer failed to open file, skipping", zap.Int("producer", id), zap.String("file", path), zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) runProducerFile(ctx context.Context, path string, queue *workqueue.Queue, st *stats, ts *timestampSet) error {
	reader, err := csvsource.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, csvsource.ErrBadHeader) {
			return err
		}
		if errors.Is(err, csvsource.ErrMalformedRecord) {
			st.addError()
			continue
		}
		if err != nil {
			return err
		}

		meshIdx := p.resolver.Resolve(uint32(rec.Area))
		if meshIdx == meshid.NotFound {
			st.addError()
			continue
		}
		hourIdx, err := p.cal.ToIndexFromParts(rec.Date, uint32(rec.Time))
		if err != nil {
			st.addError()
			continue
		}

		ts.add(hourIdx)
		st.addRow()

		item := &workqueue.Item{T: hourIdx, Mesh: meshIdx, Value: rec.Population}
		if err := queue.Enqueue(ctx, item); err != nil {
			return err
		}
	}
}

func (p *Pipeline) runConsumer(ctx context.Context, queue *workqueue.Queue) error {
	for {
		item, err := queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if item == nil {
			return nil
		}

		curT, _ := p.m.GetDimensions()
		if uint32(item.T) >= curT {
			if err := p.m.ExtendTime(growTime(curT, uint32(item.T))); err != nil {
				return fmt.Errorf("ingest: extend time: %w", err)
			}
		}
		if err := p.m.WriteCell(uint32(item.T), item.Mesh, item.Value); err != nil {
			return fmt.Errorf("ingest: write cell: %w", err)
		}
	}
}

// growTime implements the amortized growth rule the consumer uses when a
// newly-seen hour-index exceeds the matrix's current time dimension:
// max(ceil(T*3/2), t+100). The 3/2 factor is a performance heuristic, not
// a correctness property; a different factor would still satisfy
// amortized O(1) extension cost per newly-touched hour.
func growTime(current, t uint32) uint32 {
	grown := (current*3 + 1) / 2
	if grown < t+100 {
		grown = t + 100
	}
	return grown
}
