package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryuzot/h5mobaku/internal/csvsource"
	"github.com/ryuzot/h5mobaku/internal/meshid"
)

// errBulkUnavailable signals Run to fall back to streaming-cell mode: the
// bulk buffer could not be prepared, or no input file yielded a readable
// record to capture a run year from. An empty input file list is not an
// error; runBulk returns an empty Report for it.
var errBulkUnavailable = errors.New("ingest: bulk-year mode unavailable for this run")

func (p *Pipeline) runBulk(ctx context.Context, files []string) (Report, error) {
	if len(files) == 0 {
		return Report{}, nil
	}

	year, err := firstRecordYear(files)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", errBulkUnavailable, err)
	}

	_, n := p.m.GetDimensions()
	buf, err := newBulkBuffer(year, n)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", errBulkUnavailable, err)
	}
	defer buf.close()

	producers := p.producerCount(len(files))
	buckets := p.partition(files, producers)

	st := &stats{}
	ts := newTimestampSet()

	var g errgroup.Group
	for _, myFiles := range buckets {
		myFiles := myFiles
		g.Go(func() error {
			return p.runBulkProducer(myFiles, year, buf, st, ts)
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	startIdx, err := p.cal.ToIndexFromParts(uint32(year)*10000+101, 0)
	if err != nil {
		return Report{}, fmt.Errorf("ingest: bulk run start index: %w", err)
	}

	if err := p.m.ExtendTime(uint32(startIdx) + buf.rows); err != nil {
		return Report{}, fmt.Errorf("ingest: bulk run extend time: %w", err)
	}
	if err := p.m.WriteBulk(buf.data, uint32(startIdx), buf.rows, buf.cols); err != nil {
		return Report{}, fmt.Errorf("ingest: bulk run write: %w", err)
	}
	if err := p.m.Flush(); err != nil {
		return Report{}, fmt.Errorf("ingest: bulk run flush: %w", err)
	}

	rows, errs := st.snapshot()
	return Report{RowsProcessed: rows, UniqueTimestamps: ts.len(), Errors: errs}, nil
}

func (p *Pipeline) runBulkProducer(files []string, year int, buf *bulkBuffer, st *stats, ts *timestampSet) error {
	for _, path := range files {
		if err := p.runBulkProducerFile(path, year, buf, st, ts); err != nil {
			p.log.Sugar().Warnw("bulk producer failed to open file, skipping", "file", path, "error", err)
		}
	}
	return nil
}

func (p *Pipeline) runBulkProducerFile(path string, year int, buf *bulkBuffer, st *stats, ts *timestampSet) error {
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

		doy, hour, ok := dayOfYearAndHour(rec.Date, rec.Time, year)
		if !ok {
			st.addError()
			continue
		}
		meshIdx := p.resolver.Resolve(uint32(rec.Area))
		if meshIdx == meshid.NotFound {
			st.addError()
			continue
		}

		ts.add(doy*24 + hour)
		st.addRow()
		buf.set(doy, hour, meshIdx, rec.Population)
	}
}

// firstRecordYear opens files in order until it finds one valid data row,
// and captures its year as the run-level invariant every subsequent
// record is checked against.
func firstRecordYear(files []string) (int, error) {
	for _, path := range files {
		reader, err := csvsource.Open(path)
		if err != nil {
			continue
		}
		rec, err := reader.Next()
		reader.Close()
		if err != nil {
			continue
		}
		return int(rec.Date / 10000), nil
	}
	return 0, fmt.Errorf("ingest: no readable record found to determine bulk run year")
}

// dayOfYearAndHour converts a CSV record's date/time fields into a
// (day-of-year, hour) pair for the bulk buffer, rejecting records whose
// year does not match the run's captured year.
func dayOfYearAndHour(date uint32, hm uint16, year int) (dayOfYear, hour int, ok bool) {
	y := int(date / 10000)
	if y != year {
		return 0, 0, false
	}
	month := int((date / 100) % 100)
	day := int(date % 100)
	hour = int(hm / 100)
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 {
		return 0, 0, false
	}

	t := time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	jan1 := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	dayOfYear = int(t.Sub(jan1).Hours() / 24)
	return dayOfYear, hour, true
}
