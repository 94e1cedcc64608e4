// Package csvsource reads the fixed 7-field population CSV format into
// validated Records, one line at a time.
package csvsource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrBadHeader is returned by Open (via the first Next call) when the
// first line of a shard is not the exact expected header.
var ErrBadHeader = errors.New("csvsource: header line does not match expected format")

// ErrMalformedRecord wraps every per-record parse failure: wrong field
// count, a field that isn't a base-10 integer, or a field out of its
// destination's range.
var ErrMalformedRecord = errors.New("csvsource: malformed record")

// Reader is a line-oriented reader over one CSV shard. It validates the
// header on the first call to Next and then yields one Record per
// subsequent call. A malformed header is fatal; a malformed data row is
// reported as ErrMalformedRecord without stopping the reader, so the
// ingestion pipeline can count it as an error and continue to the next
// line.
type Reader struct {
	f          *os.File
	scanner    *bufio.Scanner
	lineNumber int
	headerOK   bool
}

// Open opens path and prepares to read it; the header line is validated
// lazily, on the first Next call, matching the reference reader's
// "validate on first read" behavior.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvsource: open %s: %w", path, err)
	}
	return &Reader{f: f, scanner: bufio.NewScanner(f)}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// LineNumber returns the 1-based line number of the most recently read
// line, for diagnostics.
func (r *Reader) LineNumber() int { return r.lineNumber }

// Next returns the next validated Record, io.EOF once the shard is
// exhausted, or ErrBadHeader/ErrMalformedRecord. Callers should treat
// ErrMalformedRecord as "drop this record and keep reading" and anything
// else as fatal for this reader.
func (r *Reader) Next() (*Record, error) {
	if !r.headerOK {
		if !r.scanner.Scan() {
			return nil, io.EOF
		}
		r.lineNumber++
		if strings.TrimRight(r.scanner.Text(), "\r") != Header {
			return nil, ErrBadHeader
		}
		r.headerOK = true
	}

	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, fmt.Errorf("csvsource: read line %d: %w", r.lineNumber+1, err)
		}
		return nil, io.EOF
	}
	r.lineNumber++

	line := strings.TrimRight(r.scanner.Text(), "\r")
	return parseRecord(line)
}

func parseRecord(line string) (*Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 7 {
		return nil, fmt.Errorf("%w: expected 7 fields, got %d", ErrMalformedRecord, len(fields))
	}

	date, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: date: %v", ErrMalformedRecord, err)
	}
	t, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: time: %v", ErrMalformedRecord, err)
	}
	area, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: area: %v", ErrMalformedRecord, err)
	}
	residence, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: residence: %v", ErrMalformedRecord, err)
	}
	age, err := strconv.ParseInt(fields[4], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: age: %v", ErrMalformedRecord, err)
	}
	gender, err := strconv.ParseInt(fields[5], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: gender: %v", ErrMalformedRecord, err)
	}
	population, err := strconv.ParseInt(fields[6], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: population: %v", ErrMalformedRecord, err)
	}

	return &Record{
		Date:       uint32(date),
		Time:       uint16(t),
		Area:       area,
		Residence:  int32(residence),
		Age:        int32(age),
		Gender:     int32(gender),
		Population: int32(population),
	}, nil
}

// FindCSVFiles recursively walks dir and returns every file whose name
// ends in ".csv", visiting each directory's entries in file-name order (as
// os.ReadDir returns them). It mirrors the
// reference implementation's recursive directory walk (find_csv_files)
// rather than depending on filepath.Glob, since shards are organized in
// arbitrarily nested subdirectories by the upstream exporter.
func FindCSVFiles(dir string) ([]string, error) {
	var out []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("csvsource: read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		full := dir + string(os.PathSeparator) + entry.Name()
		if entry.IsDir() {
			sub, err := FindCSVFiles(full)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if strings.HasSuffix(entry.Name(), ".csv") {
			out = append(out, full)
		}
	}
	return out, nil
}
