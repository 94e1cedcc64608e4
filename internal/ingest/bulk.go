package ingest

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// HoursPerYear returns 8784 for a leap year and 8760 otherwise (boundary
// behavior B5).
func HoursPerYear(year int) uint32 {
	if isLeapYear(year) {
		return 8784
	}
	return 8760
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// bulkBuffer is the dense, row-major, one-calendar-year accumulation
// buffer bulk-year mode writes directly into, bypassing the bounded
// queue entirely. It is allocated via an anonymous mmap rather than a
// plain slice so it can request huge-page-eligible backing memory for
// the ~51 GiB full-mesh-width case; a mapping failure falls back to a
// regular slice. newBulkBuffer returns an error (on which the pipeline
// falls back from bulk mode to streaming mode) only when the buffer would
// be empty; a failure of the regular-slice allocation is not caught.
type bulkBuffer struct {
	data []int32
	raw  []byte // non-nil only when backed by an mmap, for Close to unmap
	rows uint32
	cols uint32
	year int
}

func newBulkBuffer(year int, cols uint32) (*bulkBuffer, error) {
	rows := HoursPerYear(year)
	cells := uint64(rows) * uint64(cols)
	byteSize := cells * 4
	if byteSize == 0 {
		return nil, fmt.Errorf("ingest: bulk buffer would be empty (rows=%d cols=%d)", rows, cols)
	}

	raw, err := unix.Mmap(-1, 0, int(byteSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		data := make([]int32, cells)
		return &bulkBuffer{data: data, rows: rows, cols: cols, year: year}, nil
	}
	adviseHugePage(raw)

	data := unsafe.Slice((*int32)(unsafe.Pointer(&raw[0])), cells)
	return &bulkBuffer{data: data, raw: raw, rows: rows, cols: cols, year: year}, nil
}

func (b *bulkBuffer) set(dayOfYear, hour int, meshIndex uint32, value int32) {
	row := uint32(dayOfYear)*24 + uint32(hour)
	b.data[uint64(row)*uint64(b.cols)+uint64(meshIndex)] = value
}

func (b *bulkBuffer) close() error {
	if b.raw != nil {
		return unix.Munmap(b.raw)
	}
	return nil
}
