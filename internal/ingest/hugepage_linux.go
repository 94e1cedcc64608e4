//go:build linux

package ingest

import "golang.org/x/sys/unix"

// adviseHugePage asks the kernel to back buf with transparent huge pages
// where available. It is a hint only: a failure here never aborts the
// bulk-year run, it just means the allocation stays on regular pages.
func adviseHugePage(buf []byte) {
	_ = unix.Madvise(buf, unix.MADV_HUGEPAGE)
}
