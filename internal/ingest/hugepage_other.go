//go:build !linux

package ingest

// adviseHugePage is a no-op outside Linux; MADV_HUGEPAGE has no portable
// equivalent, and the bulk buffer works fine on regular pages elsewhere.
func adviseHugePage(buf []byte) {}
