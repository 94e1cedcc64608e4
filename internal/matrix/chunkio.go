package matrix

import "go.etcd.io/bbolt"

// loadChunk returns the decoded chunk page at (row, col), consulting the
// cache first. A page that was never written decodes as an all-zero
// buffer of the right size rather than triggering an error: the fill
// value for an unwritten cell is 0 (invariant P3), and allocating pages
// lazily means extend_time never has to eagerly zero the whole new region.
func (m *Matrix) loadChunk(row, col uint32) (*cacheEntry, error) {
	key := makeChunkKey(row, col)
	if entry, ok := m.cache.get(key); ok {
		return entry, nil
	}

	cells := int(m.geom.cellsPerChunk())
	var data []int32
	err := m.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(m.bucket)
		if b == nil {
			return ErrNotFound
		}
		chunks := b.Bucket(chunksBucketName)
		if chunks == nil {
			return ErrNotFound
		}
		raw := chunks.Get(encodeChunkCoordKey(row, col))
		if raw == nil {
			data = make([]int32, cells)
			return nil
		}
		data = decodeChunkPayload(raw, cells)
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry := &cacheEntry{key: key, data: data}
	m.cache.put(entry)
	return entry, nil
}

// dirtyChunk is loadChunk followed by marking the page dirty, used by
// every write path before mutating a cell in place.
func (m *Matrix) dirtyChunk(row, col uint32) (*cacheEntry, error) {
	entry, err := m.loadChunk(row, col)
	if err != nil {
		return nil, err
	}
	entry.dirty = true
	if _, cached := m.cache.entries[entry.key]; !cached {
		// loadChunk's put evicts this page straight away when it is the
		// only clean entry in an over-full cache; re-insert it now that it
		// is dirty so the write is kept until the next flush.
		m.cache.put(entry)
	}
	return entry, nil
}
