package matrix

import "fmt"

// WriteCell writes v at (t, mesh). The cell must be within the currently
// declared dimensions; callers that need to grow the time axis call
// ExtendTime first.
func (m *Matrix) WriteCell(t, mesh uint32, v int32) error {
	if m.readOnly {
		return ErrReadOnly
	}
	if err := m.checkBounds(t); err != nil {
		return err
	}
	if err := m.checkMeshBounds(mesh); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	row, col, offRow, offCol := m.geom.chunkCoord(t, mesh)
	entry, err := m.dirtyChunk(row, col)
	if err != nil {
		return err
	}
	entry.data[offRow*m.geom.ChunkM+offCol] = v
	return nil
}

// WriteRowSelection writes values[i] at (t, meshes[i]) for each i. len(meshes)
// must equal len(values).
func (m *Matrix) WriteRowSelection(t uint32, meshes []uint32, values []int32) error {
	if m.readOnly {
		return ErrReadOnly
	}
	if len(meshes) != len(values) {
		return fmt.Errorf("matrix: mesh/value count mismatch: %d meshes, %d values", len(meshes), len(values))
	}
	if len(meshes) == 0 {
		return nil
	}
	if err := m.checkBounds(t); err != nil {
		return err
	}
	for _, mesh := range meshes {
		if err := m.checkMeshBounds(mesh); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, mesh := range meshes {
		row, col, offRow, offCol := m.geom.chunkCoord(t, mesh)
		entry, err := m.dirtyChunk(row, col)
		if err != nil {
			return err
		}
		entry.data[offRow*m.geom.ChunkM+offCol] = values[i]
	}
	return nil
}

// WriteBulk writes a dense, row-major buffer of shape rows x cols into the
// matrix starting at time offset t0. It is the consumer-side counterpart
// of the ingestion pipeline's bulk-year mode: one call assembles into the
// chunk cache everything a whole calendar year of streaming writes would
// otherwise have produced one cell at a time.
func (m *Matrix) WriteBulk(buffer []int32, t0, rows, cols uint32) error {
	if m.readOnly {
		return ErrReadOnly
	}
	if uint32(len(buffer)) != rows*cols {
		return fmt.Errorf("matrix: bulk buffer size mismatch: want %d, got %d", rows*cols, len(buffer))
	}
	if rows == 0 {
		return nil
	}
	if err := m.checkBounds(t0 + rows - 1); err != nil {
		return err
	}
	if cols > 0 {
		if err := m.checkMeshBounds(cols - 1); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for r := uint32(0); r < rows; r++ {
		t := t0 + r
		for c := uint32(0); c < cols; c++ {
			v := buffer[r*cols+c]
			if v == 0 {
				// Unwritten cells already read back as zero; skip the
				// dirty-chunk round trip for the common case of a mostly
				// sparse bulk buffer.
				continue
			}
			row, col, offRow, offCol := m.geom.chunkCoord(t, c)
			entry, err := m.dirtyChunk(row, col)
			if err != nil {
				return err
			}
			entry.data[offRow*m.geom.ChunkM+offCol] = v
		}
	}
	return nil
}
