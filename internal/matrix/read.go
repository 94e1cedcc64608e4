package matrix

import "fmt"

// Block is one (dcol0, mcol0, ncols) triple in a block-union read plan: the
// ncols-wide run of source mesh columns starting at dcol0 is copied into
// the destination buffer starting at mcol0, for every row in the shared
// row window.
type Block struct {
	DCol0 uint32
	MCol0 uint32
	NCols uint32
}

func (m *Matrix) checkBounds(t uint32) error {
	m.mu.Lock()
	tt := m.t
	m.mu.Unlock()
	if t >= tt {
		return fmt.Errorf("%w: row %d >= T %d", ErrOutOfBounds, t, tt)
	}
	return nil
}

func (m *Matrix) checkMeshBounds(mesh uint32) error {
	if mesh >= m.n {
		return fmt.Errorf("%w: column %d >= N %d", ErrOutOfBounds, mesh, m.n)
	}
	return nil
}

// ReadCell returns the value at (t, mesh).
func (m *Matrix) ReadCell(t, mesh uint32) (int32, error) {
	if err := m.checkBounds(t); err != nil {
		return 0, err
	}
	if err := m.checkMeshBounds(mesh); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	row, col, offRow, offCol := m.geom.chunkCoord(t, mesh)
	entry, err := m.loadChunk(row, col)
	if err != nil {
		return 0, err
	}
	return entry.data[offRow*m.geom.ChunkM+offCol], nil
}

// ReadRowSelection reads the cells at row t for each mesh index in meshes,
// in request order; meshes may be unsorted and may repeat. An empty
// meshes slice yields an empty, non-error result (boundary behavior B4).
func (m *Matrix) ReadRowSelection(t uint32, meshes []uint32) ([]int32, error) {
	if len(meshes) == 0 {
		return nil, nil
	}
	if err := m.checkBounds(t); err != nil {
		return nil, err
	}
	for _, mesh := range meshes {
		if err := m.checkMeshBounds(mesh); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]int32, len(meshes))
	for i, mesh := range meshes {
		row, col, offRow, offCol := m.geom.chunkCoord(t, mesh)
		entry, err := m.loadChunk(row, col)
		if err != nil {
			return nil, err
		}
		out[i] = entry.data[offRow*m.geom.ChunkM+offCol]
	}
	return out, nil
}

// ReadHyperslab reads count consecutive mesh columns starting at start, for
// row t, in column order. It is the dedicated code path the selection
// planner's ContiguousHyperslab strategy dispatches to: functionally
// equivalent to ReadRowSelection over an explicit ascending list, but
// without building that list, mirroring the reference engine's decision to
// treat a gap-free ascending run as a single hyperslab read rather than a
// one-block union.
func (m *Matrix) ReadHyperslab(t, start, count uint32) ([]int32, error) {
	if count == 0 {
		return nil, nil
	}
	if err := m.checkBounds(t); err != nil {
		return nil, err
	}
	if err := m.checkMeshBounds(start + count - 1); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]int32, count)
	for i := uint32(0); i < count; i++ {
		row, col, offRow, offCol := m.geom.chunkCoord(t, start+i)
		entry, err := m.loadChunk(row, col)
		if err != nil {
			return nil, err
		}
		out[i] = entry.data[offRow*m.geom.ChunkM+offCol]
	}
	return out, nil
}

// ReadColumnRange reads the cells for one mesh index across the row
// window [t0, t1], inclusive, returning t1-t0+1 values.
func (m *Matrix) ReadColumnRange(t0, t1, mesh uint32) ([]int32, error) {
	if t1 < t0 {
		return nil, fmt.Errorf("%w: t1 %d < t0 %d", ErrOutOfBounds, t1, t0)
	}
	if err := m.checkBounds(t1); err != nil {
		return nil, err
	}
	if err := m.checkMeshBounds(mesh); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]int32, t1-t0+1)
	for t := t0; t <= t1; t++ {
		row, col, offRow, offCol := m.geom.chunkCoord(t, mesh)
		entry, err := m.loadChunk(row, col)
		if err != nil {
			return nil, err
		}
		out[t-t0] = entry.data[offRow*m.geom.ChunkM+offCol]
	}
	return out, nil
}

// ReadBlockUnion reads nrows rows starting at t0, assembling a dense,
// row-major buffer from the supplied blocks: for each block, the
// ncols-wide source run [dcol0, dcol0+ncols) is copied into destination
// columns [mcol0, mcol0+ncols). The destination width is the widest
// (mcol0+ncols) across all blocks, i.e. the size of the original mesh
// selection the blocks were built from.
func (m *Matrix) ReadBlockUnion(t0, nrows uint32, blocks []Block) ([]int32, uint32, error) {
	if len(blocks) == 0 {
		return nil, 0, nil
	}
	if err := m.checkBounds(t0 + nrows - 1); err != nil {
		return nil, 0, err
	}

	var destWidth uint32
	for _, b := range blocks {
		if err := m.checkMeshBounds(b.DCol0 + b.NCols - 1); err != nil {
			return nil, 0, err
		}
		if end := b.MCol0 + b.NCols; end > destWidth {
			destWidth = end
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]int32, nrows*destWidth)
	for r := uint32(0); r < nrows; r++ {
		t := t0 + r
		for _, b := range blocks {
			for c := uint32(0); c < b.NCols; c++ {
				row, col, offRow, offCol := m.geom.chunkCoord(t, b.DCol0+c)
				entry, err := m.loadChunk(row, col)
				if err != nil {
					return nil, 0, err
				}
				out[r*destWidth+b.MCol0+c] = entry.data[offRow*m.geom.ChunkM+offCol]
			}
		}
	}
	return out, destWidth, nil
}
