// Package virtual implements the composition layer that stitches an
// immutable historical matrix and an appended new matrix into one logical
// time series, without copying the historical bytes.
package virtual

import (
	"fmt"

	"github.com/ryuzot/h5mobaku/internal/matrix"
)

// Composite is a logical array V[t, m] backed by two physical matrices,
// historical and new, joined at a fixed split point along the time axis:
// for t < splitT, V reads from historical (zero where m is beyond its
// width); for t >= splitT, V reads from new, offset by splitT (zero where
// m is beyond its width). The mapping is declared once at construction
// and is read-only thereafter: Composite never mutates either backing
// matrix's shape, it only dispatches reads (and, for the new slab,
// writes) to the correct one.
type Composite struct {
	historical *matrix.Matrix
	newSlab    *matrix.Matrix
	splitT     uint32
	width      uint32
}

// New builds a Composite. splitT is the historical slab's declared time
// dimension at the moment of composition: historical contributes rows
// [0, splitT) and newSlab contributes rows [splitT, splitT+T_new). The
// logical mesh width is max(N_historical, N_new) (invariant I5).
func New(historical, newSlab *matrix.Matrix, splitT uint32) (*Composite, error) {
	if historical == nil || newSlab == nil {
		return nil, fmt.Errorf("virtual: both historical and new slabs are required")
	}
	_, nh := historical.GetDimensions()
	_, nn := newSlab.GetDimensions()
	width := nh
	if nn > width {
		width = nn
	}
	return &Composite{historical: historical, newSlab: newSlab, splitT: splitT, width: width}, nil
}

// GetDimensions returns the logical (T, N) of the composed array: T grows
// with the new slab's own extension, N is the wider of the two backing
// widths.
func (c *Composite) GetDimensions() (t, n uint32) {
	tn, _ := c.newSlab.GetDimensions()
	return c.splitT + tn, c.width
}

// ReadCell dispatches to the correct backing slab; a caller never needs
// to know it opened a composed array rather than a plain one.
func (c *Composite) ReadCell(t, mesh uint32) (int32, error) {
	if t < c.splitT {
		_, nh := c.historical.GetDimensions()
		if mesh >= nh {
			return 0, nil
		}
		return c.historical.ReadCell(t, mesh)
	}

	_, nn := c.newSlab.GetDimensions()
	if mesh >= nn {
		return 0, nil
	}
	return c.newSlab.ReadCell(t-c.splitT, mesh)
}

// ReadColumnRange dispatches each row individually, splitting the window
// at splitT as needed; the result is assembled in caller order regardless
// of which backing slab a given row came from.
func (c *Composite) ReadColumnRange(t0, t1, mesh uint32) ([]int32, error) {
	if t1 < t0 {
		return nil, fmt.Errorf("virtual: t1 %d < t0 %d", t1, t0)
	}
	out := make([]int32, t1-t0+1)
	for t := t0; t <= t1; t++ {
		v, err := c.ReadCell(t, mesh)
		if err != nil {
			return nil, err
		}
		out[t-t0] = v
	}
	return out, nil
}

// ReadRowSelection dispatches to one backing slab, since a row selection
// never crosses the time split: every mesh index in meshes is read from
// whichever slab owns row t.
func (c *Composite) ReadRowSelection(t uint32, meshes []uint32) ([]int32, error) {
	if len(meshes) == 0 {
		return nil, nil
	}
	out := make([]int32, len(meshes))
	for i, mesh := range meshes {
		v, err := c.ReadCell(t, mesh)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// WriteCell writes through to the new slab only: the historical slab is
// immutable by construction (append-without-copy semantics), so a write
// at t < splitT is rejected rather than silently mutating history.
func (c *Composite) WriteCell(t, mesh uint32, v int32) error {
	if t < c.splitT {
		return fmt.Errorf("virtual: cannot write into the historical slab (t=%d < split=%d)", t, c.splitT)
	}
	return c.newSlab.WriteCell(t-c.splitT, mesh, v)
}

// ExtendTime grows the new slab only; the historical slab's time
// dimension is fixed once a Composite is built over it.
func (c *Composite) ExtendTime(newT uint32) error {
	if newT < c.splitT {
		return fmt.Errorf("virtual: cannot extend below the split point (newT=%d < split=%d)", newT, c.splitT)
	}
	return c.newSlab.ExtendTime(newT - c.splitT)
}

// Flush flushes the new slab; the historical slab is never dirtied by a
// Composite.
func (c *Composite) Flush() error { return c.newSlab.Flush() }

// SplitT returns the configured split point, for diagnostics and tests.
func (c *Composite) SplitT() uint32 { return c.splitT }
