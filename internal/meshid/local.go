package meshid

// LocalResolver is a minimal perfect hash over an ad-hoc subset of mesh
// keys, such as the ~25,600 fine meshes nested inside one coarse
// (1st-level) mesh cell. It shares Resolver's resolve contract but its
// dense index space is private to the subset, not the store's universe.
type LocalResolver struct {
	resolver *Resolver
}

// NewLocalResolver builds a LocalResolver over an arbitrary (non-empty,
// deduplicated) set of mesh keys. It never carries the global 10-digit
// exception: local subsets are synthetic groupings the caller constructs,
// not slices of the persisted universe.
func NewLocalResolver(keys []uint32) (*LocalResolver, error) {
	r, err := NewResolver(keys, false)
	if err != nil {
		return nil, err
	}
	return &LocalResolver{resolver: r}, nil
}

// Resolve maps key to its position within the subset, or NotFound.
func (l *LocalResolver) Resolve(key uint32) uint32 { return l.resolver.Resolve(key) }

// Reverse maps a subset-local index back to its mesh key.
func (l *LocalResolver) Reverse(index uint32) (uint32, bool) { return l.resolver.Reverse(index) }

// Len returns the size of the subset.
func (l *LocalResolver) Len() int { return l.resolver.Len() }

// FirstMeshSubset enumerates the 25,600 fine mesh keys nested inside one
// coarse (1st-level) mesh cell, in the fixed nested-loop order the source
// format defines: an 8x8 grid of 2nd-level cells, each split into a 10x10
// grid of 3rd-level cells, each split into 4 quadrants numbered 1-4.
//
// meshID1 is expected to be the 4-digit 1st-level mesh code; the returned
// keys are the full 9-digit mesh keys meshID1*100000 + ... + quadrant.
func FirstMeshSubset(meshID1 uint32) []uint32 {
	const (
		secondLevel = 8
		thirdLevelR = 10
		thirdLevelW = 10
		quadrants   = 4
	)
	ids := make([]uint32, 0, secondLevel*secondLevel*thirdLevelR*thirdLevelW*quadrants)
	for q := uint32(0); q < secondLevel; q++ {
		for v := uint32(0); v < secondLevel; v++ {
			for r := uint32(0); r < thirdLevelR; r++ {
				for w := uint32(0); w < thirdLevelW; w++ {
					for s := uint32(0); s < quadrants; s++ {
						m := s + 1
						ids = append(ids, meshID1*100000+q*10000+v*1000+r*100+w*10+m)
					}
				}
			}
		}
	}
	return ids
}
