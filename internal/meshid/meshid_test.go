package meshid_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ryuzot/h5mobaku/internal/meshid"
)

// buildUniverse returns n keys suitable for a withException=true resolver:
// n-1 ordinary 9-digit keys followed by the exceptional key in the final
// slot, exactly as meshid.Verify now requires.
func buildUniverse(n int) []uint32 {
	u := make([]uint32, n)
	key := uint32(100000001)
	for i := 0; i < n-1; i++ {
		u[i] = key
		key += 7 // irregular stride so keys are not contiguous
	}
	u[n-1] = meshid.ExceptionKey
	return u
}

func TestResolverRoundTrip(t *testing.T) {
	universe := buildUniverse(5000)
	r, err := meshid.NewResolver(universe, true)
	require.NoError(t, err)

	for i, key := range universe {
		idx := r.Resolve(key)
		require.Equal(t, uint32(i), idx, "key %d", key)

		got, ok := r.Reverse(idx)
		require.True(t, ok)
		require.Equal(t, key, got)
	}
}

func TestResolverBoundaryIndices(t *testing.T) {
	universe := buildUniverse(1000)
	r, err := meshid.NewResolver(universe, true)
	require.NoError(t, err)

	first := r.Resolve(universe[0])
	require.Equal(t, uint32(0), first)

	last := r.Resolve(universe[len(universe)-1])
	require.Equal(t, uint32(len(universe)-1), last)
}

func TestResolverExceptionalKey(t *testing.T) {
	universe := buildUniverse(1000)
	r, err := meshid.NewResolver(universe, true)
	require.NoError(t, err)

	idx := r.Resolve(meshid.ExceptionKey)
	require.Equal(t, uint32(len(universe)-1), idx)

	key, ok := r.Reverse(idx)
	require.True(t, ok)
	require.Equal(t, meshid.ExceptionKey, key, "reverse(resolve(exceptionKey)) must round-trip")
}

func TestNewResolverRejectsMisplacedExceptionKey(t *testing.T) {
	universe := buildUniverse(1000)
	// Swap the exception key out of the final slot: now nothing in the
	// universe occupies it, so withException=true must be rejected rather
	// than silently shadowing whatever real key the hash routes there.
	universe[len(universe)-1] = 999999997

	_, err := meshid.NewResolver(universe, true)
	require.ErrorIs(t, err, meshid.ErrIntegrityCheck)
}

func TestResolverRejectsOutOfRangeDigitCount(t *testing.T) {
	universe := buildUniverse(1000)
	r, err := meshid.NewResolver(universe, true)
	require.NoError(t, err)

	require.Equal(t, meshid.NotFound, r.Resolve(99999999))
	require.Equal(t, meshid.NotFound, r.Resolve(1000000000))
}

func TestResolverRejectsUnknownKeyInRange(t *testing.T) {
	universe := buildUniverse(1000)
	r, err := meshid.NewResolver(universe, true)
	require.NoError(t, err)

	require.Equal(t, meshid.NotFound, r.Resolve(999999998))
}

func TestResolverMarshalRoundTrip(t *testing.T) {
	universe := buildUniverse(2000)
	r, err := meshid.NewResolver(universe, true)
	require.NoError(t, err)

	loaded, err := meshid.LoadResolver(universe, r.TableBytes(), true)
	require.NoError(t, err)

	for _, key := range universe {
		require.Equal(t, r.Resolve(key), loaded.Resolve(key))
	}
}

func TestFirstMeshSubsetCount(t *testing.T) {
	ids := meshid.FirstMeshSubset(5339)
	require.Len(t, ids, 25600)

	seen := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	require.Len(t, seen, 25600, "all generated ids must be distinct")
}

func TestLocalResolverOverFirstMeshSubset(t *testing.T) {
	ids := meshid.FirstMeshSubset(5339)
	lr, err := meshid.NewLocalResolver(ids)
	require.NoError(t, err)

	for i, id := range ids {
		require.Equal(t, uint32(i), lr.Resolve(id))
	}
}
