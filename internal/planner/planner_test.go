package planner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ryuzot/h5mobaku/internal/planner"
)

func TestSingleCell(t *testing.T) {
	p := planner.Plan([]uint32{42})
	require.Equal(t, planner.SingleCell, p.Strategy)
	require.Equal(t, uint32(42), p.Cell)
}

func TestContiguousHyperslab(t *testing.T) {
	p := planner.Plan([]uint32{5, 6, 7, 8})
	require.Equal(t, planner.ContiguousHyperslab, p.Strategy)
	require.Equal(t, uint32(5), p.HyperslabStart)
	require.Equal(t, uint32(4), p.HyperslabCount)
}

func TestBlockUnionForFewWideBlocks(t *testing.T) {
	meshes := make([]uint32, 0, 10000)
	base := uint32(0)
	for i := 0; i < 4; i++ {
		for j := uint32(0); j < 2500; j++ {
			meshes = append(meshes, base+j)
		}
		base += 5000
	}
	p := planner.Plan(meshes)
	require.Equal(t, planner.BlockUnion, p.Strategy)
	require.Len(t, p.Blocks, 4)
}

func TestElementListForManySmallBlocks(t *testing.T) {
	meshes := make([]uint32, 0, 400)
	for i := uint32(0); i < 200; i++ {
		meshes = append(meshes, i*10, i*10+1)
	}
	p := planner.Plan(meshes)
	require.Equal(t, planner.ElementList, p.Strategy)
	require.Len(t, p.Elements, len(meshes))
}

func TestEmptySelectionYieldsBlockUnionWithNoBlocks(t *testing.T) {
	p := planner.Plan(nil)
	require.Equal(t, planner.BlockUnion, p.Strategy)
	require.Empty(t, p.Blocks)
}

func TestUnsortedSelectionIsNotTreatedAsContiguous(t *testing.T) {
	p := planner.Plan([]uint32{8, 7, 6, 5})
	require.NotEqual(t, planner.ContiguousHyperslab, p.Strategy)
}
