package virtual_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/ryuzot/h5mobaku/internal/matrix"
	"github.com/ryuzot/h5mobaku/internal/virtual"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "composite.h5mobaku")
	db, err := bbolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCompositeReadsSplitAcrossSlabs(t *testing.T) {
	db := openTestDB(t)

	hist, err := matrix.Create(db, "population_data", matrix.DefaultGeometry, 4, "2016-01-01 00:00:00", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, hist.ExtendTime(10))
	require.NoError(t, hist.WriteCell(5, 1, 111))

	newSlab, err := matrix.Create(db, "population_new", matrix.DefaultGeometry, 4, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, newSlab.ExtendTime(5))
	require.NoError(t, newSlab.WriteCell(2, 1, 222))

	comp, err := virtual.New(hist, newSlab, 10)
	require.NoError(t, err)

	v, err := comp.ReadCell(5, 1)
	require.NoError(t, err)
	require.Equal(t, int32(111), v)

	v, err = comp.ReadCell(12, 1)
	require.NoError(t, err)
	require.Equal(t, int32(222), v)

	tdim, ndim := comp.GetDimensions()
	require.Equal(t, uint32(15), tdim)
	require.Equal(t, uint32(4), ndim)
}

func TestCompositeWidthIsMaxOfBoth(t *testing.T) {
	db := openTestDB(t)

	hist, err := matrix.Create(db, "population_data", matrix.DefaultGeometry, 4, "2016-01-01 00:00:00", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, hist.ExtendTime(1))

	newSlab, err := matrix.Create(db, "population_new", matrix.DefaultGeometry, 9, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, newSlab.ExtendTime(1))
	require.NoError(t, newSlab.WriteCell(0, 8, 77))

	comp, err := virtual.New(hist, newSlab, 1)
	require.NoError(t, err)

	_, n := comp.GetDimensions()
	require.Equal(t, uint32(9), n)

	// Historical slab is narrower: a mesh column beyond N_h reads back as
	// zero rather than an out-of-bounds error when t is in the historical
	// range.
	v, err := comp.ReadCell(0, 8)
	require.NoError(t, err)
	require.Equal(t, int32(0), v)

	v, err = comp.ReadCell(1, 8)
	require.NoError(t, err)
	require.Equal(t, int32(77), v)
}

func TestCompositeRejectsWriteIntoHistory(t *testing.T) {
	db := openTestDB(t)

	hist, err := matrix.Create(db, "population_data", matrix.DefaultGeometry, 4, "2016-01-01 00:00:00", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, hist.ExtendTime(10))

	newSlab, err := matrix.Create(db, "population_new", matrix.DefaultGeometry, 4, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, newSlab.ExtendTime(1))

	comp, err := virtual.New(hist, newSlab, 10)
	require.NoError(t, err)

	err = comp.WriteCell(3, 0, 1)
	require.Error(t, err)
}

func TestCompositeReadColumnRangeCrossesSplit(t *testing.T) {
	db := openTestDB(t)

	hist, err := matrix.Create(db, "population_data", matrix.DefaultGeometry, 2, "2016-01-01 00:00:00", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, hist.ExtendTime(3))
	require.NoError(t, hist.WriteCell(2, 0, 9))

	newSlab, err := matrix.Create(db, "population_new", matrix.DefaultGeometry, 2, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, newSlab.ExtendTime(2))
	require.NoError(t, newSlab.WriteCell(0, 0, 5))

	comp, err := virtual.New(hist, newSlab, 3)
	require.NoError(t, err)

	vals, err := comp.ReadColumnRange(2, 3, 0)
	require.NoError(t, err)
	require.Equal(t, []int32{9, 5}, vals)
}
