package matrix_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/ryuzot/h5mobaku/internal/matrix"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.h5mobaku")
	db, err := bbolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func smallGeometry() matrix.Geometry {
	return matrix.Geometry{ChunkT: 4, ChunkM: 4}
}

func TestCreateOpenRoundTrip(t *testing.T) {
	db := openTestDB(t)

	m, err := matrix.Create(db, "population_data", smallGeometry(), 10, "2016-01-01 00:00:00", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ExtendTime(20))
	require.NoError(t, m.WriteCell(5, 3, 42))
	require.NoError(t, m.Flush())

	reopened, err := matrix.Open(db, "population_data", true, matrix.CacheOptions{})
	require.NoError(t, err)

	v, err := reopened.ReadCell(5, 3)
	require.NoError(t, err)
	require.Equal(t, int32(42), v)

	epoch, err := reopened.StartDatetime()
	require.NoError(t, err)
	require.Equal(t, "2016-01-01 00:00:00", epoch)
}

func TestUnwrittenCellsReadZero(t *testing.T) {
	db := openTestDB(t)
	m, err := matrix.Create(db, "population_data", smallGeometry(), 10, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ExtendTime(10))

	v, err := m.ReadCell(9, 9)
	require.NoError(t, err)
	require.Equal(t, int32(0), v)
}

func TestWriteCellOutOfBounds(t *testing.T) {
	db := openTestDB(t)
	m, err := matrix.Create(db, "population_data", smallGeometry(), 10, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ExtendTime(10))

	_, err = m.ReadCell(10, 0)
	require.ErrorIs(t, err, matrix.ErrOutOfBounds)
	err = m.WriteCell(0, 10, 1)
	require.ErrorIs(t, err, matrix.ErrOutOfBounds)
}

func TestExtendTimeNoopAndShrink(t *testing.T) {
	db := openTestDB(t)
	m, err := matrix.Create(db, "population_data", smallGeometry(), 10, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ExtendTime(10))

	require.NoError(t, m.ExtendTime(10))
	err = m.ExtendTime(5)
	require.ErrorIs(t, err, matrix.ErrShrink)
}

func TestReadOnlyHandleRejectsWrites(t *testing.T) {
	db := openTestDB(t)
	_, err := matrix.Create(db, "population_data", smallGeometry(), 10, "", matrix.CacheOptions{})
	require.NoError(t, err)

	ro, err := matrix.Open(db, "population_data", true, matrix.CacheOptions{})
	require.NoError(t, err)

	err = ro.WriteCell(0, 0, 1)
	require.ErrorIs(t, err, matrix.ErrReadOnly)
}

func TestRowSelectionUnsortedAndRepeated(t *testing.T) {
	db := openTestDB(t)
	m, err := matrix.Create(db, "population_data", smallGeometry(), 10, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ExtendTime(4))

	require.NoError(t, m.WriteCell(0, 1, 11))
	require.NoError(t, m.WriteCell(0, 5, 55))

	got, err := m.ReadRowSelection(0, []uint32{5, 1, 5})
	require.NoError(t, err)
	require.Equal(t, []int32{55, 11, 55}, got)
}

func TestEmptySelectionIsNotAnError(t *testing.T) {
	db := openTestDB(t)
	m, err := matrix.Create(db, "population_data", smallGeometry(), 10, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ExtendTime(1))

	got, err := m.ReadRowSelection(0, nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestColumnRange(t *testing.T) {
	db := openTestDB(t)
	m, err := matrix.Create(db, "population_data", smallGeometry(), 10, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ExtendTime(3))
	require.NoError(t, m.WriteCell(1, 0, 100))
	require.NoError(t, m.WriteCell(2, 0, 150))

	got, err := m.ReadColumnRange(0, 2, 0)
	require.NoError(t, err)
	require.Equal(t, []int32{0, 100, 150}, got)
}

func TestReadHyperslab(t *testing.T) {
	db := openTestDB(t)
	m, err := matrix.Create(db, "population_data", smallGeometry(), 10, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ExtendTime(1))
	require.NoError(t, m.WriteCell(0, 2, 10))
	require.NoError(t, m.WriteCell(0, 3, 20))
	require.NoError(t, m.WriteCell(0, 4, 30))

	got, err := m.ReadHyperslab(0, 2, 3)
	require.NoError(t, err)
	require.Equal(t, []int32{10, 20, 30}, got)

	empty, err := m.ReadHyperslab(0, 0, 0)
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestBlockUnionMatchesCellOracle(t *testing.T) {
	db := openTestDB(t)
	m, err := matrix.Create(db, "population_data", smallGeometry(), 12, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ExtendTime(2))

	for row := uint32(0); row < 2; row++ {
		for mesh := uint32(0); mesh < 12; mesh++ {
			require.NoError(t, m.WriteCell(row, mesh, int32(row*100+mesh)))
		}
	}

	blocks := []matrix.Block{
		{DCol0: 0, MCol0: 0, NCols: 3},
		{DCol0: 8, MCol0: 3, NCols: 4},
	}
	buf, width, err := m.ReadBlockUnion(0, 2, blocks)
	require.NoError(t, err)
	require.EqualValues(t, 7, width)

	for r := uint32(0); r < 2; r++ {
		for i := uint32(0); i < 3; i++ {
			require.Equal(t, int32(r*100+i), buf[r*width+i])
		}
		for i := uint32(0); i < 4; i++ {
			require.Equal(t, int32(r*100+8+i), buf[r*width+3+i])
		}
	}
}

func TestFlushInvalidatesDirtyReadCopies(t *testing.T) {
	db := openTestDB(t)
	m, err := matrix.Create(db, "population_data", smallGeometry(), 4, "", matrix.CacheOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ExtendTime(4))
	require.NoError(t, m.WriteCell(0, 0, 7))
	require.NoError(t, m.Flush())

	v, err := m.ReadCell(0, 0)
	require.NoError(t, err)
	require.Equal(t, int32(7), v)
}
