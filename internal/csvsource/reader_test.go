package csvsource_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ryuzot/h5mobaku/internal/csvsource"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReaderValidRows(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "shard.csv", csvsource.Header+"\n"+
		"20160101,0100,362257341,-1,-1,-1,100\n"+
		"20160101,0100,362257342,-1,-1,-1,200\n")

	r, err := csvsource.Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint32(20160101), rec.Date)
	require.Equal(t, uint16(100), rec.Time)
	require.Equal(t, uint64(362257341), rec.Area)
	require.Equal(t, int32(100), rec.Population)

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(362257342), rec.Area)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderRejectsBadHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "shard.csv", "not,the,right,header\n100\n")

	r, err := csvsource.Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.ErrorIs(t, err, csvsource.ErrBadHeader)
}

func TestReaderDropsMalformedRowButContinues(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "shard.csv", csvsource.Header+"\n"+
		"badrow,with,too,few,fields\n"+
		"20160101,0200,362257341,-1,-1,-1,150\n")

	r, err := csvsource.Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.ErrorIs(t, err, csvsource.ErrMalformedRecord)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, int32(150), rec.Population)
}

func TestFindCSVFilesRecursesSubdirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2016", "01"), 0o755))
	writeCSV(t, filepath.Join(root, "2016", "01"), "a.csv", csvsource.Header+"\n")
	writeCSV(t, root, "b.csv", csvsource.Header+"\n")
	writeCSV(t, root, "ignore.txt", "not a csv")

	files, err := csvsource.FindCSVFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 2)
}
