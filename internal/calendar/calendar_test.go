package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ryuzot/h5mobaku/internal/calendar"
)

func TestToIndexFromEpoch(t *testing.T) {
	c, err := calendar.New("2016-01-01 00:00:00", time.UTC)
	require.NoError(t, err)

	idx, err := c.ToIndex("2016-01-01 00:00:00")
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	idx, err = c.ToIndex("2016-01-01 01:00:00")
	require.NoError(t, err)
	require.Equal(t, 1, idx)
}

func TestToIndexTruncatesMinutes(t *testing.T) {
	c, err := calendar.New("2016-01-01 00:00:00", time.UTC)
	require.NoError(t, err)

	idx, err := c.ToIndex("2016-01-01 01:59:00")
	require.NoError(t, err)
	require.Equal(t, 1, idx)
}

func TestToIndexRejectsBeforeEpoch(t *testing.T) {
	c, err := calendar.New("2016-01-01 00:00:00", time.UTC)
	require.NoError(t, err)

	_, err = c.ToIndex("2015-12-31 23:00:00")
	require.ErrorIs(t, err, calendar.ErrBeforeEpoch)
}

func TestFromIndexRoundTrip(t *testing.T) {
	c, err := calendar.New("2016-01-01 00:00:00", time.UTC)
	require.NoError(t, err)

	for _, idx := range []int{0, 1, 24, 8759, 8784} {
		s := c.FromIndex(idx)
		got, err := c.ToIndex(s)
		require.NoError(t, err)
		require.Equal(t, idx, got)
	}
}

func TestToIndexFromParts(t *testing.T) {
	c, err := calendar.New("2016-01-01 00:00:00", time.UTC)
	require.NoError(t, err)

	idx, err := c.ToIndexFromParts(20160101, 100)
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	idx2, err := c.ToIndex("2016-01-01 01:00:00")
	require.NoError(t, err)
	require.Equal(t, idx2, idx)
}
