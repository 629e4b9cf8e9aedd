package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	id string
	at time.Time
}

func TestPageSize(t *testing.T) {
	require.Equal(t, DefaultLimit, Pagination{}.PageSize())
	require.Equal(t, 10, Pagination{Limit: 10}.PageSize())
	require.Equal(t, MaxLimit, Pagination{Limit: 1000}.PageSize())
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	enc, err := EncodeCursor(Cursor{CreatedAt: at, ID: "42"})
	require.NoError(t, err)

	dec, err := DecodeCursor(enc)
	require.NoError(t, err)
	require.Equal(t, "42", dec.ID)
	require.True(t, at.Equal(dec.CreatedAt))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	require.Error(t, err)

	enc, err := EncodeCursor(Cursor{})
	require.NoError(t, err)
	_, err = DecodeCursor(enc)
	require.ErrorContains(t, err, "missing id")
}

func TestBuildCursorPage(t *testing.T) {
	now := time.Now()
	rows := []*row{{"3", now}, {"2", now}, {"1", now}}
	extract := func(r *row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, info, err := BuildCursorPage(rows, 2, extract)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	next, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "2", next.ID)

	page, info, err = BuildCursorPage(rows, 3, extract)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}
