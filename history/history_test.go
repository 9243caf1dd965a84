package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendOnly(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)

	l.Record("SELECT * FROM users", true)
	l.Record("SELECT * FROM", false)

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "SELECT * FROM users", items[0].Query)
	assert.Equal(t, StatusSuccess, items[0].Status)
	assert.Equal(t, StatusError, items[1].Status)

	items[0].Query = "changed"
	assert.Equal(t, "SELECT * FROM users", l.Items()[0].Query, "Items must hand out a copy")
}

func TestSQLitePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history.db")

	sink, err := OpenSQLite(path)
	require.NoError(t, err)
	l, err := New(sink)
	require.NoError(t, err)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.Append(Item{Query: "DELETE FROM users WHERE id = 'a'", Timestamp: ts, Status: StatusSuccess})
	l.Record("bogus", false)
	require.NoError(t, l.Close())

	sink, err = OpenSQLite(path)
	require.NoError(t, err)
	l, err = New(sink)
	require.NoError(t, err)
	defer l.Close()

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "DELETE FROM users WHERE id = 'a'", items[0].Query)
	assert.True(t, ts.Equal(items[0].Timestamp))
	assert.Equal(t, "bogus", items[1].Query)
	assert.Equal(t, StatusError, items[1].Status)
}
