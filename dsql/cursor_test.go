package dsql

import (
	"testing"

	"github.com/aep/docsql/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorStackAdvanceRetreat(t *testing.T) {
	s := NewCursorStack()
	require.Equal(t, 1, s.Page())
	require.Equal(t, 1, s.Len())

	_, ok := s.Retreat()
	require.False(t, ok, "retreat on page 1 is a no-op")
	require.Equal(t, 1, s.Page())

	c, ok := s.Advance("after-page-1")
	require.True(t, ok)
	assert.Equal(t, api.Cursor("after-page-1"), c)
	assert.Equal(t, 2, s.Page())

	c, ok = s.Advance("after-page-2")
	require.True(t, ok)
	assert.Equal(t, api.Cursor("after-page-2"), c)
	assert.Equal(t, 3, s.Page())
	assert.Equal(t, 3, s.Len())

	c, ok = s.Retreat()
	require.True(t, ok)
	assert.Equal(t, api.Cursor("after-page-1"), c, "retreat returns the cursor page 2 was fetched with")

	c, ok = s.Retreat()
	require.True(t, ok)
	assert.Equal(t, api.StartCursor, c)
	assert.Equal(t, 1, s.Page())
}

func TestCursorStackReplaysCachedCursor(t *testing.T) {
	s := NewCursorStack()
	first, _ := s.Advance("c1")
	s.Retreat()

	again, ok := s.Advance("something-else")
	require.True(t, ok)
	assert.Equal(t, first, again, "a page visited before is fetched with the cached cursor")
	assert.Equal(t, 2, s.Len())
}

func TestCursorStackAdvancePastEnd(t *testing.T) {
	s := NewCursorStack()
	s.Advance("c1")

	_, ok := s.Advance(api.StartCursor)
	require.False(t, ok)
	assert.Equal(t, 2, s.Page(), "an empty page must not move the page counter")
}

func TestCursorStackPeekDoesNotMove(t *testing.T) {
	s := NewCursorStack()
	c, ok := s.Peek("c1")
	require.True(t, ok)
	assert.Equal(t, api.Cursor("c1"), c)
	assert.Equal(t, 1, s.Page())
	assert.Equal(t, 1, s.Len())

	s.Advance("c1")
	s.Retreat()
	c, _ = s.Peek("other")
	assert.Equal(t, api.Cursor("c1"), c)
}

func TestCursorStackReset(t *testing.T) {
	s := NewCursorStack()
	s.Advance("c1")
	s.Advance("c2")
	s.Reset()
	assert.Equal(t, 1, s.Page())
	assert.Equal(t, 1, s.Len())
}
