package dsql

import "github.com/aep/docsql/api"

// CursorStack remembers the cursor used to fetch every page visited so far,
// so paging back replays a page instead of rescanning. Entry n-1 fetches
// page n; entry 0 is always the start of the collection.
type CursorStack struct {
	cursors []api.Cursor
	page    int
}

func NewCursorStack() *CursorStack {
	s := &CursorStack{}
	s.Reset()
	return s
}

func (s *CursorStack) Reset() {
	s.cursors = []api.Cursor{api.StartCursor}
	s.page = 1
}

func (s *CursorStack) Page() int {
	return s.page
}

func (s *CursorStack) Len() int {
	return len(s.cursors)
}

// Peek returns the cursor Advance would fetch the next page with, without
// moving.
func (s *CursorStack) Peek(returned api.Cursor) (api.Cursor, bool) {
	if returned == api.StartCursor {
		return api.StartCursor, false
	}
	if len(s.cursors) > s.page {
		return s.cursors[s.page], true
	}
	return returned, true
}

// Advance moves to the next page. returned is the cursor the current page
// reported; it is only recorded the first time the next page is entered.
// Without a cursor the current page was empty and nothing happens.
func (s *CursorStack) Advance(returned api.Cursor) (api.Cursor, bool) {
	if returned == api.StartCursor {
		return api.StartCursor, false
	}
	if len(s.cursors) <= s.page {
		s.cursors = append(s.cursors, returned)
	}
	s.page++
	return s.cursors[s.page-1], true
}

// PeekBack returns the cursor Retreat would fetch with, without moving.
func (s *CursorStack) PeekBack() (api.Cursor, bool) {
	if s.page <= 1 {
		return api.StartCursor, false
	}
	return s.cursors[s.page-2], true
}

// Retreat moves to the previous page and returns the cursor to fetch it
// with. Nothing happens on the first page.
func (s *CursorStack) Retreat() (api.Cursor, bool) {
	if s.page <= 1 {
		return api.StartCursor, false
	}
	s.page--
	return s.cursors[s.page-1], true
}
