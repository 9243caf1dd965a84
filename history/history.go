// Package history records every statement a user ran, in the order it ran.
package history

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type Item struct {
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
}

// Sink persists items beyond the lifetime of a Log.
type Sink interface {
	Append(Item) error
	Load() ([]Item, error)
	Close() error
}

// Log is append-only. Items are never changed once recorded.
type Log struct {
	mu    sync.Mutex
	items []Item
	sink  Sink
	now   func() time.Time
}

// New creates a log, preloaded from sink when one is given.
func New(sink Sink) (*Log, error) {
	l := &Log{sink: sink, now: time.Now}
	if sink != nil {
		items, err := sink.Load()
		if err != nil {
			return nil, err
		}
		l.items = items
	}
	return l, nil
}

func (l *Log) Record(query string, ok bool) Item {
	status := StatusSuccess
	if !ok {
		status = StatusError
	}
	item := Item{Query: query, Timestamp: l.now(), Status: status}
	l.Append(item)
	return item
}

func (l *Log) Append(item Item) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, item)
	if l.sink != nil {
		if err := l.sink.Append(item); err != nil {
			slog.Warn("[history].Append: sink failed", "err", err)
		}
	}
}

// Items returns a copy, oldest first.
func (l *Log) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *Log) Close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}
