// Package events carries document change notifications from the server to
// whoever listens.
package events

type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
)

type Event struct {
	Kind       Kind   `json:"kind"`
	Collection string `json:"collection"`
	Id         string `json:"id"`
	Version    uint64 `json:"version,omitempty"`
}

// All subscribes to every collection.
const All = "*"

// Bus delivers events at most once. Slow subscribers lose events instead of
// blocking publishers.
type Bus interface {
	Publish(ev Event) error
	Subscribe(collection string) (<-chan Event, error)
	Close()
}
