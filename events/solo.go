package events

import (
	"log/slog"
	"sync"
)

const subscriberBuffer = 64

// SoloBus only reaches subscribers in the same process.
type SoloBus struct {
	m      sync.Mutex
	subs   map[string][]chan Event
	closed bool
}

func NewSolo() *SoloBus {
	return &SoloBus{
		subs: make(map[string][]chan Event),
	}
}

func (self *SoloBus) Publish(ev Event) error {
	self.m.Lock()
	defer self.m.Unlock()

	if self.closed {
		return nil
	}

	for _, key := range []string{ev.Collection, All} {
		for _, ch := range self.subs[key] {
			select {
			case ch <- ev:
			default:
				slog.Debug("[events].Solo: subscriber full, dropping", "collection", ev.Collection, "id", ev.Id)
			}
		}
	}
	return nil
}

func (self *SoloBus) Subscribe(collection string) (<-chan Event, error) {
	self.m.Lock()
	defer self.m.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if self.closed {
		close(ch)
		return ch, nil
	}
	self.subs[collection] = append(self.subs[collection], ch)
	return ch, nil
}

func (self *SoloBus) Close() {
	self.m.Lock()
	defer self.m.Unlock()

	if self.closed {
		return
	}
	self.closed = true
	for _, chans := range self.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	self.subs = nil
}
