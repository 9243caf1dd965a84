package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	natsd "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "docsql.events."

// collection names may contain dots, which nats treats as separators
func subject(collection string, kind Kind) string {
	return subjectPrefix + strings.ReplaceAll(collection, ".", "_") + "." + string(kind)
}

type Nats struct {
	nc *nats.Conn

	m      sync.Mutex
	subs   []*nats.Subscription
	chs    []chan Event
	closed bool
}

func NewNats(url string) (*Nats, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("docsql"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Nats{nc: nc}, nil
}

func (n *Nats) Publish(ev Event) error {
	b, err := json.Marshal(&ev)
	if err != nil {
		return err
	}
	return n.nc.Publish(subject(ev.Collection, ev.Kind), b)
}

func (n *Nats) Subscribe(collection string) (<-chan Event, error) {
	subj := subjectPrefix + ">"
	if collection != All {
		subj = subjectPrefix + strings.ReplaceAll(collection, ".", "_") + ".*"
	}

	ch := make(chan Event, subscriberBuffer)
	sub, err := n.nc.Subscribe(subj, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("[events].Nats: undecodable event", "subject", msg.Subject, "err", err)
			return
		}
		n.m.Lock()
		defer n.m.Unlock()
		if n.closed {
			return
		}
		select {
		case ch <- ev:
		default:
			slog.Debug("[events].Nats: subscriber full, dropping", "collection", ev.Collection, "id", ev.Id)
		}
	})
	if err != nil {
		return nil, err
	}
	// make sure the server knows about the subscription before we return
	if err := n.nc.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, err
	}

	n.m.Lock()
	n.subs = append(n.subs, sub)
	n.chs = append(n.chs, ch)
	n.m.Unlock()

	return ch, nil
}

func (n *Nats) Close() {
	n.m.Lock()
	defer n.m.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for _, sub := range n.subs {
		sub.Unsubscribe()
	}
	n.nc.Close()
	for _, ch := range n.chs {
		close(ch)
	}
	n.subs = nil
	n.chs = nil
}

// NewEmbeddedNats starts a nats server inside this process. Port -1 picks a
// free port; use ClientURL() to connect.
func NewEmbeddedNats(port int) (*natsd.Server, error) {
	opts := &natsd.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := natsd.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats server did not start")
	}
	return ns, nil
}
