package handshake

import (
	"strings"
	"time"
)

type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// Marker is the arrow used in the one-line trace.
func (d Direction) Marker() string {
	if d == Out {
		return ">>>"
	}
	return "<<<"
}

type Attribute struct {
	Key   string
	Value string
}

// Event records one protocol message sent or received. It is not modified after
// creation.
type Event struct {
	Name       string
	Direction  Direction
	At         time.Time
	Attributes []Attribute
}

func NewEvent(name string, dir Direction, attrs ...Attribute) Event {
	return Event{
		Name:       name,
		Direction:  dir,
		At:         time.Now(),
		Attributes: attrs,
	}
}

func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteByte(' ')
	b.WriteString(e.Direction.Marker())
	if len(e.Attributes) > 0 {
		b.WriteString(" (")
		for i, a := range e.Attributes {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(a.Key)
			b.WriteByte(':')
			b.WriteString(a.Value)
		}
		b.WriteByte(')')
	}
	return b.String()
}

// EventChain is the append-only event log of one handshake attempt. Only the
// recorder mutates it while a run is in progress.
type EventChain struct {
	ID        string
	Complete  bool
	Events    []Event
	StartedAt time.Time
	ClosedAt  time.Time
}

func NewEventChain(id string) *EventChain {
	return &EventChain{
		ID:        id,
		Events:    make([]Event, 0, ExpectedHandshakeMessages),
		StartedAt: time.Now(),
	}
}

func (c *EventChain) Add(ev Event) {
	c.Events = append(c.Events, ev)
}

func (c *EventChain) Len() int {
	return len(c.Events)
}

func (c *EventChain) MarkComplete() {
	c.Complete = true
}

func (c *EventChain) close() {
	if c.ClosedAt.IsZero() {
		c.ClosedAt = time.Now()
	}
}

// Elapsed is the time from chain creation until it was closed, or until the last
// event while still open.
func (c *EventChain) Elapsed() time.Duration {
	end := c.ClosedAt
	if end.IsZero() {
		if len(c.Events) == 0 {
			return 0
		}
		end = c.Events[len(c.Events)-1].At
	}
	return end.Sub(c.StartedAt)
}

// Since returns the gap between event i and its predecessor. The first event is
// measured from the chain start.
func (c *EventChain) Since(i int) time.Duration {
	if i <= 0 {
		return c.Events[0].At.Sub(c.StartedAt)
	}
	return c.Events[i].At.Sub(c.Events[i-1].At)
}

// Count returns how many events match name and direction.
func (c *EventChain) Count(name string, dir Direction) int {
	n := 0
	for _, ev := range c.Events {
		if ev.Name == name && ev.Direction == dir {
			n++
		}
	}
	return n
}

// Index returns the position of the first matching event, or -1.
func (c *EventChain) Index(name string, dir Direction) int {
	for i, ev := range c.Events {
		if ev.Name == name && ev.Direction == dir {
			return i
		}
	}
	return -1
}
