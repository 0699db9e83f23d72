package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
)

// ErrDisconnected is returned by Conn.Next once the hub has evicted or
// closed the session.
var ErrDisconnected = errors.New("session disconnected")

// Session identifies a connected viewer. Admin sessions see everything;
// flota sessions are scoped to the courier identity.
type Session struct {
	Role     domain.Role
	Identity string
}

// MessageKind discriminates stream messages.
type MessageKind string

const (
	// MessageKindEvent carries one live or replayed domain event.
	MessageKindEvent MessageKind = "event"
	// MessageKindSnapshot carries the full set of currently-visible tickets
	// and tells the client to reset its watermarks.
	MessageKindSnapshot MessageKind = "snapshot"
)

// Message is one unit of outbound stream traffic.
type Message struct {
	Kind     MessageKind     `json:"kind"`
	Event    *events.Event   `json:"event,omitempty"`
	Snapshot []domain.Ticket `json:"snapshot,omitempty"`
}

// Conn is one live session connection. The hub writes into the bounded
// queue; the transport drains it. A connection whose queue overflows is
// evicted rather than allowed to grow.
type Conn struct {
	ID      string
	Session Session

	queue chan Message
	done  chan struct{}
	once  sync.Once

	mu sync.Mutex
	// replaying buffers live events until reconnect replay has been
	// enqueued, so per-ticket version order survives the handover.
	replaying bool
	pending   []events.Event
	// lastSent enforces non-decreasing version delivery per ticket.
	lastSent map[string]int64
	acked    map[string]int64
}

// Events exposes the outbound queue for transports that select on it.
func (c *Conn) Events() <-chan Message {
	return c.queue
}

// Done is closed when the session is evicted or the hub shuts down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Next blocks for the next outbound message.
func (c *Conn) Next(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, ErrDisconnected
	case msg := <-c.queue:
		return msg, nil
	}
}

// Acked returns the last acknowledged version for a ticket, 0 when none.
func (c *Conn) Acked(ticketID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acked[ticketID]
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}

// deliverEvent routes a live event into the queue, or into the pending
// buffer while a replay is in flight. Returns false when the queue is full.
func (c *Conn) deliverEvent(ev events.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replaying {
		c.pending = append(c.pending, ev)
		return true
	}
	return c.enqueueEventLocked(ev)
}

// deliverSnapshot enqueues a full-state message and fast-forwards the
// per-ticket cursor so older buffered events are dropped.
func (c *Conn) deliverSnapshot(tickets []domain.Ticket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tickets {
		if t.Version > c.lastSent[t.ID] {
			c.lastSent[t.ID] = t.Version
		}
	}
	return c.enqueueLocked(Message{Kind: MessageKindSnapshot, Snapshot: tickets})
}

// finishReplay flushes live events buffered during replay and switches the
// connection to live delivery. Returns false when the queue overflowed.
func (c *Conn) finishReplay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.pending {
		if !c.enqueueEventLocked(ev) {
			return false
		}
	}
	c.pending = nil
	c.replaying = false
	return true
}

func (c *Conn) enqueueEventLocked(ev events.Event) bool {
	if ev.Version <= c.lastSent[ev.TicketID] {
		// already delivered at or past this version
		return true
	}
	dup := ev
	if !c.enqueueLocked(Message{Kind: MessageKindEvent, Event: &dup}) {
		return false
	}
	c.lastSent[ev.TicketID] = ev.Version
	return true
}

func (c *Conn) enqueueLocked(msg Message) bool {
	select {
	case c.queue <- msg:
		return true
	default:
		return false
	}
}

func (c *Conn) ack(watermarks map[string]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ticketID, version := range watermarks {
		if version > c.acked[ticketID] {
			c.acked[ticketID] = version
		}
	}
}
