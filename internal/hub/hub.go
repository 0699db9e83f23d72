package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
	"github.com/belgrano/ticketera/internal/observability"
	"github.com/belgrano/ticketera/internal/repository"
)

// ErrHubClosed is returned by Connect after Close.
var ErrHubClosed = errors.New("hub closed")

const snapshotListLimit = 10000

// Hub owns the registry of live sessions and fans domain events out to the
// ones entitled to see them. Per ticket, any session receives events in
// non-decreasing version order; there is no global order across tickets.
// Reconnecting sessions catch up from the event log, or from a full snapshot
// when their watermark predates what the log retains.
type Hub struct {
	tickets  repository.TicketRepository
	eventLog repository.EventRepository
	logger   *zap.Logger
	metrics  *observability.Metrics
	capacity int

	mu     sync.RWMutex
	conns  map[string]*Conn
	closed bool
}

// Dependencies bundles hub collaborators.
type Dependencies struct {
	TicketRepo repository.TicketRepository
	EventRepo  repository.EventRepository
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	// QueueCapacity bounds each session's outbound queue; a session that
	// backs up past it is disconnected.
	QueueCapacity int
}

// New constructs a stopped hub; call Register to attach it to a dispatcher.
func New(deps Dependencies) *Hub {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := deps.QueueCapacity
	if capacity <= 0 {
		capacity = 64
	}
	return &Hub{
		tickets:  deps.TicketRepo,
		eventLog: deps.EventRepo,
		logger:   logger,
		metrics:  deps.Metrics,
		capacity: capacity,
		conns:    make(map[string]*Conn),
	}
}

// Register subscribes the hub to every event the dispatcher publishes.
func (h *Hub) Register(dispatcher events.Dispatcher) {
	dispatcher.SubscribeAll(h.handleEvent)
}

// Connect registers a session and replays everything it is entitled to that
// is newer than its watermarks, before live delivery resumes. An empty
// watermark map yields a full snapshot for a fresh session.
func (h *Hub) Connect(ctx context.Context, sess Session, watermarks map[string]int64) (*Conn, error) {
	conn := &Conn{
		ID:        uuid.NewString(),
		Session:   sess,
		queue:     make(chan Message, h.capacity),
		done:      make(chan struct{}),
		replaying: true,
		lastSent:  make(map[string]int64),
		acked:     make(map[string]int64),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.conns[conn.ID] = conn
	h.mu.Unlock()
	h.metrics.SessionConnected(string(sess.Role))

	if err := h.replay(ctx, conn, watermarks); err != nil {
		h.Disconnect(conn)
		return nil, err
	}
	if !conn.finishReplay() {
		h.evict(conn)
		return nil, ErrDisconnected
	}

	h.logger.Info("session connected",
		zap.String("session_id", conn.ID),
		zap.String("role", string(sess.Role)),
		zap.String("identity", sess.Identity),
		zap.Int("watermarks", len(watermarks)))
	return conn, nil
}

// Disconnect removes a session; safe to call more than once.
func (h *Hub) Disconnect(conn *Conn) {
	h.mu.Lock()
	_, present := h.conns[conn.ID]
	delete(h.conns, conn.ID)
	h.mu.Unlock()

	conn.close()
	if present {
		h.metrics.SessionDisconnected(string(conn.Session.Role))
		h.logger.Info("session disconnected", zap.String("session_id", conn.ID))
	}
}

// Ack records the watermarks a session has acknowledged. Returns false for
// an unknown session id.
func (h *Hub) Ack(sessionID string, watermarks map[string]int64) bool {
	h.mu.RLock()
	conn, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	conn.ack(watermarks)
	return true
}

// Close evicts every session. Publishing into a closed hub is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[string]*Conn)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
}

// handleEvent is invoked by the dispatcher after the mutation committed.
func (h *Hub) handleEvent(_ context.Context, ev events.Event) error {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if !VisibleTo(ev, conn.Session) {
			continue
		}
		if conn.deliverEvent(ev) {
			h.metrics.RecordEventDelivered()
			continue
		}
		h.evict(conn)
	}
	return nil
}

// evict drops a slow consumer. The session recovers via the snapshot path on
// its next reconnect.
func (h *Hub) evict(conn *Conn) {
	h.mu.Lock()
	_, present := h.conns[conn.ID]
	delete(h.conns, conn.ID)
	h.mu.Unlock()

	conn.close()
	if present {
		h.metrics.SessionDisconnected(string(conn.Session.Role))
		h.metrics.RecordSlowConsumerEviction()
		h.logger.Warn("slow consumer evicted",
			zap.String("session_id", conn.ID),
			zap.String("identity", conn.Session.Identity))
	}
}

// replay enqueues everything the session missed. When any watermark points
// below what the event log retains, the whole session falls back to a full
// snapshot of currently-visible tickets and the client resets its cursors.
func (h *Hub) replay(ctx context.Context, conn *Conn, watermarks map[string]int64) error {
	if h.needsSnapshot(ctx, watermarks) {
		return h.replaySnapshot(ctx, conn)
	}

	visible, err := h.visibleTickets(ctx, conn.Session)
	if err != nil {
		return err
	}

	// union of currently-visible tickets and watermarked ones: a flota
	// session must still learn about a ticket that was pulled away from it
	// while offline, even though the ticket is no longer visible live.
	seen := make(map[string]struct{}, len(visible))
	for _, t := range visible {
		seen[t.ID] = struct{}{}
		if err := h.replayTicket(ctx, conn, t.ID, watermarks[t.ID]); err != nil {
			return err
		}
	}
	for ticketID, after := range watermarks {
		if _, ok := seen[ticketID]; ok {
			continue
		}
		if err := h.replayTicket(ctx, conn, ticketID, after); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) replayTicket(ctx context.Context, conn *Conn, ticketID string, afterVersion int64) error {
	log, err := h.eventLog.ListByTicketSince(ctx, ticketID, afterVersion)
	if err != nil {
		return err
	}
	for _, ev := range log {
		if !VisibleTo(ev, conn.Session) {
			continue
		}
		if !conn.deliverEvent(ev) {
			return ErrDisconnected
		}
	}
	return nil
}

func (h *Hub) replaySnapshot(ctx context.Context, conn *Conn) error {
	visible, err := h.visibleTickets(ctx, conn.Session)
	if err != nil {
		return err
	}
	if !conn.deliverSnapshot(visible) {
		return ErrDisconnected
	}
	return nil
}

// needsSnapshot reports whether any watermark predates the retained event
// log. A watermark for a ticket with no retained events at all is treated
// the same way: the gap cannot be proven empty.
func (h *Hub) needsSnapshot(ctx context.Context, watermarks map[string]int64) bool {
	if len(watermarks) == 0 {
		return true
	}
	for ticketID, after := range watermarks {
		oldest, err := h.eventLog.OldestVersion(ctx, ticketID)
		if err != nil {
			return true
		}
		if oldest == 0 || oldest > after+1 {
			return true
		}
	}
	return false
}

func (h *Hub) visibleTickets(ctx context.Context, sess Session) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{Limit: snapshotListLimit}
	if sess.Role == domain.RoleFlota {
		identity := sess.Identity
		filter.AssigneeID = &identity
	}
	return h.tickets.List(ctx, filter)
}
