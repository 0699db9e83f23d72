package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
)

// MemoryStore is an in-process implementation of TicketRepository and
// EventRepository with the same transactional contract: a ticket write and
// its event become visible together or not at all. It backs the test suite
// and DSN-less deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	tickets    map[string]*domain.Ticket
	byExternal map[string]string
	events     map[string][]events.Event
	// retention caps how many events are kept per ticket; 0 keeps all.
	retention int
}

// NewMemoryStore creates an empty store. retention limits events kept per
// ticket (0 = unbounded); reconnects older than the window fall back to a
// full snapshot.
func NewMemoryStore(retention int) *MemoryStore {
	return &MemoryStore{
		tickets:    make(map[string]*domain.Ticket),
		byExternal: make(map[string]string),
		events:     make(map[string][]events.Event),
		retention:  retention,
	}
}

func (s *MemoryStore) Insert(ctx context.Context, ticket *domain.Ticket, event *events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byExternal[ticket.ExternalNumber]; exists {
		return ErrDuplicateExternalNumber
	}
	s.tickets[ticket.ID] = ticket.Clone()
	s.byExternal[ticket.ExternalNumber] = ticket.ID
	s.appendEventLocked(event)
	return nil
}

func (s *MemoryStore) UpdateVersioned(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, event *events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tickets[ticket.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	s.tickets[ticket.ID] = ticket.Clone()
	s.appendEventLocked(event)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (s *MemoryStore) GetByExternalNumber(ctx context.Context, externalNumber string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return s.tickets[id].Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if !matchesFilter(ticket, filter) {
			continue
		}
		result = append(result, *ticket.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) ListByTicketSince(ctx context.Context, ticketID string, afterVersion int64) ([]events.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []events.Event
	for _, ev := range s.events[ticketID] {
		if ev.Version > afterVersion {
			result = append(result, ev)
		}
	}
	return result, nil
}

func (s *MemoryStore) OldestVersion(ctx context.Context, ticketID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.events[ticketID]
	if len(log) == 0 {
		return 0, nil
	}
	return log[0].Version, nil
}

func (s *MemoryStore) appendEventLocked(event *events.Event) {
	if event == nil {
		return
	}
	log := append(s.events[event.TicketID], *event)
	if s.retention > 0 && len(log) > s.retention {
		log = log[len(log)-s.retention:]
	}
	s.events[event.TicketID] = log
}

func matchesFilter(ticket *domain.Ticket, filter TicketFilter) bool {
	if filter.AssigneeID != nil {
		if ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID {
			return false
		}
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
		return false
	}
	return true
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, candidate := range list {
		if candidate == p {
			return true
		}
	}
	return false
}

// MemoryCourierDirectory is the in-process courier directory.
type MemoryCourierDirectory struct {
	mu       sync.RWMutex
	couriers map[string]*domain.Courier
}

// NewMemoryCourierDirectory creates an empty directory.
func NewMemoryCourierDirectory() *MemoryCourierDirectory {
	return &MemoryCourierDirectory{couriers: make(map[string]*domain.Courier)}
}

func (d *MemoryCourierDirectory) Create(ctx context.Context, courier *domain.Courier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if courier.CreatedAt.IsZero() {
		courier.CreatedAt = time.Now().UTC()
		courier.UpdatedAt = courier.CreatedAt
	}
	dup := *courier
	d.couriers[courier.ID] = &dup
	return nil
}

func (d *MemoryCourierDirectory) GetByID(ctx context.Context, id string) (*domain.Courier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	courier, ok := d.couriers[id]
	if !ok {
		return nil, ErrCourierNotFound
	}
	dup := *courier
	return &dup, nil
}

func (d *MemoryCourierDirectory) List(ctx context.Context) ([]domain.Courier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]domain.Courier, 0, len(d.couriers))
	for _, courier := range d.couriers {
		result = append(result, *courier)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
