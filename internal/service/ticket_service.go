package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
	"github.com/belgrano/ticketera/internal/observability"
	"github.com/belgrano/ticketera/internal/repository"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

// TicketService is the single authority for ticket mutations. Every accepted
// mutation increments version by one, persists the ticket and its event in
// one atomic unit, and publishes the event only after the store committed.
type TicketService struct {
	tickets    repository.TicketRepository
	couriers   repository.CourierRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	// locks serializes mutate+publish per ticket so that events reach the
	// dispatcher in version order. Cross-process safety still comes from the
	// versioned store update.
	locks sync.Map
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CourierRepo repository.CourierRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// TicketCreateInput describes ticket creation payload, already validated by
// the ingestion gateway.
type TicketCreateInput struct {
	ExternalNumber string
	Customer       domain.Customer
	Items          []domain.LineItem
	Priority       domain.TicketPriority
	Notes          string
	Actor          events.Actor
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		couriers:   deps.CourierRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
	}
}

// Create stores a new ticket in pending at version 1. Repeated delivery of
// the same external number is an idempotent success: the existing ticket is
// returned unchanged and no event is emitted. The bool reports whether a
// ticket was actually created.
func (s *TicketService) Create(ctx context.Context, input TicketCreateInput) (*domain.Ticket, bool, error) {
	if existing, err := s.tickets.GetByExternalNumber(ctx, input.ExternalNumber); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, apperrors.MapError(err)
	}

	now := time.Now().UTC()
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityNormal
	}
	ticket := &domain.Ticket{
		ID:             uuid.NewString(),
		ExternalNumber: input.ExternalNumber,
		Customer:       input.Customer,
		Items:          input.Items,
		Status:         domain.TicketStatusPending,
		Priority:       priority,
		Notes:          input.Notes,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	event := s.newEvent(events.EventTicketCreated, ticket, input.Actor)
	if err := s.tickets.Insert(ctx, ticket, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateExternalNumber) {
			// lost the creation race; the winner's ticket is authoritative
			existing, getErr := s.tickets.GetByExternalNumber(ctx, input.ExternalNumber)
			if getErr != nil {
				return nil, false, apperrors.MapError(getErr)
			}
			return existing, false, nil
		}
		return nil, false, apperrors.MapError(err)
	}

	s.publish(ctx, event)
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("external_number", ticket.ExternalNumber),
		zap.String("priority", string(ticket.Priority)))
	return ticket, true, nil
}

// Assign moves a pending ticket to assigned. The assignee must resolve to an
// active courier; expectedVersion guards against concurrent mutation.
func (s *TicketService) Assign(ctx context.Context, actor events.Actor, ticketID, assigneeID string, expectedVersion int64) (*domain.Ticket, error) {
	if actor.Kind != events.ActorKindAdmin && actor.Kind != events.ActorKindSystem {
		return nil, apperrors.NewUnauthorized("only administrators can assign tickets")
	}

	courier, err := s.couriers.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, repository.ErrCourierNotFound) {
			return nil, apperrors.NewUnknownAssignee(assigneeID)
		}
		return nil, apperrors.MapError(err)
	}
	if !courier.Active {
		return nil, apperrors.NewUnknownAssignee(assigneeID)
	}

	return s.mutate(ctx, ticketID, expectedVersion, func(t *domain.Ticket) (*events.Event, error) {
		if !domain.CanTransition(t.Status, domain.TicketStatusAssigned) {
			return nil, apperrors.NewInvalidTransition(string(t.Status), string(domain.TicketStatusAssigned))
		}
		event := s.newEvent(events.EventTicketAssigned, t, actor)
		now := time.Now().UTC()
		t.Status = domain.TicketStatusAssigned
		t.AssigneeID = &courier.ID
		t.AssignedAt = &now
		return event, nil
	})
}

// SetStatus applies a status transition validated against the transition
// table. Entering pending (unassign) clears the assignee; delivering records
// the delivery time and an optional courier note. Requests targeting
// cancelled are routed through Cancel so exactly one event kind covers each
// semantic outcome.
func (s *TicketService) SetStatus(ctx context.Context, actor events.Actor, ticketID string, newStatus domain.TicketStatus, expectedVersion int64, note string) (*domain.Ticket, error) {
	if !domain.ValidStatus(newStatus) {
		return nil, apperrors.NewMalformedPayload("status", "unknown status "+string(newStatus))
	}
	if newStatus == domain.TicketStatusCancelled {
		return s.Cancel(ctx, actor, ticketID, expectedVersion, note)
	}

	return s.mutate(ctx, ticketID, expectedVersion, func(t *domain.Ticket) (*events.Event, error) {
		if err := s.authorizeStatusChange(actor, t, newStatus); err != nil {
			return nil, err
		}
		// assigned is only reachable through Assign, which supplies the
		// assignee the state requires
		if newStatus == domain.TicketStatusAssigned || !domain.CanTransition(t.Status, newStatus) {
			return nil, apperrors.NewInvalidTransition(string(t.Status), string(newStatus))
		}
		event := s.newEvent(events.EventTicketStatusChanged, t, actor)
		t.Status = newStatus
		switch newStatus {
		case domain.TicketStatusPending:
			t.AssigneeID = nil
			t.AssignedAt = nil
		case domain.TicketStatusDelivered:
			now := time.Now().UTC()
			t.DeliveredAt = &now
			if note != "" {
				t.CourierNote = note
			}
		}
		return event, nil
	})
}

// Cancel moves any non-terminal ticket to cancelled. The assignee is cleared
// (terminal cancelled tickets carry no assignment); the event's previous
// assignee still tells the router which courier lost the job.
func (s *TicketService) Cancel(ctx context.Context, actor events.Actor, ticketID string, expectedVersion int64, reason string) (*domain.Ticket, error) {
	if actor.Kind == events.ActorKindFlota {
		return nil, apperrors.NewUnauthorized("delivery staff cannot cancel tickets")
	}

	return s.mutate(ctx, ticketID, expectedVersion, func(t *domain.Ticket) (*events.Event, error) {
		if !domain.CanTransition(t.Status, domain.TicketStatusCancelled) {
			return nil, apperrors.NewInvalidTransition(string(t.Status), string(domain.TicketStatusCancelled))
		}
		event := s.newEvent(events.EventTicketCancelled, t, actor)
		event.Reason = reason
		t.Status = domain.TicketStatusCancelled
		t.AssigneeID = nil
		return event, nil
	})
}

// mutate runs one serialized read-modify-write cycle for a ticket. apply
// receives the current state, validates the transition, builds the event and
// mutates the ticket in place; mutate stamps version and timestamps, persists
// atomically and publishes after commit.
func (s *TicketService) mutate(ctx context.Context, ticketID string, expectedVersion int64, apply func(*domain.Ticket) (*events.Event, error)) (*domain.Ticket, error) {
	unlock := s.lock(ticketID)
	defer unlock()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Version != expectedVersion {
		s.metrics.RecordVersionConflict()
		return nil, apperrors.NewVersionConflict(expectedVersion, ticket.Version)
	}

	event, err := apply(ticket)
	if err != nil {
		return nil, err
	}

	ticket.Version++
	ticket.UpdatedAt = time.Now().UTC()
	event.Version = ticket.Version
	event.Ticket = *ticket.Clone()

	if err := s.tickets.UpdateVersioned(ctx, ticket, expectedVersion, event); err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			s.metrics.RecordVersionConflict()
			// another writer got in between; report the version it left behind
			current := expectedVersion
			if latest, readErr := s.tickets.GetByID(ctx, ticketID); readErr == nil {
				current = latest.Version
			}
			return nil, apperrors.NewVersionConflict(expectedVersion, current)
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		default:
			return nil, apperrors.MapError(err)
		}
	}

	s.publish(ctx, event)
	s.logger.Info("ticket mutated",
		zap.String("ticket_id", ticket.ID),
		zap.String("event", string(event.Type)),
		zap.Int64("version", ticket.Version))
	return ticket, nil
}

func (s *TicketService) authorizeStatusChange(actor events.Actor, ticket *domain.Ticket, newStatus domain.TicketStatus) error {
	switch actor.Kind {
	case events.ActorKindAdmin, events.ActorKindSystem:
		return nil
	case events.ActorKindFlota:
		if ticket.AssigneeID == nil || *ticket.AssigneeID != actor.ID {
			return apperrors.NewUnauthorized("ticket is not assigned to you")
		}
		if newStatus != domain.TicketStatusInProgress && newStatus != domain.TicketStatusDelivered {
			return apperrors.NewUnauthorized("delivery staff may only start or complete a delivery")
		}
		return nil
	default:
		return apperrors.NewUnauthorized("unknown actor")
	}
}

// newEvent captures the pre-transition state; Version and the resulting
// snapshot are filled in by mutate (or left at creation values by Create).
func (s *TicketService) newEvent(eventType events.EventType, ticket *domain.Ticket, actor events.Actor) *events.Event {
	event := &events.Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		TicketID:       ticket.ID,
		Version:        ticket.Version,
		Ticket:         *ticket.Clone(),
		PreviousStatus: ticket.Status,
		Actor:          actor,
		Timestamp:      time.Now().UTC(),
	}
	if eventType == events.EventTicketCreated {
		event.PreviousStatus = ""
	}
	if ticket.AssigneeID != nil {
		id := *ticket.AssigneeID
		event.PreviousAssignee = &id
	}
	return event
}

func (s *TicketService) publish(ctx context.Context, event *events.Event) {
	if s.dispatcher == nil {
		return
	}
	s.metrics.RecordEventPublished(string(event.Type))
	_ = s.dispatcher.Publish(ctx, *event)
}

func (s *TicketService) lock(ticketID string) func() {
	value, _ := s.locks.LoadOrStore(ticketID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
