package service

import (
	"context"
	"errors"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/repository"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

// QueryService serves current ticket snapshots, scoped by the same
// visibility rule the distribution hub applies to events. Reads always hit
// the authoritative store, so a result can never be older than any event the
// session has already received.
type QueryService struct {
	tickets repository.TicketRepository
}

// ListFilter narrows the ticket listing.
type ListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	AssigneeID *string
	Limit      int
	Offset     int
}

// NewQueryService constructs the read model.
func NewQueryService(tickets repository.TicketRepository) *QueryService {
	return &QueryService{tickets: tickets}
}

// List returns tickets visible to the given role/identity. Flota sessions
// are hard-scoped to their own assignments regardless of filters.
func (q *QueryService) List(ctx context.Context, role domain.Role, identity string, filter ListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		AssigneeID: filter.AssigneeID,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if role == domain.RoleFlota {
		repoFilter.AssigneeID = &identity
	}
	tickets, err := q.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Get returns one ticket, enforcing visibility. A flota session asking for a
// ticket assigned to somebody else gets an authorization error, not the
// ticket.
func (q *QueryService) Get(ctx context.Context, role domain.Role, identity, ticketID string) (*domain.Ticket, error) {
	ticket, err := q.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if role == domain.RoleAdmin {
		return ticket, nil
	}
	if ticket.AssigneeID == nil || *ticket.AssigneeID != identity {
		return nil, apperrors.NewUnauthorized("ticket is not assigned to you")
	}
	return ticket, nil
}
