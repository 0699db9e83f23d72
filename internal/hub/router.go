package hub

import (
	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
)

// VisibleTo decides whether a session is entitled to see an event. It is a
// pure function over the event and the session: the decision is made against
// the event's resulting snapshot, never against live state, so it cannot go
// stale for that event.
//
// Admin sessions see everything. Flota sessions see an event when the
// resulting ticket is assigned to them, or when they were the assignee
// immediately before the transition, so a courier still learns that a job was
// unassigned or cancelled out from under them. Unassigned tickets are
// admin-only.
func VisibleTo(ev events.Event, sess Session) bool {
	switch sess.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleFlota:
		if ev.Ticket.AssigneeID != nil && *ev.Ticket.AssigneeID == sess.Identity {
			return true
		}
		if ev.PreviousAssignee != nil && *ev.PreviousAssignee == sess.Identity {
			return true
		}
		return false
	default:
		return false
	}
}

// TicketVisible is the snapshot counterpart of VisibleTo, used for list
// reads and full-state replay.
func TicketVisible(t domain.Ticket, sess Session) bool {
	switch sess.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleFlota:
		return t.AssigneeID != nil && *t.AssigneeID == sess.Identity
	default:
		return false
	}
}
