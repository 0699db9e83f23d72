package events

import (
	"time"

	"github.com/belgrano/ticketera/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketCancelled     EventType = "ticket_cancelled"
)

// ActorKind distinguishes who triggered a mutation.
type ActorKind string

const (
	ActorKindSystem ActorKind = "system"
	ActorKindAdmin  ActorKind = "admin"
	ActorKindFlota  ActorKind = "flota"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// SystemActor is used for mutations originating from the ingestion gateway.
func SystemActor() Actor {
	return Actor{Kind: ActorKindSystem}
}

// AdminActor builds an actor for an administrator session.
func AdminActor(id string) Actor {
	return Actor{Kind: ActorKindAdmin, ID: id}
}

// FlotaActor builds an actor for a delivery-staff session.
func FlotaActor(id string) Actor {
	return Actor{Kind: ActorKindFlota, ID: id}
}

// Event is one accepted ticket mutation. It carries the full resulting
// snapshot so that consumers never have to re-read live state: visibility is
// decided against exactly the state this event produced.
type Event struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	TicketID string    `json:"ticket_id"`
	// Version of the resulting snapshot. Strictly increases per ticket.
	Version int64         `json:"version"`
	Ticket  domain.Ticket `json:"ticket"`
	// PreviousStatus and PreviousAssignee describe the state immediately
	// before the transition. The router uses PreviousAssignee to notify a
	// courier whose job was pulled away or cancelled.
	PreviousStatus   domain.TicketStatus `json:"previous_status,omitempty"`
	PreviousAssignee *string             `json:"previous_assignee,omitempty"`
	Reason           string              `json:"reason,omitempty"`
	Actor            Actor               `json:"actor"`
	Timestamp        time.Time           `json:"timestamp"`
}
