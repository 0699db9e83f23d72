package domain

import "time"

// TicketStatus enumerates lifecycle states for delivery tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "pending"
	TicketStatusAssigned   TicketStatus = "assigned"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusDelivered  TicketStatus = "delivered"
	TicketStatusCancelled  TicketStatus = "cancelled"
)

// TicketPriority enumerates delivery urgency.
type TicketPriority string

const (
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
)

// Customer holds the delivery recipient details. The fields are opaque to
// the lifecycle engine; they come from the upstream shop as-is.
type Customer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// LineItem is one ordered product. Items are immutable after creation.
type LineItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Ticket is the aggregate for one delivery order.
type Ticket struct {
	ID             string         `json:"id"`
	ExternalNumber string         `json:"external_number"`
	Customer       Customer       `json:"customer"`
	Items          []LineItem     `json:"items"`
	Status         TicketStatus   `json:"status"`
	Priority       TicketPriority `json:"priority"`
	AssigneeID     *string        `json:"assignee_id,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	CourierNote    string         `json:"courier_note,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	AssignedAt     *time.Time     `json:"assigned_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
}

// Clone returns a deep copy, safe to hand out as an event snapshot while the
// original keeps mutating.
func (t *Ticket) Clone() *Ticket {
	dup := *t
	if t.Items != nil {
		dup.Items = make([]LineItem, len(t.Items))
		copy(dup.Items, t.Items)
	}
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		dup.AssigneeID = &id
	}
	if t.AssignedAt != nil {
		at := *t.AssignedAt
		dup.AssignedAt = &at
	}
	if t.DeliveredAt != nil {
		at := *t.DeliveredAt
		dup.DeliveredAt = &at
	}
	return &dup
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusPending, TicketStatusAssigned, TicketStatusInProgress,
		TicketStatusDelivered, TicketStatusCancelled:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p TicketPriority) bool {
	return p == TicketPriorityNormal || p == TicketPriorityHigh
}

// IsTerminal reports whether no further transitions are allowed from s.
func IsTerminal(s TicketStatus) bool {
	return s == TicketStatusDelivered || s == TicketStatusCancelled
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusPending:    {TicketStatusAssigned, TicketStatusCancelled},
	TicketStatusAssigned:   {TicketStatusInProgress, TicketStatusPending, TicketStatusCancelled},
	TicketStatusInProgress: {TicketStatusDelivered, TicketStatusCancelled},
	TicketStatusDelivered:  {},
	TicketStatusCancelled:  {},
}

// CanTransition reports whether current -> next is a legal edge.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
