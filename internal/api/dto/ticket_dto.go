package dto

import (
	"time"

	"github.com/belgrano/ticketera/internal/domain"
)

// TicketResponse is the wire form of a ticket snapshot.
type TicketResponse struct {
	ID             string                `json:"id"`
	ExternalNumber string                `json:"external_number"`
	Customer       domain.Customer       `json:"customer"`
	Items          []domain.LineItem     `json:"items"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	AssigneeID     *string               `json:"assignee_id,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	CourierNote    string                `json:"courier_note,omitempty"`
	Version        int64                 `json:"version"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	AssignedAt     *time.Time            `json:"assigned_at,omitempty"`
	DeliveredAt    *time.Time            `json:"delivered_at,omitempty"`
}

// FromTicket maps a domain ticket to its response form.
func FromTicket(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:             t.ID,
		ExternalNumber: t.ExternalNumber,
		Customer:       t.Customer,
		Items:          t.Items,
		Status:         t.Status,
		Priority:       t.Priority,
		AssigneeID:     t.AssigneeID,
		Notes:          t.Notes,
		CourierNote:    t.CourierNote,
		Version:        t.Version,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		AssignedAt:     t.AssignedAt,
		DeliveredAt:    t.DeliveredAt,
	}
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID      string `json:"assignee_id"`
	ExpectedVersion int64  `json:"expected_version"`
}

// SetStatusRequest payload.
type SetStatusRequest struct {
	Status          domain.TicketStatus `json:"status"`
	ExpectedVersion int64               `json:"expected_version"`
	Note            string              `json:"note,omitempty"`
}

// CancelTicketRequest payload.
type CancelTicketRequest struct {
	ExpectedVersion int64  `json:"expected_version"`
	Reason          string `json:"reason,omitempty"`
}
