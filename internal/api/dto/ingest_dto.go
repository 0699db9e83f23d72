package dto

import "github.com/belgrano/ticketera/internal/domain"

// IngestItemRequest is one ordered product from the upstream platform.
type IngestItemRequest struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// IngestTicketRequest is the upstream ingestion payload.
type IngestTicketRequest struct {
	ExternalNumber string              `json:"external_number"`
	Customer       domain.Customer     `json:"customer"`
	Items          []IngestItemRequest `json:"items"`
	Priority       string              `json:"priority,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	ClientKind     string              `json:"client_kind,omitempty"`
}

// IngestTicketResponse reports the stored ticket. Idempotent is true when
// the external number had already been ingested.
type IngestTicketResponse struct {
	Ticket     TicketResponse `json:"ticket"`
	Idempotent bool           `json:"idempotent"`
}
