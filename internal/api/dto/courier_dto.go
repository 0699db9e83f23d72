package dto

import (
	"time"

	"github.com/belgrano/ticketera/internal/domain"
)

// CreateCourierRequest payload.
type CreateCourierRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CourierResponse is the wire form of a courier account.
type CourierResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// FromCourier maps a courier to its response form.
func FromCourier(c *domain.Courier) CourierResponse {
	return CourierResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Active:    c.Active,
		CreatedAt: c.CreatedAt,
	}
}

// AckRequest carries the watermarks a stream session acknowledges.
type AckRequest struct {
	Watermarks map[string]int64 `json:"watermarks"`
}
