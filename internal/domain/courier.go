package domain

import "time"

// Courier models a delivery-staff (flota) account. Credentials live in the
// external identity provider; this record only carries what assignment and
// visibility checks need.
type Courier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
