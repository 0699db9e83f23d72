package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
)

func eventWith(assignee, previous *string) events.Event {
	return events.Event{
		Type:             events.EventTicketStatusChanged,
		TicketID:         "t1",
		Version:          2,
		Ticket:           domain.Ticket{ID: "t1", AssigneeID: assignee},
		PreviousAssignee: previous,
	}
}

func TestVisibleTo(t *testing.T) {
	courier1 := "courier-1"
	courier2 := "courier-2"
	adminSess := Session{Role: domain.RoleAdmin, Identity: "admin-1"}
	flotaSess := Session{Role: domain.RoleFlota, Identity: courier1}

	// admin sees everything, assigned or not
	assert.True(t, VisibleTo(eventWith(nil, nil), adminSess))
	assert.True(t, VisibleTo(eventWith(&courier2, nil), adminSess))

	// flota sees its own assignments
	assert.True(t, VisibleTo(eventWith(&courier1, nil), flotaSess))

	// and transitions that took a ticket away from it
	assert.True(t, VisibleTo(eventWith(nil, &courier1), flotaSess))
	assert.True(t, VisibleTo(eventWith(&courier2, &courier1), flotaSess))

	// but not unassigned tickets or other couriers' work
	assert.False(t, VisibleTo(eventWith(nil, nil), flotaSess))
	assert.False(t, VisibleTo(eventWith(&courier2, nil), flotaSess))
	assert.False(t, VisibleTo(eventWith(&courier2, &courier2), flotaSess))

	// unknown roles see nothing
	assert.False(t, VisibleTo(eventWith(&courier1, nil), Session{Role: "viewer"}))
}

func TestTicketVisible(t *testing.T) {
	courier1 := "courier-1"
	adminSess := Session{Role: domain.RoleAdmin, Identity: "admin-1"}
	flotaSess := Session{Role: domain.RoleFlota, Identity: courier1}

	assert.True(t, TicketVisible(domain.Ticket{ID: "t1"}, adminSess))
	assert.True(t, TicketVisible(domain.Ticket{ID: "t1", AssigneeID: &courier1}, flotaSess))
	assert.False(t, TicketVisible(domain.Ticket{ID: "t1"}, flotaSess))
}
