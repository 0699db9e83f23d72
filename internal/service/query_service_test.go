package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

func TestQueryVisibilityScoping(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	admin := events.AdminActor("admin-1")
	query := NewQueryService(f.store)

	assigned := f.createTicket(t, "shop-q1")
	_, err := f.tickets.Assign(ctx, admin, assigned.ID, "courier-1", 1)
	require.NoError(t, err)

	other := f.createTicket(t, "shop-q2")
	_, err = f.tickets.Assign(ctx, admin, other.ID, "courier-2", 1)
	require.NoError(t, err)

	unassigned := f.createTicket(t, "shop-q3")

	adminList, err := query.List(ctx, domain.RoleAdmin, "admin-1", ListFilter{})
	require.NoError(t, err)
	assert.Len(t, adminList, 3)

	flotaList, err := query.List(ctx, domain.RoleFlota, "courier-1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, flotaList, 1)
	assert.Equal(t, assigned.ID, flotaList[0].ID)

	// a flota session cannot widen its own scope with a filter
	someone := "courier-2"
	flotaList, err = query.List(ctx, domain.RoleFlota, "courier-1", ListFilter{AssigneeID: &someone})
	require.NoError(t, err)
	require.Len(t, flotaList, 1)
	assert.Equal(t, assigned.ID, flotaList[0].ID)

	_, err = query.Get(ctx, domain.RoleFlota, "courier-1", other.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = query.Get(ctx, domain.RoleFlota, "courier-1", unassigned.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	got, err := query.Get(ctx, domain.RoleFlota, "courier-1", assigned.ID)
	require.NoError(t, err)
	assert.Equal(t, assigned.ID, got.ID)
}

func TestQueryFilters(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	admin := events.AdminActor("admin-1")
	query := NewQueryService(f.store)

	first := f.createTicket(t, "shop-f1")
	_, err := f.tickets.Assign(ctx, admin, first.ID, "courier-1", 1)
	require.NoError(t, err)
	f.createTicket(t, "shop-f2")

	pending, err := query.List(ctx, domain.RoleAdmin, "admin-1", ListFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusPending},
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "shop-f2", pending[0].ExternalNumber)
}

func TestQueryGetUnknownTicket(t *testing.T) {
	f := newServiceFixture(t)
	query := NewQueryService(f.store)

	_, err := query.Get(context.Background(), domain.RoleAdmin, "admin-1", "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
