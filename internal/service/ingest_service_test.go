package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
	"github.com/belgrano/ticketera/internal/observability"
	"github.com/belgrano/ticketera/internal/repository"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

func newIngestFixture(t *testing.T) (*IngestService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore(0)
	tickets := NewTicketService(TicketDependencies{
		TicketRepo:  store,
		CourierRepo: repository.NewMemoryCourierDirectory(),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Metrics:     observability.NewMetrics(),
	})
	return NewIngestService(tickets, nil, nil, observability.NewMetrics()), store
}

func validPayload(externalNumber string) IngestPayload {
	return IngestPayload{
		ExternalNumber: externalNumber,
		Customer:       domain.Customer{Name: "Ana", Address: "Av. Belgrano 100", Phone: "11-5555"},
		Items:          []IngestItem{{Name: "empanadas", Quantity: 12, UnitPrice: 1.5}},
	}
}

func TestIngestCreatesPendingTicket(t *testing.T) {
	ingest, _ := newIngestFixture(t)

	ticket, created, err := ingest.Ingest(context.Background(), events.SystemActor(), validPayload("shop-100"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.TicketStatusPending, ticket.Status)
	assert.Equal(t, domain.TicketPriorityNormal, ticket.Priority)
	assert.EqualValues(t, 1, ticket.Version)
	assert.Equal(t, "shop-100", ticket.ExternalNumber)
}

func TestIngestDuplicateIsIdempotent(t *testing.T) {
	ingest, _ := newIngestFixture(t)
	ctx := context.Background()

	first, created, err := ingest.Ingest(ctx, events.SystemActor(), validPayload("shop-200"))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := ingest.Ingest(ctx, events.SystemActor(), validPayload("shop-200"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 1, second.Version)
}

func TestIngestMerchantOrdersForceHighPriority(t *testing.T) {
	ingest, _ := newIngestFixture(t)

	payload := validPayload("shop-300")
	payload.Priority = "normal"
	payload.ClientKind = ClientKindMerchant

	ticket, _, err := ingest.Ingest(context.Background(), events.SystemActor(), payload)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)
}

func TestIngestValidation(t *testing.T) {
	ingest, _ := newIngestFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*IngestPayload)
		field  string
	}{
		{"missing external number", func(p *IngestPayload) { p.ExternalNumber = "  " }, "external_number"},
		{"no items", func(p *IngestPayload) { p.Items = nil }, "items"},
		{"blank item name", func(p *IngestPayload) { p.Items[0].Name = "" }, "items[0].name"},
		{"zero quantity", func(p *IngestPayload) { p.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"negative price", func(p *IngestPayload) { p.Items[0].UnitPrice = -1 }, "items[0].unit_price"},
		{"unknown priority", func(p *IngestPayload) { p.Priority = "urgent" }, "priority"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := validPayload("shop-bad")
			tc.mutate(&payload)

			_, _, err := ingest.Ingest(ctx, events.SystemActor(), payload)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeMalformedPayload))
			domainErr := apperrors.ToDomainError(err)
			assert.Equal(t, tc.field, domainErr.Details["field"])
		})
	}

	// nothing was stored for rejected payloads
	_, err := ingest.tickets.tickets.GetByExternalNumber(ctx, "shop-bad")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIngestTrimsFields(t *testing.T) {
	ingest, _ := newIngestFixture(t)

	payload := validPayload(" shop-400 ")
	payload.Items[0].Name = " empanadas "
	payload.Notes = " ring twice "

	ticket, _, err := ingest.Ingest(context.Background(), events.SystemActor(), payload)
	require.NoError(t, err)
	assert.Equal(t, "shop-400", ticket.ExternalNumber)
	assert.Equal(t, "empanadas", ticket.Items[0].Name)
	assert.Equal(t, "ring twice", ticket.Notes)
}
