package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
	"github.com/belgrano/ticketera/internal/repository"
	"github.com/belgrano/ticketera/internal/service"
)

type hubFixture struct {
	store   *repository.MemoryStore
	tickets *service.TicketService
	hub     *Hub
}

func newHubFixture(t *testing.T, retention, queueCapacity int) *hubFixture {
	t.Helper()
	store := repository.NewMemoryStore(retention)
	couriers := repository.NewMemoryCourierDirectory()
	require.NoError(t, couriers.Create(context.Background(), &domain.Courier{ID: "courier-1", Name: "Marta", Active: true}))
	require.NoError(t, couriers.Create(context.Background(), &domain.Courier{ID: "courier-2", Name: "Diego", Active: true}))

	dispatcher := events.NewInMemoryDispatcher()
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  store,
		CourierRepo: couriers,
		Dispatcher:  dispatcher,
	})

	h := New(Dependencies{
		TicketRepo:    store,
		EventRepo:     store,
		QueueCapacity: queueCapacity,
	})
	h.Register(dispatcher)
	t.Cleanup(h.Close)

	return &hubFixture{store: store, tickets: tickets, hub: h}
}

func (f *hubFixture) createTicket(t *testing.T, externalNumber string) *domain.Ticket {
	t.Helper()
	ticket, created, err := f.tickets.Create(context.Background(), service.TicketCreateInput{
		ExternalNumber: externalNumber,
		Customer:       domain.Customer{Name: "Ana"},
		Items:          []domain.LineItem{{Name: "empanadas", Quantity: 6, UnitPrice: 2}},
		Actor:          events.SystemActor(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return ticket
}

func nextMessage(t *testing.T, conn *Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := conn.Next(ctx)
	require.NoError(t, err)
	return msg
}

func assertNoMessage(t *testing.T, conn *Conn) {
	t.Helper()
	select {
	case msg := <-conn.Events():
		t.Fatalf("unexpected message: kind=%s", msg.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFreshSessionReceivesSnapshot(t *testing.T) {
	f := newHubFixture(t, 0, 16)
	f.createTicket(t, "shop-h1")
	f.createTicket(t, "shop-h2")

	conn, err := f.hub.Connect(context.Background(), Session{Role: domain.RoleAdmin, Identity: "admin-1"}, nil)
	require.NoError(t, err)
	defer f.hub.Disconnect(conn)

	msg := nextMessage(t, conn)
	assert.Equal(t, MessageKindSnapshot, msg.Kind)
	assert.Len(t, msg.Snapshot, 2)
}

func TestFanOutRespectsVisibilityAndVersionOrder(t *testing.T) {
	f := newHubFixture(t, 0, 16)
	ctx := context.Background()
	admin := events.AdminActor("admin-1")

	adminConn, err := f.hub.Connect(ctx, Session{Role: domain.RoleAdmin, Identity: "admin-1"}, nil)
	require.NoError(t, err)
	defer f.hub.Disconnect(adminConn)
	flotaConn, err := f.hub.Connect(ctx, Session{Role: domain.RoleFlota, Identity: "courier-1"}, nil)
	require.NoError(t, err)
	defer f.hub.Disconnect(flotaConn)

	// both fresh sessions start from an empty snapshot
	assert.Equal(t, MessageKindSnapshot, nextMessage(t, adminConn).Kind)
	assert.Equal(t, MessageKindSnapshot, nextMessage(t, flotaConn).Kind)

	ticket := f.createTicket(t, "shop-h3")
	_, err = f.tickets.Assign(ctx, admin, ticket.ID, "courier-1", 1)
	require.NoError(t, err)
	_, err = f.tickets.SetStatus(ctx, events.FlotaActor("courier-1"), ticket.ID, domain.TicketStatusInProgress, 2, "")
	require.NoError(t, err)

	// admin sees every version in order
	var adminVersions []int64
	for i := 0; i < 3; i++ {
		msg := nextMessage(t, adminConn)
		require.Equal(t, MessageKindEvent, msg.Kind)
		adminVersions = append(adminVersions, msg.Event.Version)
	}
	assert.Equal(t, []int64{1, 2, 3}, adminVersions)

	// the courier only sees the ticket once it is theirs
	first := nextMessage(t, flotaConn)
	require.Equal(t, MessageKindEvent, first.Kind)
	assert.Equal(t, events.EventTicketAssigned, first.Event.Type)
	assert.EqualValues(t, 2, first.Event.Version)
	second := nextMessage(t, flotaConn)
	assert.EqualValues(t, 3, second.Event.Version)
	assertNoMessage(t, flotaConn)
}

func TestPullAwayNotifiesPreviousAssignee(t *testing.T) {
	f := newHubFixture(t, 0, 16)
	ctx := context.Background()
	admin := events.AdminActor("admin-1")

	ticket := f.createTicket(t, "shop-h4")
	_, err := f.tickets.Assign(ctx, admin, ticket.ID, "courier-1", 1)
	require.NoError(t, err)

	conn, err := f.hub.Connect(ctx, Session{Role: domain.RoleFlota, Identity: "courier-1"}, nil)
	require.NoError(t, err)
	defer f.hub.Disconnect(conn)
	require.Equal(t, MessageKindSnapshot, nextMessage(t, conn).Kind)

	// admin takes the job back; the courier must still hear about it
	_, err = f.tickets.SetStatus(ctx, admin, ticket.ID, domain.TicketStatusPending, 2, "")
	require.NoError(t, err)

	msg := nextMessage(t, conn)
	require.Equal(t, MessageKindEvent, msg.Kind)
	assert.EqualValues(t, 3, msg.Event.Version)
	assert.Nil(t, msg.Event.Ticket.AssigneeID)

	// once reassigned elsewhere, courier-1 hears nothing more
	_, err = f.tickets.Assign(ctx, admin, ticket.ID, "courier-2", 3)
	require.NoError(t, err)
	assertNoMessage(t, conn)
}

func TestReplayAfterReconnect(t *testing.T) {
	f := newHubFixture(t, 0, 16)
	ctx := context.Background()
	admin := events.AdminActor("admin-1")

	ticket := f.createTicket(t, "shop-h5")
	_, err := f.tickets.Assign(ctx, admin, ticket.ID, "courier-1", 1)
	require.NoError(t, err)
	_, err = f.tickets.SetStatus(ctx, events.FlotaActor("courier-1"), ticket.ID, domain.TicketStatusInProgress, 2, "")
	require.NoError(t, err)

	// reconnect claiming to have seen version 1
	conn, err := f.hub.Connect(ctx, Session{Role: domain.RoleAdmin, Identity: "admin-1"}, map[string]int64{ticket.ID: 1})
	require.NoError(t, err)
	defer f.hub.Disconnect(conn)

	first := nextMessage(t, conn)
	require.Equal(t, MessageKindEvent, first.Kind)
	assert.EqualValues(t, 2, first.Event.Version)
	second := nextMessage(t, conn)
	assert.EqualValues(t, 3, second.Event.Version)
	assertNoMessage(t, conn)
}

func TestReplayIncludesTicketsPulledAwayWhileOffline(t *testing.T) {
	f := newHubFixture(t, 0, 16)
	ctx := context.Background()
	admin := events.AdminActor("admin-1")

	ticket := f.createTicket(t, "shop-h6")
	_, err := f.tickets.Assign(ctx, admin, ticket.ID, "courier-1", 1)
	require.NoError(t, err)

	// courier goes offline having seen version 2, loses the job meanwhile
	_, err = f.tickets.SetStatus(ctx, admin, ticket.ID, domain.TicketStatusPending, 2, "")
	require.NoError(t, err)

	conn, err := f.hub.Connect(ctx, Session{Role: domain.RoleFlota, Identity: "courier-1"}, map[string]int64{ticket.ID: 2})
	require.NoError(t, err)
	defer f.hub.Disconnect(conn)

	msg := nextMessage(t, conn)
	require.Equal(t, MessageKindEvent, msg.Kind)
	assert.EqualValues(t, 3, msg.Event.Version)
	require.NotNil(t, msg.Event.PreviousAssignee)
	assert.Equal(t, "courier-1", *msg.Event.PreviousAssignee)
	assertNoMessage(t, conn)
}

func TestSnapshotFallbackWhenLogTrimmed(t *testing.T) {
	f := newHubFixture(t, 1, 16)
	ctx := context.Background()
	admin := events.AdminActor("admin-1")

	ticket := f.createTicket(t, "shop-h7")
	_, err := f.tickets.Assign(ctx, admin, ticket.ID, "courier-1", 1)
	require.NoError(t, err)
	_, err = f.tickets.SetStatus(ctx, events.FlotaActor("courier-1"), ticket.ID, domain.TicketStatusInProgress, 2, "")
	require.NoError(t, err)

	// only the last event is retained; a watermark of 1 cannot be replayed
	conn, err := f.hub.Connect(ctx, Session{Role: domain.RoleAdmin, Identity: "admin-1"}, map[string]int64{ticket.ID: 1})
	require.NoError(t, err)
	defer f.hub.Disconnect(conn)

	msg := nextMessage(t, conn)
	require.Equal(t, MessageKindSnapshot, msg.Kind)
	require.Len(t, msg.Snapshot, 1)
	assert.Equal(t, domain.TicketStatusInProgress, msg.Snapshot[0].Status)
	assert.EqualValues(t, 3, msg.Snapshot[0].Version)
}

func TestReplayedEventsFoldToCurrentState(t *testing.T) {
	f := newHubFixture(t, 0, 32)
	ctx := context.Background()
	admin := events.AdminActor("admin-1")

	ticket := f.createTicket(t, "shop-h8")
	_, err := f.tickets.Assign(ctx, admin, ticket.ID, "courier-1", 1)
	require.NoError(t, err)
	_, err = f.tickets.SetStatus(ctx, admin, ticket.ID, domain.TicketStatusPending, 2, "")
	require.NoError(t, err)
	_, err = f.tickets.Assign(ctx, admin, ticket.ID, "courier-2", 3)
	require.NoError(t, err)
	_, err = f.tickets.SetStatus(ctx, events.FlotaActor("courier-2"), ticket.ID, domain.TicketStatusInProgress, 4, "")
	require.NoError(t, err)
	_, err = f.tickets.SetStatus(ctx, events.FlotaActor("courier-2"), ticket.ID, domain.TicketStatusDelivered, 5, "done")
	require.NoError(t, err)

	conn, err := f.hub.Connect(ctx, Session{Role: domain.RoleAdmin, Identity: "admin-1"}, map[string]int64{ticket.ID: 0})
	require.NoError(t, err)
	defer f.hub.Disconnect(conn)

	var last *events.Event
	for i := 0; i < 6; i++ {
		msg := nextMessage(t, conn)
		require.Equal(t, MessageKindEvent, msg.Kind)
		if last != nil {
			assert.Equal(t, last.Version+1, msg.Event.Version)
		}
		last = msg.Event
	}

	stored, err := f.store.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, *stored, last.Ticket)
}

func TestSlowConsumerIsEvicted(t *testing.T) {
	f := newHubFixture(t, 0, 1)
	ctx := context.Background()

	conn, err := f.hub.Connect(ctx, Session{Role: domain.RoleAdmin, Identity: "admin-1"}, nil)
	require.NoError(t, err)

	// the undrained snapshot occupies the whole queue; the next event
	// overflows it
	f.createTicket(t, "shop-h9")

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("slow consumer was not evicted")
	}

	_, err = conn.Next(context.Background())
	assert.ErrorIs(t, err, ErrDisconnected)

	// other sessions keep receiving
	fresh, err := f.hub.Connect(ctx, Session{Role: domain.RoleAdmin, Identity: "admin-2"}, nil)
	require.NoError(t, err)
	defer f.hub.Disconnect(fresh)
	assert.Equal(t, MessageKindSnapshot, nextMessage(t, fresh).Kind)
}

func TestAckTracksWatermarks(t *testing.T) {
	f := newHubFixture(t, 0, 16)
	ctx := context.Background()

	conn, err := f.hub.Connect(ctx, Session{Role: domain.RoleAdmin, Identity: "admin-1"}, nil)
	require.NoError(t, err)
	defer f.hub.Disconnect(conn)

	assert.True(t, f.hub.Ack(conn.ID, map[string]int64{"t1": 4}))
	assert.EqualValues(t, 4, conn.Acked("t1"))

	// acks never move backwards
	assert.True(t, f.hub.Ack(conn.ID, map[string]int64{"t1": 2}))
	assert.EqualValues(t, 4, conn.Acked("t1"))

	assert.False(t, f.hub.Ack("unknown-session", map[string]int64{"t1": 1}))
}

func TestConnectAfterClose(t *testing.T) {
	f := newHubFixture(t, 0, 16)
	f.hub.Close()

	_, err := f.hub.Connect(context.Background(), Session{Role: domain.RoleAdmin, Identity: "admin-1"}, nil)
	assert.ErrorIs(t, err, ErrHubClosed)
}
