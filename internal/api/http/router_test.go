package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/belgrano/ticketera/internal/api/http/handlers"
	"github.com/belgrano/ticketera/internal/auth"
	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
	"github.com/belgrano/ticketera/internal/hub"
	"github.com/belgrano/ticketera/internal/repository"
	"github.com/belgrano/ticketera/internal/service"
)

type appFixture struct {
	app        *fiber.App
	hub        *hub.Hub
	adminToken string
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()

	store := repository.NewMemoryStore(0)
	couriers := repository.NewMemoryCourierDirectory()
	dispatcher := events.NewInMemoryDispatcher()

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  store,
		CourierRepo: couriers,
		Dispatcher:  dispatcher,
	})
	streamHub := hub.New(hub.Dependencies{TicketRepo: store, EventRepo: store})
	streamHub.Register(dispatcher)
	t.Cleanup(streamHub.Close)

	tokens := auth.NewTokenManager("test-secret", 60)
	adminToken, _, err := tokens.GenerateToken("admin-1", domain.RoleAdmin)
	require.NoError(t, err)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), nil, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler(nil, nil),
		Ingest:         handlers.NewIngestHandler(service.NewIngestService(tickets, nil, nil, nil)),
		Tickets:        handlers.NewTicketsHandler(tickets, service.NewQueryService(store)),
		Couriers:       handlers.NewCouriersHandler(couriers),
		Stream:         handlers.NewStreamHandler(streamHub, zap.NewNop(), 0),
		AuthMiddleware: auth.NewMiddleware(tokens, couriers),
		IngestAPIKey:   "upstream-key",
	})

	return &appFixture{app: app, hub: streamHub, adminToken: adminToken}
}

func (f *appFixture) postAck(t *testing.T, sessionID, token string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/api/stream/"+sessionID+"/ack",
		bytes.NewBufferString(`{"watermarks":{"t1":3}}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestStreamAckEndpoint(t *testing.T) {
	f := newAppFixture(t)

	conn, err := f.hub.Connect(context.Background(), hub.Session{Role: domain.RoleAdmin, Identity: "admin-1"}, nil)
	require.NoError(t, err)
	defer f.hub.Disconnect(conn)

	status, _ := f.postAck(t, conn.ID, f.adminToken)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 3, conn.Acked("t1"))
}

func TestStreamAckUnknownSession(t *testing.T) {
	f := newAppFixture(t)

	status, body := f.postAck(t, "gone", f.adminToken)
	assert.Equal(t, fiber.StatusNotFound, status)

	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "NOT_FOUND", payload.Error.Code)
	assert.Equal(t, "gone", payload.Error.Details["session_id"])
}

func TestStreamAckRequiresAuth(t *testing.T) {
	f := newAppFixture(t)

	status, _ := f.postAck(t, "any", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}
