package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/belgrano/ticketera/internal/api/dto"
	"github.com/belgrano/ticketera/internal/auth"
	"github.com/belgrano/ticketera/internal/events"
	"github.com/belgrano/ticketera/internal/service"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

// IngestHandler accepts tickets from the upstream retail platform and from
// administrators entering orders manually; both go through the same
// validated, idempotent create path.
type IngestHandler struct {
	ingest *service.IngestService
}

// NewIngestHandler constructs handler.
func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// ReceiveExternal POST /api/ingest/tickets (X-API-Key).
func (h *IngestHandler) ReceiveExternal(c *fiber.Ctx) error {
	return h.receive(c, events.SystemActor())
}

// CreateManual POST /api/tickets (admin session).
func (h *IngestHandler) CreateManual(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return h.receive(c, events.AdminActor(principal.Identity))
}

func (h *IngestHandler) receive(c *fiber.Ctx, actor events.Actor) error {
	var req dto.IngestTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewMalformedPayload("body", "invalid JSON payload")
	}

	items := make([]service.IngestItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.IngestItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	payload := service.IngestPayload{
		ExternalNumber: req.ExternalNumber,
		Customer:       req.Customer,
		Items:          items,
		Priority:       req.Priority,
		Notes:          req.Notes,
		ClientKind:     req.ClientKind,
	}

	ticket, created, err := h.ingest.Ingest(c.UserContext(), actor, payload)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.IngestTicketResponse{
		Ticket:     dto.FromTicket(ticket),
		Idempotent: !created,
	}})
}
