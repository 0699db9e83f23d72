package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/belgrano/ticketera/internal/api/dto"
	"github.com/belgrano/ticketera/internal/auth"
	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
	"github.com/belgrano/ticketera/internal/service"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

// TicketsHandler serves ticket queries and operator commands.
type TicketsHandler struct {
	tickets *service.TicketService
	query   *service.QueryService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, query *service.QueryService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, query: query}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	filter := parseListQuery(c)
	tickets, err := h.query.List(c.UserContext(), principal.Role, principal.Identity, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.FromTicket(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.query.Get(c.UserContext(), principal.Role, principal.Identity, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// AssignTicket POST /api/tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewMalformedPayload("body", "invalid JSON payload")
	}
	if req.AssigneeID == "" {
		return apperrors.NewMalformedPayload("assignee_id", "assignee_id is required")
	}
	ticket, err := h.tickets.Assign(c.UserContext(), actorFor(principal), c.Params("id"), req.AssigneeID, req.ExpectedVersion)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// SetStatus POST /api/tickets/:id/status.
func (h *TicketsHandler) SetStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewMalformedPayload("body", "invalid JSON payload")
	}
	ticket, err := h.tickets.SetStatus(c.UserContext(), actorFor(principal), c.Params("id"), req.Status, req.ExpectedVersion, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// CancelTicket POST /api/tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CancelTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewMalformedPayload("body", "invalid JSON payload")
	}
	ticket, err := h.tickets.Cancel(c.UserContext(), actorFor(principal), c.Params("id"), req.ExpectedVersion, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

func actorFor(principal *auth.Principal) events.Actor {
	if principal.Role == domain.RoleAdmin {
		return events.AdminActor(principal.Identity)
	}
	return events.FlotaActor(principal.Identity)
}

func parseListQuery(c *fiber.Ctx) service.ListFilter {
	filter := service.ListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if assignee := c.Query("assignee"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
