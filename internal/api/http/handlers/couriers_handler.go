package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/belgrano/ticketera/internal/api/dto"
	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/repository"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

// CouriersHandler manages the delivery-staff directory.
type CouriersHandler struct {
	couriers repository.CourierRepository
}

// NewCouriersHandler constructs handler.
func NewCouriersHandler(couriers repository.CourierRepository) *CouriersHandler {
	return &CouriersHandler{couriers: couriers}
}

// ListCouriers GET /api/couriers.
func (h *CouriersHandler) ListCouriers(c *fiber.Ctx) error {
	couriers, err := h.couriers.List(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.CourierResponse, 0, len(couriers))
	for i := range couriers {
		items = append(items, dto.FromCourier(&couriers[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateCourier POST /api/couriers.
func (h *CouriersHandler) CreateCourier(c *fiber.Ctx) error {
	var req dto.CreateCourierRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewMalformedPayload("body", "invalid JSON payload")
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewMalformedPayload("name", "name is required")
	}
	courier := &domain.Courier{
		ID:     req.ID,
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.TrimSpace(req.Email),
		Active: true,
	}
	if courier.ID == "" {
		courier.ID = uuid.NewString()
	}
	if err := h.couriers.Create(c.UserContext(), courier); err != nil {
		return apperrors.MapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromCourier(courier)})
}
