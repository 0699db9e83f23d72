package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
	"github.com/belgrano/ticketera/internal/observability"
	"github.com/belgrano/ticketera/internal/persistence"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

const dedupKeyTTL = 24 * time.Hour

// ClientKindMerchant marks upstream orders placed by merchants; they are
// always delivered at high priority.
const ClientKindMerchant = "merchant"

// IngestService translates upstream shop payloads into create calls with
// strong deduplication. The upstream delivers at-least-once, so a repeated
// external number must resolve to the already-stored ticket.
type IngestService struct {
	tickets *TicketService
	redis   *persistence.Redis
	logger  *zap.Logger
	metrics *observability.Metrics
}

// IngestItem is one ordered product as delivered by the upstream platform.
type IngestItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// IngestPayload is the upstream ingestion contract.
type IngestPayload struct {
	ExternalNumber string          `json:"external_number"`
	Customer       domain.Customer `json:"customer"`
	Items          []IngestItem    `json:"items"`
	Priority       string          `json:"priority"`
	Notes          string          `json:"notes"`
	ClientKind     string          `json:"client_kind"`
}

// NewIngestService constructs the gateway. redis may be nil; it only
// provides a dedup fast path in front of the store's unique index.
func NewIngestService(tickets *TicketService, redis *persistence.Redis, logger *zap.Logger, metrics *observability.Metrics) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{tickets: tickets, redis: redis, logger: logger, metrics: metrics}
}

// Ingest validates, normalizes and stores one upstream ticket. The returned
// bool reports whether a new ticket was created; false means the payload was
// a duplicate and the existing ticket is returned as-is.
func (s *IngestService) Ingest(ctx context.Context, actor events.Actor, payload IngestPayload) (*domain.Ticket, bool, error) {
	input, err := s.normalize(payload)
	if err != nil {
		s.metrics.RecordIngest("rejected")
		return nil, false, err
	}
	input.Actor = actor

	if existing, hit := s.dedupFastPath(ctx, input.ExternalNumber); hit {
		s.metrics.RecordIngest("duplicate")
		return existing, false, nil
	}

	ticket, created, err := s.tickets.Create(ctx, input)
	if err != nil {
		s.releaseDedupKey(ctx, input.ExternalNumber)
		s.metrics.RecordIngest("failed")
		return nil, false, err
	}
	if created {
		s.metrics.RecordIngest("created")
	} else {
		s.metrics.RecordIngest("duplicate")
	}
	return ticket, created, nil
}

// normalize validates required fields and reports the first violation.
func (s *IngestService) normalize(payload IngestPayload) (TicketCreateInput, error) {
	var input TicketCreateInput

	externalNumber := strings.TrimSpace(payload.ExternalNumber)
	if externalNumber == "" {
		return input, apperrors.NewMalformedPayload("external_number", "external_number is required")
	}
	if len(payload.Items) == 0 {
		return input, apperrors.NewMalformedPayload("items", "at least one item is required")
	}
	items := make([]domain.LineItem, 0, len(payload.Items))
	for i, item := range payload.Items {
		if strings.TrimSpace(item.Name) == "" {
			return input, apperrors.NewMalformedPayload(fmt.Sprintf("items[%d].name", i), "item name is required")
		}
		if item.Quantity <= 0 {
			return input, apperrors.NewMalformedPayload(fmt.Sprintf("items[%d].quantity", i), "quantity must be positive")
		}
		if item.UnitPrice < 0 {
			return input, apperrors.NewMalformedPayload(fmt.Sprintf("items[%d].unit_price", i), "unit_price must not be negative")
		}
		items = append(items, domain.LineItem{
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	priority := domain.TicketPriority(payload.Priority)
	if priority == "" {
		priority = domain.TicketPriorityNormal
	}
	if !domain.ValidPriority(priority) {
		return input, apperrors.NewMalformedPayload("priority", "priority must be normal or high")
	}
	// merchant orders always go out at high priority
	if payload.ClientKind == ClientKindMerchant {
		priority = domain.TicketPriorityHigh
	}

	input = TicketCreateInput{
		ExternalNumber: externalNumber,
		Customer:       payload.Customer,
		Items:          items,
		Priority:       priority,
		Notes:          strings.TrimSpace(payload.Notes),
	}
	return input, nil
}

// dedupFastPath claims the external number in Redis. When the claim is
// already held the existing ticket is looked up and returned. Redis being
// down or absent only disables the fast path; the store's unique index
// remains the source of truth.
func (s *IngestService) dedupFastPath(ctx context.Context, externalNumber string) (*domain.Ticket, bool) {
	if s.redis == nil || s.redis.Client == nil {
		return nil, false
	}
	ok, err := s.redis.Client.SetNX(ctx, dedupKey(externalNumber), 1, dedupKeyTTL).Result()
	if err != nil {
		s.logger.Warn("ingest dedup fast path unavailable", zap.Error(err))
		return nil, false
	}
	if ok {
		return nil, false
	}
	existing, err := s.tickets.tickets.GetByExternalNumber(ctx, externalNumber)
	if err != nil {
		// claim exists but the ticket does not (crashed mid-create); fall
		// through to the store path
		return nil, false
	}
	return existing, true
}

func (s *IngestService) releaseDedupKey(ctx context.Context, externalNumber string) {
	if s.redis == nil || s.redis.Client == nil {
		return
	}
	_ = s.redis.Client.Del(ctx, dedupKey(externalNumber)).Err()
}

func dedupKey(externalNumber string) string {
	return "ticketera:extnum:" + externalNumber
}
