package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/belgrano/ticketera/internal/api/dto"
	"github.com/belgrano/ticketera/internal/auth"
	"github.com/belgrano/ticketera/internal/hub"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

// StreamHandler bridges hub sessions onto Server-Sent Events connections.
type StreamHandler struct {
	hub       *hub.Hub
	logger    *zap.Logger
	keepalive time.Duration
}

// NewStreamHandler constructs handler. keepalive bounds the silence between
// frames so proxies do not drop idle connections.
func NewStreamHandler(h *hub.Hub, logger *zap.Logger, keepalive time.Duration) *StreamHandler {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &StreamHandler{hub: h, logger: logger, keepalive: keepalive}
}

// Stream GET /api/stream. The optional `watermarks` query parameter carries
// "ticketID:version" pairs separated by commas; events newer than each
// watermark are replayed before live delivery starts. Without watermarks the
// session receives a full snapshot.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	watermarks, err := parseWatermarks(c.Query("watermarks"))
	if err != nil {
		return err
	}

	sess := hub.Session{Role: principal.Role, Identity: principal.Identity}
	conn, err := h.hub.Connect(c.UserContext(), sess, watermarks)
	if err != nil {
		return apperrors.MapError(err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := h.logger
	keepalive := h.keepalive
	streamHub := h.hub
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer streamHub.Disconnect(conn)

		if err := writeFrame(w, "connected", fiber.Map{"session_id": conn.ID}); err != nil {
			return
		}

		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-conn.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case msg := <-conn.Events():
				if err := writeMessage(w, msg); err != nil {
					logger.Debug("stream write failed",
						zap.String("session_id", conn.ID),
						zap.Error(err))
					return
				}
			}
		}
	}))
	return nil
}

// Ack POST /api/stream/:session/ack.
func (h *StreamHandler) Ack(c *fiber.Ctx) error {
	if _, ok := auth.PrincipalFromContext(c); !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AckRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewMalformedPayload("body", "invalid JSON payload")
	}
	if !h.hub.Ack(c.Params("session"), req.Watermarks) {
		return apperrors.NewNotFound("stream session", map[string]any{"session_id": c.Params("session")})
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"acknowledged": true}})
}

func writeMessage(w *bufio.Writer, msg hub.Message) error {
	switch msg.Kind {
	case hub.MessageKindSnapshot:
		return writeFrame(w, "snapshot", fiber.Map{"tickets": msg.Snapshot})
	default:
		return writeFrame(w, string(msg.Event.Type), msg.Event)
	}
}

func writeFrame(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

func parseWatermarks(raw string) (map[string]int64, error) {
	if raw == "" {
		return nil, nil
	}
	watermarks := make(map[string]int64)
	for _, pair := range strings.Split(raw, ",") {
		idx := strings.LastIndex(pair, ":")
		if idx <= 0 {
			return nil, apperrors.NewMalformedPayload("watermarks", "expected ticketID:version pairs")
		}
		version, err := strconv.ParseInt(pair[idx+1:], 10, 64)
		if err != nil || version < 0 {
			return nil, apperrors.NewMalformedPayload("watermarks", "version must be a non-negative integer")
		}
		watermarks[pair[:idx]] = version
	}
	return watermarks, nil
}
