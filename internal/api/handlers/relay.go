package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/Harshitk-cp/switchboard/internal/gateway"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxFrameMessageBytes = 64 << 10

// RelayHandler is the transport endpoint module frames post their messages to.
type RelayHandler struct {
	gateway *gateway.Gateway
	logger  *zap.Logger
}

func NewRelayHandler(g *gateway.Gateway, logger *zap.Logger) *RelayHandler {
	return &RelayHandler{gateway: g, logger: logger}
}

// Post hands one frame message to the gateway. The browser-set Origin header
// is the transport origin. The response is 202 with an empty body whatever
// happened, and no CORS headers are sent, so a frame cannot learn whether its
// message was accepted. Frames post with fetch(..., {mode: "no-cors"}).
func (h *RelayHandler) Post(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusAccepted)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameMessageBytes))
	if err != nil {
		h.logger.Debug("frame message body rejected", zap.String("instance_id", id.String()))
		return
	}

	if err := h.gateway.Handle(r.Context(), gateway.Inbound{
		InstanceID: id,
		Origin:     r.Header.Get("Origin"),
		Body:       body,
	}); err != nil {
		h.logger.Debug("frame message dropped",
			zap.String("instance_id", id.String()),
			zap.String("reason", dropReason(err)))
	}
}

// Throttled answers a rate-limited relay request exactly like any other one.
func (h *RelayHandler) Throttled(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, gateway.ErrNotMounted):
		return "not_mounted"
	case errors.Is(err, gateway.ErrOriginRejected):
		return string(domain.ReasonOriginRejected)
	case errors.Is(err, gateway.ErrSchemaValidationFailed):
		return string(domain.ReasonSchemaValidationFailed)
	default:
		return "unknown"
	}
}
