package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Harshitk-cp/switchboard/internal/api/middleware"
	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/Harshitk-cp/switchboard/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	eventBufferSize   = 64
	keepAliveInterval = 25 * time.Second
)

type FrameHandler struct {
	svc    *service.DashboardService
	logger *zap.Logger
}

func NewFrameHandler(svc *service.DashboardService, logger *zap.Logger) *FrameHandler {
	return &FrameHandler{svc: svc, logger: logger}
}

type mountFrameRequest struct {
	ModuleKind string `json:"module_kind"`
}

func (h *FrameHandler) Mount(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req mountFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := domain.ParseModuleKind(req.ModuleKind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown module_kind")
		return
	}

	frame, err := h.svc.Mount(r.Context(), sess, kind)
	if err != nil {
		if errors.Is(err, service.ErrModuleNotActive) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("failed to mount frame",
			zap.String("tenant_id", sess.TenantID),
			zap.String("module_kind", string(kind)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to mount frame")
		return
	}

	writeJSON(w, http.StatusCreated, frame)
}

func (h *FrameHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid frame id")
		return
	}

	inst, err := h.svc.Frame(sess, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *FrameHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid frame id")
		return
	}

	if err := h.svc.Unmount(r.Context(), sess, id); err != nil {
		if errors.Is(err, service.ErrFrameNotFound) {
			writeError(w, http.StatusNotFound, "frame not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to unmount frame")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events streams accepted messages of one frame as Server-Sent Events until
// the client disconnects or the frame is unmounted. Deliveries that do not
// fit the buffer are dropped rather than stalling the gateway.
func (h *FrameHandler) Events(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid frame id")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var types []domain.MessageType
	for _, t := range r.URL.Query()["type"] {
		types = append(types, domain.MessageType(t))
	}

	events := make(chan domain.Delivery, eventBufferSize)
	cancel, done, err := h.svc.Subscribe(sess, id, types, func(d domain.Delivery) {
		select {
		case events <- d:
		default:
			h.logger.Warn("dropping frame event for slow stream",
				zap.String("instance_id", d.InstanceID.String()),
				zap.String("type", string(d.Type)))
		}
	})
	if err != nil {
		if errors.Is(err, service.ErrFrameNotFound) {
			writeError(w, http.StatusNotFound, "frame not found")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid subscription")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			_, _ = fmt.Fprint(w, "event: unmounted\ndata: {}\n\n")
			flusher.Flush()
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case d := <-events:
			data, err := json.Marshal(d)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", d.Type, data)
			flusher.Flush()
		}
	}
}
