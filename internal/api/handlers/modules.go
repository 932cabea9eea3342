package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/switchboard/internal/api/middleware"
	"github.com/Harshitk-cp/switchboard/internal/service"
	"go.uber.org/zap"
)

type ModuleHandler struct {
	svc    *service.DashboardService
	logger *zap.Logger
}

func NewModuleHandler(svc *service.DashboardService, logger *zap.Logger) *ModuleHandler {
	return &ModuleHandler{svc: svc, logger: logger}
}

// List returns the resolved base URL of every active module for the caller's tenant.
func (h *ModuleHandler) List(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	endpoints, err := h.svc.ListModules(sess)
	if err != nil {
		h.logger.Error("failed to resolve modules", zap.String("tenant_id", sess.TenantID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve modules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"modules": endpoints})
}
