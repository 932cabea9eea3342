package handlers

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/switchboard/internal/api/middleware"
	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/Harshitk-cp/switchboard/internal/service"
	"go.uber.org/zap"
)

type DiagnosticsHandler struct {
	svc    *service.DashboardService
	store  domain.DiagnosticStore
	logger *zap.Logger
}

func NewDiagnosticsHandler(svc *service.DashboardService, store domain.DiagnosticStore, logger *zap.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{svc: svc, store: store, logger: logger}
}

// List returns rejected-message diagnostics for the caller's tenant. By
// default it reads the in-memory log; ?source=store reads persisted history.
func (h *DiagnosticsHandler) List(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if sess.Role == domain.RoleViewer {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	var (
		diags []domain.Diagnostic
		err   error
	)
	if r.URL.Query().Get("source") == "store" && h.store != nil {
		diags, err = h.store.ListByTenant(r.Context(), sess.TenantID, limit)
	} else {
		diags, err = h.svc.RecentDiagnostics(sess, limit)
	}
	if err != nil {
		h.logger.Error("failed to list diagnostics", zap.String("tenant_id", sess.TenantID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list diagnostics")
		return
	}
	if diags == nil {
		diags = []domain.Diagnostic{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"diagnostics": diags})
}
