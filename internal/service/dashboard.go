package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/Harshitk-cp/switchboard/internal/gateway"
	"github.com/Harshitk-cp/switchboard/internal/origin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrFrameNotFound   = errors.New("frame not found")
	ErrModuleNotActive = errors.New("module kind is not active")
	ErrNoTenant        = errors.New("session has no tenant")
)

// MountedFrame is what the dashboard shell needs to render a module frame.
type MountedFrame struct {
	InstanceID     uuid.UUID         `json:"instance_id"`
	ModuleKind     domain.ModuleKind `json:"module_kind"`
	URL            string            `json:"url"`
	AllowedOrigins []string          `json:"allowed_origins"`
}

// DashboardService wires sessions to origin resolution and the frame gateway.
type DashboardService struct {
	resolver *origin.Resolver
	gateway  *gateway.Gateway
	env      domain.Environment
	active   []domain.ModuleKind
	logger   *zap.Logger
}

func NewDashboardService(r *origin.Resolver, g *gateway.Gateway, env domain.Environment, active []domain.ModuleKind, logger *zap.Logger) *DashboardService {
	kinds := make([]domain.ModuleKind, len(active))
	copy(kinds, active)
	return &DashboardService{
		resolver: r,
		gateway:  g,
		env:      env,
		active:   kinds,
		logger:   logger,
	}
}

// ListModules resolves the base URL of every active module for the session's tenant.
func (s *DashboardService) ListModules(sess *domain.Session) ([]domain.ModuleEndpoint, error) {
	if sess == nil || sess.TenantID == "" {
		return nil, ErrNoTenant
	}
	return s.resolver.Endpoints(sess.TenantID, s.env, s.active)
}

// Mount resolves kind for the session's tenant, computes the tenant's
// allowed origin set and registers a new module instance with the gateway.
func (s *DashboardService) Mount(ctx context.Context, sess *domain.Session, kind domain.ModuleKind) (*MountedFrame, error) {
	if sess == nil || sess.TenantID == "" {
		return nil, ErrNoTenant
	}
	if !s.isActive(kind) {
		return nil, ErrModuleNotActive
	}

	url, err := s.resolver.Resolve(kind, s.env, sess.TenantID)
	if err != nil {
		return nil, err
	}
	allow, err := s.resolver.AllowedOrigins(sess.TenantID, s.env, s.active)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	if err := s.gateway.Mount(gateway.Instance{
		ID:         id,
		ModuleKind: kind,
		TenantID:   sess.TenantID,
		Allowlist:  allow,
	}); err != nil {
		return nil, fmt.Errorf("mount %s: %w", kind, err)
	}

	s.logger.Info("frame mounted for session",
		zap.String("instance_id", id.String()),
		zap.String("user_id", sess.UserID),
		zap.String("role", string(sess.Role)),
		zap.String("tenant_id", sess.TenantID))

	return &MountedFrame{
		InstanceID:     id,
		ModuleKind:     kind,
		URL:            url,
		AllowedOrigins: allow,
	}, nil
}

// Frame returns the instance when it belongs to the session's tenant.
func (s *DashboardService) Frame(sess *domain.Session, id uuid.UUID) (gateway.Instance, error) {
	if sess == nil || sess.TenantID == "" {
		return gateway.Instance{}, ErrNoTenant
	}
	inst, ok := s.gateway.Instance(id)
	if !ok || inst.TenantID != sess.TenantID {
		return gateway.Instance{}, ErrFrameNotFound
	}
	return inst, nil
}

func (s *DashboardService) Unmount(ctx context.Context, sess *domain.Session, id uuid.UUID) error {
	if _, err := s.Frame(sess, id); err != nil {
		return err
	}
	if err := s.gateway.Unmount(id); err != nil {
		if errors.Is(err, gateway.ErrNotMounted) {
			return ErrFrameNotFound
		}
		return err
	}
	return nil
}

// Subscribe attaches fn to a frame of the session's tenant. The returned
// channel is closed when the frame is unmounted.
func (s *DashboardService) Subscribe(sess *domain.Session, id uuid.UUID, types []domain.MessageType, fn gateway.Subscriber) (func(), <-chan struct{}, error) {
	inst, err := s.Frame(sess, id)
	if err != nil {
		return nil, nil, err
	}
	if len(types) == 0 {
		types = s.gateway.MessageTypes(inst.ModuleKind)
	}

	done, ok := s.gateway.Done(id)
	if !ok {
		return nil, nil, ErrFrameNotFound
	}
	cancel, err := s.gateway.Subscribe(id, types, fn)
	if err != nil {
		if errors.Is(err, gateway.ErrNotMounted) {
			return nil, nil, ErrFrameNotFound
		}
		return nil, nil, err
	}
	return cancel, done, nil
}

// RecentDiagnostics lists the newest gateway diagnostics for the session's tenant.
func (s *DashboardService) RecentDiagnostics(sess *domain.Session, limit int) ([]domain.Diagnostic, error) {
	if sess == nil || sess.TenantID == "" {
		return nil, ErrNoTenant
	}
	return s.gateway.Diagnostics().Recent(sess.TenantID, limit), nil
}

func (s *DashboardService) isActive(kind domain.ModuleKind) bool {
	for _, k := range s.active {
		if k == kind {
			return true
		}
	}
	return false
}
