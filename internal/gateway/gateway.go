// Package gateway is the trust boundary between embedded module frames and the
// dashboard. It authenticates each frame message by its transport origin,
// validates its shape against the protocol schema table and dispatches
// accepted messages to subscribers of the mounted module instance.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/Harshitk-cp/switchboard/internal/origin"
	"github.com/Harshitk-cp/switchboard/internal/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Subscriber receives accepted messages. It must not block for long and must
// not unmount the instance it is subscribed to from inside the call.
type Subscriber func(domain.Delivery)

// Instance describes a mounted module frame.
type Instance struct {
	ID         uuid.UUID         `json:"instance_id"`
	ModuleKind domain.ModuleKind `json:"module_kind"`
	TenantID   string            `json:"tenant_id"`
	Allowlist  []string          `json:"allowed_origins"`
	MountedAt  time.Time         `json:"mounted_at"`
}

// Inbound is one message as handed over by the transport. Origin is the
// transport-supplied origin and the only one the gateway trusts.
type Inbound struct {
	InstanceID uuid.UUID
	Origin     string
	Body       []byte
}

type subscription struct {
	id     uint64
	types  map[domain.MessageType]struct{}
	fn     Subscriber
	active atomic.Bool
}

type mounted struct {
	info  Instance
	allow map[string]struct{}
	done  chan struct{}

	// mu serializes message handling for the instance and is held by Unmount
	// while it tears down, so no dispatch can outlive the unmount.
	mu sync.Mutex

	// subsMu guards subs and nextSub. closed is written holding both locks.
	subsMu  sync.Mutex
	subs    []*subscription
	nextSub uint64
	closed  bool
}

type Option func(*Gateway)

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithDiagnosticLog(l *DiagnosticLog) Option {
	return func(g *Gateway) { g.diags = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// Gateway tracks mounted module instances and their subscriptions.
type Gateway struct {
	registry *protocol.Registry
	logger   *zap.Logger
	metrics  *Metrics
	diags    *DiagnosticLog
	tracer   trace.Tracer
	now      func() time.Time

	mu        sync.RWMutex
	instances map[uuid.UUID]*mounted
}

func New(registry *protocol.Registry, logger *zap.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		registry:  registry,
		logger:    logger,
		instances: make(map[uuid.UUID]*mounted),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(nil)
	}
	if g.diags == nil {
		g.diags = NewDiagnosticLog(0, 0)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer("switchboard/gateway")
	}
	return g
}

// Mount starts accepting messages for inst. The allowlist is captured now and
// is not re-resolved per message.
func (g *Gateway) Mount(inst Instance) error {
	if len(g.registry.Types(inst.ModuleKind)) == 0 {
		return fmt.Errorf("%w: %s", protocol.ErrUnknownModuleKind, inst.ModuleKind)
	}
	if len(inst.Allowlist) == 0 {
		return ErrEmptyAllowlist
	}
	if inst.MountedAt.IsZero() {
		inst.MountedAt = g.now()
	}

	allow := make(map[string]struct{}, len(inst.Allowlist))
	list := make([]string, 0, len(inst.Allowlist))
	for _, o := range inst.Allowlist {
		if _, dup := allow[o]; dup {
			continue
		}
		allow[o] = struct{}{}
		list = append(list, o)
	}
	inst.Allowlist = list

	m := &mounted{info: inst, allow: allow, done: make(chan struct{})}

	g.mu.Lock()
	if _, exists := g.instances[inst.ID]; exists {
		g.mu.Unlock()
		return ErrAlreadyMounted
	}
	g.instances[inst.ID] = m
	g.mu.Unlock()

	g.metrics.MountedFrames.Inc()
	g.logger.Info("module instance mounted",
		zap.String("instance_id", inst.ID.String()),
		zap.String("module_kind", string(inst.ModuleKind)),
		zap.String("tenant_id", inst.TenantID),
		zap.Strings("allowed_origins", inst.Allowlist))
	return nil
}

// Unmount stops delivery for id. It waits for an in-flight message of the
// same instance to finish; once it returns nothing more is delivered.
func (g *Gateway) Unmount(id uuid.UUID) error {
	g.mu.Lock()
	m, ok := g.instances[id]
	if ok {
		delete(g.instances, id)
	}
	g.mu.Unlock()
	if !ok {
		return ErrNotMounted
	}

	m.mu.Lock()
	m.subsMu.Lock()
	m.closed = true
	for _, s := range m.subs {
		s.active.Store(false)
	}
	m.subs = nil
	m.subsMu.Unlock()
	close(m.done)
	m.mu.Unlock()

	g.metrics.MountedFrames.Dec()
	g.logger.Info("module instance unmounted",
		zap.String("instance_id", id.String()),
		zap.String("module_kind", string(m.info.ModuleKind)))
	return nil
}

// Subscribe registers fn for the given message types on instance id. The
// returned cancel func is idempotent and safe to call from within fn.
func (g *Gateway) Subscribe(id uuid.UUID, types []domain.MessageType, fn Subscriber) (func(), error) {
	if len(types) == 0 {
		return nil, ErrNoMessageTypes
	}

	m, ok := g.lookup(id)
	if !ok {
		return nil, ErrNotMounted
	}

	set := make(map[domain.MessageType]struct{}, len(types))
	for _, t := range types {
		if !g.registry.Knows(m.info.ModuleKind, t) {
			return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownMessageType, t)
		}
		set[t] = struct{}{}
	}

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if m.closed {
		return nil, ErrNotMounted
	}
	m.nextSub++
	s := &subscription{id: m.nextSub, types: set, fn: fn}
	s.active.Store(true)
	m.subs = append(m.subs, s)

	cancel := func() {
		if !s.active.Swap(false) {
			return
		}
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		for i, other := range m.subs {
			if other == s {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				break
			}
		}
	}
	return cancel, nil
}

// Instance returns the mount record for id.
func (g *Gateway) Instance(id uuid.UUID) (Instance, bool) {
	m, ok := g.lookup(id)
	if !ok {
		return Instance{}, false
	}
	return m.info, true
}

// Done returns a channel closed when id is unmounted.
func (g *Gateway) Done(id uuid.UUID) (<-chan struct{}, bool) {
	m, ok := g.lookup(id)
	if !ok {
		return nil, false
	}
	return m.done, true
}

// MessageTypes lists the message types kind may send.
func (g *Gateway) MessageTypes(kind domain.ModuleKind) []domain.MessageType {
	return g.registry.Types(kind)
}

// Diagnostics exposes the gateway's diagnostic log.
func (g *Gateway) Diagnostics() *DiagnosticLog {
	return g.diags
}

func (g *Gateway) lookup(id uuid.UUID) (*mounted, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.instances[id]
	return m, ok
}

// Handle runs one inbound message through the origin check, shape
// validation and dispatch, stopping at the first failure. The returned
// error is for the caller's logs only and must never reach the frame.
func (g *Gateway) Handle(ctx context.Context, in Inbound) error {
	_, span := g.tracer.Start(ctx, "gateway.Handle",
		trace.WithAttributes(attribute.String("instance_id", in.InstanceID.String())))
	defer span.End()

	m, ok := g.lookup(in.InstanceID)
	if !ok {
		g.metrics.Messages.WithLabelValues(outcomeNotMounted).Inc()
		span.SetAttributes(attribute.String("outcome", outcomeNotMounted))
		return ErrNotMounted
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		g.metrics.Messages.WithLabelValues(outcomeNotMounted).Inc()
		span.SetAttributes(attribute.String("outcome", outcomeNotMounted))
		return ErrNotMounted
	}

	if _, allowed := m.allow[in.Origin]; !allowed {
		g.reject(m, in, domain.ReasonOriginRejected)
		g.metrics.Messages.WithLabelValues(outcomeOriginRejected).Inc()
		span.SetAttributes(attribute.String("outcome", outcomeOriginRejected))
		return ErrOriginRejected
	}

	msg, err := g.registry.Decode(m.info.ModuleKind, in.Body)
	if err != nil {
		g.reject(m, in, domain.ReasonSchemaValidationFailed)
		g.metrics.Messages.WithLabelValues(outcomeSchemaFailed).Inc()
		span.SetAttributes(attribute.String("outcome", outcomeSchemaFailed))
		return fmt.Errorf("%w: %w", ErrSchemaValidationFailed, err)
	}
	msg.Origin = in.Origin

	g.metrics.Messages.WithLabelValues(outcomeAccepted).Inc()
	span.SetAttributes(
		attribute.String("outcome", outcomeAccepted),
		attribute.String("message_type", string(msg.Type)))

	g.dispatch(m, msg.Origin, domain.Delivery{
		InstanceID: m.info.ID,
		ModuleKind: m.info.ModuleKind,
		Type:       msg.Type,
		Payload:    msg.Payload,
	})
	return nil
}

func (g *Gateway) dispatch(m *mounted, from string, d domain.Delivery) {
	m.subsMu.Lock()
	targets := make([]*subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if _, ok := s.types[d.Type]; ok {
			targets = append(targets, s)
		}
	}
	m.subsMu.Unlock()

	for _, s := range targets {
		if !s.active.Load() {
			continue
		}
		if err := invoke(s, d); err != nil {
			g.metrics.SubscriberFailures.Inc()
			g.record(m, domain.Diagnostic{
				Origin:        from,
				AttemptedType: d.Type,
				Reason:        domain.ReasonSubscriberFailure,
				Detail:        fmt.Sprintf("subscription %d panicked", s.id),
			})
			continue
		}
		g.metrics.Deliveries.Inc()
	}
}

func invoke(s *subscription, d domain.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrSubscriberFailure
		}
	}()
	s.fn(d)
	return nil
}

func (g *Gateway) reject(m *mounted, in Inbound, reason domain.RejectReason) {
	g.record(m, domain.Diagnostic{
		Origin:        sanitizeOrigin(in.Origin),
		AttemptedType: g.registry.PeekType(m.info.ModuleKind, in.Body),
		Reason:        reason,
	})
}

func (g *Gateway) record(m *mounted, d domain.Diagnostic) {
	d.ID = uuid.New()
	d.InstanceID = m.info.ID
	d.TenantID = m.info.TenantID
	d.ModuleKind = m.info.ModuleKind
	d.OccurredAt = g.now()
	g.diags.Add(d)

	msg := "frame message rejected"
	if d.Reason == domain.ReasonSubscriberFailure {
		msg = "frame subscriber failed"
	}
	g.logger.Warn(msg,
		zap.String("instance_id", d.InstanceID.String()),
		zap.String("tenant_id", d.TenantID),
		zap.String("module_kind", string(d.ModuleKind)),
		zap.String("origin", d.Origin),
		zap.String("attempted_type", string(d.AttemptedType)),
		zap.String("reason", string(d.Reason)))
}

// sanitizeOrigin keeps only a parsed scheme://host so diagnostics never
// store arbitrary header content.
func sanitizeOrigin(raw string) string {
	if raw == "" {
		return "none"
	}
	o, err := origin.OriginOf(raw)
	if err != nil || len(o) > 255 {
		return "invalid"
	}
	return o
}
