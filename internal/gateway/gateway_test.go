package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/Harshitk-cp/switchboard/internal/origin"
	"github.com/Harshitk-cp/switchboard/internal/protocol"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const acmePolicyOrigin = "https://policy.acme.example"

type recorder struct {
	mu         sync.Mutex
	deliveries []domain.Delivery
}

func (r *recorder) subscriber() Subscriber {
	return func(d domain.Delivery) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.deliveries = append(r.deliveries, d)
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deliveries)
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	reg, err := protocol.NewRegistry()
	require.NoError(t, err)
	return New(reg, zap.NewNop())
}

func mountPolicy(t *testing.T, g *Gateway) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, g.Mount(Instance{
		ID:         id,
		ModuleKind: domain.ModuleKindPolicy,
		TenantID:   "acme",
		Allowlist:  []string{acmePolicyOrigin},
	}))
	return id
}

var allPolicyTypes = []domain.MessageType{
	domain.MessageTypeReady,
	domain.MessageTypeNavigate,
	domain.MessageTypeResize,
	domain.MessageTypeStateChange,
}

func navigateBody(path string) []byte {
	return []byte(fmt.Sprintf(`{"type":"navigate","payload":{"path":%q}}`, path))
}

func resizeBody(height int) []byte {
	return []byte(fmt.Sprintf(`{"type":"resize","payload":{"height":%d}}`, height))
}

func TestHandle_OriginNotInAllowlistIsDropped(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)
	rec := &recorder{}
	_, err := g.Subscribe(id, allPolicyTypes, rec.subscriber())
	require.NoError(t, err)

	err = g.Handle(context.Background(), Inbound{
		InstanceID: id,
		Origin:     "https://evil.example",
		Body:       navigateBody("/policies"),
	})

	assert.ErrorIs(t, err, ErrOriginRejected)
	assert.Equal(t, 0, rec.count())

	diags := g.Diagnostics().Recent("acme", 0)
	require.Len(t, diags, 1)
	assert.Equal(t, domain.ReasonOriginRejected, diags[0].Reason)
	assert.Equal(t, "https://evil.example", diags[0].Origin)
	assert.Equal(t, domain.MessageTypeNavigate, diags[0].AttemptedType)
	assert.Equal(t, id, diags[0].InstanceID)
}

func TestHandle_UnknownTypeFromAllowedOriginIsDropped(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)
	rec := &recorder{}
	_, err := g.Subscribe(id, allPolicyTypes, rec.subscriber())
	require.NoError(t, err)

	err = g.Handle(context.Background(), Inbound{
		InstanceID: id,
		Origin:     acmePolicyOrigin,
		Body:       []byte(`{"type":"unknown-type","payload":{"path":"/x"}}`),
	})

	assert.ErrorIs(t, err, ErrSchemaValidationFailed)
	assert.ErrorIs(t, err, protocol.ErrUnknownMessageType)
	assert.Equal(t, 0, rec.count())

	diags := g.Diagnostics().Recent("acme", 0)
	require.Len(t, diags, 1)
	assert.Equal(t, domain.ReasonSchemaValidationFailed, diags[0].Reason)
	assert.Empty(t, diags[0].AttemptedType)
}

func TestHandle_OriginCheckPrecedesShapeValidation(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)

	err := g.Handle(context.Background(), Inbound{
		InstanceID: id,
		Origin:     "https://evil.example",
		Body:       []byte(`not even json`),
	})
	assert.ErrorIs(t, err, ErrOriginRejected)
	assert.False(t, errors.Is(err, ErrSchemaValidationFailed))
}

func TestHandle_OriginMatchIsExact(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)
	rec := &recorder{}
	_, err := g.Subscribe(id, allPolicyTypes, rec.subscriber())
	require.NoError(t, err)

	lookalikes := []string{
		"https://policy.acme.example/",
		"https://policy.acme.example:443",
		"http://policy.acme.example",
		"HTTPS://POLICY.ACME.EXAMPLE",
		"https://evil.policy.acme.example",
		"https://policy.acme.example.evil.example",
		"",
		"null",
	}
	for _, o := range lookalikes {
		err := g.Handle(context.Background(), Inbound{InstanceID: id, Origin: o, Body: navigateBody("/")})
		assert.ErrorIs(t, err, ErrOriginRejected, "origin %q", o)
	}
	assert.Equal(t, 0, rec.count())
}

func TestHandle_DefaultPortOverrideAcceptsBrowserOrigin(t *testing.T) {
	r, err := origin.NewResolver(origin.Snapshot{
		Defaults:  origin.DefaultTable(),
		Overrides: map[domain.ModuleKind]string{domain.ModuleKindPolicy: "https://policy.acme.example:443/app"},
	}, domain.ModuleKindPolicy)
	require.NoError(t, err)
	allow, err := r.AllowedOrigins("acme", domain.EnvironmentProduction, []domain.ModuleKind{domain.ModuleKindPolicy})
	require.NoError(t, err)

	g := newTestGateway(t)
	id := uuid.New()
	require.NoError(t, g.Mount(Instance{ID: id, ModuleKind: domain.ModuleKindPolicy, TenantID: "acme", Allowlist: allow}))
	rec := &recorder{}
	_, err = g.Subscribe(id, []domain.MessageType{domain.MessageTypeReady}, rec.subscriber())
	require.NoError(t, err)

	err = g.Handle(context.Background(), Inbound{InstanceID: id, Origin: "https://policy.acme.example", Body: []byte(`{"type":"ready"}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count())
}

func TestHandle_PayloadOriginFieldIsNotTrusted(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)

	err := g.Handle(context.Background(), Inbound{
		InstanceID: id,
		Origin:     "https://evil.example",
		Body:       []byte(`{"type":"ready","origin":"https://policy.acme.example","payload":{}}`),
	})
	assert.ErrorIs(t, err, ErrOriginRejected)
}

func TestHandle_DispatchesToMatchingSubscribersInRegistrationOrder(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)

	var order []string
	sub := func(name string) Subscriber {
		return func(d domain.Delivery) { order = append(order, name) }
	}
	_, err := g.Subscribe(id, []domain.MessageType{domain.MessageTypeNavigate}, sub("first"))
	require.NoError(t, err)
	_, err = g.Subscribe(id, []domain.MessageType{domain.MessageTypeResize}, sub("resize-only"))
	require.NoError(t, err)
	_, err = g.Subscribe(id, []domain.MessageType{domain.MessageTypeNavigate, domain.MessageTypeResize}, sub("second"))
	require.NoError(t, err)

	var got domain.Delivery
	_, err = g.Subscribe(id, []domain.MessageType{domain.MessageTypeNavigate}, func(d domain.Delivery) { got = d })
	require.NoError(t, err)

	require.NoError(t, g.Handle(context.Background(), Inbound{
		InstanceID: id,
		Origin:     acmePolicyOrigin,
		Body:       navigateBody("/policies/7"),
	}))

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, id, got.InstanceID)
	assert.Equal(t, domain.ModuleKindPolicy, got.ModuleKind)
	assert.Equal(t, domain.MessageTypeNavigate, got.Type)

	var payload struct {
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "/policies/7", payload.Path)
}

func TestHandle_PreservesArrivalOrder(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)

	var heights []int
	_, err := g.Subscribe(id, []domain.MessageType{domain.MessageTypeResize}, func(d domain.Delivery) {
		var p struct {
			Height int `json:"height"`
		}
		_ = json.Unmarshal(d.Payload, &p)
		heights = append(heights, p.Height)
	})
	require.NoError(t, err)

	want := make([]int, 0, 50)
	for i := 0; i < 50; i++ {
		want = append(want, i*10)
		require.NoError(t, g.Handle(context.Background(), Inbound{
			InstanceID: id,
			Origin:     acmePolicyOrigin,
			Body:       resizeBody(i * 10),
		}))
	}
	assert.Equal(t, want, heights)
}

func TestHandle_PanickingSubscriberIsIsolated(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)

	_, err := g.Subscribe(id, []domain.MessageType{domain.MessageTypeNavigate}, func(domain.Delivery) {
		panic("boom")
	})
	require.NoError(t, err)
	rec := &recorder{}
	_, err = g.Subscribe(id, []domain.MessageType{domain.MessageTypeNavigate}, rec.subscriber())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, g.Handle(context.Background(), Inbound{
			InstanceID: id,
			Origin:     acmePolicyOrigin,
			Body:       navigateBody("/"),
		}))
	}

	assert.Equal(t, 2, rec.count())
	diags := g.Diagnostics().Recent("acme", 0)
	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, domain.ReasonSubscriberFailure, d.Reason)
		assert.Equal(t, acmePolicyOrigin, d.Origin)
	}
}

func TestHandle_NothingDeliveredAfterUnmount(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)
	rec := &recorder{}
	_, err := g.Subscribe(id, allPolicyTypes, rec.subscriber())
	require.NoError(t, err)

	done, ok := g.Done(id)
	require.True(t, ok)

	require.NoError(t, g.Unmount(id))

	err = g.Handle(context.Background(), Inbound{InstanceID: id, Origin: acmePolicyOrigin, Body: navigateBody("/")})
	assert.ErrorIs(t, err, ErrNotMounted)
	assert.Equal(t, 0, rec.count())

	select {
	case <-done:
	default:
		t.Fatal("expected done channel to be closed")
	}

	_, err = g.Subscribe(id, allPolicyTypes, rec.subscriber())
	assert.ErrorIs(t, err, ErrNotMounted)
	assert.ErrorIs(t, g.Unmount(id), ErrNotMounted)
}

func TestHandle_UnmountRacingInFlightMessages(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)

	var unmounted atomic.Bool
	var lateDeliveries atomic.Int64
	_, err := g.Subscribe(id, []domain.MessageType{domain.MessageTypeResize}, func(domain.Delivery) {
		if unmounted.Load() {
			lateDeliveries.Add(1)
		}
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = g.Handle(context.Background(), Inbound{
					InstanceID: id,
					Origin:     acmePolicyOrigin,
					Body:       resizeBody(w*200 + i),
				})
			}
		}(w)
	}

	require.NoError(t, g.Unmount(id))
	unmounted.Store(true)
	wg.Wait()

	assert.Equal(t, int64(0), lateDeliveries.Load())
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)

	rec := &recorder{}
	cancel, err := g.Subscribe(id, []domain.MessageType{domain.MessageTypeReady}, rec.subscriber())
	require.NoError(t, err)

	var selfCancel func()
	var selfCalls int
	selfCancel, err = g.Subscribe(id, []domain.MessageType{domain.MessageTypeReady}, func(domain.Delivery) {
		selfCalls++
		selfCancel()
	})
	require.NoError(t, err)

	send := func() {
		require.NoError(t, g.Handle(context.Background(), Inbound{
			InstanceID: id,
			Origin:     acmePolicyOrigin,
			Body:       []byte(`{"type":"ready"}`),
		}))
	}

	send()
	cancel()
	cancel()
	send()

	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 1, selfCalls)
}

func TestSubscribe_Validation(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)
	noop := func(domain.Delivery) {}

	_, err := g.Subscribe(id, nil, noop)
	assert.ErrorIs(t, err, ErrNoMessageTypes)

	_, err = g.Subscribe(id, []domain.MessageType{domain.MessageTypeActionTriggered}, noop)
	assert.ErrorIs(t, err, protocol.ErrUnknownMessageType)

	_, err = g.Subscribe(uuid.New(), allPolicyTypes, noop)
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestMount_Validation(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)

	err := g.Mount(Instance{ID: id, ModuleKind: domain.ModuleKindPolicy, Allowlist: []string{acmePolicyOrigin}})
	assert.ErrorIs(t, err, ErrAlreadyMounted)

	err = g.Mount(Instance{ID: uuid.New(), ModuleKind: domain.ModuleKindPolicy})
	assert.ErrorIs(t, err, ErrEmptyAllowlist)

	err = g.Mount(Instance{ID: uuid.New(), ModuleKind: "ads", Allowlist: []string{acmePolicyOrigin}})
	assert.ErrorIs(t, err, protocol.ErrUnknownModuleKind)

	inst, ok := g.Instance(id)
	require.True(t, ok)
	assert.Equal(t, []string{acmePolicyOrigin}, inst.Allowlist)
	assert.False(t, inst.MountedAt.IsZero())
}

func TestHandle_DiagnosticsNeverCarryPayload(t *testing.T) {
	g := newTestGateway(t)
	id := mountPolicy(t, g)

	secret := "s3cr3t-<script>"
	bodies := [][]byte{
		[]byte(fmt.Sprintf(`{"type":%q,"payload":{"path":%q}}`, secret, secret)),
		navigateBody("/" + secret),
		[]byte(fmt.Sprintf(`{"type":"navigate","payload":{"path":"//%s"}}`, secret)),
	}
	for _, b := range bodies {
		_ = g.Handle(context.Background(), Inbound{InstanceID: id, Origin: acmePolicyOrigin, Body: b})
		_ = g.Handle(context.Background(), Inbound{InstanceID: id, Origin: "javascript:" + secret, Body: b})
	}

	raw, err := json.Marshal(g.Diagnostics().Recent("", 0))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cr3t")
	assert.Contains(t, string(raw), `"origin":"invalid"`)
}

func TestHandle_Metrics(t *testing.T) {
	reg, err := protocol.NewRegistry()
	require.NoError(t, err)
	m := NewMetrics(nil)
	g := New(reg, zap.NewNop(), WithMetrics(m))
	id := mountPolicy(t, g)

	_ = g.Handle(context.Background(), Inbound{InstanceID: id, Origin: acmePolicyOrigin, Body: navigateBody("/")})
	_ = g.Handle(context.Background(), Inbound{InstanceID: id, Origin: "https://evil.example", Body: navigateBody("/")})
	_ = g.Handle(context.Background(), Inbound{InstanceID: uuid.New(), Origin: acmePolicyOrigin, Body: navigateBody("/")})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Messages.WithLabelValues(outcomeAccepted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Messages.WithLabelValues(outcomeOriginRejected)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Messages.WithLabelValues(outcomeNotMounted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MountedFrames))
}
