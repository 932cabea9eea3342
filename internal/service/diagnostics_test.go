package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/Harshitk-cp/switchboard/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockDiagnosticStore mocks the DiagnosticStore interface.
type MockDiagnosticStore struct {
	mock.Mock
}

func (m *MockDiagnosticStore) InsertBatch(ctx context.Context, diags []domain.Diagnostic) error {
	args := m.Called(ctx, diags)
	return args.Error(0)
}

func (m *MockDiagnosticStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]domain.Diagnostic, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Diagnostic), args.Error(1)
}

func TestDiagnosticsFlusher_FlushWritesPending(t *testing.T) {
	log := gateway.NewDiagnosticLog(10, 10)
	log.Add(domain.Diagnostic{TenantID: "acme", Reason: domain.ReasonOriginRejected})
	log.Add(domain.Diagnostic{TenantID: "acme", Reason: domain.ReasonSchemaValidationFailed})

	store := new(MockDiagnosticStore)
	store.On("InsertBatch", mock.Anything, mock.MatchedBy(func(d []domain.Diagnostic) bool {
		return len(d) == 2
	})).Return(nil).Once()

	f := NewDiagnosticsFlusher(log, store, zap.NewNop())
	assert.Equal(t, 2, f.Flush(context.Background()))
	assert.Equal(t, 0, f.Flush(context.Background()))

	store.AssertExpectations(t)
}

func TestDiagnosticsFlusher_StoreErrorDropsBatch(t *testing.T) {
	log := gateway.NewDiagnosticLog(10, 10)
	log.Add(domain.Diagnostic{TenantID: "acme", Reason: domain.ReasonOriginRejected})

	store := new(MockDiagnosticStore)
	store.On("InsertBatch", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	f := NewDiagnosticsFlusher(log, store, zap.NewNop())
	assert.Equal(t, 0, f.Flush(context.Background()))
	assert.Empty(t, log.Drain())
	store.AssertExpectations(t)
}

func TestDiagnosticsFlusher_StopFlushesRemainder(t *testing.T) {
	log := gateway.NewDiagnosticLog(10, 10)
	store := new(MockDiagnosticStore)
	store.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)

	f := NewDiagnosticsFlusher(log, store, zap.NewNop())
	f.SetInterval(time.Hour)
	f.Start()

	log.Add(domain.Diagnostic{TenantID: "acme", Reason: domain.ReasonSubscriberFailure})
	f.Stop()

	store.AssertNumberOfCalls(t, "InsertBatch", 1)
}
