package domain

import (
	"context"
)

type SessionStore interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
}

type DiagnosticStore interface {
	InsertBatch(ctx context.Context, diags []Diagnostic) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]Diagnostic, error)
}
