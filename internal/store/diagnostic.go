package store

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DiagnosticStore struct {
	db *pgxpool.Pool
}

func NewDiagnosticStore(db *pgxpool.Pool) *DiagnosticStore {
	return &DiagnosticStore{db: db}
}

func (s *DiagnosticStore) InsertBatch(ctx context.Context, diags []domain.Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range diags {
		batch.Queue(
			`INSERT INTO frame_diagnostics
			   (id, instance_id, tenant_id, module_kind, origin, attempted_type, reason, detail, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO NOTHING`,
			d.ID, d.InstanceID, d.TenantID, string(d.ModuleKind), d.Origin,
			string(d.AttemptedType), string(d.Reason), d.Detail, d.OccurredAt,
		)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := range diags {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert diagnostic %d: %w", i, err)
		}
	}
	return nil
}

func (s *DiagnosticStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]domain.Diagnostic, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, instance_id, tenant_id, module_kind, origin, attempted_type, reason, detail, occurred_at
		 FROM frame_diagnostics
		 WHERE tenant_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Diagnostic
	for rows.Next() {
		var d domain.Diagnostic
		var kind, attempted, reason string
		if err := rows.Scan(&d.ID, &d.InstanceID, &d.TenantID, &kind, &d.Origin, &attempted, &reason, &d.Detail, &d.OccurredAt); err != nil {
			return nil, err
		}
		d.ModuleKind = domain.ModuleKind(kind)
		d.AttemptedType = domain.MessageType(attempted)
		d.Reason = domain.RejectReason(reason)
		out = append(out, d)
	}
	return out, rows.Err()
}
