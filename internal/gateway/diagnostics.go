package gateway

import (
	"sync"

	"github.com/Harshitk-cp/switchboard/internal/domain"
)

const (
	defaultRecentDiagnostics  = 512
	defaultPendingDiagnostics = 4096
)

// DiagnosticLog keeps the most recent diagnostics in a ring for operators and
// queues them for persistence. Both are bounded; when the queue is full the
// oldest pending entry is dropped.
type DiagnosticLog struct {
	mu         sync.Mutex
	ring       []domain.Diagnostic
	next       int
	full       bool
	pending    []domain.Diagnostic
	maxPending int
	dropped    int64
}

func NewDiagnosticLog(recent, maxPending int) *DiagnosticLog {
	if recent <= 0 {
		recent = defaultRecentDiagnostics
	}
	if maxPending <= 0 {
		maxPending = defaultPendingDiagnostics
	}
	return &DiagnosticLog{
		ring:       make([]domain.Diagnostic, recent),
		maxPending: maxPending,
	}
}

func (l *DiagnosticLog) Add(d domain.Diagnostic) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = d
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}

	if len(l.pending) >= l.maxPending {
		l.pending = l.pending[1:]
		l.dropped++
	}
	l.pending = append(l.pending, d)
}

// Recent returns up to limit diagnostics, newest first. An empty tenantID matches every tenant.
func (l *DiagnosticLog) Recent(tenantID string, limit int) []domain.Diagnostic {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.full {
		size = len(l.ring)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]domain.Diagnostic, 0, limit)
	for i := 0; i < size && len(out) < limit; i++ {
		idx := (l.next - 1 - i + len(l.ring)) % len(l.ring)
		d := l.ring[idx]
		if tenantID != "" && d.TenantID != tenantID {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Drain hands over everything queued for persistence.
func (l *DiagnosticLog) Drain() []domain.Diagnostic {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.pending
	l.pending = nil
	return out
}

// Dropped reports how many pending diagnostics were discarded because the queue was full.
func (l *DiagnosticLog) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
