package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/carego/internal/store"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// AuditWriter is one destination for audit entries.
type AuditWriter interface {
	Name() string
	WriteAudit(ctx context.Context, e *store.AuditEntry) error
}

// Auditor accepts entries without blocking and hands them to a single
// background worker that fans out to every writer. Writer failures are only
// logged.
type Auditor struct {
	queue   chan *store.AuditEntry
	writers []AuditWriter
	timeout time.Duration
	obs     Observer
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAuditor(buffer int, obs Observer, log *zap.Logger, writers ...AuditWriter) *Auditor {
	a := &Auditor{
		queue:   make(chan *store.AuditEntry, buffer),
		writers: writers,
		timeout: 5 * time.Second,
		obs:     observerOrNop(obs),
		log:     log,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues e, filling in its id and timestamp. It never blocks; a full
// queue drops the entry.
func (a *Auditor) Record(e *store.AuditEntry) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- e:
	default:
		a.obs.AuditDropped()
		a.log.Warn("audit queue full, entry dropped", zap.String("action", e.Action), zap.String("audit_id", e.ID))
	}
}

func (a *Auditor) run() {
	defer close(a.done)
	for e := range a.queue {
		for _, w := range a.writers {
			ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
			if err := w.WriteAudit(ctx, e); err != nil {
				a.log.Error("audit write failed", zap.String("writer", w.Name()), zap.String("audit_id", e.ID), zap.Error(err))
			}
			cancel()
		}
	}
}

// Close stops intake and waits for queued entries to drain or ctx to end.
func (a *Auditor) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type storeAuditWriter struct{ s store.AuditStore }

// NewStoreAuditWriter appends entries to the audit table.
func NewStoreAuditWriter(s store.AuditStore) AuditWriter { return storeAuditWriter{s} }

func (storeAuditWriter) Name() string { return "db" }

func (w storeAuditWriter) WriteAudit(ctx context.Context, e *store.AuditEntry) error {
	return w.s.AppendAudit(ctx, e)
}

type logAuditWriter struct{ log *zap.Logger }

// NewLogAuditWriter emits each entry as a structured info line.
func NewLogAuditWriter(log *zap.Logger) AuditWriter { return logAuditWriter{log} }

func (logAuditWriter) Name() string { return "log" }

func (w logAuditWriter) WriteAudit(_ context.Context, e *store.AuditEntry) error {
	actor := ""
	if e.ActorUserID != nil {
		actor = *e.ActorUserID
	}
	w.log.Info("audit",
		zap.String("audit_id", e.ID),
		zap.String("action", e.Action),
		zap.String("actor_user_id", actor),
		zap.String("actor_role", e.ActorRole),
		zap.String("entity_type", e.EntityType),
		zap.String("entity_id", e.EntityID),
		zap.String("origin", e.OriginAddress),
		zap.Time("occurred_at", e.OccurredAt),
	)
	return nil
}

// Snapshot marshals v for an entry's before/after fields.
func Snapshot(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// ActorOf returns the audit actor fields for ac. The operator context has
// no user id and records none.
func ActorOf(ac *AuthContext) (*string, string) {
	if ac == nil {
		return nil, ""
	}
	if ac.UserID == "" {
		return nil, string(ac.Role)
	}
	id := ac.UserID
	return &id, string(ac.Role)
}
