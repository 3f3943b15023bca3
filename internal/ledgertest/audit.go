package ledgertest

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/cableledger/internal/audit/domain"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
)

// AuditEvent is one captured AuditLog call.
type AuditEvent struct {
	ScopeID    *snowflake.ID
	ActorType  string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

// AuditRecorder captures audit events in memory. Err, when set, is returned
// from every AuditLog call.
type AuditRecorder struct {
	mu     sync.Mutex
	events []AuditEvent
	Err    error
}

func (r *AuditRecorder) AuditLog(_ context.Context, scopeID *snowflake.ID, actorType string, _ *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event := AuditEvent{
		ScopeID:    scopeID,
		ActorType:  actorType,
		Action:     action,
		TargetType: targetType,
		Metadata:   metadata,
	}
	if targetID != nil {
		event.TargetID = *targetID
	}
	r.events = append(r.events, event)
	return r.Err
}

func (r *AuditRecorder) List(context.Context, tenantdomain.Scope, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

// Actions returns the recorded action names in call order.
func (r *AuditRecorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Action)
	}
	return out
}

// Events returns a copy of the recorded events.
func (r *AuditRecorder) Events() []AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuditEvent(nil), r.events...)
}
