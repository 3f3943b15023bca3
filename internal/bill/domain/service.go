package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
)

const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

const (
	ReasonAlreadyBilled = "already_billed"
	ReasonInactive      = "inactive"
)

type GenerateRequest struct {
	Month   string
	Year    int
	Trigger string
}

// GenerationItem reports one subscriber's outcome. BillID is set for
// created and already billed subscribers. Skipped only ever holds already
// billed subscribers; a subscriber deactivated after the run listed it is
// reported as failed with reason inactive.
type GenerationItem struct {
	SubscriberID snowflake.ID  `json:"subscriber_id"`
	BillID       *snowflake.ID `json:"bill_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

type GenerateResult struct {
	ScopeID snowflake.ID     `json:"scope_id"`
	Month   string           `json:"month"`
	Year    int              `json:"year"`
	Created []GenerationItem `json:"created"`
	Skipped []GenerationItem `json:"skipped"`
	Failed  []GenerationItem `json:"failed"`
}

// Examined is the number of subscribers the run looked at.
func (r GenerateResult) Examined() int {
	return len(r.Created) + len(r.Skipped) + len(r.Failed)
}

// Outcome summarises a run as empty, ok, partial or failed.
func (r GenerateResult) Outcome() string {
	switch {
	case r.Examined() == 0:
		return "empty"
	case len(r.Failed) == 0:
		return "ok"
	case len(r.Failed) == r.Examined():
		return "failed"
	default:
		return "partial"
	}
}

type Service interface {
	// Generate bills every active subscriber of a concrete scope for one
	// period. Per-subscriber failures are reported in the result.
	Generate(ctx context.Context, scope tenantdomain.Scope, req GenerateRequest) (GenerateResult, error)
	GetByID(ctx context.Context, scope tenantdomain.Scope, id string) (Bill, error)
	// ListForSubscriber returns the subscriber's bills, newest period first.
	ListForSubscriber(ctx context.Context, scope tenantdomain.Scope, subscriberID string) ([]Bill, error)
}

var (
	ErrNotFound             = errors.New("bill_not_found")
	ErrInvalidID            = errors.New("invalid_bill_id")
	ErrInvalidMonth         = errors.New("invalid_month")
	ErrInvalidYear          = errors.New("invalid_year")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrGenerationInProgress = errors.New("generation_in_progress")
	ErrSubscriberInactive   = errors.New("subscriber_inactive")
)
