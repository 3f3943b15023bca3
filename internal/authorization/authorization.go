package authorization

import (
	"context"
	"errors"

	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
)

const (
	ObjectSubscriber = "subscriber"
	ObjectBill       = "bill"
	ObjectPayment    = "payment"
	ObjectAuditLog   = "audit_log"
	ObjectTenant     = "tenant"
)

const (
	ActionSubscriberView       = "subscriber.view"
	ActionSubscriberCreate     = "subscriber.create"
	ActionSubscriberUpdate     = "subscriber.update"
	ActionSubscriberActivate   = "subscriber.activate"
	ActionSubscriberDeactivate = "subscriber.deactivate"
	ActionSubscriberDelete     = "subscriber.delete"

	ActionBillView     = "bill.view"
	ActionBillGenerate = "bill.generate"

	ActionPaymentView     = "payment.view"
	ActionPaymentRecord   = "payment.record"
	ActionPaymentDelivery = "payment.delivery"

	ActionAuditLogView = "audit_log.view"

	ActionTenantCreate = "tenant.create"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

type Service interface {
	// Authorize checks the scope's role against the policy for object and action.
	Authorize(ctx context.Context, scope tenantdomain.Scope, object string, action string) error
}
