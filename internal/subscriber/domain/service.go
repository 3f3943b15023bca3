package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/smallbiznis/cableledger/pkg/db/pagination"
)

type CreateSubscriberRequest struct {
	Identifier    string
	Name          string
	Contact       string
	Address       string
	PackageAmount decimal.Decimal
}

// UpdateSubscriberRequest carries optional changes. The balance is derived
// by billing and payments and cannot be set here.
type UpdateSubscriberRequest struct {
	Name          *string
	Contact       *string
	Address       *string
	PackageAmount *decimal.Decimal
}

type ListSubscriberRequest struct {
	pagination.Pagination
	Status string
	Search string
}

type ListSubscriberResponse struct {
	pagination.PageInfo
	Subscribers []Subscriber `json:"subscribers"`
}

type Service interface {
	Create(ctx context.Context, scope tenantdomain.Scope, req CreateSubscriberRequest) (Subscriber, error)
	GetByID(ctx context.Context, scope tenantdomain.Scope, id string) (Subscriber, error)
	List(ctx context.Context, scope tenantdomain.Scope, req ListSubscriberRequest) (ListSubscriberResponse, error)
	Update(ctx context.Context, scope tenantdomain.Scope, id string, req UpdateSubscriberRequest) (Subscriber, error)
	Deactivate(ctx context.Context, scope tenantdomain.Scope, id string) (Subscriber, error)
	Activate(ctx context.Context, scope tenantdomain.Scope, id string) (Subscriber, error)
	// Delete removes a subscriber that has never been billed.
	Delete(ctx context.Context, scope tenantdomain.Scope, id string) error
}

var (
	ErrNotFound             = errors.New("subscriber_not_found")
	ErrInvalidID            = errors.New("invalid_subscriber_id")
	ErrInvalidIdentifier    = errors.New("invalid_identifier")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidContact       = errors.New("invalid_contact")
	ErrInvalidPackageAmount = errors.New("invalid_package_amount")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrDuplicateIdentifier  = errors.New("duplicate_identifier")
	ErrDuplicateContact     = errors.New("duplicate_contact")
	ErrHasBills             = errors.New("subscriber_has_bills")
)
