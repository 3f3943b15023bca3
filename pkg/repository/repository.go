package repository

import (
	"context"

	"github.com/smallbiznis/cableledger/pkg/db/option"
)

// Repository is a generic gorm-backed store for rows looked up by example,
// such as tenants outside any billing scope.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
}
