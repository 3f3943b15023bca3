package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateTenantRequest struct {
	Name     string
	Email    string
	Password string
	Role     Role
	// ParentID is only honoured for operators; it defaults to the acting tenant admin.
	ParentID string
}

type AuthenticateRequest struct {
	Email    string
	Password string
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Principal is a tenant together with its resolved scope.
type Principal struct {
	Tenant Tenant
	Scope  Scope
}

type Service interface {
	// Resolve loads a tenant and resolves its scope.
	Resolve(ctx context.Context, tenantID snowflake.ID) (Principal, error)
	// BillingScopes returns the distinct concrete scopes of every non-blocked tenant.
	BillingScopes(ctx context.Context) ([]Scope, error)
	// NarrowTo restricts scope to id. For an unrestricted scope the id must be
	// a billing scope: a tenant whose own resolution yields id.
	NarrowTo(ctx context.Context, scope Scope, id snowflake.ID) (Scope, error)
	Create(ctx context.Context, actor Principal, req CreateTenantRequest) (Tenant, error)
	Authenticate(ctx context.Context, req AuthenticateRequest) (Token, error)
	// VerifyToken returns the tenant id carried by a bearer token.
	VerifyToken(raw string) (snowflake.ID, error)
	// EnsureOwner creates the owner account when no tenant with email exists.
	EnsureOwner(ctx context.Context, name, email, password string) (Tenant, error)
}

var (
	ErrEmptyScope         = errors.New("empty_scope")
	ErrScopeRequired      = errors.New("scope_required")
	ErrInvalidScope       = errors.New("invalid_scope")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("tenant_not_found")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidPassword    = errors.New("invalid_password")
	ErrInvalidParent      = errors.New("invalid_parent")
	ErrDuplicateEmail     = errors.New("duplicate_email")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrSigningKeyMissing  = errors.New("signing_key_missing")
)
