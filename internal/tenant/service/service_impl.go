package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/cableledger/internal/audit/domain"
	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/smallbiznis/cableledger/internal/observability/metrics"
	"github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/smallbiznis/cableledger/internal/tenant/password"
	"github.com/smallbiznis/cableledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenIssuer       = "cableledger"
	minPasswordLength = 8
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     domain.Repository
	AuditSvc auditdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
	secret   []byte
	tokenTTL time.Duration
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	ttl := p.Config.AuthTokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tenant.service"),
		genID:    p.GenID,
		clock:    clk,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
		secret:   []byte(strings.TrimSpace(p.Config.AuthJWTSecret)),
		tokenTTL: ttl,
	}
}

func (s *Service) Resolve(ctx context.Context, tenantID snowflake.ID) (domain.Principal, error) {
	if tenantID == 0 {
		return domain.Principal{}, domain.ErrNotFound
	}

	tenant, err := s.repo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return domain.Principal{}, err
	}
	if tenant == nil {
		return domain.Principal{}, domain.ErrNotFound
	}

	scope, err := domain.ResolveScope(*tenant)
	if err != nil {
		return domain.Principal{}, err
	}
	if scope.OrphanFallback() {
		s.reportOrphanFallback(ctx, *tenant, "request")
	}

	return domain.Principal{Tenant: *tenant, Scope: scope}, nil
}

func (s *Service) BillingScopes(ctx context.Context) ([]domain.Scope, error) {
	tenants, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}

	seen := make(map[snowflake.ID]struct{}, len(tenants))
	scopes := make([]domain.Scope, 0, len(tenants))
	for _, tenant := range tenants {
		if tenant == nil || tenant.Role == domain.RoleOwner {
			continue
		}
		scope, err := domain.ResolveScope(*tenant)
		if err != nil {
			s.log.Error("tenant scope resolution failed",
				zap.String("tenant_id", tenant.ID.String()),
				zap.String("role", string(tenant.Role)),
				zap.Error(err),
			)
			continue
		}
		if scope.OrphanFallback() {
			s.reportOrphanFallback(ctx, *tenant, "scheduler")
		}
		if _, ok := seen[scope.ID()]; ok {
			continue
		}
		seen[scope.ID()] = struct{}{}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

func (s *Service) NarrowTo(ctx context.Context, scope domain.Scope, id snowflake.ID) (domain.Scope, error) {
	if !scope.Valid() {
		return domain.Scope{}, domain.ErrEmptyScope
	}
	if id == 0 || !scope.Unrestricted() {
		return scope.Narrow(id)
	}

	tenant, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Scope{}, err
	}
	if tenant == nil {
		return domain.Scope{}, domain.ErrNotFound
	}

	target, err := domain.ResolveScope(*tenant)
	if err != nil || target.Unrestricted() || target.ID() != id {
		s.log.Warn("scope override rejected",
			zap.String("requested_scope_id", id.String()),
			zap.String("role", string(tenant.Role)),
			zap.Bool("blocked", tenant.Blocked),
		)
		return domain.Scope{}, domain.ErrInvalidScope
	}
	if target.OrphanFallback() {
		s.reportOrphanFallback(ctx, *tenant, "override")
	}
	return scope.Narrow(id)
}

func (s *Service) Create(ctx context.Context, actor domain.Principal, req domain.CreateTenantRequest) (domain.Tenant, error) {
	if !actor.Scope.Valid() {
		return domain.Tenant{}, domain.ErrEmptyScope
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Tenant{}, domain.ErrInvalidName
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Tenant{}, domain.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return domain.Tenant{}, domain.ErrInvalidPassword
	}

	role := domain.Role(strings.TrimSpace(string(req.Role)))
	if !role.Valid() || role == domain.RoleOwner {
		return domain.Tenant{}, domain.ErrInvalidRole
	}

	var parentID *snowflake.ID
	switch actor.Scope.Role() {
	case domain.RoleOwner:
		if role == domain.RoleOperator && strings.TrimSpace(req.ParentID) != "" {
			id, err := snowflake.ParseString(strings.TrimSpace(req.ParentID))
			if err != nil || id == 0 {
				return domain.Tenant{}, domain.ErrInvalidParent
			}
			parent, err := s.repo.FindByID(ctx, s.db, id)
			if err != nil {
				return domain.Tenant{}, err
			}
			if parent == nil || parent.Role != domain.RoleTenantAdmin {
				return domain.Tenant{}, domain.ErrInvalidParent
			}
			parentID = &parent.ID
		}
	case domain.RoleTenantAdmin:
		if role != domain.RoleOperator {
			return domain.Tenant{}, domain.ErrForbidden
		}
		scopeID := actor.Scope.ID()
		parentID = &scopeID
	default:
		return domain.Tenant{}, domain.ErrForbidden
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return domain.Tenant{}, err
	}

	now := s.clock.Now().UTC()
	tenant := domain.Tenant{
		ID:           s.genID.Generate(),
		ParentID:     parentID,
		Name:         name,
		Slug:         slug.Make(name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, &tenant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Tenant{}, domain.ErrDuplicateEmail
		}
		return domain.Tenant{}, err
	}

	targetID := tenant.ID.String()
	actorID := actor.Tenant.ID.String()
	var scopeID *snowflake.ID
	if parentID != nil {
		scopeID = parentID
	} else if role == domain.RoleTenantAdmin {
		scopeID = &tenant.ID
	}
	_ = s.auditSvc.AuditLog(ctx, scopeID, string(auditdomain.ActorTypeTenant), &actorID, auditdomain.ActionTenantCreate, auditdomain.TargetTenant, &targetID, map[string]any{
		"role": string(role),
		"slug": tenant.Slug,
	})

	return tenant, nil
}

func (s *Service) Authenticate(ctx context.Context, req domain.AuthenticateRequest) (domain.Token, error) {
	if len(s.secret) == 0 {
		return domain.Token{}, domain.ErrSigningKeyMissing
	}

	tenant, err := s.repo.FindByEmail(ctx, s.db, req.Email)
	if err != nil {
		return domain.Token{}, err
	}
	if tenant == nil || !password.Verify(req.Password, tenant.PasswordHash) {
		return domain.Token{}, domain.ErrInvalidCredentials
	}
	if tenant.Blocked {
		return domain.Token{}, domain.ErrForbidden
	}

	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   tenant.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.Token{}, err
	}

	return domain.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.UTC(),
	}, nil
}

func (s *Service) VerifyToken(raw string) (snowflake.ID, error) {
	if len(s.secret) == 0 {
		return 0, domain.ErrSigningKeyMissing
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, domain.ErrInvalidToken
	}
	if !claims.VerifyIssuer(tokenIssuer, true) {
		return 0, domain.ErrInvalidToken
	}

	id, err := snowflake.ParseString(claims.Subject)
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidToken
	}
	return id, nil
}

func (s *Service) EnsureOwner(ctx context.Context, name, email, pass string) (domain.Tenant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Tenant{}, domain.ErrInvalidEmail
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return domain.Tenant{}, err
	}
	if existing != nil {
		if existing.Role != domain.RoleOwner {
			return domain.Tenant{}, domain.ErrDuplicateEmail
		}
		return *existing, nil
	}
	if len(pass) < minPasswordLength {
		return domain.Tenant{}, domain.ErrInvalidPassword
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Owner"
	}
	hash, err := password.Hash(pass)
	if err != nil {
		return domain.Tenant{}, err
	}

	now := s.clock.Now().UTC()
	owner := domain.Tenant{
		ID:           s.genID.Generate(),
		Name:         name,
		Slug:         slug.Make(name),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleOwner,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, &owner); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.EnsureOwner(ctx, name, email, pass)
		}
		return domain.Tenant{}, err
	}

	targetID := owner.ID.String()
	_ = s.auditSvc.AuditLog(ctx, nil, string(auditdomain.ActorTypeSystem), nil, auditdomain.ActionTenantBootstrapOwner, auditdomain.TargetTenant, &targetID, nil)
	s.log.Info("owner account bootstrapped", zap.String("tenant_id", targetID))
	return owner, nil
}

func (s *Service) reportOrphanFallback(ctx context.Context, tenant domain.Tenant, source string) {
	s.log.Warn("operator has no parent tenant; scoped to itself",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("source", source),
	)
	s.metrics.RecordScopeFallback(ctx)

	targetID := tenant.ID.String()
	scopeID := tenant.ID
	_ = s.auditSvc.AuditLog(ctx, &scopeID, string(auditdomain.ActorTypeSystem), nil, auditdomain.ActionScopeOrphanFallback, auditdomain.TargetTenant, &targetID, map[string]any{
		"role":   string(tenant.Role),
		"source": source,
	})
}

