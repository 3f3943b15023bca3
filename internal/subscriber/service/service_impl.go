package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/cableledger/internal/audit/domain"
	"github.com/smallbiznis/cableledger/internal/audit/masking"
	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/subscriber/domain"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/smallbiznis/cableledger/pkg/db"
	"github.com/smallbiznis/cableledger/pkg/db/pagination"
	"github.com/smallbiznis/cableledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscriber.service"),
		genID:    p.GenID,
		clock:    clk,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, scope tenantdomain.Scope, req domain.CreateSubscriberRequest) (domain.Subscriber, error) {
	scopeID, err := scope.WriteID()
	if err != nil {
		return domain.Subscriber{}, err
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		return domain.Subscriber{}, domain.ErrInvalidIdentifier
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Subscriber{}, domain.ErrInvalidName
	}
	contact, err := normalizeContact(req.Contact)
	if err != nil {
		return domain.Subscriber{}, err
	}
	amount, err := normalizePackageAmount(req.PackageAmount)
	if err != nil {
		return domain.Subscriber{}, err
	}

	now := s.clock.Now().UTC()
	subscriber := domain.Subscriber{
		ID:              s.genID.Generate(),
		ScopeID:         scopeID,
		CreatedBy:       scope.Principal(),
		Identifier:      identifier,
		Name:            name,
		Contact:         contact,
		Address:         optionalString(req.Address),
		PackageAmount:   amount,
		PreviousBalance: decimal.Zero,
		Status:          domain.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithScope(tx, int64(scopeID)); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, &subscriber)
	})
	if err != nil {
		return domain.Subscriber{}, mapDuplicate(err)
	}

	s.audit(ctx, subscriber.ScopeID, auditdomain.ActionSubscriberCreate, subscriber.ID, map[string]any{
		"identifier":     subscriber.Identifier,
		"contact":        subscriber.Contact,
		"package_amount": subscriber.PackageAmount.StringFixed(2),
	})
	return subscriber, nil
}

func (s *Service) GetByID(ctx context.Context, scope tenantdomain.Scope, id string) (domain.Subscriber, error) {
	subscriberID, err := parseID(id)
	if err != nil {
		return domain.Subscriber{}, err
	}
	item, err := s.repo.FindByID(ctx, s.db, scope, subscriberID)
	if err != nil {
		return domain.Subscriber{}, err
	}
	if item == nil {
		return domain.Subscriber{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, scope tenantdomain.Scope, req domain.ListSubscriberRequest) (domain.ListSubscriberResponse, error) {
	if !scope.Valid() {
		return domain.ListSubscriberResponse{}, tenantdomain.ErrEmptyScope
	}

	filter := domain.ListFilter{Scope: scope, Search: req.Search}
	if status := strings.TrimSpace(req.Status); status != "" {
		parsed, err := parseStatus(status)
		if err != nil {
			return domain.ListSubscriberResponse{}, err
		}
		filter.Status = parsed
	}

	page := req.Pagination.Normalize()
	filter.Limit = page.PageSize
	if page.PageToken != "" {
		cursor, err := decodeCursor(page.PageToken)
		if err != nil {
			return domain.ListSubscriberResponse{}, err
		}
		filter.Cursor = cursor
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListSubscriberResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, page.PageSize, func(item *domain.Subscriber) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	subscribers := make([]domain.Subscriber, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		subscribers = append(subscribers, *item)
	}
	return domain.ListSubscriberResponse{PageInfo: pageInfo, Subscribers: subscribers}, nil
}

func (s *Service) Update(ctx context.Context, scope tenantdomain.Scope, id string, req domain.UpdateSubscriberRequest) (domain.Subscriber, error) {
	changes := map[string]any{}
	updated, err := s.mutate(ctx, scope, id, func(sub *domain.Subscriber) error {
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			if name != sub.Name {
				changes["name"] = name
				sub.Name = name
			}
		}
		if req.Contact != nil {
			contact, err := normalizeContact(*req.Contact)
			if err != nil {
				return err
			}
			if contact != sub.Contact {
				changes["contact"] = contact
				sub.Contact = contact
			}
		}
		if req.Address != nil {
			sub.Address = optionalString(*req.Address)
			changes["address"] = true
		}
		if req.PackageAmount != nil {
			amount, err := normalizePackageAmount(*req.PackageAmount)
			if err != nil {
				return err
			}
			if !amount.Equal(sub.PackageAmount) {
				changes["package_amount"] = amount.StringFixed(2)
				sub.PackageAmount = amount
			}
		}
		return nil
	})
	if err != nil {
		return domain.Subscriber{}, err
	}

	if len(changes) > 0 {
		s.audit(ctx, updated.ScopeID, auditdomain.ActionSubscriberUpdate, updated.ID, map[string]any{"changes": changes})
	}
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, scope tenantdomain.Scope, id string) (domain.Subscriber, error) {
	return s.setStatus(ctx, scope, id, domain.StatusInactive, auditdomain.ActionSubscriberDeactivate)
}

func (s *Service) Activate(ctx context.Context, scope tenantdomain.Scope, id string) (domain.Subscriber, error) {
	return s.setStatus(ctx, scope, id, domain.StatusActive, auditdomain.ActionSubscriberActivate)
}

func (s *Service) Delete(ctx context.Context, scope tenantdomain.Scope, id string) error {
	subscriberID, err := parseID(id)
	if err != nil {
		return err
	}
	if !scope.Valid() {
		return tenantdomain.ErrEmptyScope
	}

	var deleted domain.Subscriber
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyRLS(tx, scope); err != nil {
			return err
		}
		ok, err := s.repo.Lock(ctx, tx, scope, subscriberID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		item, err := s.repo.FindByID(ctx, tx, scope, subscriberID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		hasBills, err := s.repo.HasBills(ctx, tx, subscriberID)
		if err != nil {
			return err
		}
		if hasBills {
			return domain.ErrHasBills
		}
		deleted = *item
		return s.repo.Delete(ctx, tx, scope, subscriberID)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, deleted.ScopeID, auditdomain.ActionSubscriberDelete, deleted.ID, map[string]any{
		"identifier": deleted.Identifier,
	})
	return nil
}

func (s *Service) setStatus(ctx context.Context, scope tenantdomain.Scope, id string, status domain.Status, action string) (domain.Subscriber, error) {
	changed := false
	updated, err := s.mutate(ctx, scope, id, func(sub *domain.Subscriber) error {
		if sub.Status == status {
			return nil
		}
		changed = true
		sub.Status = status
		return nil
	})
	if err != nil {
		return domain.Subscriber{}, err
	}
	if changed {
		s.audit(ctx, updated.ScopeID, action, updated.ID, map[string]any{"status": string(status)})
	}
	return updated, nil
}

// mutate loads, locks and rewrites one subscriber inside a transaction.
func (s *Service) mutate(ctx context.Context, scope tenantdomain.Scope, id string, apply func(*domain.Subscriber) error) (domain.Subscriber, error) {
	subscriberID, err := parseID(id)
	if err != nil {
		return domain.Subscriber{}, err
	}
	if !scope.Valid() {
		return domain.Subscriber{}, tenantdomain.ErrEmptyScope
	}

	var result domain.Subscriber
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyRLS(tx, scope); err != nil {
			return err
		}
		ok, err := s.repo.Lock(ctx, tx, scope, subscriberID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		item, err := s.repo.FindByID(ctx, tx, scope, subscriberID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if err := apply(item); err != nil {
			return err
		}
		item.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}
		result = *item
		return nil
	})
	if err != nil {
		return domain.Subscriber{}, mapDuplicate(err)
	}
	return result, nil
}

func (s *Service) audit(ctx context.Context, scopeID snowflake.ID, action string, id snowflake.ID, metadata map[string]any) {
	targetID := id.String()
	_ = s.auditSvc.AuditLog(ctx, &scopeID, "", nil, action, auditdomain.TargetSubscriber, &targetID, masking.MaskFields(metadata, "contact"))
}

func applyRLS(tx *gorm.DB, scope tenantdomain.Scope) error {
	if scope.Unrestricted() {
		return rls.WithUnrestricted(tx)
	}
	return rls.WithScope(tx, int64(scope.ID()))
}

func mapDuplicate(err error) error {
	if !db.IsDuplicateKeyErr(err) {
		return err
	}
	detail := strings.ToLower(db.ConstraintName(err) + " " + err.Error())
	if strings.Contains(detail, "contact") {
		return domain.ErrDuplicateContact
	}
	return domain.ErrDuplicateIdentifier
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func parseStatus(value string) (domain.Status, error) {
	switch {
	case strings.EqualFold(value, string(domain.StatusActive)):
		return domain.StatusActive, nil
	case strings.EqualFold(value, string(domain.StatusInactive)):
		return domain.StatusInactive, nil
	default:
		return "", domain.ErrInvalidStatus
	}
}

func normalizeContact(value string) (string, error) {
	contact := strings.Join(strings.Fields(value), "")
	if len(contact) < 6 {
		return "", domain.ErrInvalidContact
	}
	for i, r := range contact {
		if r == '+' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return "", domain.ErrInvalidContact
		}
	}
	return contact, nil
}

func normalizePackageAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Decimal{}, domain.ErrInvalidPackageAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Decimal{}, domain.ErrInvalidPackageAmount
	}
	return amount.Round(2), nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func decodeCursor(token string) (*domain.Cursor, error) {
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(decoded.ID)
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidPageToken
	}
	return &domain.Cursor{ID: id, CreatedAt: createdAt}, nil
}
