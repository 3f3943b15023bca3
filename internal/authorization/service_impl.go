package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/cableledger/internal/audit/domain"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, scope tenantdomain.Scope, object string, action string) error {
	if !scope.Valid() || scope.Principal() == 0 || !scope.Role().Valid() {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("tenant:%s", scope.Principal())
	roleName := roleSubject(scope.Role())
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, scope, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per tenant so a role change
// takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			s.log.Warn("failed to drop stale role link", zap.String("subject", subject), zap.Error(err))
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, scope tenantdomain.Scope, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	var scopeID = scope.ID()
	var scopeRef = &scopeID
	if scope.Unrestricted() {
		scopeRef = nil
	}
	actorID := scope.Principal().String()
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, scopeRef, string(auditdomain.ActorTypeTenant), &actorID, auditdomain.ActionAuthorizationDenied, auditdomain.TargetAuthorization, &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   string(scope.Role()),
	})
}

func roleSubject(role tenantdomain.Role) string {
	return "role:" + strings.ToLower(string(role))
}

var operatorActions = []string{
	ActionSubscriberView,
	ActionSubscriberCreate,
	ActionSubscriberUpdate,
	ActionSubscriberActivate,
	ActionBillView,
	ActionPaymentView,
	ActionPaymentRecord,
	ActionPaymentDelivery,
}

var adminActions = append(append([]string{}, operatorActions...),
	ActionSubscriberDeactivate,
	ActionSubscriberDelete,
	ActionBillGenerate,
	ActionAuditLogView,
	ActionTenantCreate,
)

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	grants := map[tenantdomain.Role][]string{
		tenantdomain.RoleOwner:       adminActions,
		tenantdomain.RoleTenantAdmin: adminActions,
		tenantdomain.RoleOperator:    operatorActions,
	}
	for role, actions := range grants {
		for _, action := range actions {
			if _, err := enforcer.AddPolicy(roleSubject(role), objectOf(action), action); err != nil {
				return err
			}
		}
	}
	return nil
}

// objectOf reads the object from an "object.verb" action name.
func objectOf(action string) string {
	if idx := strings.Index(action, "."); idx > 0 {
		return action[:idx]
	}
	return action
}
