package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	appuserdomain "github.com/smallbiznis/posbridge/internal/appuser/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectTransfer = "transfer"
	ObjectPos      = "pos"
	ObjectProfile  = "profile"
	ObjectSettings = "settings"
	ObjectBilling  = "billing"
	ObjectWorker   = "worker"
	ObjectLogs     = "logs"
	ObjectReports  = "reports"
	ObjectUsers    = "users"
)

const (
	ActionView      = "view"
	ActionFetch     = "fetch"
	ActionNormalize = "normalize"
	ActionAdd       = "add"
	ActionManage    = "manage"
	ActionEdit      = "edit"
	ActionControl   = "control"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
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
	}
}

// Authorize binds the user to its current role, then enforces. Inactive
// users are denied everything.
func (s *ServiceImpl) Authorize(ctx context.Context, user appuserdomain.AppUser, object, action string) error {
	subject, err := s.bind(user)
	if err != nil {
		return err
	}
	allowed, err := s.enforcer.Enforce(subject, strings.TrimSpace(object), strings.TrimSpace(action))
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("subject", subject),
			zap.String("role", string(user.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Permissions(ctx context.Context, user appuserdomain.AppUser) ([]Permission, error) {
	subject, err := s.bind(user)
	if err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetImplicitPermissionsForUser(subject)
	if err != nil {
		return nil, err
	}
	perms := make([]Permission, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		perms = append(perms, Permission{Object: rule[1], Action: rule[2]})
	}
	return perms, nil
}

func (s *ServiceImpl) bind(user appuserdomain.AppUser) (string, error) {
	if user.ID == 0 || !user.IsActive {
		return "", ErrInvalidActor
	}
	if _, ok := appuserdomain.ParseRole(string(user.Role)); !ok {
		return "", ErrInvalidActor
	}
	subject := user.Subject()
	if err := s.ensureGrouping(subject, roleSubject(user.Role)); err != nil {
		return "", err
	}
	return subject, nil
}

// ensureGrouping keeps exactly one role link per subject so role changes
// take effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
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

func roleSubject(role appuserdomain.Role) string {
	return "role:" + strings.ToLower(string(role))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// every signed-in operator
		{"role:user", ObjectTransfer, ActionView},
		{"role:user", ObjectTransfer, ActionFetch},
		{"role:user", ObjectTransfer, ActionNormalize},
		{"role:user", ObjectProfile, ActionView},
		{"role:user", ObjectBilling, ActionView},
		{"role:user", ObjectReports, ActionView},

		{"role:manager", ObjectPos, ActionAdd},
		{"role:manager", ObjectProfile, ActionManage},
		{"role:manager", ObjectWorker, ActionControl},
		{"role:manager", ObjectLogs, ActionView},

		{"role:admin", ObjectSettings, ActionEdit},
		{"role:admin", ObjectBilling, ActionManage},
		{"role:admin", ObjectUsers, ActionManage},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// role inheritance: admin > manager > user
	inherits := [][]string{
		{"role:manager", "role:user"},
		{"role:admin", "role:manager"},
	}
	for _, link := range inherits {
		if _, err := enforcer.AddGroupingPolicy(link); err != nil {
			return err
		}
	}
	return nil
}
