// Package authz decides which operators may perform manual tier actions.
//
// Permissions are checked with a casbin RBAC model held in memory. Roles come
// from two places: bindings in the configuration file, and the roles an
// upstream gateway attached to the request.
package authz

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"mercator-hq/ascent/pkg/config"
	"mercator-hq/ascent/pkg/upgrade"
)

// Roles with built-in permissions.
const (
	RoleUpgradeOperator = "upgrade_operator"
	RoleAdmin           = "admin"
)

// Objects and actions of the policy.
const (
	objectDistributorTier = "distributor_tier"
	objectHistory         = "history"

	ActionManualUpgrade = "manual_upgrade"
	ActionReclassify    = "reclassify"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

var builtinPolicies = [][]string{
	{roleSubject(RoleUpgradeOperator), objectDistributorTier, ActionManualUpgrade},
	{roleSubject(RoleAdmin), objectDistributorTier, ActionManualUpgrade},
	{roleSubject(RoleAdmin), objectHistory, ActionReclassify},
}

// Authorizer implements upgrade.Authorizer.
type Authorizer struct {
	enforcer *casbin.Enforcer
	enabled  bool
}

// NewAuthorizer builds the enforcer and loads cfg bindings. A disabled
// configuration allows every operator.
func NewAuthorizer(cfg config.AuthzConfig) (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("authz: load model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: create enforcer: %w", err)
	}

	for _, p := range builtinPolicies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("authz: add policy: %w", err)
		}
	}
	for _, b := range cfg.Bindings {
		if _, err := enforcer.AddGroupingPolicy(operatorSubject(b.Operator), roleSubject(b.Role)); err != nil {
			return nil, fmt.Errorf("authz: bind %s to %s: %w", b.Operator, b.Role, err)
		}
	}
	return &Authorizer{enforcer: enforcer, enabled: cfg.Enabled}, nil
}

// CanManualUpgrade reports whether op may check and confirm manual upgrades.
func (a *Authorizer) CanManualUpgrade(op upgrade.Operator) (bool, error) {
	return a.allowed(op, objectDistributorTier, ActionManualUpgrade)
}

// CanReclassify reports whether op may mark history records as manual.
func (a *Authorizer) CanReclassify(op upgrade.Operator) (bool, error) {
	return a.allowed(op, objectHistory, ActionReclassify)
}

func (a *Authorizer) allowed(op upgrade.Operator, obj, act string) (bool, error) {
	if !a.enabled {
		return true, nil
	}
	if strings.TrimSpace(op.ID) == "" {
		return false, nil
	}

	subjects := []string{operatorSubject(op.ID)}
	for _, role := range op.Roles {
		if role = strings.TrimSpace(role); role != "" {
			subjects = append(subjects, roleSubject(role))
		}
	}
	for _, sub := range subjects {
		ok, err := a.enforcer.Enforce(sub, obj, act)
		if err != nil {
			return false, fmt.Errorf("authz: enforce: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func operatorSubject(id string) string {
	return "operator:" + strings.ToLower(strings.TrimSpace(id))
}

func roleSubject(role string) string {
	return "role:" + strings.ToLower(strings.TrimSpace(role))
}
