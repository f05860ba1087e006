package authz

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/rs/zerolog"

	"github.com/noah-isme/church-events-api/internal/workflow"
)

const requestObject = "event_request"

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// readPolicies grants the non-mutating actions. Row-level visibility is decided by workflow.ScopeFor.
var readPolicies = map[workflow.Role][]workflow.Action{
	workflow.RoleLead:       {workflow.ActionList, workflow.ActionView},
	workflow.RoleAdmin:      {workflow.ActionList, workflow.ActionView},
	workflow.RoleSuperAdmin: {workflow.ActionList, workflow.ActionView, workflow.ActionAuditList},
}

// Authorizer answers the role gate: may this role attempt this action at all.
type Authorizer interface {
	Allowed(role workflow.Role, action workflow.Action) (bool, error)
	Require(actor workflow.Actor, action workflow.Action) error
}

type casbinAuthorizer struct {
	enforcer *casbin.Enforcer
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewAuthorizer builds the role policy from the transition table plus the read policies.
func NewAuthorizer(table *workflow.Table, logger zerolog.Logger) (Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to parse model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}

	for _, rule := range table.Rules() {
		if _, err := enforcer.AddPolicy(string(rule.Role), requestObject, string(rule.Action)); err != nil {
			return nil, fmt.Errorf("authz: add policy %s/%s: %w", rule.Role, rule.Action, err)
		}
	}
	for role, actions := range readPolicies {
		for _, action := range actions {
			if _, err := enforcer.AddPolicy(string(role), requestObject, string(action)); err != nil {
				return nil, fmt.Errorf("authz: add policy %s/%s: %w", role, action, err)
			}
		}
	}

	return &casbinAuthorizer{
		enforcer: enforcer,
		logger:   logger.With().Str("component", "authz").Logger(),
	}, nil
}

func (a *casbinAuthorizer) Allowed(role workflow.Role, action workflow.Action) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ok, err := a.enforcer.Enforce(string(role), requestObject, string(action))
	if err != nil {
		return false, fmt.Errorf("authz: enforce failed: %w", err)
	}
	return ok, nil
}

// Require turns a denied role check into a workflow error.
func (a *casbinAuthorizer) Require(actor workflow.Actor, action workflow.Action) error {
	if !actor.Authenticated() {
		return workflow.Unauthenticated()
	}

	ok, err := a.Allowed(actor.Role, action)
	if err != nil {
		return workflow.Internal(err)
	}
	if !ok {
		a.logger.Debug().
			Str("user_id", actor.ID).
			Str("role", string(actor.Role)).
			Str("action", string(action)).
			Msg("authz denied request")
		return workflow.Forbidden("role %q may not %s requests", actor.Role, action)
	}
	return nil
}
