// Package policy decides whether an actor may perform an action on a resource
// type.
//
// Evaluation order is fixed: the is_admin flag allows unconditionally, then
// the request is validated, then allow-rules are matched. Anything that is
// not explicitly allowed is denied, and any evaluation failure is a deny.
package policy

import (
	"fmt"
	"slices"

	"github.com/docqa/docqa-api/internal/core/domain"
)

// Decision reasons.
const (
	ReasonAdminBypass = "admin bypass"
	ReasonDefaultRule = "default rule"
	ReasonNoMatch     = "no matching rule"
	ReasonError       = "evaluation error"
)

// Decision is the outcome of one evaluation. It is never cached.
type Decision struct {
	Allowed     bool
	Reason      string
	MatchedRole string
	MatchedRule string
}

// Engine evaluates requests against an immutable rule set. It holds no
// mutable state, so one Engine is shared by all requests.
type Engine struct {
	actions   map[string]struct{}
	resources map[string]struct{}
	defaults  []Rule
	roles     map[string][]Rule
}

// New validates rs and builds an Engine from a private copy of it.
func New(rs RuleSet) (*Engine, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		actions:   make(map[string]struct{}, len(rs.Actions)),
		resources: make(map[string]struct{}, len(rs.ResourceTypes)),
		defaults:  slices.Clone(rs.Defaults),
		roles:     make(map[string][]Rule, len(rs.Roles)),
	}
	for _, a := range rs.Actions {
		e.actions[a] = struct{}{}
	}
	for _, r := range rs.ResourceTypes {
		e.resources[r] = struct{}{}
	}
	for role, rules := range rs.Roles {
		e.roles[role] = slices.Clone(rules)
	}
	return e, nil
}

// Evaluate decides whether actor may perform action on resourceType. An empty
// resourceType means the action is not tied to a resource class.
//
// A non-nil error always comes with a deny decision.
func (e *Engine) Evaluate(actor *domain.User, action, resourceType string) (d Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = Decision{Reason: ReasonError}
			err = fmt.Errorf("%w: %v", domain.ErrPolicyEvaluation, r)
		}
	}()

	if actor == nil {
		return Decision{Reason: ReasonError}, fmt.Errorf("%w: no actor", domain.ErrPolicyEvaluation)
	}

	// Admin bypass is the intended first branch, not a fallback.
	if actor.IsAdmin {
		return Decision{Allowed: true, Reason: ReasonAdminBypass}, nil
	}

	if err := e.checkRequest(action, resourceType); err != nil {
		return Decision{Reason: ReasonError}, err
	}

	for _, rule := range e.defaults {
		if rule.matches(action, resourceType) {
			return Decision{Allowed: true, Reason: ReasonDefaultRule, MatchedRule: rule.String()}, nil
		}
	}

	for _, role := range actor.Roles {
		for _, rule := range e.roles[role.Name] {
			if rule.matches(action, resourceType) {
				return granted(role.Name, rule.String()), nil
			}
		}
		for _, perm := range role.Permissions {
			if perm.Action == action && perm.ResourceType == resourceType {
				return granted(role.Name, perm.String()), nil
			}
		}
	}

	return Decision{Reason: ReasonNoMatch}, nil
}

// Allowed is the fail-closed form of Evaluate.
func (e *Engine) Allowed(actor *domain.User, action, resourceType string) bool {
	d, err := e.Evaluate(actor, action, resourceType)
	return err == nil && d.Allowed
}

// ValidatePermission checks that a runtime grant names a declared action and
// resource type. Wildcards are reserved for the policy file.
func (e *Engine) ValidatePermission(p domain.Permission) error {
	if p.Action == Wildcard || p.ResourceType == Wildcard {
		return fmt.Errorf("%w: wildcards cannot be granted", domain.ErrInvalidPermission)
	}
	if err := e.checkRequest(p.Action, p.ResourceType); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidPermission, p)
	}
	return nil
}

func (e *Engine) checkRequest(action, resourceType string) error {
	if _, ok := e.actions[action]; !ok {
		return fmt.Errorf("%w: unknown action %q", domain.ErrPolicyEvaluation, action)
	}
	if resourceType == "" {
		return nil
	}
	if _, ok := e.resources[resourceType]; !ok {
		return fmt.Errorf("%w: unknown resource type %q", domain.ErrPolicyEvaluation, resourceType)
	}
	return nil
}

func granted(role, rule string) Decision {
	return Decision{
		Allowed:     true,
		Reason:      fmt.Sprintf("granted by role %s", role),
		MatchedRole: role,
		MatchedRule: rule,
	}
}
