package workflow

import (
	"fmt"
	"strings"
)

// Subject is the part of a stored request the transition rules inspect.
type Subject struct {
	ID        string
	Status    Status
	CreatorID string
	AdminID   string
}

// Guard evaluates an ownership condition after role and status checks passed.
type Guard func(actor Actor, subject Subject) error

type ruleKey struct {
	action Action
	role   Role
}

// Rule is one row of the transition table: which role may perform an action from which statuses.
type Rule struct {
	Action           Action
	Role             Role
	From             []Status
	To               Status
	RequiresFeedback bool

	initial   bool
	anyStatus bool
	guards    []Guard
}

// Permits reports whether the rule applies to a request in the given status.
func (r Rule) Permits(current Status) bool {
	if r.initial {
		return current == ""
	}
	if r.anyStatus {
		return current.IsValid()
	}
	for _, status := range r.From {
		if status == current {
			return true
		}
	}
	return false
}

// Target returns the status after the action. Rules without a target keep the current status.
func (r Rule) Target(current Status) Status {
	if r.To == "" {
		return current
	}
	return r.To
}

// ChangesStatus reports whether applying the rule moves the request to another status.
func (r Rule) ChangesStatus(current Status) bool {
	return r.Target(current) != current
}

func (r Rule) check(actor Actor, subject Subject) error {
	for _, guard := range r.guards {
		if err := guard(actor, subject); err != nil {
			return err
		}
	}
	return nil
}

// Builder collects rules for a Table.
type Builder struct {
	rules map[ruleKey]*Rule
	order []ruleKey
}

// RuleConfiguration configures a single (action, role) rule.
type RuleConfiguration struct {
	rule *Rule
}

// NewBuilder creates an empty rule builder.
func NewBuilder() *Builder {
	return &Builder{rules: make(map[ruleKey]*Rule)}
}

// Configure returns the rule for the action and role, creating it on first use.
func (b *Builder) Configure(action Action, role Role) *RuleConfiguration {
	if !role.IsKnown() {
		panic(fmt.Sprintf("invalid role: %s", role))
	}
	if !action.Mutates() {
		panic(fmt.Sprintf("read action %s cannot be configured as a transition", action))
	}

	key := ruleKey{action: action, role: role}
	rule, exists := b.rules[key]
	if !exists {
		rule = &Rule{Action: action, Role: role}
		b.rules[key] = rule
		b.order = append(b.order, key)
	}
	return &RuleConfiguration{rule: rule}
}

// Initial marks the rule as creating a new request.
func (c *RuleConfiguration) Initial() *RuleConfiguration {
	c.rule.initial = true
	return c
}

// From sets the statuses the action may start from.
func (c *RuleConfiguration) From(statuses ...Status) *RuleConfiguration {
	for _, status := range statuses {
		if !status.IsValid() {
			panic(fmt.Sprintf("invalid source status: %s", status))
		}
		c.rule.From = append(c.rule.From, status)
	}
	return c
}

// FromAny allows the action from every stored status.
func (c *RuleConfiguration) FromAny() *RuleConfiguration {
	c.rule.anyStatus = true
	return c
}

// To sets the status the action moves the request to.
func (c *RuleConfiguration) To(status Status) *RuleConfiguration {
	if !status.IsValid() {
		panic(fmt.Sprintf("invalid target status: %s", status))
	}
	c.rule.To = status
	return c
}

// RequireCreator restricts the action to the lead who created the request.
func (c *RuleConfiguration) RequireCreator() *RuleConfiguration {
	return c.When(func(actor Actor, subject Subject) error {
		if subject.CreatorID != actor.ID {
			return Forbidden("only the creator of request %s may %s it", subject.ID, c.rule.Action)
		}
		return nil
	})
}

// RequireClaimant restricts the action to the admin who claimed the request.
func (c *RuleConfiguration) RequireClaimant() *RuleConfiguration {
	return c.When(func(actor Actor, subject Subject) error {
		if subject.AdminID == "" || subject.AdminID != actor.ID {
			return Forbidden("only the admin who claimed request %s may %s it", subject.ID, c.rule.Action)
		}
		return nil
	})
}

// RequireFeedback marks the action as needing a non-empty feedback message.
func (c *RuleConfiguration) RequireFeedback() *RuleConfiguration {
	c.rule.RequiresFeedback = true
	return c
}

// When adds a custom ownership guard.
func (c *RuleConfiguration) When(guard Guard) *RuleConfiguration {
	c.rule.guards = append(c.rule.guards, guard)
	return c
}

// Build freezes the configured rules into a Table.
func (b *Builder) Build() *Table {
	rules := make(map[ruleKey]Rule, len(b.rules))
	for key, rule := range b.rules {
		copied := *rule
		copied.From = append([]Status(nil), rule.From...)
		copied.guards = append([]Guard(nil), rule.guards...)
		rules[key] = copied
	}
	return &Table{rules: rules, order: append([]ruleKey(nil), b.order...)}
}

// Table is the immutable set of transition rules.
type Table struct {
	rules map[ruleKey]Rule
	order []ruleKey
}

// Rule returns the rule for an action performed by a role.
func (t *Table) Rule(action Action, role Role) (Rule, bool) {
	rule, ok := t.rules[ruleKey{action: action, role: role}]
	return rule, ok
}

// Rules returns every rule in declaration order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, t.rules[key])
	}
	return out
}

// Resolve is the single "can this actor perform this action on this request" predicate.
// Checks run in order: role, status precondition, ownership.
func (t *Table) Resolve(actor Actor, action Action, subject Subject) (Rule, error) {
	if !actor.Authenticated() {
		return Rule{}, Unauthenticated()
	}

	rule, ok := t.Rule(action, actor.Role)
	if !ok {
		return Rule{}, Forbidden("role %q may not %s requests", actor.Role, action)
	}

	if !rule.Permits(subject.Status) {
		return Rule{}, InvalidTransition(action, subject.Status)
	}

	if err := rule.check(actor, subject); err != nil {
		return Rule{}, err
	}

	return rule, nil
}

// PermittedActions lists what the actor could do to the subject right now.
func (t *Table) PermittedActions(actor Actor, subject Subject) []Action {
	var actions []Action
	for _, rule := range t.Rules() {
		if rule.initial || rule.Role != actor.Role {
			continue
		}
		if _, err := t.Resolve(actor, rule.Action, subject); err == nil {
			actions = append(actions, rule.Action)
		}
	}
	return actions
}

// DefaultTable returns the church event request approval workflow.
func DefaultTable() *Table {
	b := NewBuilder()

	b.Configure(ActionCreate, RoleLead).Initial().To(StatusDraft)

	b.Configure(ActionUpdate, RoleLead).From(StatusDraft).RequireCreator()
	b.Configure(ActionSubmit, RoleLead).From(StatusDraft).To(StatusSubmitted).RequireCreator()
	b.Configure(ActionWithdraw, RoleLead).From(StatusSubmitted, StatusUnderReview).To(StatusWithdrawn).RequireCreator()
	b.Configure(ActionReopen, RoleLead).From(StatusReturned, StatusWithdrawn).To(StatusDraft).RequireCreator()

	b.Configure(ActionUpdate, RoleAdmin).From(StatusSubmitted, StatusUnderReview)
	b.Configure(ActionClaim, RoleAdmin).From(StatusSubmitted).To(StatusUnderReview)
	b.Configure(ActionForward, RoleAdmin).From(StatusUnderReview).To(StatusReadyForApproval).RequireClaimant()
	b.Configure(ActionReturn, RoleAdmin).From(StatusUnderReview).To(StatusReturned).RequireFeedback()

	b.Configure(ActionUpdate, RoleSuperAdmin).From(StatusReadyForApproval)
	b.Configure(ActionApprove, RoleSuperAdmin).From(StatusReadyForApproval).To(StatusApproved)
	b.Configure(ActionReturn, RoleSuperAdmin).From(StatusReadyForApproval).To(StatusUnderReview).RequireFeedback()
	b.Configure(ActionDelete, RoleSuperAdmin).FromAny()

	return b.Build()
}

// Describe renders the table for logs and debugging.
func (t *Table) Describe() string {
	var sb strings.Builder
	for _, rule := range t.Rules() {
		from := "-"
		switch {
		case rule.anyStatus:
			from = "*"
		case len(rule.From) > 0:
			parts := make([]string, 0, len(rule.From))
			for _, status := range rule.From {
				parts = append(parts, string(status))
			}
			from = strings.Join(parts, "|")
		}
		to := string(rule.To)
		if to == "" {
			to = "="
		}
		fmt.Fprintf(&sb, "%s %s: %s -> %s\n", rule.Role, rule.Action, from, to)
	}
	return sb.String()
}
