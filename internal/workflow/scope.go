package workflow

import "strings"

// adminVisible is the review queue an admin can see. Admins review every department.
var adminVisible = []Status{StatusSubmitted, StatusUnderReview, StatusReadyForApproval}

// ListFilter carries optional caller-supplied filters.
type ListFilter struct {
	Statuses     []Status
	DepartmentID string
}

// Scope is the role-derived base set intersected with the caller filters.
// A nil Statuses slice means "no status restriction"; an empty non-nil slice matches nothing.
type Scope struct {
	CreatorID    string
	Statuses     []Status
	DepartmentID string
}

// Empty reports whether the scope can never match a request.
func (s Scope) Empty() bool {
	return s.Statuses != nil && len(s.Statuses) == 0
}

// ScopeFor derives the listing scope for an actor. Filters only ever narrow the role scope.
func ScopeFor(actor Actor, filter ListFilter) (Scope, error) {
	if !actor.Authenticated() {
		return Scope{}, Unauthenticated()
	}

	requested, err := normalizeStatuses(filter.Statuses)
	if err != nil {
		return Scope{}, err
	}

	scope := Scope{DepartmentID: strings.TrimSpace(filter.DepartmentID)}

	switch actor.Role {
	case RoleLead:
		scope.CreatorID = actor.ID
		scope.Statuses = requested
	case RoleAdmin:
		scope.Statuses = intersect(adminVisible, requested)
	case RoleSuperAdmin:
		scope.Statuses = requested
	default:
		return Scope{}, Forbidden("role %q may not list requests", actor.Role)
	}

	return scope, nil
}

// CanView applies the listing visibility rules to a single request.
func CanView(actor Actor, subject Subject) error {
	if !actor.Authenticated() {
		return Unauthenticated()
	}

	switch actor.Role {
	case RoleLead:
		if subject.CreatorID != actor.ID {
			return Forbidden("request %s belongs to another lead", subject.ID)
		}
	case RoleAdmin:
		if !containsStatus(adminVisible, subject.Status) {
			return Forbidden("request %s is not in the review queue", subject.ID)
		}
	case RoleSuperAdmin:
	default:
		return Forbidden("role %q may not view requests", actor.Role)
	}
	return nil
}

// Matches reports whether a subject falls inside the scope.
func (s Scope) Matches(subject Subject, departmentID string) bool {
	if s.CreatorID != "" && subject.CreatorID != s.CreatorID {
		return false
	}
	if s.DepartmentID != "" && departmentID != s.DepartmentID {
		return false
	}
	if s.Statuses != nil && !containsStatus(s.Statuses, subject.Status) {
		return false
	}
	return true
}

func normalizeStatuses(statuses []Status) ([]Status, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	out := make([]Status, 0, len(statuses))
	invalid := map[string]string{}
	for _, status := range statuses {
		status = Status(strings.ToLower(strings.TrimSpace(string(status))))
		if status == "" {
			continue
		}
		if !status.IsValid() {
			invalid["status"] = "unknown status " + string(status)
			continue
		}
		if !containsStatus(out, status) {
			out = append(out, status)
		}
	}
	if len(invalid) > 0 {
		return nil, Validation("invalid status filter", invalid)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func intersect(base, requested []Status) []Status {
	if requested == nil {
		return append([]Status{}, base...)
	}
	out := []Status{}
	for _, status := range requested {
		if containsStatus(base, status) {
			out = append(out, status)
		}
	}
	return out
}

func containsStatus(list []Status, status Status) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}
