package workflow

// Action names an operation on an event request. Audit entries use the same names.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionSubmit   Action = "submit"
	ActionClaim    Action = "claim"
	ActionForward  Action = "forward"
	ActionApprove  Action = "approve"
	ActionReturn   Action = "return"
	ActionWithdraw Action = "withdraw"
	ActionReopen   Action = "reopen"
	ActionDelete   Action = "delete"

	// Read-path actions. They never change state and have no rule in the transition table.
	ActionList      Action = "list"
	ActionView      Action = "view"
	ActionAuditList Action = "audit_list"
)

func (a Action) String() string {
	return string(a)
}

// Mutates reports whether the action writes to the request store.
func (a Action) Mutates() bool {
	switch a {
	case ActionList, ActionView, ActionAuditList:
		return false
	default:
		return true
	}
}
