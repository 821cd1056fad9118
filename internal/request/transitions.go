package request

import "labportal/internal/directory"

// Transition is one edge of the lifecycle. Types limits the edge to the listed
// request types; empty means every type.
type Transition struct {
	From   Status
	Action Action
	To     Status
	Types  []Type
}

var transitionsTable = []Transition{
	// Submission branches on requester role, see InitialStatus.
	{From: StatusCreated, Action: ActionSubmit, To: StatusPendingFaculty},
	{From: StatusCreated, Action: ActionSubmit, To: StatusPendingLabStaff},

	// Approval chain
	{From: StatusPendingFaculty, Action: ActionApprove, To: StatusPendingLabStaff},
	{From: StatusPendingLabStaff, Action: ActionApprove, To: StatusPendingFinalAuthority},
	{From: StatusPendingFinalAuthority, Action: ActionApprove, To: StatusApproved},

	{From: StatusPendingFaculty, Action: ActionReject, To: StatusRejected},
	{From: StatusPendingLabStaff, Action: ActionReject, To: StatusRejected},
	{From: StatusPendingFinalAuthority, Action: ActionReject, To: StatusRejected},

	{From: StatusPendingFaculty, Action: ActionWithdraw, To: StatusWithdrawn},
	{From: StatusPendingLabStaff, Action: ActionWithdraw, To: StatusWithdrawn},
	{From: StatusPendingFinalAuthority, Action: ActionWithdraw, To: StatusWithdrawn},

	// Loan handling
	{From: StatusApproved, Action: ActionIssue, To: StatusIssued, Types: []Type{TypeComponent}},
	{From: StatusIssued, Action: ActionReturnRequest, To: StatusReturnRequested, Types: []Type{TypeComponent}},
	{From: StatusReturnRequested, Action: ActionCompleteReturn, To: StatusReturned, Types: []Type{TypeComponent}},
}

// InitialStatus is the first pending step after submission. Students start with a
// faculty recommendation; everyone else starts at lab staff. It is decided once.
func InitialStatus(requesterRole directory.Role) Status {
	if requesterRole == directory.RoleStudent {
		return StatusPendingFaculty
	}
	return StatusPendingLabStaff
}

// Next returns the state reached by applying action from `from` on a request of type t.
// Submission is excluded: its target depends on the requester, see InitialStatus.
func Next(t Type, from Status, action Action) (Status, bool) {
	if action == ActionSubmit {
		return "", false
	}
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Action == action && tr.appliesTo(t) {
			return tr.To, true
		}
	}
	return "", false
}

// CanTransition reports whether from→to is an edge for a request of type t.
func CanTransition(t Type, from, to Status) bool {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.To == to && tr.appliesTo(t) {
			return true
		}
	}
	return false
}

// AllowedActions lists what may be applied to a request of type t in status s.
func AllowedActions(t Type, s Status) []Action {
	var out []Action
	seen := map[Action]bool{}
	for _, tr := range transitionsTable {
		if tr.From == s && tr.appliesTo(t) && !seen[tr.Action] {
			seen[tr.Action] = true
			out = append(out, tr.Action)
		}
	}
	return out
}

func (tr Transition) appliesTo(t Type) bool {
	if len(tr.Types) == 0 {
		return true
	}
	for _, allowed := range tr.Types {
		if allowed == t {
			return true
		}
	}
	return false
}
