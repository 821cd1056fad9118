package request

import "fmt"

type Status string

const (
	StatusCreated               Status = "CREATED"
	StatusPendingFaculty        Status = "PENDING_FACULTY"
	StatusPendingLabStaff       Status = "PENDING_LAB_STAFF"
	StatusPendingFinalAuthority Status = "PENDING_FINAL_AUTHORITY"
	StatusApproved              Status = "APPROVED"
	StatusRejected              Status = "REJECTED"
	StatusWithdrawn             Status = "WITHDRAWN"

	// Component loans only.
	StatusIssued          Status = "ISSUED"
	StatusReturnRequested Status = "RETURN_REQUESTED"
	StatusReturned        Status = "RETURNED"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusCreated, StatusPendingFaculty, StatusPendingLabStaff, StatusPendingFinalAuthority,
		StatusApproved, StatusRejected, StatusWithdrawn,
		StatusIssued, StatusReturnRequested, StatusReturned:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status: %s", s)
	}
}

// Pending reports whether the request is waiting on an approver.
func (s Status) Pending() bool {
	switch s {
	case StatusPendingFaculty, StatusPendingLabStaff, StatusPendingFinalAuthority:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusWithdrawn, StatusReturned:
		return true
	}
	return false
}

type Type string

const (
	TypeBooking   Type = "booking"
	TypeComponent Type = "component"
)

type Action string

const (
	ActionSubmit         Action = "SUBMIT"
	ActionApprove        Action = "APPROVE"
	ActionReject         Action = "REJECT"
	ActionWithdraw       Action = "WITHDRAW"
	ActionIssue          Action = "ISSUE"
	ActionReturnRequest  Action = "RETURN_REQUEST"
	ActionCompleteReturn Action = "COMPLETE_RETURN"

	// Extension subflow; these never move Status.
	ActionExtensionRequest Action = "EXTENSION_REQUEST"
	ActionExtensionApprove Action = "EXTENSION_APPROVE"
	ActionExtensionReject  Action = "EXTENSION_REJECT"
)
