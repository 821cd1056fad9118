package request

import (
	"time"

	"labportal/internal/booking"
	"labportal/internal/directory"
)

// Request is a lab booking or a component loan moving through the approval chain.
// Exactly one of Booking and Component is set, matching Type.
type Request struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	RequesterID   string         `json:"requesterId"`
	RequesterRole directory.Role `json:"requesterRole"`
	LabID         string         `json:"labId"`
	Purpose       string         `json:"purpose"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`

	// FacultyID optionally names the only faculty member who may recommend a student request.
	FacultyID string `json:"facultyId,omitempty"`

	// Written once by the final APPROVE and never recomputed.
	FinalApproverRole directory.Authority `json:"finalApproverRole,omitempty"`
	FinalApproverID   string              `json:"finalApproverId,omitempty"`
	FinalApprovedAt   *time.Time          `json:"finalApprovedAt,omitempty"`

	// Set on REJECT or WITHDRAW.
	TerminatedBy      string     `json:"terminatedBy,omitempty"`
	TerminationReason string     `json:"terminationReason,omitempty"`
	TerminatedAt      *time.Time `json:"terminatedAt,omitempty"`

	Booking   *BookingDetails   `json:"booking,omitempty"`
	Component *ComponentDetails `json:"component,omitempty"`

	Audit []AuditEntry `json:"audit"`
}

type BookingDetails struct {
	Date  time.Time         `json:"date"`
	Start booking.TimeOfDay `json:"start"`
	End   booking.TimeOfDay `json:"end"`
}

type Item struct {
	ComponentID string `json:"componentId"`
	Quantity    int    `json:"quantity"`
}

type ComponentDetails struct {
	Items            []Item     `json:"items"`
	ReturnDate       time.Time  `json:"returnDate"`
	IssuedAt         *time.Time `json:"issuedAt,omitempty"`
	ReturnedAt       *time.Time `json:"returnedAt,omitempty"`
	ActualReturnDate *time.Time `json:"actualReturnDate,omitempty"`
	Extension        *Extension `json:"extension,omitempty"`
}

// DelayDays is how many whole days the loan came back after its due date.
// Zero while not yet returned or when on time.
func (c ComponentDetails) DelayDays() int {
	if c.ActualReturnDate == nil {
		return 0
	}
	due := booking.Day(c.ReturnDate)
	actual := booking.Day(*c.ActualReturnDate)
	if !actual.After(due) {
		return 0
	}
	return int(actual.Sub(due).Hours() / 24)
}

type ExtensionStatus string

const (
	ExtensionPending  ExtensionStatus = "pending"
	ExtensionApproved ExtensionStatus = "approved"
	ExtensionRejected ExtensionStatus = "rejected"
)

// Extension asks to push back a loan's return date. At most one is pending at a time;
// a resolved one stays attached until the next request replaces it.
type Extension struct {
	RequestedReturnDate time.Time       `json:"requestedReturnDate"`
	PreviousReturnDate  time.Time       `json:"previousReturnDate"`
	Reason              string          `json:"reason"`
	Status              ExtensionStatus `json:"status"`
	RequestedAt         time.Time       `json:"requestedAt"`
	ResolvedBy          string          `json:"resolvedBy,omitempty"`
	ResolvedAt          *time.Time      `json:"resolvedAt,omitempty"`
	Remarks             string          `json:"remarks,omitempty"`
}

// AuditEntry is one append-only record of who did what to a request, in which capacity.
type AuditEntry struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	Action    Action    `json:"action"`
	Role      string    `json:"role"`
	ActorID   string    `json:"actorId"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Audit roles beyond the account roles.
const (
	AuditRoleRequester = "requester"
	AuditRoleFaculty   = "faculty"
	AuditRoleLabStaff  = "lab_staff"
)

// Recommendation returns the APPROVE entry recorded when the request left step from.
func (r *Request) Recommendation(from Status) (AuditEntry, bool) {
	for i := len(r.Audit) - 1; i >= 0; i-- {
		e := r.Audit[i]
		if e.Action == ActionApprove && e.From == from {
			return e, true
		}
	}
	return AuditEntry{}, false
}

// Slot returns the booking's time range, ok=false for component requests.
func (r *Request) Slot() (booking.Slot, bool) {
	if r.Booking == nil {
		return booking.Slot{}, false
	}
	return booking.Slot{
		RequestID: r.ID,
		LabID:     r.LabID,
		Date:      r.Booking.Date,
		Start:     r.Booking.Start,
		End:       r.Booking.End,
	}, true
}

// Clone returns a deep copy; stores hand clones out so callers never share state.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.FinalApprovedAt = cloneTime(r.FinalApprovedAt)
	c.TerminatedAt = cloneTime(r.TerminatedAt)
	if r.Booking != nil {
		b := *r.Booking
		c.Booking = &b
	}
	if r.Component != nil {
		comp := *r.Component
		comp.Items = append([]Item(nil), r.Component.Items...)
		comp.IssuedAt = cloneTime(r.Component.IssuedAt)
		comp.ReturnedAt = cloneTime(r.Component.ReturnedAt)
		comp.ActualReturnDate = cloneTime(r.Component.ActualReturnDate)
		if r.Component.Extension != nil {
			ext := *r.Component.Extension
			ext.ResolvedAt = cloneTime(r.Component.Extension.ResolvedAt)
			comp.Extension = &ext
		}
		c.Component = &comp
	}
	c.Audit = append([]AuditEntry(nil), r.Audit...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
