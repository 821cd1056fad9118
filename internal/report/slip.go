// Package report renders printable documents for finished requests.
package report

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"labportal/internal/apperr"
	"labportal/internal/booking"
	"labportal/internal/directory"
	"labportal/internal/request"
)

const timestampLayout = "2006-01-02 15:04 MST"

// Slip is everything printed on an approval slip. Names are looked up by the
// caller; missing names fall back to ids.
type Slip struct {
	Request    *request.Request
	Lab        directory.Lab
	Department directory.Department
	Names      map[string]string
	Components map[string]string
}

// Printable reports whether a request in status s has an approval to print.
func Printable(s request.Status) bool {
	switch s {
	case request.StatusApproved, request.StatusIssued, request.StatusReturnRequested, request.StatusReturned:
		return true
	}
	return false
}

// ApproverTitle is the printed name of the capacity that signed off.
func ApproverTitle(a directory.Authority) string {
	switch a {
	case directory.AuthorityHOD:
		return "Head of Department"
	case directory.AuthorityLabCoordinator:
		return "Lab Coordinator"
	}
	return string(a)
}

// WriteSlip renders a one-page A4 slip. The signing authority comes from the
// request's recorded final approver role, never from the department's current setting.
func WriteSlip(w io.Writer, s Slip) error {
	r := s.Request
	if r == nil || !Printable(r.Status) {
		return apperr.ErrWrongState.With("only approved requests have a slip")
	}
	if r.FinalApproverRole == "" {
		return apperr.ErrWrongState.With("request %s has no recorded final approver", r.ID)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle("Approval slip "+r.ID, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	title := "Lab booking approval slip"
	if r.Type == request.TypeComponent {
		title = "Component loan approval slip"
	}
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s (%s), %s", s.Lab.Name, s.Lab.Code, s.Department.Name), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Request", r.ID},
		{"Requester", fmt.Sprintf("%s (%s)", s.name(r.RequesterID), r.RequesterRole)},
		{"Purpose", r.Purpose},
		{"Status", string(r.Status)},
	}
	if b := r.Booking; b != nil {
		rows = append(rows,
			[2]string{"Date", b.Date.Format(booking.DateLayout)},
			[2]string{"Time", fmt.Sprintf("%s - %s", b.Start, b.End)},
		)
	}
	if c := r.Component; c != nil {
		for _, it := range c.Items {
			rows = append(rows, [2]string{"Item", fmt.Sprintf("%s x %d", s.component(it.ComponentID), it.Quantity)})
		}
		rows = append(rows, [2]string{"Return by", c.ReturnDate.Format(booking.DateLayout)})
		if c.ActualReturnDate != nil {
			rows = append(rows, [2]string{"Returned", c.ActualReturnDate.Format(booking.DateLayout)})
			if d := c.DelayDays(); d > 0 {
				rows = append(rows, [2]string{"Delay", fmt.Sprintf("%d day(s)", d)})
			}
		}
	}
	approvedAt := ""
	if r.FinalApprovedAt != nil {
		approvedAt = r.FinalApprovedAt.Format(timestampLayout)
	}
	rows = append(rows,
		[2]string{"Approved by", fmt.Sprintf("%s, %s", s.name(r.FinalApproverID), ApproverTitle(r.FinalApproverRole))},
		[2]string{"Approved at", approvedAt},
	)
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 7, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, row[1], "1", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, "Approval trail", "", 1, "L", false, 0, "")
	pdf.SetFillColor(242, 242, 242)
	pdf.SetFont("Arial", "B", 9)
	for i, h := range []string{"When", "Action", "By", "As"} {
		pdf.CellFormat(trailWidths[i], 6, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, e := range r.Audit {
		cells := []string{e.At.Format(timestampLayout), string(e.Action), s.name(e.ActorID), e.Role}
		for i, c := range cells {
			pdf.CellFormat(trailWidths[i], 6, c, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

var trailWidths = []float64{50, 45, 50, 35}

func (s Slip) name(id string) string {
	if n := s.Names[id]; n != "" {
		return n
	}
	return id
}

func (s Slip) component(id string) string {
	if n := s.Components[id]; n != "" {
		return n
	}
	return id
}
