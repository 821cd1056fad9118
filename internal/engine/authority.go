package engine

import (
	"context"
	"errors"

	"labportal/internal/apperr"
	"labportal/internal/authority"
	"labportal/internal/directory"
	"labportal/internal/notify"
)

const actionSetAuthority = "SET_AUTHORITY"

// SetAuthority changes who gives final sign-off for the department and, when
// coordinatorID is set, assigns the lab coordinator in the same step. The HOD is
// the only one who may make the change. Requests already approved keep the
// authority recorded when they were approved.
func (e *Engine) SetAuthority(ctx context.Context, departmentID, actorID string, role directory.Authority, coordinatorID string) (*directory.Department, error) {
	var out *directory.Department
	err := e.run(ctx, func(t *txn) error {
		dept, err := t.tx.GetDepartmentForUpdate(ctx, departmentID)
		if err != nil {
			return err
		}

		if coordinatorID != "" {
			u, err := t.tx.GetUser(ctx, coordinatorID)
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.ErrValidation.With("unknown lab coordinator %s", coordinatorID)
			}
			if err != nil {
				return err
			}
			if !u.Role.FacultyLevel() {
				return apperr.ErrValidation.With("lab coordinator %s must be a faculty member", coordinatorID)
			}
		}

		before := authority.CurrentApprover(*dept)
		next := *dept
		if err := authority.Set(&next, role, coordinatorID); err != nil {
			return err
		}
		if actorID != next.HODID {
			return apperr.ErrWrongActor.With("only the HOD of %s may change its approval authority", dept.Code)
		}

		if err := t.tx.UpdateDepartment(ctx, &next); err != nil {
			return err
		}
		if err := t.emit(ctx, notify.Event{
			RequestID:   next.ID,
			RequestType: notify.RequestTypeDepartment,
			Action:      actionSetAuthority,
			FromState:   string(before),
			ToState:     string(authority.CurrentApprover(next)),
			ActorID:     actorID,
			Recipients:  []string{next.HODID, next.LabCoordinatorID, dept.LabCoordinatorID},
		}); err != nil {
			return err
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
