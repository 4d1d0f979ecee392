package reportcard

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LockStore keeps track of who is editing which student's subject.
type LockStore interface {
	// Locks returns the locks on the student & subject pairs held by users other than userID
	// that were pinged at or after since.
	Locks(ctx context.Context, userID string, studentIDs, subjectIDs []int64, since time.Time) ([]EditorLock, error)
	// Touch creates or refreshes locks.
	Touch(ctx context.Context, locks ...EditorLock) error
	// Clear removes the user's locks on the student & subject pairs.
	Clear(ctx context.Context, userID string, studentIDs, subjectIDs []int64) error
}

// Editor is the user holding editor locks.
type Editor struct {
	UserID string
	Name   string
}

// Conflict describes a lock held by another user.
func (l EditorLock) Conflict(now time.Time) string {
	timestr := ""
	if age := now.Sub(l.LastPing); age > time.Minute {
		timestr = fmt.Sprintf("- last seen %d minutes ago", int(age.Minutes()))
	}
	msg := fmt.Sprintf("%s is editing %s %s - %s %s", l.UserName, l.EditType, l.StudentName, l.SubjectName, timestr)
	return strings.Join(strings.Fields(msg), " ")
}

// LockTarget is a student & subject pair to lock, with the names used in conflict messages.
type LockTarget struct {
	StudentID   int64
	StudentName string
	SubjectID   int64
	SubjectName string
}

// CheckLocks returns the conflicting locks on targets. Unless checkOnly, the editor's
// own locks are created or refreshed when there is no conflict.
func (svc *Service) CheckLocks(ctx context.Context, ed Editor, targets []LockTarget, editType string, checkOnly bool) ([]string, error) {
	if len(targets) == 0 {
		return []string{}, nil
	}
	now := svc.now()
	studentIDs, subjectIDs := targetIDs(targets)

	locks, err := svc.locks.Locks(ctx, ed.UserID, studentIDs, subjectIDs, now.Add(-svc.lockTimeout))
	if err != nil {
		return nil, err
	}
	conflicts := make([]string, 0, len(locks))
	for _, l := range locks {
		conflicts = append(conflicts, l.Conflict(now))
	}
	if len(conflicts) > 0 || checkOnly {
		return conflicts, nil
	}

	own := make([]EditorLock, 0, len(targets))
	for _, t := range targets {
		own = append(own, EditorLock{
			UserID:      ed.UserID,
			UserName:    ed.Name,
			StudentID:   t.StudentID,
			StudentName: t.StudentName,
			SubjectID:   t.SubjectID,
			SubjectName: t.SubjectName,
			EditType:    editType,
			LastPing:    now,
		})
	}
	return conflicts, svc.locks.Touch(ctx, own...)
}

// ClearLocks releases the editor's locks on targets.
func (svc *Service) ClearLocks(ctx context.Context, ed Editor, targets []LockTarget) error {
	if len(targets) == 0 {
		return nil
	}
	studentIDs, subjectIDs := targetIDs(targets)
	return svc.locks.Clear(ctx, ed.UserID, studentIDs, subjectIDs)
}

func targetIDs(targets []LockTarget) (studentIDs, subjectIDs []int64) {
	seenSt, seenSj := map[int64]bool{}, map[int64]bool{}
	for _, t := range targets {
		if !seenSt[t.StudentID] {
			seenSt[t.StudentID] = true
			studentIDs = append(studentIDs, t.StudentID)
		}
		if !seenSj[t.SubjectID] {
			seenSj[t.SubjectID] = true
			subjectIDs = append(subjectIDs, t.SubjectID)
		}
	}
	return studentIDs, subjectIDs
}
