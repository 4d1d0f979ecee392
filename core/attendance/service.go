package attendance

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

var (
	// errors
	ErrStatusNotFound    = core.NewNotFoundError("attendance status")
	ErrLogExists         = errors.New("attendance already logged for this session")
	ErrStudentNotInClass = errors.New("student is not in this class")
)

type (
	Repository interface {
		CreateStatus(ctx context.Context, status Status, exec ...core.DBExecutor) (Status, error)
		QueryStatuses(ctx context.Context, exec ...core.DBExecutor) ([]Status, error)

		// SaveRecord inserts the record or updates the one with the same student, date & status.
		SaveRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		DeleteRecords(ctx context.Context, studentIDs []int64, date time.Time, exec ...core.DBExecutor) error
		QueryRecords(ctx context.Context, filter RecordFilter, exec ...core.DBExecutor) ([]Record, error)

		// CreateOfficeLog returns ErrLogExists if the session was already logged.
		CreateOfficeLog(ctx context.Context, log OfficeLog, exec ...core.DBExecutor) (OfficeLog, error)
		QueryOfficeLogs(ctx context.Context, date time.Time, exec ...core.DBExecutor) ([]OfficeLog, error)
	}

	// Directory gives access to the school records.
	Directory interface {
		GetClass(ctx context.Context, id int64) (school.StudentClass, error)
		QueryClasses(ctx context.Context, filter school.ClassFilter) ([]school.StudentClass, error)
		QueryStudents(ctx context.Context, filter school.StudentFilter) ([]school.Student, error)
	}

	Service struct {
		db   core.DB
		repo Repository
		dir  Directory
	}
)

func NewService(db core.DB, repo Repository, dir Directory) *Service {
	return &Service{db: db, repo: repo, dir: dir}
}

func (svc *Service) CreateStatus(ctx context.Context, status Status) (Status, error) {
	status.Name = core.CleanString(status.Name)
	status.Code = core.CleanString(status.Code)
	if status.Name == "" {
		return Status{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
	}
	return svc.repo.CreateStatus(ctx, status)
}

// QueryStatuses returns the statuses in display order.
func (svc *Service) QueryStatuses(ctx context.Context) ([]Status, error) {
	statuses, err := svc.repo.QueryStatuses(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(statuses, func(i, j int) bool { return statuses[i].Order < statuses[j].Order })
	return statuses, nil
}

func (svc *Service) statusMap(ctx context.Context) (map[int64]Status, error) {
	statuses, err := svc.repo.QueryStatuses(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]Status, len(statuses))
	for _, st := range statuses {
		m[st.ID] = st
	}
	return m, nil
}

// Record saves one attendance record. Recording the present status removes the student's records for the day.
func (svc *Service) Record(ctx context.Context, rec Record) (*Record, error) {
	statuses, err := svc.statusMap(ctx)
	if err != nil {
		return nil, err
	}
	status, ok := statuses[rec.StatusID]
	if !ok {
		return nil, ErrStatusNotFound
	}
	rec.Date = truncateDay(rec.Date)
	if status.IsPresent() {
		return nil, svc.repo.DeleteRecords(ctx, []int64{rec.StudentID}, rec.Date)
	}
	saved, err := svc.repo.SaveRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// TakeClassAttendance replaces the day's records of the class's students and logs the session.
func (svc *Service) TakeClassAttendance(ctx context.Context, userID string, ta TakeAttendance) ([]Record, error) {
	if ta.date.IsZero() {
		d, err := time.Parse("2006-01-02", ta.Date)
		if err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "enter a valid date (YYYY-MM-DD)"})
		}
		ta.date = d
	}
	class, err := svc.dir.GetClass(ctx, ta.StudentClassID)
	if err != nil {
		return nil, err
	}
	statuses, err := svc.statusMap(ctx)
	if err != nil {
		return nil, err
	}
	roster, err := svc.activeStudents(ctx, class)
	if err != nil {
		return nil, err
	}
	inClass := core.NewInt64Set(roster...)
	for _, e := range ta.Entries {
		if !inClass.Has(e.StudentID) {
			return nil, core.NewValidationError(ErrStudentNotInClass, core.FieldError{Field: "student_id", Error: ErrStudentNotInClass.Error()})
		}
		if _, ok := statuses[e.StatusID]; !ok {
			return nil, core.NewValidationError(ErrStatusNotFound, core.FieldError{Field: "status_id", Error: ErrStatusNotFound.Error()})
		}
	}

	day := truncateDay(ta.date)
	saved := make([]Record, 0, len(ta.Entries))
	err = core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		// students left out of the submission are present
		if len(roster) > 0 {
			if err := svc.repo.DeleteRecords(ctx, roster, day, exec); err != nil {
				return err
			}
		}
		for _, e := range ta.Entries {
			if statuses[e.StatusID].IsPresent() {
				continue
			}
			rec, err := svc.repo.SaveRecord(ctx, Record{
				StudentID:  e.StudentID,
				Date:       day,
				StatusID:   e.StatusID,
				RecordedBy: userID,
				Time:       e.Time,
				Notes:      core.CleanString(e.Notes),
			}, exec)
			if err != nil {
				return err
			}
			saved = append(saved, rec)
		}
		_, err := svc.repo.CreateOfficeLog(ctx, OfficeLog{
			Date:           day,
			StudentClassID: class.ID,
			AMPM:           ta.AMPM,
			UserID:         userID,
			CreatedAt:      time.Now().UTC(),
		}, exec)
		if errors.Cause(err) == ErrLogExists {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// activeStudents returns the IDs of the class's active students.
func (svc *Service) activeStudents(ctx context.Context, class school.StudentClass) ([]int64, error) {
	if len(class.StudentIDs) == 0 {
		return nil, nil
	}
	active := true
	students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{IDs: class.StudentIDs, IsActive: &active})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	return ids, nil
}

// Summary holds a student's absence & lates counts over a period.
type Summary struct {
	DaysAbsent float64 `json:"days_absent"`
	TimesLate  int     `json:"times_late"`
}

// Summaries counts weighted absences and unexcused lates between from and to, inclusive.
func (svc *Service) Summaries(ctx context.Context, studentIDs []int64, from, to time.Time) (map[int64]Summary, error) {
	statuses, err := svc.statusMap(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := svc.repo.QueryRecords(ctx, RecordFilter{StudentIDs: studentIDs, From: truncateDay(from), To: truncateDay(to)})
	if err != nil {
		return nil, err
	}
	sums := make(map[int64]Summary, len(studentIDs))
	for _, id := range studentIDs {
		sums[id] = Summary{}
	}
	for _, rec := range recs {
		st := statuses[rec.StatusID]
		sum := sums[rec.StudentID]
		sum.DaysAbsent += st.DaysAbsent()
		if st.IsLate() {
			sum.TimesLate++
		}
		sums[rec.StudentID] = sum
	}
	return sums, nil
}

func (svc *Service) DaysAbsent(ctx context.Context, studentID int64, from, to time.Time) (float64, error) {
	sums, err := svc.Summaries(ctx, []int64{studentID}, from, to)
	if err != nil {
		return 0, err
	}
	return sums[studentID].DaysAbsent, nil
}

func (svc *Service) TimesLate(ctx context.Context, studentID int64, from, to time.Time) (int, error) {
	sums, err := svc.Summaries(ctx, []int64{studentID}, from, to)
	if err != nil {
		return 0, err
	}
	return sums[studentID].TimesLate, nil
}

// ExceptionReport lists the non-present students of the day, by student name.
func (svc *Service) ExceptionReport(ctx context.Context, date time.Time) ([]ExceptionRow, error) {
	day := truncateDay(date)
	recs, err := svc.repo.QueryRecords(ctx, RecordFilter{From: day, To: day})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return []ExceptionRow{}, nil
	}
	statuses, err := svc.statusMap(ctx)
	if err != nil {
		return nil, err
	}
	ids := core.NewInt64Set()
	for _, rec := range recs {
		ids.Add(rec.StudentID)
	}
	students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{IDs: ids.Slice()})
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(students))
	for _, st := range students {
		names[st.ID] = st.FullName()
	}

	rows := make([]ExceptionRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, ExceptionRow{
			StudentID:   rec.StudentID,
			StudentName: names[rec.StudentID],
			Status:      statuses[rec.StatusID].Name,
			Notes:       rec.Notes,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].StudentName < rows[j].StudentName })
	return rows, nil
}

// DailyStatus tells, for every class of the school year, which sessions were submitted on date.
func (svc *Service) DailyStatus(ctx context.Context, date time.Time, schoolYearID int64) ([]ClassStatus, error) {
	classes, err := svc.dir.QueryClasses(ctx, school.ClassFilter{SchoolYearID: schoolYearID})
	if err != nil {
		return nil, err
	}
	logs, err := svc.repo.QueryOfficeLogs(ctx, truncateDay(date))
	if err != nil {
		return nil, err
	}
	type taken struct{ am, pm bool }
	byClass := make(map[int64]taken, len(logs))
	for _, l := range logs {
		t := byClass[l.StudentClassID]
		if l.AMPM == SessionAM {
			t.am = true
		} else {
			t.pm = true
		}
		byClass[l.StudentClassID] = t
	}
	out := make([]ClassStatus, 0, len(classes))
	for _, c := range classes {
		t := byClass[c.ID]
		out = append(out, ClassStatus{StudentClassID: c.ID, Name: c.Name, AMTaken: t.am, PMTaken: t.pm})
	}
	return out, nil
}

// AdjacentSchoolDays returns the previous and next weekdays of date.
func AdjacentSchoolDays(date time.Time) (prev, next time.Time) {
	day := truncateDay(date)
	prev = day.AddDate(0, 0, -1)
	for isWeekend(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	next = day.AddDate(0, 0, 1)
	for isWeekend(next) {
		next = next.AddDate(0, 0, 1)
	}
	return prev, next
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
