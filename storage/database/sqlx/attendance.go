package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/attendance"
)

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) CreateStatus(ctx context.Context, status attendance.Status, exec ...core.DBExecutor) (attendance.Status, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO attendance_statuses (name, code, teacher_selectable, excused, absent, tardy, half, sort_order)
		VALUES (:name, :code, :teacher_selectable, :excused, :absent, :tardy, :half, :sort_order)`, status)
	if err != nil {
		return attendance.Status{}, errors.Wrap(err, "inserting status")
	}
	status.ID = id
	return status, nil
}

func (repo *attendanceRepository) QueryStatuses(ctx context.Context, exec ...core.DBExecutor) ([]attendance.Status, error) {
	statuses := []attendance.Status{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &statuses, `SELECT * FROM attendance_statuses ORDER BY sort_order, id`); err != nil {
		return nil, errors.Wrap(err, "querying statuses")
	}
	return statuses, nil
}

func (repo *attendanceRepository) SaveRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO attendance_records (student_id, date, status_id, recorded_by, time, notes, private_notes)
		VALUES (:student_id, :date, :status_id, :recorded_by, :time, :notes, :private_notes)
		ON CONFLICT (student_id, date, status_id) DO UPDATE SET recorded_by = EXCLUDED.recorded_by, time = EXCLUDED.time,
		notes = EXCLUDED.notes, private_notes = EXCLUDED.private_notes`, rec)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "saving record")
	}
	rec.ID = id
	return rec, nil
}

func (repo *attendanceRepository) DeleteRecords(ctx context.Context, studentIDs []int64, date time.Time, exec ...core.DBExecutor) error {
	if len(studentIDs) == 0 {
		return nil
	}
	_, err := execQuery(ctx, core.PickExec(repo.db, exec),
		`DELETE FROM attendance_records WHERE student_id = ANY(?) AND date = ?`, pq.Array(studentIDs), date)
	return errors.Wrap(err, "deleting records")
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, filter attendance.RecordFilter, exec ...core.DBExecutor) ([]attendance.Record, error) {
	var w where
	if len(filter.StudentIDs) > 0 {
		w.add("student_id = ANY(?)", pq.Array(filter.StudentIDs))
	}
	if len(filter.StatusIDs) > 0 {
		w.add("status_id = ANY(?)", pq.Array(filter.StatusIDs))
	}
	dateRange(&w, filter.From, filter.To)

	records := []attendance.Record{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &records, `SELECT * FROM attendance_records`+w.String()+` ORDER BY id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	return records, nil
}

func (repo *attendanceRepository) CreateOfficeLog(ctx context.Context, log attendance.OfficeLog, exec ...core.DBExecutor) (attendance.OfficeLog, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO attendance_office_logs (date, student_class_id, ampm, user_id, created_at)
		VALUES (:date, :student_class_id, :ampm, :user_id, :created_at)`, log)
	if err != nil {
		if isUniqueViolation(err) {
			return attendance.OfficeLog{}, attendance.ErrLogExists
		}
		return attendance.OfficeLog{}, errors.Wrap(err, "inserting office log")
	}
	log.ID = id
	return log, nil
}

func (repo *attendanceRepository) QueryOfficeLogs(ctx context.Context, date time.Time, exec ...core.DBExecutor) ([]attendance.OfficeLog, error) {
	logs := []attendance.OfficeLog{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &logs, `SELECT * FROM attendance_office_logs WHERE date = ? ORDER BY id`, date); err != nil {
		return nil, errors.Wrap(err, "querying office logs")
	}
	return logs, nil
}

// dateRange filters the date column on [from, to]. Zero bounds are open.
func dateRange(w *where, from, to time.Time) {
	if !from.IsZero() {
		w.add("date >= ?", from)
	}
	if !to.IsZero() {
		w.add("date <= ?", to)
	}
}
