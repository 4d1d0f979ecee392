package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/afterschool"
)

type afterschoolRepository struct {
	db *sqlx.DB
}

var _ afterschool.Repository = (*afterschoolRepository)(nil) // interface compliance check

func NewAfterschoolRepository(db *sqlx.DB) afterschool.Repository {
	return &afterschoolRepository{db: db}
}

func (repo *afterschoolRepository) CreatePeriod(ctx context.Context, p afterschool.RegistrationPeriod, exec ...core.DBExecutor) (afterschool.RegistrationPeriod, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO afterschool_periods (school_year_id, start_date, end_date, is_active)
		VALUES (:school_year_id, :start_date, :end_date, :is_active)`, p)
	if err != nil {
		return afterschool.RegistrationPeriod{}, errors.Wrap(err, "inserting period")
	}
	p.ID = id
	return p, nil
}

func (repo *afterschoolRepository) QueryPeriods(ctx context.Context, exec ...core.DBExecutor) ([]afterschool.RegistrationPeriod, error) {
	periods := []afterschool.RegistrationPeriod{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &periods, `SELECT * FROM afterschool_periods ORDER BY start_date, id`); err != nil {
		return nil, errors.Wrap(err, "querying periods")
	}
	return periods, nil
}

func (repo *afterschoolRepository) CreatePackage(ctx context.Context, p afterschool.Package, exec ...core.DBExecutor) (afterschool.Package, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO afterschool_packages (name, short_name, period_id, is_active, cost, days, usage_code, unit_value,
		carryover, pooled, shared, drop_in, monday, tuesday, wednesday, thursday, friday)
		VALUES (:name, :short_name, :period_id, :is_active, :cost, :days, :usage_code, :unit_value,
		:carryover, :pooled, :shared, :drop_in, :monday, :tuesday, :wednesday, :thursday, :friday)`, p)
	if err != nil {
		return afterschool.Package{}, errors.Wrap(err, "inserting package")
	}
	p.ID = id
	return p, nil
}

func (repo *afterschoolRepository) GetPackage(ctx context.Context, id int64, exec ...core.DBExecutor) (afterschool.Package, error) {
	return getOne[afterschool.Package](ctx, core.PickExec(repo.db, exec), afterschool.ErrPackageNotFound,
		`SELECT * FROM afterschool_packages WHERE id = ?`, id)
}

func (repo *afterschoolRepository) QueryPackages(ctx context.Context, exec ...core.DBExecutor) ([]afterschool.Package, error) {
	packages := []afterschool.Package{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &packages, `SELECT * FROM afterschool_packages ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "querying packages")
	}
	return packages, nil
}

func (repo *afterschoolRepository) CreatePurchase(ctx context.Context, p afterschool.Purchase, exec ...core.DBExecutor) (afterschool.Purchase, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO afterschool_purchases (student_id, package_id, date_registered)
		VALUES (:student_id, :package_id, :date_registered)`, p)
	if err != nil {
		return afterschool.Purchase{}, errors.Wrap(err, "inserting purchase")
	}
	p.ID = id
	return p, nil
}

func (repo *afterschoolRepository) QueryPurchases(ctx context.Context, studentIDs []int64, exec ...core.DBExecutor) ([]afterschool.Purchase, error) {
	var w where
	if len(studentIDs) > 0 {
		w.add("student_id = ANY(?)", pq.Array(studentIDs))
	}
	purchases := []afterschool.Purchase{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &purchases, `SELECT * FROM afterschool_purchases`+w.String()+` ORDER BY id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying purchases")
	}
	return purchases, nil
}

func (repo *afterschoolRepository) SaveAttendance(ctx context.Context, a afterschool.Attendance, exec ...core.DBExecutor) (afterschool.Attendance, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO afterschool_attendance (school_year_id, student_id, date, package_id)
		VALUES (:school_year_id, :student_id, :date, :package_id)
		ON CONFLICT (student_id, date) DO UPDATE SET school_year_id = EXCLUDED.school_year_id, package_id = EXCLUDED.package_id`, a)
	if err != nil {
		return afterschool.Attendance{}, errors.Wrap(err, "saving afterschool attendance")
	}
	a.ID = id
	return a, nil
}

func (repo *afterschoolRepository) QueryAttendance(ctx context.Context, filter afterschool.AttendanceFilter, exec ...core.DBExecutor) ([]afterschool.Attendance, error) {
	w := attendanceWhere(filter)
	days := []afterschool.Attendance{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &days, `SELECT * FROM afterschool_attendance`+w.String()+` ORDER BY date, id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying afterschool attendance")
	}
	return days, nil
}

func (repo *afterschoolRepository) SaveBeforeschool(ctx context.Context, a afterschool.BeforeschoolAttendance, exec ...core.DBExecutor) (afterschool.BeforeschoolAttendance, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO beforeschool_attendance (school_year_id, student_id, date)
		VALUES (:school_year_id, :student_id, :date)
		ON CONFLICT (student_id, date) DO UPDATE SET school_year_id = EXCLUDED.school_year_id`, a)
	if err != nil {
		return afterschool.BeforeschoolAttendance{}, errors.Wrap(err, "saving beforeschool attendance")
	}
	a.ID = id
	return a, nil
}

func (repo *afterschoolRepository) QueryBeforeschool(ctx context.Context, filter afterschool.AttendanceFilter, exec ...core.DBExecutor) ([]afterschool.BeforeschoolAttendance, error) {
	w := attendanceWhere(filter)
	days := []afterschool.BeforeschoolAttendance{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &days, `SELECT * FROM beforeschool_attendance`+w.String()+` ORDER BY date, id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying beforeschool attendance")
	}
	return days, nil
}

func attendanceWhere(filter afterschool.AttendanceFilter) *where {
	w := &where{}
	if len(filter.StudentIDs) > 0 {
		w.add("student_id = ANY(?)", pq.Array(filter.StudentIDs))
	}
	dateRange(w, filter.From, filter.To)
	return w
}
