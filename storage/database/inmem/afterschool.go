package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/afterschool"
)

type afterschoolRepository struct {
	db *afterschoolTables
}

var _ afterschool.Repository = (*afterschoolRepository)(nil) // interface compliance check

func NewAfterschoolRepository(db *DB) afterschool.Repository {
	return &afterschoolRepository{db: db.afterschool}
}

func (repo *afterschoolRepository) CreatePeriod(_ context.Context, p afterschool.RegistrationPeriod, _ ...core.DBExecutor) (afterschool.RegistrationPeriod, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = repo.db.seq.next()
	repo.db.periods[p.ID] = p
	return p, nil
}

func (repo *afterschoolRepository) QueryPeriods(_ context.Context, _ ...core.DBExecutor) ([]afterschool.RegistrationPeriod, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	periods := rows(repo.db.periods, nil)
	sort.SliceStable(periods, func(i, j int) bool { return periods[i].StartDate.Before(periods[j].StartDate) })
	return periods, nil
}

func (repo *afterschoolRepository) CreatePackage(_ context.Context, p afterschool.Package, _ ...core.DBExecutor) (afterschool.Package, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = repo.db.seq.next()
	repo.db.packages[p.ID] = p
	return p, nil
}

func (repo *afterschoolRepository) GetPackage(_ context.Context, id int64, _ ...core.DBExecutor) (afterschool.Package, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.packages[id]; ok {
		return p, nil
	}
	return afterschool.Package{}, afterschool.ErrPackageNotFound
}

func (repo *afterschoolRepository) QueryPackages(_ context.Context, _ ...core.DBExecutor) ([]afterschool.Package, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return rows(repo.db.packages, nil), nil
}

func (repo *afterschoolRepository) CreatePurchase(_ context.Context, p afterschool.Purchase, _ ...core.DBExecutor) (afterschool.Purchase, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = repo.db.seq.next()
	repo.db.purchases[p.ID] = p
	return p, nil
}

func (repo *afterschoolRepository) QueryPurchases(_ context.Context, studentIDs []int64, _ ...core.DBExecutor) ([]afterschool.Purchase, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return rows(repo.db.purchases, func(p afterschool.Purchase) bool {
		return len(studentIDs) == 0 || containsInt64(studentIDs, p.StudentID)
	}), nil
}

func (repo *afterschoolRepository) SaveAttendance(_ context.Context, a afterschool.Attendance, _ ...core.DBExecutor) (afterschool.Attendance, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, existing := range repo.db.attendance {
		if existing.StudentID == a.StudentID && sameDay(existing.Date, a.Date) {
			a.ID = id
			repo.db.attendance[id] = a
			return a, nil
		}
	}
	a.ID = repo.db.seq.next()
	repo.db.attendance[a.ID] = a
	return a, nil
}

func (repo *afterschoolRepository) QueryAttendance(_ context.Context, filter afterschool.AttendanceFilter, _ ...core.DBExecutor) ([]afterschool.Attendance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	days := rows(repo.db.attendance, func(a afterschool.Attendance) bool {
		if len(filter.StudentIDs) > 0 && !containsInt64(filter.StudentIDs, a.StudentID) {
			return false
		}
		return inRange(a.Date, filter.From, filter.To)
	})
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}

func (repo *afterschoolRepository) SaveBeforeschool(_ context.Context, a afterschool.BeforeschoolAttendance, _ ...core.DBExecutor) (afterschool.BeforeschoolAttendance, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, existing := range repo.db.beforeschool {
		if existing.StudentID == a.StudentID && sameDay(existing.Date, a.Date) {
			a.ID = id
			repo.db.beforeschool[id] = a
			return a, nil
		}
	}
	a.ID = repo.db.seq.next()
	repo.db.beforeschool[a.ID] = a
	return a, nil
}

func (repo *afterschoolRepository) QueryBeforeschool(_ context.Context, filter afterschool.AttendanceFilter, _ ...core.DBExecutor) ([]afterschool.BeforeschoolAttendance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	days := rows(repo.db.beforeschool, func(a afterschool.BeforeschoolAttendance) bool {
		if len(filter.StudentIDs) > 0 && !containsInt64(filter.StudentIDs, a.StudentID) {
			return false
		}
		return inRange(a.Date, filter.From, filter.To)
	})
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}
