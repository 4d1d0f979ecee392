package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTables
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.attendance}
}

func (repo *attendanceRepository) CreateStatus(_ context.Context, status attendance.Status, _ ...core.DBExecutor) (attendance.Status, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	status.ID = repo.db.seq.next()
	repo.db.statuses[status.ID] = status
	return status, nil
}

func (repo *attendanceRepository) QueryStatuses(_ context.Context, _ ...core.DBExecutor) ([]attendance.Status, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	statuses := rows(repo.db.statuses, nil)
	sort.SliceStable(statuses, func(i, j int) bool { return statuses[i].Order < statuses[j].Order })
	return statuses, nil
}

func (repo *attendanceRepository) SaveRecord(_ context.Context, rec attendance.Record, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, r := range repo.db.records {
		if r.StudentID == rec.StudentID && r.StatusID == rec.StatusID && sameDay(r.Date, rec.Date) {
			rec.ID = id
			repo.db.records[id] = rec
			return rec, nil
		}
	}
	rec.ID = repo.db.seq.next()
	repo.db.records[rec.ID] = rec
	return rec, nil
}

func (repo *attendanceRepository) DeleteRecords(_ context.Context, studentIDs []int64, date time.Time, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, r := range repo.db.records {
		if containsInt64(studentIDs, r.StudentID) && sameDay(r.Date, date) {
			delete(repo.db.records, id)
		}
	}
	return nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter attendance.RecordFilter, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return rows(repo.db.records, func(r attendance.Record) bool {
		switch {
		case len(filter.StudentIDs) > 0 && !containsInt64(filter.StudentIDs, r.StudentID):
			return false
		case len(filter.StatusIDs) > 0 && !containsInt64(filter.StatusIDs, r.StatusID):
			return false
		}
		return inRange(r.Date, filter.From, filter.To)
	}), nil
}

func (repo *attendanceRepository) CreateOfficeLog(_ context.Context, log attendance.OfficeLog, _ ...core.DBExecutor) (attendance.OfficeLog, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, l := range repo.db.logs {
		if l.StudentClassID == log.StudentClassID && l.AMPM == log.AMPM && sameDay(l.Date, log.Date) {
			return attendance.OfficeLog{}, attendance.ErrLogExists
		}
	}
	log.ID = repo.db.seq.next()
	repo.db.logs[log.ID] = log
	return log, nil
}

func (repo *attendanceRepository) QueryOfficeLogs(_ context.Context, date time.Time, _ ...core.DBExecutor) ([]attendance.OfficeLog, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return rows(repo.db.logs, func(l attendance.OfficeLog) bool { return sameDay(l.Date, date) }), nil
}
