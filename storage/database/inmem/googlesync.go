package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/googlesync"
)

type groupSyncRepository struct {
	db *googlesyncTables
}

var _ googlesync.Repository = (*groupSyncRepository)(nil) // interface compliance check

func NewGroupSyncRepository(db *DB) googlesync.Repository {
	return &groupSyncRepository{db: db.googlesync}
}

func copyGroup(g googlesync.Group) googlesync.Group {
	g.ClassIDs = copyInt64s(g.ClassIDs)
	g.Owners = append([]string(nil), g.Owners...)
	g.Managers = append([]string(nil), g.Managers...)
	g.Staff = append([]string(nil), g.Staff...)
	g.ExtraEmails = append([]googlesync.ExtraEmail(nil), g.ExtraEmails...)
	return g
}

func (repo *groupSyncRepository) CreateGroup(_ context.Context, g googlesync.Group, _ ...core.DBExecutor) (googlesync.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	g.ID = repo.db.seq.next()
	repo.db.groups[g.ID] = copyGroup(g)
	return g, nil
}

func (repo *groupSyncRepository) UpdateGroup(_ context.Context, g googlesync.Group, _ ...core.DBExecutor) (googlesync.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.groups[g.ID]; !ok {
		return googlesync.Group{}, googlesync.ErrNotFound
	}
	repo.db.groups[g.ID] = copyGroup(g)
	return g, nil
}

func (repo *groupSyncRepository) GetGroup(_ context.Context, id int64, _ ...core.DBExecutor) (googlesync.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if g, ok := repo.db.groups[id]; ok {
		return copyGroup(g), nil
	}
	return googlesync.Group{}, googlesync.ErrNotFound
}

func (repo *groupSyncRepository) QueryGroups(_ context.Context, filter googlesync.GroupFilter, _ ...core.DBExecutor) ([]googlesync.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	groups := rows(repo.db.groups, func(g googlesync.Group) bool {
		return filter.AutoSync == nil || g.AutoSync == *filter.AutoSync
	})
	for i := range groups {
		groups[i] = copyGroup(groups[i])
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Email < groups[j].Email })
	return groups, nil
}

func (repo *groupSyncRepository) CreateLog(_ context.Context, log googlesync.SyncLog, _ ...core.DBExecutor) (googlesync.SyncLog, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	log.ID = repo.db.seq.next()
	repo.db.logs[log.ID] = log
	return log, nil
}

func (repo *groupSyncRepository) QueryLogs(_ context.Context, groupID int64, limit int, _ ...core.DBExecutor) ([]googlesync.SyncLog, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	logs := rows(repo.db.logs, func(l googlesync.SyncLog) bool { return l.GroupID == groupID })
	sort.SliceStable(logs, func(i, j int) bool {
		if !logs[i].CreatedAt.Equal(logs[j].CreatedAt) {
			return logs[i].CreatedAt.After(logs[j].CreatedAt)
		}
		return logs[i].ID > logs[j].ID
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (repo *groupSyncRepository) DeleteLogsBefore(_ context.Context, before time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int
	for id, l := range repo.db.logs {
		if l.CreatedAt.Before(before) {
			delete(repo.db.logs, id)
			n++
		}
	}
	return n, nil
}
