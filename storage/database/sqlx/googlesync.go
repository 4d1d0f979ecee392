package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/googlesync"
)

type (
	groupSyncRepository struct {
		db *sqlx.DB
	}

	// groupRow carries the array & json columns of a group.
	groupRow struct {
		googlesync.Group
		ClassIDs    pq.Int64Array  `db:"class_ids"`
		Owners      pq.StringArray `db:"owners"`
		Managers    pq.StringArray `db:"managers"`
		Staff       pq.StringArray `db:"staff"`
		ExtraEmails types.JSONText `db:"extra_emails"`
	}
)

var _ googlesync.Repository = (*groupSyncRepository)(nil) // interface compliance check

func NewGroupSyncRepository(db *sqlx.DB) googlesync.Repository {
	return &groupSyncRepository{db: db}
}

func toGroupRow(g googlesync.Group) (groupRow, error) {
	extra := g.ExtraEmails
	if extra == nil {
		extra = []googlesync.ExtraEmail{}
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return groupRow{}, errors.Wrap(err, "encoding extra emails")
	}
	return groupRow{
		Group:       g,
		ClassIDs:    int64Array(g.ClassIDs),
		Owners:      stringArray(g.Owners),
		Managers:    stringArray(g.Managers),
		Staff:       stringArray(g.Staff),
		ExtraEmails: raw,
	}, nil
}

func (row groupRow) group() (googlesync.Group, error) {
	g := row.Group
	g.ClassIDs = []int64(row.ClassIDs)
	g.Owners = []string(row.Owners)
	g.Managers = []string(row.Managers)
	g.Staff = []string(row.Staff)
	g.ExtraEmails = nil
	if len(row.ExtraEmails) > 0 {
		if err := row.ExtraEmails.Unmarshal(&g.ExtraEmails); err != nil {
			return googlesync.Group{}, errors.Wrap(err, "decoding extra emails")
		}
	}
	return g, nil
}

func (repo *groupSyncRepository) CreateGroup(ctx context.Context, g googlesync.Group, exec ...core.DBExecutor) (googlesync.Group, error) {
	row, err := toGroupRow(g)
	if err != nil {
		return googlesync.Group{}, err
	}
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO group_syncs (group_id, email, description, class_ids, owners, managers, staff, auto_sync,
		extra_emails, created_at, updated_at)
		VALUES (:group_id, :email, :description, :class_ids, :owners, :managers, :staff, :auto_sync,
		:extra_emails, :created_at, :updated_at)`, row)
	if err != nil {
		return googlesync.Group{}, errors.Wrap(err, "inserting group")
	}
	g.ID = id
	return g, nil
}

func (repo *groupSyncRepository) UpdateGroup(ctx context.Context, g googlesync.Group, exec ...core.DBExecutor) (googlesync.Group, error) {
	row, err := toGroupRow(g)
	if err != nil {
		return googlesync.Group{}, err
	}
	err = updateNamed(ctx, core.PickExec(repo.db, exec), googlesync.ErrNotFound,
		`UPDATE group_syncs SET group_id = :group_id, email = :email, description = :description, class_ids = :class_ids,
		owners = :owners, managers = :managers, staff = :staff, auto_sync = :auto_sync, extra_emails = :extra_emails,
		updated_at = :updated_at WHERE id = :id`, row)
	if err != nil {
		if err == googlesync.ErrNotFound {
			return googlesync.Group{}, err
		}
		return googlesync.Group{}, errors.Wrap(err, "updating group")
	}
	return g, nil
}

func (repo *groupSyncRepository) GetGroup(ctx context.Context, id int64, exec ...core.DBExecutor) (googlesync.Group, error) {
	row, err := getOne[groupRow](ctx, core.PickExec(repo.db, exec), googlesync.ErrNotFound, `SELECT * FROM group_syncs WHERE id = ?`, id)
	if err != nil {
		return googlesync.Group{}, err
	}
	return row.group()
}

func (repo *groupSyncRepository) QueryGroups(ctx context.Context, filter googlesync.GroupFilter, exec ...core.DBExecutor) ([]googlesync.Group, error) {
	var w where
	if filter.AutoSync != nil {
		w.add("auto_sync = ?", *filter.AutoSync)
	}
	var rows []groupRow
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &rows, `SELECT * FROM group_syncs`+w.String()+` ORDER BY email`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	groups := make([]googlesync.Group, 0, len(rows))
	for _, row := range rows {
		g, err := row.group()
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (repo *groupSyncRepository) CreateLog(ctx context.Context, log googlesync.SyncLog, exec ...core.DBExecutor) (googlesync.SyncLog, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO group_sync_logs (group_sync_id, status, messages, created_at)
		VALUES (:group_sync_id, :status, :messages, :created_at)`, log)
	if err != nil {
		return googlesync.SyncLog{}, errors.Wrap(err, "inserting sync log")
	}
	log.ID = id
	return log, nil
}

func (repo *groupSyncRepository) QueryLogs(ctx context.Context, groupID int64, limit int, exec ...core.DBExecutor) ([]googlesync.SyncLog, error) {
	q := `SELECT * FROM group_sync_logs WHERE group_sync_id = ? ORDER BY created_at DESC, id DESC`
	args := []interface{}{groupID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	logs := []googlesync.SyncLog{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &logs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying sync logs")
	}
	return logs, nil
}

func (repo *groupSyncRepository) DeleteLogsBefore(ctx context.Context, before time.Time, exec ...core.DBExecutor) (int, error) {
	res, err := execQuery(ctx, core.PickExec(repo.db, exec), `DELETE FROM group_sync_logs WHERE created_at < ?`, before)
	if err != nil {
		return 0, errors.Wrap(err, "deleting sync logs")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting deleted sync logs")
}
