package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/broadcast"
)

type broadcastRepository struct {
	db *sqlx.DB
}

var _ broadcast.Repository = (*broadcastRepository)(nil) // interface compliance check

func NewBroadcastRepository(db *sqlx.DB) broadcast.Repository {
	return &broadcastRepository{db: db}
}

func (repo *broadcastRepository) CreateBroadcast(ctx context.Context, b broadcast.Broadcast, exec ...core.DBExecutor) (broadcast.Broadcast, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO broadcasts (message, created_by, status, created_at, updated_at)
		VALUES (:message, :created_by, :status, :created_at, :updated_at)`, b)
	if err != nil {
		return broadcast.Broadcast{}, errors.Wrap(err, "inserting broadcast")
	}
	b.ID = id
	return b, nil
}

func (repo *broadcastRepository) UpdateBroadcast(ctx context.Context, b broadcast.Broadcast, exec ...core.DBExecutor) (broadcast.Broadcast, error) {
	err := updateNamed(ctx, core.PickExec(repo.db, exec), broadcast.ErrNotFound,
		`UPDATE broadcasts SET message = :message, status = :status, updated_at = :updated_at WHERE id = :id`, b)
	if err != nil {
		if err == broadcast.ErrNotFound {
			return broadcast.Broadcast{}, err
		}
		return broadcast.Broadcast{}, errors.Wrap(err, "updating broadcast")
	}
	return b, nil
}

func (repo *broadcastRepository) GetBroadcast(ctx context.Context, id int64, exec ...core.DBExecutor) (broadcast.Broadcast, error) {
	return getOne[broadcast.Broadcast](ctx, core.PickExec(repo.db, exec), broadcast.ErrNotFound, `SELECT * FROM broadcasts WHERE id = ?`, id)
}

func (repo *broadcastRepository) QueryBroadcasts(ctx context.Context, exec ...core.DBExecutor) ([]broadcast.Broadcast, error) {
	bs := []broadcast.Broadcast{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &bs, `SELECT * FROM broadcasts ORDER BY id DESC`); err != nil {
		return nil, errors.Wrap(err, "querying broadcasts")
	}
	return bs, nil
}

const insertRecipient = `INSERT INTO broadcast_recipients (broadcast_id, contact_id, faculty_id, phone_number, status,
	message_sid, status_message, created_at, updated_at)
	VALUES (:broadcast_id, :contact_id, :faculty_id, :phone_number, :status,
	:message_sid, :status_message, :created_at, :updated_at)`

func (repo *broadcastRepository) CreateRecipients(ctx context.Context, recipients []broadcast.Recipient, exec ...core.DBExecutor) error {
	if len(recipients) == 0 {
		return nil
	}
	return withTx(ctx, repo.db, exec, func(exe core.DBExecutor) error {
		for _, r := range recipients {
			if _, err := insertNamed(ctx, exe, insertRecipient, r); err != nil {
				return errors.Wrap(err, "inserting recipient")
			}
		}
		return nil
	})
}

func (repo *broadcastRepository) UpdateRecipient(ctx context.Context, r broadcast.Recipient, exec ...core.DBExecutor) (broadcast.Recipient, error) {
	err := updateNamed(ctx, core.PickExec(repo.db, exec), broadcast.ErrRecipientNotFound,
		`UPDATE broadcast_recipients SET status = :status, message_sid = :message_sid, status_message = :status_message,
		updated_at = :updated_at WHERE id = :id`, r)
	if err != nil {
		if err == broadcast.ErrRecipientNotFound {
			return broadcast.Recipient{}, err
		}
		return broadcast.Recipient{}, errors.Wrap(err, "updating recipient")
	}
	return r, nil
}

func (repo *broadcastRepository) QueueRecipients(ctx context.Context, broadcastID int64, exec ...core.DBExecutor) ([]broadcast.Recipient, error) {
	queued := []broadcast.Recipient{}
	err := selectAll(ctx, core.PickExec(repo.db, exec), &queued,
		`UPDATE broadcast_recipients SET status = ? WHERE broadcast_id = ? AND status = ? RETURNING *`,
		broadcast.RecipientQueued, broadcastID, broadcast.RecipientPending)
	if err != nil {
		return nil, errors.Wrap(err, "queuing recipients")
	}
	sortByID(queued, func(r broadcast.Recipient) int64 { return r.ID })
	return queued, nil
}

func (repo *broadcastRepository) QueryRecipients(ctx context.Context, filter broadcast.RecipientFilter, exec ...core.DBExecutor) ([]broadcast.Recipient, error) {
	var w where
	if filter.BroadcastID != 0 {
		w.add("broadcast_id = ?", filter.BroadcastID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	recipients := []broadcast.Recipient{}
	err := selectAll(ctx, core.PickExec(repo.db, exec), &recipients, `SELECT * FROM broadcast_recipients`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying recipients")
	}
	return recipients, nil
}

func (repo *broadcastRepository) GetRecipientBySID(ctx context.Context, sid string, exec ...core.DBExecutor) (broadcast.Recipient, error) {
	return getOne[broadcast.Recipient](ctx, core.PickExec(repo.db, exec), broadcast.ErrRecipientNotFound,
		`SELECT * FROM broadcast_recipients WHERE message_sid = ? ORDER BY id`, sid)
}
