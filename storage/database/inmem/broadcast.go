package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/broadcast"
)

type broadcastRepository struct {
	db *broadcastTables
}

var _ broadcast.Repository = (*broadcastRepository)(nil) // interface compliance check

func NewBroadcastRepository(db *DB) broadcast.Repository {
	return &broadcastRepository{db: db.broadcast}
}

func (repo *broadcastRepository) CreateBroadcast(_ context.Context, b broadcast.Broadcast, _ ...core.DBExecutor) (broadcast.Broadcast, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	b.ID = repo.db.seq.next()
	repo.db.broadcasts[b.ID] = b
	return b, nil
}

func (repo *broadcastRepository) UpdateBroadcast(_ context.Context, b broadcast.Broadcast, _ ...core.DBExecutor) (broadcast.Broadcast, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.broadcasts[b.ID]; !ok {
		return broadcast.Broadcast{}, broadcast.ErrNotFound
	}
	repo.db.broadcasts[b.ID] = b
	return b, nil
}

func (repo *broadcastRepository) GetBroadcast(_ context.Context, id int64, _ ...core.DBExecutor) (broadcast.Broadcast, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.broadcasts[id]; ok {
		return b, nil
	}
	return broadcast.Broadcast{}, broadcast.ErrNotFound
}

func (repo *broadcastRepository) QueryBroadcasts(_ context.Context, _ ...core.DBExecutor) ([]broadcast.Broadcast, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	bs := rows(repo.db.broadcasts, nil)
	sort.SliceStable(bs, func(i, j int) bool { return bs[i].ID > bs[j].ID })
	return bs, nil
}

func (repo *broadcastRepository) CreateRecipients(_ context.Context, recipients []broadcast.Recipient, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, r := range recipients {
		r.ID = repo.db.seq.next()
		repo.db.recipients[r.ID] = r
	}
	return nil
}

func (repo *broadcastRepository) UpdateRecipient(_ context.Context, r broadcast.Recipient, _ ...core.DBExecutor) (broadcast.Recipient, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.recipients[r.ID]; !ok {
		return broadcast.Recipient{}, broadcast.ErrRecipientNotFound
	}
	repo.db.recipients[r.ID] = r
	return r, nil
}

func (repo *broadcastRepository) QueueRecipients(_ context.Context, broadcastID int64, _ ...core.DBExecutor) ([]broadcast.Recipient, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	queued := rows(repo.db.recipients, func(r broadcast.Recipient) bool {
		return r.BroadcastID == broadcastID && r.Status == broadcast.RecipientPending
	})
	for i := range queued {
		queued[i].Status = broadcast.RecipientQueued
		repo.db.recipients[queued[i].ID] = queued[i]
	}
	return queued, nil
}

func (repo *broadcastRepository) QueryRecipients(_ context.Context, filter broadcast.RecipientFilter, _ ...core.DBExecutor) ([]broadcast.Recipient, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return rows(repo.db.recipients, func(r broadcast.Recipient) bool {
		return (filter.BroadcastID == 0 || r.BroadcastID == filter.BroadcastID) && (filter.Status == "" || r.Status == filter.Status)
	}), nil
}

func (repo *broadcastRepository) GetRecipientBySID(_ context.Context, sid string, _ ...core.DBExecutor) (broadcast.Recipient, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range rows(repo.db.recipients, nil) {
		if r.MessageSID != nil && *r.MessageSID == sid {
			return r, nil
		}
	}
	return broadcast.Recipient{}, broadcast.ErrRecipientNotFound
}
