package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/reportcard"
)

const lockKeyPrefix = "reportcard:lock:"

// Open connects to the redis server of conf.
func Open(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis.Ping")
	}
	return rdb, nil
}

type lockStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ reportcard.LockStore = (*lockStore)(nil) // interface compliance check

// NewLockStore shares the report card editor locks between API instances.
// Each student & subject pair is a hash of locks by user, expiring after the lock timeout.
func NewLockStore(rdb *redis.Client, conf *core.Config) reportcard.LockStore {
	return &lockStore{rdb: rdb, ttl: conf.ReportCard.LockTimeout}
}

func lockKey(studentID, subjectID int64) string {
	return fmt.Sprintf("%s%d:%d", lockKeyPrefix, studentID, subjectID)
}

func (store *lockStore) Locks(ctx context.Context, userID string, studentIDs, subjectIDs []int64, since time.Time) ([]reportcard.EditorLock, error) {
	cmds := make([]*redis.MapStringStringCmd, 0, len(studentIDs)*len(subjectIDs))
	_, err := store.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, st := range studentIDs {
			for _, sj := range subjectIDs {
				cmds = append(cmds, pipe.HGetAll(ctx, lockKey(st, sj)))
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "reading editor locks")
	}

	locks := make([]reportcard.EditorLock, 0)
	for _, cmd := range cmds {
		for uid, data := range cmd.Val() {
			if uid == userID {
				continue
			}
			var l reportcard.EditorLock
			if err := json.Unmarshal([]byte(data), &l); err != nil {
				return nil, errors.Wrap(err, "decoding editor lock")
			}
			if !l.LastPing.Before(since) {
				locks = append(locks, l)
			}
		}
	}
	sort.Slice(locks, func(i, j int) bool {
		if locks[i].StudentName != locks[j].StudentName {
			return locks[i].StudentName < locks[j].StudentName
		}
		if locks[i].SubjectName != locks[j].SubjectName {
			return locks[i].SubjectName < locks[j].SubjectName
		}
		return locks[i].UserName < locks[j].UserName
	})
	return locks, nil
}

func (store *lockStore) Touch(ctx context.Context, locks ...reportcard.EditorLock) error {
	if len(locks) == 0 {
		return nil
	}
	_, err := store.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, l := range locks {
			data, err := json.Marshal(l)
			if err != nil {
				return err
			}
			key := lockKey(l.StudentID, l.SubjectID)
			pipe.HSet(ctx, key, l.UserID, data)
			pipe.Expire(ctx, key, store.ttl)
		}
		return nil
	})
	return errors.Wrap(err, "saving editor locks")
}

func (store *lockStore) Clear(ctx context.Context, userID string, studentIDs, subjectIDs []int64) error {
	_, err := store.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, st := range studentIDs {
			for _, sj := range subjectIDs {
				pipe.HDel(ctx, lockKey(st, sj), userID)
			}
		}
		return nil
	})
	return errors.Wrap(err, "clearing editor locks")
}
