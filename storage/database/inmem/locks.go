package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/indysis/core/reportcard"
)

type lockStore struct {
	db *lockTable
}

var _ reportcard.LockStore = (*lockStore)(nil) // interface compliance check

// NewLockStore keeps the report card editor locks in memory, for a single API instance.
func NewLockStore(db *DB) reportcard.LockStore {
	return &lockStore{db: db.locks}
}

func (store *lockStore) Locks(_ context.Context, userID string, studentIDs, subjectIDs []int64, since time.Time) ([]reportcard.EditorLock, error) {
	store.db.Lock()
	defer store.db.Unlock()

	locks := make([]reportcard.EditorLock, 0)
	for key, l := range store.db.table {
		if l.LastPing.Before(since) {
			delete(store.db.table, key) // expired
			continue
		}
		if key.userID != userID && containsInt64(studentIDs, key.studentID) && containsInt64(subjectIDs, key.subjectID) {
			locks = append(locks, l)
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

func (store *lockStore) Touch(_ context.Context, locks ...reportcard.EditorLock) error {
	store.db.Lock()
	defer store.db.Unlock()

	for _, l := range locks {
		store.db.table[lockKey{userID: l.UserID, studentID: l.StudentID, subjectID: l.SubjectID}] = l
	}
	return nil
}

func (store *lockStore) Clear(_ context.Context, userID string, studentIDs, subjectIDs []int64) error {
	store.db.Lock()
	defer store.db.Unlock()

	for key := range store.db.table {
		if key.userID == userID && containsInt64(studentIDs, key.studentID) && containsInt64(subjectIDs, key.subjectID) {
			delete(store.db.table, key)
		}
	}
	return nil
}
