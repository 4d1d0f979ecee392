package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/foodorder"
)

type foodOrderRepository struct {
	db *foodorderTables
}

var _ foodorder.Repository = (*foodOrderRepository)(nil) // interface compliance check

func NewFoodOrderRepository(db *DB) foodorder.Repository {
	return &foodOrderRepository{db: db.foodorder}
}

func (repo *foodOrderRepository) CreateEvent(_ context.Context, ev foodorder.Event, _ ...core.DBExecutor) (foodorder.Event, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ev.ID = repo.db.seq.next()
	repo.db.events[ev.ID] = ev
	return ev, nil
}

func (repo *foodOrderRepository) GetEvent(_ context.Context, id int64, _ ...core.DBExecutor) (foodorder.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ev, ok := repo.db.events[id]; ok {
		return ev, nil
	}
	return foodorder.Event{}, foodorder.ErrEventNotFound
}

func (repo *foodOrderRepository) QueryEvents(_ context.Context, _ ...core.DBExecutor) ([]foodorder.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	events := rows(repo.db.events, nil)
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Date, events[j].Date
		switch {
		case a == nil || b == nil:
			return a != nil
		case !a.Equal(*b):
			return a.After(*b)
		}
		return events[i].ID > events[j].ID
	})
	return events, nil
}

func (repo *foodOrderRepository) CreateItem(_ context.Context, item foodorder.Item, _ ...core.DBExecutor) (foodorder.Item, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	item.ID = repo.db.seq.next()
	repo.db.items[item.ID] = item
	return item, nil
}

func (repo *foodOrderRepository) UpdateItem(_ context.Context, item foodorder.Item, _ ...core.DBExecutor) (foodorder.Item, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.items[item.ID]; !ok {
		return foodorder.Item{}, foodorder.ErrItemNotFound
	}
	repo.db.items[item.ID] = item
	return item, nil
}

func (repo *foodOrderRepository) GetItem(_ context.Context, id int64, _ ...core.DBExecutor) (foodorder.Item, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if item, ok := repo.db.items[id]; ok {
		return item, nil
	}
	return foodorder.Item{}, foodorder.ErrItemNotFound
}

func (repo *foodOrderRepository) QueryItems(_ context.Context, eventID int64, _ ...core.DBExecutor) ([]foodorder.Item, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return rows(repo.db.items, func(item foodorder.Item) bool { return item.EventID == eventID }), nil
}

func (repo *foodOrderRepository) CreateOrder(_ context.Context, order foodorder.Order, _ ...core.DBExecutor) (foodorder.Order, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	order.ID = repo.db.seq.next()
	repo.db.orders[order.ID] = order
	return order, nil
}

func (repo *foodOrderRepository) DeleteOrder(_ context.Context, id int64, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.orders[id]; !ok {
		return core.NewNotFoundError("food order")
	}
	delete(repo.db.orders, id)
	return nil
}

func (repo *foodOrderRepository) QueryOrders(_ context.Context, filter foodorder.OrderFilter, _ ...core.DBExecutor) ([]foodorder.Order, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return rows(repo.db.orders, func(o foodorder.Order) bool {
		switch {
		case filter.SchoolYearID != 0 && o.SchoolYearID != filter.SchoolYearID:
			return false
		case len(filter.ItemIDs) > 0 && !containsInt64(filter.ItemIDs, o.ItemID):
			return false
		case len(filter.StudentIDs) > 0 && !containsInt64(filter.StudentIDs, o.StudentID):
			return false
		}
		return true
	}), nil
}
