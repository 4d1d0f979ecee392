package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/foodorder"
)

type foodOrderRepository struct {
	db *sqlx.DB
}

var _ foodorder.Repository = (*foodOrderRepository)(nil) // interface compliance check

func NewFoodOrderRepository(db *sqlx.DB) foodorder.Repository {
	return &foodOrderRepository{db: db}
}

func (repo *foodOrderRepository) CreateEvent(ctx context.Context, ev foodorder.Event, exec ...core.DBExecutor) (foodorder.Event, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec), `INSERT INTO food_events (name, date, notes) VALUES (:name, :date, :notes)`, ev)
	if err != nil {
		return foodorder.Event{}, errors.Wrap(err, "inserting event")
	}
	ev.ID = id
	return ev, nil
}

func (repo *foodOrderRepository) GetEvent(ctx context.Context, id int64, exec ...core.DBExecutor) (foodorder.Event, error) {
	return getOne[foodorder.Event](ctx, core.PickExec(repo.db, exec), foodorder.ErrEventNotFound, `SELECT * FROM food_events WHERE id = ?`, id)
}

func (repo *foodOrderRepository) QueryEvents(ctx context.Context, exec ...core.DBExecutor) ([]foodorder.Event, error) {
	events := []foodorder.Event{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &events, `SELECT * FROM food_events ORDER BY date DESC NULLS LAST, id DESC`); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	return events, nil
}

func (repo *foodOrderRepository) CreateItem(ctx context.Context, item foodorder.Item, exec ...core.DBExecutor) (foodorder.Item, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec), `INSERT INTO food_items (event_id, item, active) VALUES (:event_id, :item, :active)`, item)
	if err != nil {
		return foodorder.Item{}, errors.Wrap(err, "inserting item")
	}
	item.ID = id
	return item, nil
}

func (repo *foodOrderRepository) UpdateItem(ctx context.Context, item foodorder.Item, exec ...core.DBExecutor) (foodorder.Item, error) {
	err := updateNamed(ctx, core.PickExec(repo.db, exec), foodorder.ErrItemNotFound,
		`UPDATE food_items SET event_id = :event_id, item = :item, active = :active WHERE id = :id`, item)
	if err != nil {
		if err == foodorder.ErrItemNotFound {
			return foodorder.Item{}, err
		}
		return foodorder.Item{}, errors.Wrap(err, "updating item")
	}
	return item, nil
}

func (repo *foodOrderRepository) GetItem(ctx context.Context, id int64, exec ...core.DBExecutor) (foodorder.Item, error) {
	return getOne[foodorder.Item](ctx, core.PickExec(repo.db, exec), foodorder.ErrItemNotFound, `SELECT * FROM food_items WHERE id = ?`, id)
}

func (repo *foodOrderRepository) QueryItems(ctx context.Context, eventID int64, exec ...core.DBExecutor) ([]foodorder.Item, error) {
	items := []foodorder.Item{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &items, `SELECT * FROM food_items WHERE event_id = ? ORDER BY id`, eventID); err != nil {
		return nil, errors.Wrap(err, "querying items")
	}
	return items, nil
}

func (repo *foodOrderRepository) CreateOrder(ctx context.Context, order foodorder.Order, exec ...core.DBExecutor) (foodorder.Order, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO food_orders (student_id, school_year_id, item_id, quantity, created_at)
		VALUES (:student_id, :school_year_id, :item_id, :quantity, :created_at)`, order)
	if err != nil {
		return foodorder.Order{}, errors.Wrap(err, "inserting order")
	}
	order.ID = id
	return order, nil
}

func (repo *foodOrderRepository) DeleteOrder(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	res, err := execQuery(ctx, core.PickExec(repo.db, exec), `DELETE FROM food_orders WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "deleting order")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewNotFoundError("food order")
	}
	return nil
}

func (repo *foodOrderRepository) QueryOrders(ctx context.Context, filter foodorder.OrderFilter, exec ...core.DBExecutor) ([]foodorder.Order, error) {
	var w where
	if filter.SchoolYearID != 0 {
		w.add("school_year_id = ?", filter.SchoolYearID)
	}
	if len(filter.ItemIDs) > 0 {
		w.add("item_id = ANY(?)", pq.Array(filter.ItemIDs))
	}
	if len(filter.StudentIDs) > 0 {
		w.add("student_id = ANY(?)", pq.Array(filter.StudentIDs))
	}
	orders := []foodorder.Order{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &orders, `SELECT * FROM food_orders`+w.String()+` ORDER BY id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying orders")
	}
	return orders, nil
}
