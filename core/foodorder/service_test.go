package foodorder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/foodorder"
	"github.com/trezcool/indysis/core/school"
	inmemdb "github.com/trezcool/indysis/storage/database/inmem"
	testutil "github.com/trezcool/indysis/tests"
)

type fixture struct {
	svc     *foodorder.Service
	schRepo school.Repository
	year    school.SchoolYear
	event   foodorder.Event
	items   map[string]foodorder.Item
}

func setup(t *testing.T) fixture {
	db := testutil.OpenMemDB(t)
	schRepo := inmemdb.NewSchoolRepository(db)
	svc := foodorder.NewService(inmemdb.NewFoodOrderRepository(db), school.NewService(nil, schRepo))
	ctx := context.Background()

	year := testutil.CreateSchoolYear(t, schRepo, "2023-2024", testutil.Date(2023, 9, 1), testutil.Date(2024, 6, 30), true)
	testutil.CreateGrade(t, schRepo, 1, "Grade 1", "Gr1")
	testutil.CreateGrade(t, schRepo, 2, "Grade 2", "Gr2")

	date := testutil.Date(2024, 3, 15)
	event, err := svc.CreateEvent(ctx, foodorder.Event{Name: "Pizza Day", Date: &date})
	require.NoError(t, err)

	items := make(map[string]foodorder.Item)
	for _, name := range []string{"Pepperoni Pizza", "Juice", "Cheese Pizza", "Salad"} {
		item, err := svc.AddItem(ctx, event.ID, foodorder.NewItem{Name: name})
		require.NoError(t, err)
		items[name] = item
	}
	return fixture{svc: svc, schRepo: schRepo, year: year, event: event, items: items}
}

func TestQueryEvents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	old := testutil.Date(2023, 10, 1)
	oldEv, err := f.svc.CreateEvent(ctx, foodorder.Event{Name: "Hot Dog Day", Date: &old})
	require.NoError(t, err)
	undated, err := f.svc.CreateEvent(ctx, foodorder.Event{Name: "Bake Sale"})
	require.NoError(t, err)

	events, err := f.svc.QueryEvents(ctx)
	require.NoError(t, err)
	var ids []int64
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []int64{f.event.ID, oldEv.ID, undated.ID}, ids)
	assert.Equal(t, "Pizza Day (2024-03-15)", f.event.String())
	assert.Equal(t, "Bake Sale", undated.String())
}

func TestQueryItems(t *testing.T) {
	f := setup(t)

	items, err := f.svc.QueryItems(context.Background(), f.event.ID)
	require.NoError(t, err)
	var names []string
	for _, item := range items {
		names = append(names, item.Name)
		assert.True(t, item.Active)
	}
	assert.Equal(t, []string{"Cheese Pizza", "Juice", "Pepperoni Pizza", "Salad"}, names)

	_, err = f.svc.AddItem(context.Background(), 999, foodorder.NewItem{Name: "Cake"})
	assert.True(t, core.IsNotFound(err))
}

func TestPlaceOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	st := testutil.CreateStudent(t, f.schRepo, "Ana", "Abel", 1, true)

	_, err := f.svc.SetItemActive(ctx, f.items["Salad"].ID, false)
	require.NoError(t, err)

	tests := []struct {
		name      string
		order     foodorder.NewOrder
		wantErr   func(error) bool
		wantField string
	}{
		{name: "unknown item", order: foodorder.NewOrder{StudentID: st.ID, ItemID: 999, Quantity: 1}, wantErr: core.IsNotFound},
		{name: "inactive item", order: foodorder.NewOrder{StudentID: st.ID, ItemID: f.items["Salad"].ID, Quantity: 1}, wantField: "item_id"},
		{name: "unknown student", order: foodorder.NewOrder{StudentID: 999, ItemID: f.items["Juice"].ID, Quantity: 1}, wantErr: core.IsNotFound},
		{name: "unknown year", order: foodorder.NewOrder{StudentID: st.ID, ItemID: f.items["Juice"].ID, Quantity: 1, SchoolYearID: 999}, wantErr: core.IsNotFound},
		{name: "current year", order: foodorder.NewOrder{StudentID: st.ID, ItemID: f.items["Juice"].ID, Quantity: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := f.svc.PlaceOrder(ctx, tt.order)
			switch {
			case tt.wantErr != nil:
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
			case tt.wantField != "":
				var vErr *core.ValidationError
				if assert.ErrorAs(t, err, &vErr) {
					assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
				}
			default:
				require.NoError(t, err)
				assert.Equal(t, f.year.ID, order.SchoolYearID)
				assert.Equal(t, 2, order.Quantity)
				assert.False(t, order.CreatedAt.IsZero())

				require.NoError(t, f.svc.CancelOrder(ctx, order.ID))
				assert.True(t, core.IsNotFound(f.svc.CancelOrder(ctx, order.ID)))
			}
		})
	}
}

func TestEventReport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ana := testutil.CreateStudent(t, f.schRepo, "Ana", "Abel", 1, true)
	ben := testutil.CreateStudent(t, f.schRepo, "Ben", "Bell", 2, true)
	testutil.CreateStudent(t, f.schRepo, "Cid", "Cole", 1, true)
	dee := testutil.CreateStudent(t, f.schRepo, "Dee", "Dunn", 2, true)

	orders := []foodorder.NewOrder{
		{StudentID: ana.ID, ItemID: f.items["Cheese Pizza"].ID, Quantity: 2},
		{StudentID: ana.ID, ItemID: f.items["Cheese Pizza"].ID, Quantity: 1},
		{StudentID: ana.ID, ItemID: f.items["Juice"].ID, Quantity: 1},
		{StudentID: ben.ID, ItemID: f.items["Pepperoni Pizza"].ID, Quantity: 1},
		{StudentID: ben.ID, ItemID: f.items["Salad"].ID, Quantity: 1},
		{StudentID: dee.ID, ItemID: f.items["Juice"].ID, Quantity: 1},
	}
	for _, no := range orders {
		_, err := f.svc.PlaceOrder(ctx, no)
		require.NoError(t, err)
	}
	_, err := f.svc.SetItemActive(ctx, f.items["Salad"].ID, false)
	require.NoError(t, err)

	// dee left the school
	dee.IsActive = false
	_, err = f.schRepo.UpdateStudent(ctx, dee)
	require.NoError(t, err)

	tests := []struct {
		name       string
		filter     foodorder.ReportFilter
		wantTitle  string
		wantItems  []string
		wantTables []foodorder.ReportTable
	}{
		{
			name:      "per grade",
			wantTitle: "Food Orders - Pizza Day (2024-03-15) - 2023-2024",
			wantItems: []string{"Cheese Pizza", "Juice", "Pepperoni Pizza"},
			wantTables: []foodorder.ReportTable{
				{
					Heading: "Grade 1",
					Rows:    []foodorder.ReportRow{{StudentID: ana.ID, Name: "Abel, Ana", Quantities: []int{3, 1, 0}}},
					Totals:  []int{3, 1, 0},
				},
				{
					Heading: "Grade 2",
					Rows:    []foodorder.ReportRow{{StudentID: ben.ID, Name: "Bell, Ben", Quantities: []int{0, 0, 1}}},
					Totals:  []int{0, 0, 1},
				},
			},
		},
		{
			name:      "school wide",
			filter:    foodorder.ReportFilter{Grade: foodorder.SchoolWide, SchoolYearID: f.year.ID},
			wantTitle: "Food Orders - Pizza Day (2024-03-15) - 2023-2024",
			wantItems: []string{"Cheese Pizza", "Juice", "Pepperoni Pizza"},
			wantTables: []foodorder.ReportTable{
				{
					Heading: "School",
					Rows: []foodorder.ReportRow{
						{StudentID: ana.ID, Name: "Abel, Ana", Grade: "Gr1", Quantities: []int{3, 1, 0}},
						{StudentID: ben.ID, Name: "Bell, Ben", Grade: "Gr2", Quantities: []int{0, 0, 1}},
					},
					Totals: []int{3, 1, 1},
				},
			},
		},
		{
			name:      "keyword in one grade",
			filter:    foodorder.ReportFilter{Grade: "1", Keyword: " PIZZA "},
			wantTitle: "Food Orders (Pizza) - Pizza Day (2024-03-15) - 2023-2024",
			wantItems: []string{"Cheese Pizza", "Pepperoni Pizza"},
			wantTables: []foodorder.ReportTable{
				{
					Heading: "Grade 1 - Pizza",
					Rows:    []foodorder.ReportRow{{StudentID: ana.ID, Name: "Abel, Ana", Quantities: []int{3, 0}}},
					Totals:  []int{3, 0},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := f.svc.EventReport(ctx, f.event.ID, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, rep.Title)
			var names []string
			for _, item := range rep.Items {
				names = append(names, item.Name)
			}
			assert.Equal(t, tt.wantItems, names)
			assert.Equal(t, tt.wantTables, rep.Tables)
		})
	}

	_, err = f.svc.EventReport(ctx, f.event.ID, foodorder.ReportFilter{Grade: "abc"})
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = f.svc.EventReport(ctx, f.event.ID, foodorder.ReportFilter{Grade: "7"})
	assert.True(t, core.IsNotFound(err))

	_, err = f.svc.EventReport(ctx, 999, foodorder.ReportFilter{})
	assert.True(t, core.IsNotFound(err))
}
