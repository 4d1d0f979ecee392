package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/indysis/core/foodorder"
	"github.com/trezcool/indysis/core/user"
	testutil "github.com/trezcool/indysis/tests"
)

func Test_foodOrderApi(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@school.ca", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@school.ca", "", []string{user.RoleFaculty}, true)
	adminToken := env.getToken(t, admin)
	teacherToken := env.getToken(t, teacher)

	testutil.CreateSchoolYear(t, env.schRepo, "2023-2024", testutil.Date(2023, 9, 1), testutil.Date(2024, 6, 30), true)
	testutil.CreateGrade(t, env.schRepo, 5, "Grade 5", "G5")
	ana := testutil.CreateStudent(t, env.schRepo, "Ana", "Lopez", 5, true)
	testutil.CreateStudent(t, env.schRepo, "Ben", "Okafor", 5, true)

	runTests(t, env, []httpTest{
		{
			name: "create event needs admin", method: http.MethodPost, path: "/v1/food-orders/events", token: teacherToken,
			body: marchallObj(t, foodorder.NewEvent{Name: "Pizza Day"}), wantCode: http.StatusForbidden,
		},
		{
			name: "invalid date", method: http.MethodPost, path: "/v1/food-orders/events", token: adminToken,
			body: marchallObj(t, foodorder.NewEvent{Name: "Pizza Day", Date: "24/11/2023"}), wantCode: http.StatusBadRequest,
		},
	})

	var ev foodorder.Event
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/food-orders/events", adminToken,
		foodorder.NewEvent{Name: "Pizza Day", Date: "2023-11-24"}, &ev))
	eventPath := fmt.Sprintf("/v1/food-orders/events/%d", ev.ID)

	var pizza, juice foodorder.Item
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, eventPath+"/items", adminToken, foodorder.NewItem{Name: "Pizza"}, &pizza))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, eventPath+"/items", adminToken, foodorder.NewItem{Name: "Juice"}, &juice))
	assert.True(t, pizza.Active)

	var order foodorder.Order
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/food-orders/orders", teacherToken,
		foodorder.NewOrder{StudentID: ana.ID, ItemID: pizza.ID, Quantity: 2}, &order))
	assert.NotZero(t, order.SchoolYearID, "defaults to the current year")

	t.Run("report", func(t *testing.T) {
		var rep foodorder.Report
		code := env.do(t, http.MethodGet, eventPath+"/report?grade=school&keyword=pizza", teacherToken, nil, &rep)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Food Orders (Pizza) - Pizza Day (2023-11-24) - 2023-2024", rep.Title)
		require.Len(t, rep.Items, 1)
		require.Len(t, rep.Tables, 1)
		table := rep.Tables[0]
		assert.Equal(t, "School - Pizza", table.Heading)
		require.Len(t, table.Rows, 1, "students without orders are left out")
		assert.Equal(t, foodorder.ReportRow{StudentID: ana.ID, Name: "Lopez, Ana", Grade: "G5", Quantities: []int{2}}, table.Rows[0])
		assert.Equal(t, []int{2}, table.Totals)
	})

	t.Run("inactive item", func(t *testing.T) {
		var item foodorder.Item
		code := env.do(t, http.MethodPut, fmt.Sprintf("/v1/food-orders/items/%d/active", juice.ID), adminToken, map[string]bool{"active": false}, &item)
		require.Equal(t, http.StatusOK, code)
		assert.False(t, item.Active)

		runTests(t, env, []httpTest{
			{
				name: "cannot order", method: http.MethodPost, path: "/v1/food-orders/orders", token: teacherToken,
				body:     marchallObj(t, foodorder.NewOrder{StudentID: ana.ID, ItemID: juice.ID, Quantity: 1}),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"item_id": foodorder.ErrItemInactive.Error()}),
			},
		})
	})

	t.Run("cancel", func(t *testing.T) {
		code := env.do(t, http.MethodDelete, fmt.Sprintf("/v1/food-orders/orders/%d", order.ID), teacherToken, nil, nil)
		assert.Equal(t, http.StatusNoContent, code)

		var rep foodorder.Report
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, eventPath+"/report?grade=school", teacherToken, nil, &rep))
		assert.Empty(t, rep.Tables[0].Rows)
	})
}
