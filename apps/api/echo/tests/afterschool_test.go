package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/indysis/core/afterschool"
	"github.com/trezcool/indysis/core/user"
	testutil "github.com/trezcool/indysis/tests"
)

func Test_afterschoolApi(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@school.ca", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@school.ca", "", []string{user.RoleFaculty}, true)
	adminToken := env.getToken(t, admin)
	teacherToken := env.getToken(t, teacher)

	year := testutil.CreateSchoolYear(t, env.schRepo, "2023-2024", testutil.Date(2023, 9, 1), testutil.Date(2024, 6, 30), true)
	testutil.CreateGrade(t, env.schRepo, 1, "Grade 1", "G1")
	ana := testutil.CreateStudent(t, env.schRepo, "Ana", "Adams", 1, true)

	var period afterschool.RegistrationPeriod
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/afterschool/periods", adminToken, afterschool.NewPeriod{
		SchoolYearID: year.ID, StartDate: "2023-09-01", EndDate: "2024-06-30",
	}, &period))

	var pkg afterschool.Package
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/afterschool/packages", adminToken, afterschool.Package{
		Name: "Mondays", PeriodID: &period.ID, IsActive: true, Monday: true,
	}, &pkg))
	assert.Equal(t, 1, pkg.Days)

	runTests(t, env, []httpTest{
		{
			name: "period needs a year", method: http.MethodPost, path: "/v1/afterschool/periods", token: adminToken,
			body:     marchallObj(t, afterschool.NewPeriod{SchoolYearID: 999, StartDate: "2023-09-01", EndDate: "2024-06-30"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"school_year_id": "school year not found"}),
		},
		{
			name: "package name required", method: http.MethodPost, path: "/v1/afterschool/packages", token: adminToken,
			body:     marchallObj(t, afterschool.Package{UsageCode: "ABC"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"name": "this field is required", "usage_code": "at most 2 characters"}),
		},
		{
			name: "purchase needs admin", method: http.MethodPost, path: "/v1/afterschool/purchases", token: teacherToken,
			body: marchallObj(t, map[string]int64{"student_id": ana.ID, "package_id": pkg.ID}), wantCode: http.StatusForbidden,
		},
		{
			name: "outside school years", method: http.MethodPost, path: "/v1/afterschool/beforeschool", token: teacherToken,
			body:     marchallObj(t, map[string]interface{}{"student_id": ana.ID, "date": "2022-01-10"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: afterschool.ErrNoSchoolYear.Error()}),
		},
		{
			name: "bad month", path: "/v1/afterschool/usage?month=lol", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"month": "enter a valid month (YYYY-MM)"}),
		},
	})

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/afterschool/purchases", adminToken,
		map[string]interface{}{"student_id": ana.ID, "package_id": pkg.ID, "date_registered": "2023-09-01"}, nil))
	for _, date := range []string{"2023-11-06", "2023-11-11"} {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/afterschool/attendance", teacherToken,
			afterschool.NewAttendance{StudentID: ana.ID, Date: date}, nil))
	}

	t.Run("usage", func(t *testing.T) {
		var rep afterschool.UsageReport
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/afterschool/usage?month=2023-11", adminToken, nil, &rep))
		assert.Equal(t, "Afterschool Usage - Nov 2023", rep.Title)
		require.Len(t, rep.Days, 22)
		require.Len(t, rep.Rows, 1)
		row := rep.Rows[0]
		assert.Equal(t, "Mo", row.Package)
		assert.Equal(t, "X", row.Usage[3], "Monday the 6th")
		assert.True(t, row.Covered[3])
		assert.True(t, row.Moved[7], "Saturday the 11th is shown on Friday the 10th")
		assert.Equal(t, 2.0, row.Total)
		assert.Equal(t, 1.0, row.Extra)
	})

	t.Run("beforeschool", func(t *testing.T) {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/afterschool/beforeschool", teacherToken,
			map[string]interface{}{"student_id": ana.ID, "date": "2023-11-07"}, nil))

		var days []afterschool.BeforeschoolAttendance
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/afterschool/beforeschool?from=2023-11-01&to=2023-11-30", teacherToken, nil, &days))
		require.Len(t, days, 1)
		assert.Equal(t, ana.ID, days[0].StudentID)
		assert.Equal(t, year.ID, days[0].SchoolYearID)
	})
}
