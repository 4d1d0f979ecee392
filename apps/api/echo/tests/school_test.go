package tests

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
	testutil "github.com/trezcool/indysis/tests"
)

func Test_schoolApi_students(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@school.ca", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@school.ca", "", []string{user.RoleFaculty}, true)
	adminToken := env.getToken(t, admin)
	teacherToken := env.getToken(t, teacher)

	g5 := testutil.CreateGrade(t, env.schRepo, 5, "Grade 5", "G5")
	g6 := testutil.CreateGrade(t, env.schRepo, 6, "Grade 6", "G6")
	ana := testutil.CreateStudent(t, env.schRepo, "Ana", "Lopez", g5.ID, true)
	ben := testutil.CreateStudent(t, env.schRepo, "Ben", "Okafor", g6.ID, true)
	gone := testutil.CreateStudent(t, env.schRepo, "Cleo", "Gone", g6.ID, false)

	runTests(t, env, []httpTest{
		{name: "auth required", path: "/v1/school/students", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "all", path: "/v1/school/students", token: teacherToken, wantData: marchallList(t, ana, ben, gone)},
		{name: "by grade", path: "/v1/school/students?year_id=6&is_active=true", token: teacherToken, wantData: marchallList(t, ben)},
		{name: "search", path: "/v1/school/students?search=lop", token: teacherToken, wantData: marchallList(t, ana)},
		{name: "retrieve", path: "/v1/school/students/" + strconv.FormatInt(ana.ID, 10), token: teacherToken, wantData: marchallObj(t, ana)},
		{
			name: "unknown", path: "/v1/school/students/999", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "student not found"}),
		},
		{
			name: "bad id", path: "/v1/school/students/lol", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "create needs admin", method: http.MethodPost, path: "/v1/school/students", token: teacherToken,
			body:     marchallObj(t, school.NewStudent{FirstName: "Dan", LastName: "New"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "create required fields", method: http.MethodPost, path: "/v1/school/students", token: adminToken,
			body:     marchallObj(t, school.NewStudent{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"first_name": "this field is required", "last_name": "this field is required"}),
		},
	})

	t.Run("create", func(t *testing.T) {
		var st school.Student
		code := env.do(t, http.MethodPost, "/v1/school/students", adminToken, school.NewStudent{
			FirstName: " Dan ", LastName: "New", GradeLevelID: &g5.ID,
		}, &st)
		require.Equal(t, http.StatusCreated, code)
		assert.NotZero(t, st.ID)
		assert.Equal(t, "Dan", st.FirstName)
		assert.True(t, st.IsActive)
	})
}

func Test_schoolApi_years(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@school.ca", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@school.ca", "", []string{user.RoleFaculty}, true)
	adminToken := env.getToken(t, admin)
	teacherToken := env.getToken(t, teacher)

	runTests(t, env, []httpTest{
		{
			name: "no current year", path: "/v1/school/years/current", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "no active school year"}),
		},
	})

	old := testutil.CreateSchoolYear(t, env.schRepo, "2019-2020", testutil.Date(2019, time.September, 1), testutil.Date(2020, time.June, 30), false)
	cur := testutil.CreateSchoolYear(t, env.schRepo, "2020-2021", testutil.Date(2020, time.September, 1), testutil.Date(2021, time.June, 30), true)
	fall := testutil.CreateTerm(t, env.schRepo, cur, "Fall", testutil.Date(2020, time.September, 1), testutil.Date(2020, time.December, 20))

	runTests(t, env, []httpTest{
		{name: "current year", path: "/v1/school/years/current", token: teacherToken, wantData: marchallObj(t, cur)},
		{name: "years", path: "/v1/school/years", token: teacherToken, wantData: marchallList(t, old, cur)},
		{name: "terms", path: "/v1/school/years/" + strconv.FormatInt(cur.ID, 10) + "/terms", token: teacherToken, wantData: marchallList(t, fall)},
		{name: "term", path: "/v1/school/terms/" + strconv.FormatInt(fall.ID, 10), token: teacherToken, wantData: marchallObj(t, fall)},
		{
			name: "activate needs admin", method: http.MethodPut, path: "/v1/school/years/" + strconv.FormatInt(old.ID, 10) + "/activate",
			token: teacherToken, wantCode: http.StatusForbidden,
		},
	})

	t.Run("activate", func(t *testing.T) {
		var year school.SchoolYear
		code := env.do(t, http.MethodPut, "/v1/school/years/"+strconv.FormatInt(old.ID, 10)+"/activate", adminToken, nil, &year)
		require.Equal(t, http.StatusOK, code)
		assert.True(t, year.Active)

		code = env.do(t, http.MethodGet, "/v1/school/years/current", teacherToken, nil, &year)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, old.ID, year.ID)
	})
}
