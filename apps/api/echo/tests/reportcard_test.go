package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/indysis/apps/api/echo"
	"github.com/trezcool/indysis/core/reportcard"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
	testutil "github.com/trezcool/indysis/tests"
)

type rcFixture struct {
	*testEnv
	term       reportcard.Term
	mathID     int64
	ana        school.Student
	math       school.Faculty
	adminToken string
	mathToken  string
	otherToken string
}

func setupReportCards(t *testing.T) *rcFixture {
	env := setup(t)
	ctx := context.Background()
	f := &rcFixture{testEnv: env}

	admin := testutil.CreateUser(t, env.usrRepo, "Ada Admin", "admin", "admin@school.ca", "", []string{user.RoleAdminReportCard}, true)
	mathUsr := testutil.CreateUser(t, env.usrRepo, "Mark Math", "mmath", "mmath@school.ca", "", []string{user.RoleFaculty}, true)
	other := testutil.CreateUser(t, env.usrRepo, "Sub Teacher", "sub", "sub@school.ca", "", []string{user.RoleFaculty}, true)
	f.adminToken = env.getToken(t, admin)
	f.mathToken = env.getToken(t, mathUsr)
	f.otherToken = env.getToken(t, other)

	year := testutil.CreateSchoolYear(t, env.schRepo, "2023-2024", testutil.Date(2023, 9, 1), testutil.Date(2024, 6, 30), true)
	period := testutil.CreateTerm(t, env.schRepo, year, "T1", testutil.Date(2023, 9, 1), testutil.Date(2023, 12, 22))
	testutil.CreateGrade(t, env.schRepo, 1, "Grade 1", "G1")
	f.ana = testutil.CreateStudent(t, env.schRepo, "Ana", "Adams", 1, true)
	f.math = testutil.CreateFaculty(t, env.schRepo, "Mark", "Math", "mmath@school.ca", &mathUsr)
	home := testutil.CreateFaculty(t, env.schRepo, "Hannah", "Home", "hhome@school.ca", nil)
	class := testutil.CreateClass(t, env.schRepo, "1A", year, []school.Term{period}, []school.Student{f.ana}, home, f.math)

	percent, err := env.rcSvc.CreateGradingScheme(ctx, reportcard.GradingScheme{Name: "Percent", Percentile: true})
	require.NoError(t, err)
	tpl, err := env.rcSvc.CreateTemplate(ctx, reportcard.Template{
		Name:          "Primary",
		IsActive:      true,
		GradeLevelIDs: []int{1},
		Sections: []reportcard.Section{
			{
				Name:            "Academics",
				GradingSchemeID: percent.ID,
				Subjects: []reportcard.Subject{
					{NameEN: "Math", NameFR: "Mathématiques", Graded: true},
					{NameEN: "English", NameFR: "English", Graded: true},
				},
			},
		},
	})
	require.NoError(t, err)
	f.mathID = tpl.Sections[0].Subjects[0].ID

	_, err = env.rcSvc.CreateAccessRule(ctx, reportcard.AccessRule{
		Description: "Math 1",
		ClassIDs:    []int64{class.ID},
		FacultyIDs:  []int64{f.math.ID},
		SubjectIDs:  []int64{f.mathID},
	})
	require.NoError(t, err)

	f.term, err = env.rcSvc.CreateTerm(ctx, reportcard.Term{
		SchoolYearID:    year.ID,
		MarkingPeriodID: period.ID,
		Number:          1,
		Name:            "Term 1",
		TemplateIDs:     []int64{tpl.ID},
	})
	require.NoError(t, err)
	f.term, err = env.rcSvc.SetTermOpen(ctx, f.term.ID, true)
	require.NoError(t, err)
	return f
}

func (f *rcFixture) studentPath(suffix string) string {
	return fmt.Sprintf("/v1/reportcards/terms/%d/students/%d%s", f.term.ID, f.ana.ID, suffix)
}

func mathEntry(t *testing.T, sc reportcard.StudentCard, subjectID int64) reportcard.Entry {
	t.Helper()
	for _, e := range sc.Entries {
		if e.SubjectID != nil && *e.SubjectID == subjectID && e.StrandID == nil {
			return e
		}
	}
	t.Fatalf("no entry for subject %d", subjectID)
	return reportcard.Entry{}
}

func Test_reportCardApi_viewStudent(t *testing.T) {
	f := setupReportCards(t)

	runTests(t, f.testEnv, []httpTest{
		{name: "auth required", path: f.studentPath(""), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "no faculty record", path: f.studentPath(""), token: f.otherToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown term", path: fmt.Sprintf("/v1/reportcards/terms/999/students/%d", f.ana.ID), token: f.mathToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "report card term not found"}),
		},
		{
			name: "unknown teacher", path: f.studentPath("?teacher_id=999"), token: f.adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "faculty not found"}),
		},
		{
			name: "bad teacher id", path: f.studentPath("?teacher_id=lol"), token: f.adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"teacher_id": "enter a whole number"}),
		},
	})

	t.Run("teacher", func(t *testing.T) {
		var sc reportcard.StudentCard
		code := f.do(t, http.MethodGet, f.studentPath(""), f.mathToken, nil, &sc)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, f.ana.ID, sc.Student.ID)
		assert.True(t, sc.Editable)
		assert.True(t, sc.Access.Subjects[f.mathID])
		assert.Equal(t, 1, sc.Access.NumEditable)
	})

	t.Run("admin acting as teacher", func(t *testing.T) {
		var sc reportcard.StudentCard
		code := f.do(t, http.MethodGet, f.studentPath(fmt.Sprintf("?teacher_id=%d", f.math.ID)), f.adminToken, nil, &sc)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, 1, sc.Access.NumEditable)

		code = f.do(t, http.MethodGet, f.studentPath(""), f.adminToken, nil, &sc)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, 2, sc.Access.NumEditable, "unrestricted")
	})
}

func Test_reportCardApi_editStudent(t *testing.T) {
	f := setupReportCards(t)

	var sc reportcard.StudentCard
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, f.studentPath(""), f.mathToken, nil, &sc))
	entry := mathEntry(t, sc, f.mathID)

	var locks echoapi.LocksResponse
	code := f.do(t, http.MethodPost, f.studentPath("/locks"), f.mathToken, nil, &locks)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, locks.Conflicts)

	t.Run("admin sees the teacher's lock", func(t *testing.T) {
		code := f.do(t, http.MethodPost, f.studentPath("/locks?check_only=true"), f.adminToken, nil, &locks)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, locks.Conflicts, 1)
		assert.Contains(t, locks.Conflicts[0], "Mark Math is editing student Adams, Ana - Math / Mathématiques")
	})

	t.Run("conflicting edit", func(t *testing.T) {
		var resp struct {
			Error     string   `json:"error"`
			Conflicts []string `json:"conflicts"`
		}
		code := f.do(t, http.MethodPut, f.studentPath(""), f.adminToken, echoapi.EditRequest{}, &resp)
		require.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "conflicting edits", resp.Error)
		assert.Len(t, resp.Conflicts, 1)
	})

	t.Run("teacher saves", func(t *testing.T) {
		pct := 85
		var res reportcard.EditResult
		code := f.do(t, http.MethodPut, f.studentPath(""), f.mathToken, echoapi.EditRequest{
			Entries: []reportcard.EntryInput{{ID: entry.ID, Percentile: &pct}},
			Release: true,
		}, &res)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, res.Entries, 1)
		require.NotNil(t, res.Entries[0].Percentile)
		assert.Equal(t, 85, *res.Entries[0].Percentile)
		assert.True(t, res.Entries[0].Completed)
		assert.Equal(t, []int64{f.ana.ID}, res.Completed)
	})

	t.Run("released on save", func(t *testing.T) {
		code := f.do(t, http.MethodPost, f.studentPath("/locks?check_only=true"), f.adminToken, nil, &locks)
		require.Equal(t, http.StatusOK, code)
		assert.Empty(t, locks.Conflicts)

		var done echoapi.CompletedResponse
		code = f.do(t, http.MethodGet, f.studentPath("/completed"), f.mathToken, nil, &done)
		require.Equal(t, http.StatusOK, code)
		assert.True(t, done.Completed)
	})
}

func Test_reportCardApi_setup(t *testing.T) {
	f := setupReportCards(t)

	runTests(t, f.testEnv, []httpTest{
		{
			name: "schemes need admin", path: "/v1/reportcards/schemes", token: f.mathToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown template", path: "/v1/reportcards/templates/999", token: f.adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "report card template not found"}),
		},
		{
			name: "close term needs admin", method: http.MethodPut, path: fmt.Sprintf("/v1/reportcards/terms/%d/open", f.term.ID),
			token: f.mathToken, body: []byte(`{"is_open":false}`), wantCode: http.StatusForbidden,
		},
	})

	t.Run("create report cards", func(t *testing.T) {
		var resp struct {
			Count int `json:"count"`
		}
		path := fmt.Sprintf("/v1/reportcards/terms/%d/reportcards", f.term.ID)
		code := f.do(t, http.MethodPost, path, f.adminToken, nil, &resp)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, 0, resp.Count, "created when the term opened")

		testutil.CreateStudent(t, f.schRepo, "Bea", "Brown", 1, true)
		code = f.do(t, http.MethodPost, path, f.adminToken, nil, &resp)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, 1, resp.Count)
	})

	t.Run("closed term", func(t *testing.T) {
		var term reportcard.Term
		code := f.do(t, http.MethodPut, fmt.Sprintf("/v1/reportcards/terms/%d/open", f.term.ID), f.adminToken, map[string]bool{"is_open": false}, &term)
		require.Equal(t, http.StatusOK, code)
		assert.False(t, term.IsOpen)

		var sc reportcard.StudentCard
		code = f.do(t, http.MethodGet, f.studentPath(""), f.mathToken, nil, &sc)
		require.Equal(t, http.StatusOK, code)
		assert.False(t, sc.Editable)
	})
}
