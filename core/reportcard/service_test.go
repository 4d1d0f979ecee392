package reportcard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/attendance"
	"github.com/trezcool/indysis/core/reportcard"
	"github.com/trezcool/indysis/core/school"
	emailsvc "github.com/trezcool/indysis/services/email"
	logsvc "github.com/trezcool/indysis/services/logger"
	inmemdb "github.com/trezcool/indysis/storage/database/inmem"
	testutil "github.com/trezcool/indysis/tests"
)

type fixture struct {
	svc     *reportcard.Service
	repo    reportcard.Repository
	schRepo school.Repository
	attSvc  *attendance.Service
	now     time.Time

	year   school.SchoolYear
	period school.Term

	percent reportcard.GradingScheme
	letters reportcard.GradingScheme
	tpl     reportcard.Template
	term    reportcard.Term

	academicsID, mathID, numberID, geometryID, englishID, skillsID, respID int64

	ana, ben, cid, dan, eve school.Student
	home, math              school.Faculty
	class1A, class2A        school.StudentClass

	homeActor, mathActor, admin reportcard.Actor
}

func setup(t *testing.T) *fixture {
	conf := testutil.NewConfig(t)
	db := testutil.OpenMemDB(t)
	ctx := context.Background()

	f := &fixture{now: time.Date(2023, 11, 20, 15, 0, 0, 0, time.UTC)}
	f.schRepo = inmemdb.NewSchoolRepository(db)
	f.repo = inmemdb.NewReportCardRepository(db)
	schoolSvc := school.NewService(nil, f.schRepo)
	f.attSvc = attendance.NewService(nil, inmemdb.NewAttendanceRepository(db), schoolSvc)
	f.svc = reportcard.NewServiceMock(
		conf,
		f.repo,
		inmemdb.NewLockStore(db),
		schoolSvc,
		f.attSvc,
		emailsvc.NewConsoleServiceMock(conf),
		logsvc.NewDiscardLogger(),
		func() time.Time { return f.now },
	)
	emailsvc.ResetSentMessages()

	f.year = testutil.CreateSchoolYear(t, f.schRepo, "2023-2024", testutil.Date(2023, 9, 1), testutil.Date(2024, 6, 30), true)
	f.period = testutil.CreateTerm(t, f.schRepo, f.year, "T1", testutil.Date(2023, 9, 1), testutil.Date(2023, 12, 22))
	testutil.CreateGrade(t, f.schRepo, 1, "Grade 1", "G1")
	testutil.CreateGrade(t, f.schRepo, 2, "Grade 2", "G2")

	f.ana = testutil.CreateStudent(t, f.schRepo, "Ana", "Adams", 1, true)
	f.ben = testutil.CreateStudent(t, f.schRepo, "Ben", "Brown", 1, true)
	f.cid = testutil.CreateStudent(t, f.schRepo, "Cid", "Clark", 2, true)
	f.dan = testutil.CreateStudent(t, f.schRepo, "Dan", "Dunn", 1, false)
	f.eve = testutil.CreateStudent(t, f.schRepo, "Eve", "Evans", 0, true)

	f.home = testutil.CreateFaculty(t, f.schRepo, "Hannah", "Home", "hhome@school.ca", nil)
	f.math = testutil.CreateFaculty(t, f.schRepo, "Mark", "Math", "mmath@school.ca", nil)
	f.class1A = testutil.CreateClass(t, f.schRepo, "1A", f.year, []school.Term{f.period}, []school.Student{f.ana, f.ben, f.dan}, f.home, f.math)
	f.class2A = testutil.CreateClass(t, f.schRepo, "2A", f.year, []school.Term{f.period}, []school.Student{f.cid}, f.home)

	var err error
	minValue := 50
	f.percent, err = f.svc.CreateGradingScheme(ctx, reportcard.GradingScheme{
		Name:       "Percent",
		Percentile: true,
		MinValue:   &minValue,
		Levels: []reportcard.Level{
			{Range: "0-49", Description: "Incomplete", Choices: []reportcard.Choice{{Code: "INC", Name: "Incomplete"}}},
		},
	})
	require.NoError(t, err)
	f.letters, err = f.svc.CreateGradingScheme(ctx, reportcard.GradingScheme{
		Name: "Letters",
		Levels: []reportcard.Level{
			{Range: "A-C", Choices: []reportcard.Choice{{Code: "A", Name: "Excellent"}, {Code: "B"}, {Code: "C"}}},
		},
	})
	require.NoError(t, err)

	f.tpl, err = f.svc.CreateTemplate(ctx, reportcard.Template{
		Name:          "Primary",
		IsActive:      true,
		GradeLevelIDs: []int{1, 2},
		Sections: []reportcard.Section{
			{
				Name:            "Academics",
				GradingSchemeID: f.percent.ID,
				Subjects: []reportcard.Subject{
					{
						NameEN:       "Math",
						NameFR:       "Mathématiques",
						Graded:       true,
						CommentsArea: true,
						Strands: []reportcard.Strand{
							{TextEN: "Number sense", Graded: true},
							{TextEN: "Geometry", Graded: true},
						},
					},
					{NameEN: "English", NameFR: "English", Graded: true},
				},
			},
			{
				Name:            "Learning Skills",
				GradingSchemeID: f.letters.ID,
				CommentsArea:    true,
				Subjects: []reportcard.Subject{
					{NameEN: "Responsibility", NameFR: "Responsabilité", Graded: true},
				},
			},
		},
	})
	require.NoError(t, err)
	f.academicsID = f.tpl.Sections[0].ID
	f.mathID = f.tpl.Sections[0].Subjects[0].ID
	f.numberID = f.tpl.Sections[0].Subjects[0].Strands[0].ID
	f.geometryID = f.tpl.Sections[0].Subjects[0].Strands[1].ID
	f.englishID = f.tpl.Sections[0].Subjects[1].ID
	f.skillsID = f.tpl.Sections[1].ID
	f.respID = f.tpl.Sections[1].Subjects[0].ID

	_, err = f.svc.CreateAccessRule(ctx, reportcard.AccessRule{
		Description: "Homeroom",
		ClassIDs:    []int64{f.class1A.ID, f.class2A.ID},
		FacultyIDs:  []int64{f.home.ID},
		SubjectIDs:  []int64{f.englishID},
		SectionIDs:  []int64{f.skillsID},
	})
	require.NoError(t, err)
	_, err = f.svc.CreateAccessRule(ctx, reportcard.AccessRule{
		Description: "Math 1",
		ClassIDs:    []int64{f.class1A.ID},
		FacultyIDs:  []int64{f.math.ID},
		SubjectIDs:  []int64{f.mathID},
	})
	require.NoError(t, err)

	f.term, err = f.svc.CreateTerm(ctx, reportcard.Term{
		SchoolYearID:    f.year.ID,
		MarkingPeriodID: f.period.ID,
		Number:          1,
		Name:            "Term 1",
		TemplateIDs:     []int64{f.tpl.ID},
	})
	require.NoError(t, err)
	f.term, err = f.svc.SetTermOpen(ctx, f.term.ID, true)
	require.NoError(t, err)

	f.homeActor = reportcard.Actor{Editor: reportcard.Editor{UserID: "u-home", Name: "Hannah Home"}, Teacher: &f.home}
	f.mathActor = reportcard.Actor{Editor: reportcard.Editor{UserID: "u-math", Name: "Mark Math"}, Teacher: &f.math}
	f.admin = reportcard.Actor{Editor: reportcard.Editor{UserID: "u-admin", Name: "Ada Admin"}}
	return f
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func (f *fixture) key(ids ...int64) reportcard.ElementKey {
	k := reportcard.ElementKey{SectionID: ids[0]}
	if len(ids) > 1 {
		k.SubjectID = ids[1]
	}
	if len(ids) > 2 {
		k.StrandID = ids[2]
	}
	return k
}

func (f *fixture) card(t *testing.T, actor reportcard.Actor, st school.Student) reportcard.StudentCard {
	t.Helper()
	sc, err := f.svc.ViewStudent(context.Background(), actor, st.ID, f.term.ID)
	require.NoError(t, err)
	return sc
}

func entryID(t *testing.T, card reportcard.Card, k reportcard.ElementKey) int64 {
	t.Helper()
	e, ok := card.Entry(k)
	require.True(t, ok, "no entry for %+v", k)
	return e.ID
}

func (f *fixture) incomplete() *int64 {
	id := f.percent.Levels[0].Choices[0].ID
	return &id
}

// fillMath completes the math subject of the student's report card as the math teacher.
func (f *fixture) fillMath(t *testing.T, st school.Student) reportcard.EditResult {
	t.Helper()
	sc := f.card(t, f.mathActor, st)
	res, err := f.svc.EditStudent(context.Background(), f.mathActor, st.ID, f.term.ID, []reportcard.EntryInput{
		{ID: entryID(t, sc.Card, f.key(f.academicsID, f.mathID)), Percentile: intPtr(85), Comment: strPtr(" Great work ")},
		{ID: entryID(t, sc.Card, f.key(f.academicsID, f.mathID, f.numberID)), Percentile: intPtr(70)},
		{ID: entryID(t, sc.Card, f.key(f.academicsID, f.mathID, f.geometryID)), ChoiceID: f.incomplete()},
	}, true)
	require.NoError(t, err)
	return res
}

func studentNames(students []school.Student) []string {
	names := make([]string, 0, len(students))
	for _, st := range students {
		names = append(names, st.FullName())
	}
	return names
}

func facultyNames(faculty []school.Faculty) []string {
	names := make([]string, 0, len(faculty))
	for _, f := range faculty {
		names = append(names, f.FullNameNoComma())
	}
	return names
}

func TestCreateGradingScheme(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		scheme    reportcard.GradingScheme
		wantField string
	}{
		{name: "no name", scheme: reportcard.GradingScheme{Name: " "}, wantField: "name"},
		{name: "min value too high", scheme: reportcard.GradingScheme{Name: "Pct", MinValue: intPtr(150)}, wantField: "min_value"},
		{
			name: "blank choice",
			scheme: reportcard.GradingScheme{
				Name:   "Blank",
				Levels: []reportcard.Level{{Choices: []reportcard.Choice{{Code: "  "}}}},
			},
			wantField: "levels.choices.choice",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateGradingScheme(ctx, tt.scheme)
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}

	cp, err := f.svc.CopyGradingScheme(ctx, f.letters.ID)
	require.NoError(t, err)
	assert.NotEqual(t, f.letters.ID, cp.ID)
	assert.Equal(t, "Letters (copy)", cp.Name)
	require.Len(t, cp.Levels, 1)
	require.Len(t, cp.Levels[0].Choices, 3)
	assert.Equal(t, "A", cp.Levels[0].Choices[0].Code)
	assert.NotEqual(t, f.letters.Levels[0].Choices[0].ID, cp.Levels[0].Choices[0].ID)

	_, err = f.svc.CopyGradingScheme(ctx, 9999)
	assert.True(t, core.IsNotFound(err))
}

func TestCreateTemplate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	missing := int64(9999)

	_, err := f.svc.CreateTemplate(ctx, reportcard.Template{Name: ""})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Fields[0].Field)

	_, err = f.svc.CreateTemplate(ctx, reportcard.Template{
		Name:     "Broken",
		Sections: []reportcard.Section{{Name: "S", GradingSchemeID: missing}},
	})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "sections.gradingscheme_id", vErr.Fields[0].Field)

	_, err = f.svc.CreateTemplate(ctx, reportcard.Template{
		Name:     "Broken",
		Sections: []reportcard.Section{{Name: "S", GradingSchemeID: f.percent.ID, SecondGradingSchemeID: &missing}},
	})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "sections.second_gradingscheme_id", vErr.Fields[0].Field)

	tpl, err := f.svc.CreateTemplate(ctx, reportcard.Template{
		Name: " French ",
		Sections: []reportcard.Section{{
			Name:            "Français",
			GradingSchemeID: f.letters.ID,
			Subjects: []reportcard.Subject{
				{NameEN: "Reading", NameFR: "Lecture", Language: "FR", Strands: []reportcard.Strand{{TextFR: "Compréhension", Language: "Fr"}}},
				{NameEN: "Art", Language: "de"},
			},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "French", tpl.Name)
	assert.Equal(t, reportcard.LangFR, tpl.Sections[0].Subjects[0].Language)
	assert.Equal(t, reportcard.LangFR, tpl.Sections[0].Subjects[0].Strands[0].Language)
	assert.Equal(t, reportcard.LangEN, tpl.Sections[0].Subjects[1].Language)
	assert.Equal(t, "Lecture", tpl.Sections[0].Subjects[0].Name())

	schemes, err := f.svc.TemplateGradingSchemes(ctx, f.tpl.ID)
	require.NoError(t, err)
	if assert.Len(t, schemes, 2) {
		assert.Equal(t, f.percent.ID, schemes[0].ID)
		assert.Equal(t, f.letters.ID, schemes[1].ID)
	}

	cp, err := f.svc.CopyTemplate(ctx, f.tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Primary (copy)", cp.Name)
	assert.Equal(t, []int{1, 2}, cp.GradeLevelIDs)
	require.Len(t, cp.Sections, 2)
	assert.NotEqual(t, f.academicsID, cp.Sections[0].ID)
	assert.Equal(t, "Number sense", cp.Sections[0].Subjects[0].Strands[0].TextEN)
	assert.Equal(t, cp.Sections[0].Subjects[0].ID, cp.Sections[0].Subjects[0].Strands[0].SubjectID)
}

func TestTerms(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	valid := func() reportcard.Term {
		return reportcard.Term{
			SchoolYearID:    f.year.ID,
			MarkingPeriodID: f.period.ID,
			Number:          2,
			Name:            "Term 2",
			TemplateIDs:     []int64{f.tpl.ID},
		}
	}
	tests := []struct {
		name      string
		change    func(*reportcard.Term)
		wantField string
	}{
		{name: "no name", change: func(t *reportcard.Term) { t.Name = "  " }, wantField: "name"},
		{name: "unknown year", change: func(t *reportcard.Term) { t.SchoolYearID = 9999 }, wantField: "school_year_id"},
		{name: "unknown marking period", change: func(t *reportcard.Term) { t.MarkingPeriodID = 9999 }, wantField: "term_id"},
		{name: "unknown template", change: func(t *reportcard.Term) { t.TemplateIDs = []int64{f.tpl.ID, 9999} }, wantField: "template_ids"},
		{name: "broken email template", change: func(t *reportcard.Term) { t.EmailSubject = "{{.Term.Name" }, wantField: "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term := valid()
			tt.change(&term)
			_, err := f.svc.CreateTerm(ctx, term)
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}

	term2, err := f.svc.CreateTerm(ctx, valid())
	require.NoError(t, err)
	assert.False(t, term2.IsOpen)
	assert.Equal(t, "Closed", term2.Status())
	assert.Contains(t, term2.EmailSubject, "{{.Term.Name}}")
	assert.NotEmpty(t, term2.EmailBody)

	// opening & closing is not an update
	term2.Name = "Second Term"
	term2.IsOpen = true
	term2, err = f.svc.UpdateTerm(ctx, term2)
	require.NoError(t, err)
	assert.Equal(t, "Second Term", term2.Name)
	assert.False(t, term2.IsOpen)

	cp, err := f.svc.CopyTerm(ctx, f.term.ID)
	require.NoError(t, err)
	assert.Equal(t, "Term 1 (copy)", cp.Name)
	assert.False(t, cp.IsOpen)
	assert.Equal(t, f.term.TemplateIDs, cp.TemplateIDs)

	terms, err := f.svc.QueryTerms(ctx, f.year.ID)
	require.NoError(t, err)
	var names []string
	for _, term := range terms {
		names = append(names, term.Name)
	}
	assert.Equal(t, []string{"Term 1", "Term 1 (copy)", "Second Term"}, names)
}

func TestTemplateForGrade(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tpl, err := f.svc.TemplateForGrade(ctx, f.term, 1)
	require.NoError(t, err)
	assert.Equal(t, f.tpl.ID, tpl.ID)

	_, err = f.svc.TemplateForGrade(ctx, f.term, 3)
	assert.Equal(t, reportcard.ErrNoTemplate, err)
	_, err = f.svc.TemplateForGrade(ctx, reportcard.Term{}, 1)
	assert.Equal(t, reportcard.ErrNoTemplate, err)

	other, err := f.svc.CreateTemplate(ctx, reportcard.Template{Name: "Grade 1 only", GradeLevelIDs: []int{1}})
	require.NoError(t, err)
	interim, err := f.svc.CreateTemplate(ctx, reportcard.Template{Name: "Progress", GradeLevelIDs: []int{2}, Interim: true})
	require.NoError(t, err)

	term := f.term
	term.TemplateIDs = []int64{f.tpl.ID, other.ID, interim.ID}
	_, err = f.svc.TemplateForGrade(ctx, term, 1)
	assert.Equal(t, reportcard.ErrMultipleTemplates, err)

	tpl, err = f.svc.TemplateForGrade(ctx, term, 2)
	require.NoError(t, err)
	assert.Equal(t, f.tpl.ID, tpl.ID, "interim templates only serve interim terms")

	term.Interim = true
	tpl, err = f.svc.TemplateForGrade(ctx, term, 2)
	require.NoError(t, err)
	assert.Equal(t, interim.ID, tpl.ID)
}

func TestCreateReportCards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// opening the term created the cards of the active students with a grade
	rcs, err := f.repo.QueryReportCards(ctx, reportcard.ReportCardFilter{TermIDs: []int64{f.term.ID}})
	require.NoError(t, err)
	var studentIDs []int64
	for _, rc := range rcs {
		studentIDs = append(studentIDs, rc.StudentID)
		assert.Equal(t, f.tpl.ID, rc.TemplateID)
		entries, err := f.repo.QueryEntries(ctx, reportcard.EntryFilter{ReportCardIDs: []int64{rc.ID}})
		require.NoError(t, err)
		assert.Len(t, entries, 7)
	}
	assert.ElementsMatch(t, []int64{f.ana.ID, f.ben.ID, f.cid.ID}, studentIDs)

	fay := testutil.CreateStudent(t, f.schRepo, "Fay", "Fox", 2, true)
	gus := testutil.CreateStudent(t, f.schRepo, "Gus", "Gray", 3, true)

	created, err := f.svc.CreateReportCards(ctx, f.term.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, created, "only Fay is new, Gus has no template")

	created, err = f.svc.CreateReportCards(ctx, f.term.ID)
	require.NoError(t, err)
	assert.Zero(t, created)

	card, err := f.svc.GetOrCreate(ctx, fay.ID, f.term.ID)
	require.NoError(t, err)
	assert.Len(t, card.Entries, 7)
	assert.Equal(t, f.academicsID, card.Entries[0].SectionID, "entries follow the template order")

	_, err = f.svc.GetOrCreate(ctx, gus.ID, f.term.ID)
	assert.Equal(t, reportcard.ErrNoTemplate, err)
	_, err = f.svc.GetOrCreate(ctx, f.eve.ID, f.term.ID)
	assert.Equal(t, reportcard.ErrNoGrade, err)
	_, err = f.svc.GetOrCreate(ctx, f.ana.ID, 9999)
	assert.True(t, core.IsNotFound(err))

	dups, err := f.svc.CheckDuplicates(ctx, f.term.ID)
	require.NoError(t, err)
	assert.Empty(t, dups)

	_, err = f.svc.CreateReportCards(ctx, 9999)
	assert.True(t, core.IsNotFound(err))
}

func TestViewStudent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	absent, err := f.attSvc.CreateStatus(ctx, attendance.Status{Name: "Absent", Code: "A", Absent: true})
	require.NoError(t, err)
	tardy, err := f.attSvc.CreateStatus(ctx, attendance.Status{Name: "Tardy", Code: "T", Tardy: true})
	require.NoError(t, err)
	for _, rec := range []attendance.Record{
		{StudentID: f.ana.ID, StatusID: absent.ID, Date: testutil.Date(2023, 10, 10)},
		{StudentID: f.ana.ID, StatusID: tardy.ID, Date: testutil.Date(2023, 10, 11)},
		{StudentID: f.ana.ID, StatusID: absent.ID, Date: testutil.Date(2024, 2, 5)},
	} {
		_, err = f.attSvc.Record(ctx, rec)
		require.NoError(t, err)
	}

	tests := []struct {
		name         string
		actor        reportcard.Actor
		wantSections map[int64]bool
		wantSubjects map[int64]bool
		wantIDs      int
		wantNum      int
	}{
		{
			name:         "math teacher",
			actor:        f.mathActor,
			wantSections: map[int64]bool{f.academicsID: true, f.skillsID: false},
			wantSubjects: map[int64]bool{f.mathID: true, f.englishID: false},
			wantIDs:      4,
			wantNum:      3,
		},
		{
			name:         "homeroom teacher",
			actor:        f.homeActor,
			wantSections: map[int64]bool{f.academicsID: true, f.skillsID: true},
			wantSubjects: map[int64]bool{f.mathID: false, f.englishID: true, f.respID: true},
			wantIDs:      4,
			wantNum:      3,
		},
		{
			name:         "admin",
			actor:        f.admin,
			wantSections: map[int64]bool{f.academicsID: true, f.skillsID: true},
			wantSubjects: map[int64]bool{f.mathID: true, f.englishID: true, f.respID: true},
			wantIDs:      7,
			wantNum:      6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := f.card(t, tt.actor, f.ana)
			assert.Len(t, sc.Entries, 7)
			assert.True(t, sc.Editable)
			assert.False(t, sc.Completed)
			assert.Equal(t, tt.wantSections, sc.Access.Sections)
			assert.Equal(t, tt.wantSubjects, sc.Access.Subjects)
			assert.Len(t, sc.Access.EditableIDs, tt.wantIDs)
			assert.Equal(t, tt.wantNum, sc.Access.NumEditable)
		})
	}

	sc := f.card(t, f.mathActor, f.ana)
	assert.Empty(t, sc.PastTerms)
	if assert.Len(t, sc.Schemes, 2) {
		assert.Equal(t, f.percent.ID, sc.Schemes[0].ID)
	}
	assert.Equal(t, []int64{f.mathID}, sc.Access.EditableSubjectIDs())

	sum := sc.Summary
	assert.Equal(t, "2023-2024", sum.Year)
	assert.Equal(t, 1, sum.TermNo)
	assert.Equal(t, "Ana Adams", sum.StudentName)
	assert.Equal(t, "1.0", sum.TermAbsences)
	assert.Equal(t, "2.0", sum.YearAbsences)
	assert.Equal(t, "1", sum.TermLates)
	assert.Equal(t, "1", sum.YearLates)
	assert.Equal(t, "Grade 1", sum.GradeEN)
	assert.Equal(t, "G1", sum.GradeCodeEN)
	assert.Equal(t, "Hannah Home", sum.HomeRoomTeacher)
	assert.Equal(t, "DRAFT / PRÉLIMINAIRE", sum.Draft)
	assert.Equal(t, "Grade 1 - Adams, Ana (Draft).pdf", sum.Filename)

	sum2, err := f.svc.Summary(ctx, sc.ReportCard.ID)
	require.NoError(t, err)
	assert.Equal(t, sum, sum2)

	_, err = f.svc.ViewStudent(ctx, f.mathActor, 9999, f.term.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestEditStudent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sc := f.card(t, f.mathActor, f.ana)
	mathEntry := entryID(t, sc.Card, f.key(f.academicsID, f.mathID))
	letterA := f.letters.Levels[0].Choices[0].ID

	tests := []struct {
		name      string
		input     reportcard.EntryInput
		wantErr   error
		wantField string
		wantMsg   string
	}{
		{
			name:      "below minimum",
			input:     reportcard.EntryInput{ID: mathEntry, Percentile: intPtr(40)},
			wantField: "entries[0].percentile",
			wantMsg:   "Minimum percentile is 50, select a choice instead",
		},
		{
			name:      "out of range",
			input:     reportcard.EntryInput{ID: mathEntry, Percentile: intPtr(120)},
			wantField: "entries[0].percentile",
			wantMsg:   "enter a value between 0 and 100",
		},
		{
			name:      "percentile with choice",
			input:     reportcard.EntryInput{ID: mathEntry, Percentile: intPtr(90), ChoiceID: f.incomplete()},
			wantField: "entries[0].percentile",
			wantMsg:   "Percentage cannot be combined with choice 'INC'",
		},
		{
			name:      "choice of another scheme",
			input:     reportcard.EntryInput{ID: mathEntry, ChoiceID: &letterA},
			wantField: "entries[0].choice_id",
			wantMsg:   "select a valid choice",
		},
		{
			name:      "no second scheme",
			input:     reportcard.EntryInput{ID: mathEntry, SecondChoiceID: f.incomplete()},
			wantField: "entries[0].second_choice_id",
			wantMsg:   "this section has no second mark",
		},
		{
			name:      "unknown entry",
			input:     reportcard.EntryInput{ID: 99999, Percentile: intPtr(90)},
			wantField: "entries[0].id",
			wantMsg:   "entry is not part of this edit",
		},
		{
			name:    "subject of another teacher",
			input:   reportcard.EntryInput{ID: entryID(t, sc.Card, f.key(f.academicsID, f.englishID)), Percentile: intPtr(90)},
			wantErr: core.ErrPermissionDenied,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.EditStudent(ctx, f.mathActor, f.ana.ID, f.term.ID, []reportcard.EntryInput{tt.input}, true)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
			assert.Equal(t, tt.wantMsg, vErr.Fields[0].Error)
		})
	}

	// partial edit
	benCard := f.card(t, f.mathActor, f.ben)
	res, err := f.svc.EditStudent(ctx, f.mathActor, f.ben.ID, f.term.ID, []reportcard.EntryInput{
		{ID: entryID(t, benCard.Card, f.key(f.academicsID, f.mathID)), Percentile: intPtr(77)},
	}, true)
	require.NoError(t, err)
	assert.Empty(t, res.Completed)
	if assert.Len(t, res.Entries, 1) {
		assert.False(t, res.Entries[0].Completed, "the math comment is missing")
	}

	res = f.fillMath(t, f.ana)
	assert.Equal(t, []int64{f.ana.ID}, res.Completed)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "Great work", *res.Entries[0].Comment)
	for _, e := range res.Entries {
		assert.True(t, e.Completed)
	}

	rcID := sc.ReportCard.ID
	done, err := f.svc.IsCompleted(ctx, rcID, &f.math)
	require.NoError(t, err)
	assert.True(t, done)
	done, err = f.svc.IsCompleted(ctx, rcID, &f.home)
	require.NoError(t, err)
	assert.False(t, done)
	done, err = f.svc.IsCompleted(ctx, rcID, nil)
	require.NoError(t, err)
	assert.True(t, done, "every submission is complete")

	_, err = f.svc.SetCompleted(ctx, rcID, &f.home, false)
	require.NoError(t, err)
	done, err = f.svc.IsCompleted(ctx, rcID, nil)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = f.svc.CalculateCompleted(ctx, f.ben.ID, f.term.ID, &f.math)
	require.NoError(t, err)
	assert.False(t, done)
	done, err = f.svc.CalculateCompleted(ctx, f.ana.ID, f.term.ID, &f.math)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = f.svc.SetCompleted(ctx, 9999, &f.math, true)
	assert.True(t, core.IsNotFound(err))

	_, err = f.svc.SetTermOpen(ctx, f.term.ID, false)
	require.NoError(t, err)
	_, err = f.svc.EditStudent(ctx, f.mathActor, f.ana.ID, f.term.ID, nil, true)
	assert.Equal(t, reportcard.ErrTermClosed, err)
	assert.False(t, f.card(t, f.mathActor, f.ana).Editable)
}

func TestStudentLocks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	conflicts, err := f.svc.CheckStudentLocks(ctx, f.mathActor, f.ana.ID, f.term.ID, false)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	conflicts, err = f.svc.CheckStudentLocks(ctx, f.homeActor, f.ana.ID, f.term.ID, false)
	require.NoError(t, err)
	assert.Empty(t, conflicts, "the teachers edit different subjects")

	f.now = f.now.Add(3 * time.Minute)
	conflicts, err = f.svc.CheckStudentLocks(ctx, f.admin, f.ana.ID, f.term.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Hannah Home is editing student Adams, Ana - English - last seen 3 minutes ago",
		"Mark Math is editing student Adams, Ana - Math / Mathématiques - last seen 3 minutes ago",
		"Hannah Home is editing student Adams, Ana - Responsibility / Responsabilité - last seen 3 minutes ago",
	}, conflicts)

	_, err = f.svc.EditStudent(ctx, f.admin, f.ana.ID, f.term.ID, nil, false)
	assert.True(t, reportcard.IsConflict(err))
	var cErr *reportcard.ConflictError
	require.ErrorAs(t, err, &cErr)
	assert.Len(t, cErr.Conflicts, 3)

	// refresh the math lock & release the homeroom ones
	_, err = f.svc.CheckStudentLocks(ctx, f.mathActor, f.ana.ID, f.term.ID, false)
	require.NoError(t, err)
	require.NoError(t, f.svc.ClearStudentLocks(ctx, f.homeActor, f.ana.ID, f.term.ID))
	conflicts, err = f.svc.CheckStudentLocks(ctx, f.admin, f.ana.ID, f.term.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mark Math is editing student Adams, Ana - Math / Mathématiques"}, conflicts)

	// stale locks are ignored
	f.now = f.now.Add(6 * time.Minute)
	conflicts, err = f.svc.CheckStudentLocks(ctx, f.admin, f.ana.ID, f.term.ID, false)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = f.svc.CheckStudentLocks(ctx, f.mathActor, f.ana.ID, f.term.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada Admin is editing student Adams, Ana - Math / Mathématiques"}, conflicts)
	_, err = f.svc.EditStudent(ctx, f.mathActor, f.ana.ID, f.term.ID, nil, false)
	assert.True(t, reportcard.IsConflict(err))

	_, err = f.svc.EditStudent(ctx, f.admin, f.ana.ID, f.term.ID, nil, true)
	require.NoError(t, err)
	conflicts, err = f.svc.CheckStudentLocks(ctx, f.mathActor, f.ana.ID, f.term.ID, true)
	require.NoError(t, err)
	assert.Empty(t, conflicts, "released on save")
}

func TestSubjectSheets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sheet, err := f.svc.ViewSubject(ctx, f.mathActor, f.mathID, 1, f.term.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Adams, Ana", "Brown, Ben"}, studentNames(sheet.Students))
	assert.True(t, sheet.Percentile)
	assert.Len(t, sheet.Entries[f.ana.ID], 3)
	assert.Equal(t, []string{"Mark Math"}, facultyNames(sheet.Teachers))

	sheet2, err := f.svc.ViewSubject(ctx, f.homeActor, f.englishID, 2, f.term.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Clark, Cid"}, studentNames(sheet2.Students))

	_, err = f.svc.ViewSubject(ctx, f.homeActor, f.mathID, 1, f.term.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)
	_, err = f.svc.ViewSubject(ctx, f.mathActor, 9999, 1, f.term.ID)
	assert.Equal(t, reportcard.ErrSubjectNotFound, err)
	_, err = f.svc.ViewSubject(ctx, f.mathActor, f.mathID, 3, f.term.ID)
	assert.Equal(t, reportcard.ErrSubjectNotFound, err)

	benEntries := sheet.Entries[f.ben.ID]
	require.Len(t, benEntries, 3)
	var inputs []reportcard.EntryInput
	for _, e := range benEntries {
		in := reportcard.EntryInput{ID: e.ID, Percentile: intPtr(75)}
		if e.IsSubject() {
			in.Comment = strPtr("Good")
		}
		inputs = append(inputs, in)
	}
	res, err := f.svc.EditSubject(ctx, f.mathActor, f.mathID, 1, f.term.ID, inputs, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.ben.ID}, res.Completed)
	assert.Len(t, res.Entries, 3)

	benCard := f.card(t, f.mathActor, f.ben)
	_, err = f.svc.EditSubject(ctx, f.mathActor, f.mathID, 1, f.term.ID, []reportcard.EntryInput{
		{ID: entryID(t, benCard.Card, f.key(f.academicsID, f.englishID)), Percentile: intPtr(60)},
	}, true)
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "entries[0].id", vErr.Fields[0].Field)

	// subject locks
	conflicts, err := f.svc.CheckSubjectLocks(ctx, f.homeActor, f.englishID, 1, f.term.ID, false)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	conflicts, err = f.svc.CheckSubjectLocks(ctx, f.admin, f.englishID, 1, f.term.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Hannah Home is editing subject Adams, Ana - English",
		"Hannah Home is editing subject Brown, Ben - English",
	}, conflicts)
	_, err = f.svc.EditSubject(ctx, f.admin, f.englishID, 1, f.term.ID, nil, false)
	assert.True(t, reportcard.IsConflict(err))

	require.NoError(t, f.svc.ClearSubjectLocks(ctx, f.homeActor, f.englishID, 1, f.term.ID))
	conflicts, err = f.svc.CheckSubjectLocks(ctx, f.admin, f.englishID, 1, f.term.ID, true)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	_, err = f.svc.SetTermOpen(ctx, f.term.ID, false)
	require.NoError(t, err)
	_, err = f.svc.EditSubject(ctx, f.mathActor, f.mathID, 1, f.term.ID, nil, true)
	assert.Equal(t, reportcard.ErrTermClosed, err)
}

func TestTermOverview(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fillMath(t, f.ana)

	ov, err := f.svc.TermOverview(ctx, f.mathActor, f.term.ID)
	require.NoError(t, err)
	require.Len(t, ov.Subjects, 1)
	assert.Equal(t, "Math", ov.Subjects[0].NameEN)
	require.Len(t, ov.Students, 2)
	assert.Equal(t, f.ana.ID, ov.Students[0].Student.ID)
	assert.True(t, ov.Students[0].Completed)
	assert.True(t, ov.Students[0].Editable)
	assert.Equal(t, f.ben.ID, ov.Students[1].Student.ID)
	assert.False(t, ov.Students[1].Completed)
	assert.Equal(t, []reportcard.SubjectInfo{
		{SubjectID: f.mathID, Name: "Math", GradeID: 1, GradeName: "Grade 1", NumStudents: 2, Filled: 1},
	}, ov.SubjectInfo)
	assert.Equal(t, []string{"Hannah Home", "Mark Math"}, facultyNames(ov.Teachers))

	ov, err = f.svc.TermOverview(ctx, f.homeActor, f.term.ID)
	require.NoError(t, err)
	var subjects []string
	for _, s := range ov.Subjects {
		subjects = append(subjects, s.NameEN)
	}
	assert.Equal(t, []string{"English", "Responsibility"}, subjects)
	var students []string
	for _, s := range ov.Students {
		students = append(students, s.Student.FullName())
	}
	assert.Equal(t, []string{"Adams, Ana", "Brown, Ben", "Clark, Cid"}, students)
	require.Len(t, ov.SubjectInfo, 4)
	assert.Equal(t, 1, ov.SubjectInfo[0].GradeID)
	assert.Equal(t, "English", ov.SubjectInfo[0].Name)
	assert.Equal(t, 2, ov.SubjectInfo[0].NumStudents)
	assert.Zero(t, ov.SubjectInfo[0].Filled)
	assert.Equal(t, 2, ov.SubjectInfo[3].GradeID)
	assert.Equal(t, "Responsibility", ov.SubjectInfo[3].Name)
	assert.Equal(t, 1, ov.SubjectInfo[3].NumStudents)

	_, err = f.svc.TermOverview(ctx, f.mathActor, 9999)
	assert.True(t, core.IsNotFound(err))
}

func TestTermAdminOverview(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fillMath(t, f.ana)

	ov, err := f.svc.TermAdminOverview(ctx, f.term.ID)
	require.NoError(t, err)
	assert.Len(t, ov.Subjects, 3)
	assert.Equal(t, []string{"Hannah Home", "Mark Math"}, facultyNames(ov.Teachers))
	if assert.Len(t, ov.Templates, 1) {
		assert.Equal(t, f.tpl.ID, ov.Templates[0].ID)
	}
	require.Len(t, ov.Students, 3)

	ana := ov.Students[0]
	assert.Equal(t, f.ana.ID, ana.Student.ID)
	assert.Equal(t, 2, ana.Expecting)
	assert.Equal(t, 1, ana.Completed)
	assert.Equal(t, []string{"Mark Math"}, facultyNames(ana.CompleteTeachers))
	assert.Equal(t, []string{"Hannah Home"}, facultyNames(ana.IncompleteTeachers))
	assert.Equal(t, 7, ana.TotalEntries)
	assert.Equal(t, 4, ana.FilledEntries)
	assert.InDelta(t, 57.14, ana.PercentFilled, 0.01)

	cid := ov.Students[2]
	assert.Equal(t, f.cid.ID, cid.Student.ID)
	assert.Equal(t, 1, cid.Expecting)
	assert.Zero(t, cid.Completed)
	assert.Equal(t, 1, cid.FilledEntries)
}

func TestSubjectQueries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	grade2 := 2

	subjects, err := f.svc.SubjectObjs(ctx, f.term.ID, &f.math)
	require.NoError(t, err)
	if assert.Len(t, subjects, 1) {
		assert.Equal(t, f.mathID, subjects[0].ID)
	}
	subjects, err = f.svc.SubjectObjs(ctx, f.term.ID, nil)
	require.NoError(t, err)
	assert.Len(t, subjects, 3)

	tests := []struct {
		name    string
		subject int64
		grade   *int
		teacher *school.Faculty
		want    []string
	}{
		{name: "all students", subject: f.mathID, want: []string{"Adams, Ana", "Brown, Ben", "Clark, Cid"}},
		{name: "teacher's classes", subject: f.mathID, teacher: &f.math, want: []string{"Adams, Ana", "Brown, Ben"}},
		{name: "grade", subject: f.englishID, grade: &grade2, want: []string{"Clark, Cid"}},
		{name: "grade outside teacher's classes", subject: f.mathID, grade: &grade2, teacher: &f.math, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			students, err := f.svc.StudentsForSubject(ctx, tt.subject, f.term.ID, tt.grade, tt.teacher)
			require.NoError(t, err)
			assert.Equal(t, tt.want, studentNames(students))
		})
	}

	teachers, err := f.svc.TeachersForSubject(ctx, f.englishID, f.term.ID, &f.cid.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hannah Home"}, facultyNames(teachers))
	teachers, err = f.svc.TeachersForSubject(ctx, f.mathID, f.term.ID, &f.cid.ID)
	require.NoError(t, err)
	assert.Empty(t, teachers)
	teachers, err = f.svc.TeachersForSubject(ctx, f.mathID, f.term.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mark Math"}, facultyNames(teachers))

	_, err = f.svc.TeachersForSubject(ctx, 9999, f.term.ID, nil)
	assert.Equal(t, reportcard.ErrSubjectNotFound, err)
}

func TestAccessRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateAccessRule(ctx, reportcard.AccessRule{Description: "empty"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Fields, 2)
	assert.Equal(t, "faculty_ids", vErr.Fields[0].Field)
	assert.Equal(t, "subject_ids", vErr.Fields[1].Field)

	rules, err := f.svc.QueryAccessRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	cp, err := f.svc.CopyAccessRule(ctx, rules[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Math 1 (copy)", cp.Description)
	assert.Equal(t, rules[1].FacultyIDs, cp.FacultyIDs)
	assert.Equal(t, rules[1].SubjectIDs, cp.SubjectIDs)

	_, err = f.svc.CopyAccessRule(ctx, 9999)
	assert.Equal(t, reportcard.ErrAccessNotFound, err)
}

func TestChangeTemplate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fillMath(t, f.ana)
	rcID := f.card(t, f.admin, f.ana).ReportCard.ID

	newTpl, err := f.svc.CreateTemplate(ctx, reportcard.Template{
		Name:          "Primary (new)",
		GradeLevelIDs: []int{1},
		Sections: []reportcard.Section{{
			Name:            "Academics",
			GradingSchemeID: f.percent.ID,
			Subjects: []reportcard.Subject{
				{
					NameEN:       "Math",
					NameFR:       "Mathématiques",
					Graded:       true,
					CommentsArea: true,
					Strands:      []reportcard.Strand{{TextEN: "Number sense", Graded: true}},
				},
				{NameEN: "Science", Graded: true},
			},
		}},
	})
	require.NoError(t, err)
	newMathID := newTpl.Sections[0].Subjects[0].ID

	res, err := f.svc.ChangeTemplate(ctx, rcID, newTpl.ID)
	require.NoError(t, err)
	assert.Equal(t, newTpl.ID, res.ReportCard.TemplateID)
	assert.Equal(t, 3, res.Moved)
	assert.Len(t, res.Deleted, 4)

	entries, err := f.repo.QueryEntries(ctx, reportcard.EntryFilter{ReportCardIDs: []int64{rcID}})
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	var moved *reportcard.Entry
	for i, e := range entries {
		assert.Equal(t, newTpl.Sections[0].ID, e.SectionID)
		if e.IsSubject() && *e.SubjectID == newMathID {
			moved = &entries[i]
		}
	}
	require.NotNil(t, moved)
	assert.Equal(t, 85, *moved.Percentile)
	assert.Equal(t, "Great work", *moved.Comment)

	_, err = f.svc.ChangeTemplate(ctx, rcID, 9999)
	assert.True(t, core.IsNotFound(err))
	_, err = f.svc.ChangeTemplate(ctx, 9999, newTpl.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestPastTerms(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fillMath(t, f.ana)

	period2 := testutil.CreateTerm(t, f.schRepo, f.year, "T2", testutil.Date(2024, 1, 8), testutil.Date(2024, 3, 28))
	progress, err := f.svc.CreateTerm(ctx, reportcard.Term{
		SchoolYearID:    f.year.ID,
		MarkingPeriodID: period2.ID,
		Number:          2,
		Name:            "Progress",
		Interim:         true,
	})
	require.NoError(t, err)
	term2, err := f.svc.CreateTerm(ctx, reportcard.Term{
		SchoolYearID:    f.year.ID,
		MarkingPeriodID: period2.ID,
		Number:          3,
		Name:            "Term 2",
		TemplateIDs:     []int64{f.tpl.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Progress (Interim)", progress.String())

	past, err := f.svc.PastTerms(ctx, f.ana.ID, term2)
	require.NoError(t, err)
	require.Len(t, past, 1, "interim terms are skipped")
	assert.Equal(t, f.term.ID, past[0].Term.ID)
	assert.Len(t, past[0].Entries, 7)

	cards, err := f.svc.PastReportCards(ctx, f.ana.ID, term2, true)
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Equal(t, f.term.ID, cards[0].Term.ID)
	assert.NotNil(t, cards[0].ReportCard)
	assert.Equal(t, progress.ID, cards[1].Term.ID)
	assert.Nil(t, cards[1].ReportCard)
	assert.Equal(t, term2.ID, cards[2].Term.ID)
	assert.Nil(t, cards[2].ReportCard)

	cards, err = f.svc.PastReportCards(ctx, f.ana.ID, term2, false)
	require.NoError(t, err)
	assert.Len(t, cards, 2)

	_, err = f.svc.SetTermOpen(ctx, term2.ID, true)
	require.NoError(t, err)
	sc, err := f.svc.ViewStudent(ctx, f.mathActor, f.ana.ID, term2.ID)
	require.NoError(t, err)
	require.Len(t, sc.PastTerms, 1)
	assert.Equal(t, f.term.ID, sc.PastTerms[0].Term.ID)
}

func TestSendReportCard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fillMath(t, f.ana)
	testutil.CreateContact(t, f.schRepo, "Mia", "Adams", "Mia@Home.ca", "", false, f.ana)
	testutil.CreateContact(t, f.schRepo, "Doc", "Ward", "doc@clinic.ca", "", true, f.ana)

	_, err := f.svc.SendReportCard(ctx, f.ana.ID, f.term.ID, reportcard.SendOptions{ToParents: true})
	assert.Equal(t, reportcard.ErrTermOpen, err)

	_, err = f.svc.SendReportCard(ctx, f.ana.ID, f.term.ID, reportcard.SendOptions{To: []string{"not-an-email"}})
	assert.Equal(t, reportcard.ErrNoRecipients, err)

	res, err := f.svc.SendReportCard(ctx, f.ana.ID, f.term.ID, reportcard.SendOptions{
		To: []string{" Teacher@School.ca ", "not-an-email", "teacher@school.ca"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"teacher@school.ca"}, res.Recipients)
	assert.Equal(t, "Term 1 Report Card / Bulletin: Ana Adams", res.Subject)

	sent := emailsvc.ResetSentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "teacher@school.ca", msg.To[0].Address)
	assert.Contains(t, msg.TextContent, "The report card for Ana Adams is below.")
	assert.Contains(t, msg.TextContent, "Academics - Math / Mathématiques: 85\n  Great work")
	assert.Contains(t, msg.TextContent, "Academics - Math / Mathématiques - Number sense: 70")
	assert.Contains(t, msg.TextContent, "Academics - Math / Mathématiques - Geometry: INC")
	assert.NotContains(t, msg.TextContent, "English")

	_, err = f.svc.SetTermOpen(ctx, f.term.ID, false)
	require.NoError(t, err)
	res, err = f.svc.SendReportCard(ctx, f.ana.ID, f.term.ID, reportcard.SendOptions{ToParents: true, MarkEmailed: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"mia@home.ca"}, res.Recipients, "emergency contacts are skipped")
	assert.Len(t, emailsvc.ResetSentMessages(), 1)

	ov, err := f.svc.TermAdminOverview(ctx, f.term.ID)
	require.NoError(t, err)
	assert.True(t, ov.Students[0].Emailed)
	assert.False(t, ov.Students[1].Emailed)

	_, err = f.svc.SendReportCard(ctx, f.dan.ID, f.term.ID, reportcard.SendOptions{To: []string{"teacher@school.ca"}})
	assert.Equal(t, reportcard.ErrReportCardNotFound, err)
}

func TestCommentReport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fillMath(t, f.ana)

	rep, err := f.svc.CommentReport(ctx, 1, f.term.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grade 1", rep.Grade)
	assert.True(t, rep.Draft)

	var names []string
	for _, item := range rep.Subjects {
		names = append(names, item.Name)
	}
	require.Equal(t, []string{"Math", "English", "Learning Skills", "Responsibility"}, names)

	math := rep.Subjects[0]
	assert.Equal(t, "Mark Math", math.Teacher)
	require.Len(t, math.Grid, 2)
	assert.Equal(t, "Adams, Ana", math.Grid[0].StudentName)
	assert.Equal(t, "Great work", math.Grid[0].Comments)
	assert.Equal(t, []reportcard.CommentMark{
		{Label: "Math", Mark: "85"},
		{Label: "Number sense", Mark: "70"},
		{Label: "Geometry", Mark: "INC"},
	}, math.Grid[0].Marks)
	assert.Equal(t, "Brown, Ben", math.Grid[1].StudentName)
	assert.Equal(t, "", math.Grid[1].Marks[0].Mark)

	assert.Equal(t, "Hannah Home", rep.Subjects[1].Teacher)
	skills := rep.Subjects[2]
	assert.Equal(t, "Hannah Home", skills.Teacher, "section comments belong to the homeroom teacher")
	assert.Equal(t, []reportcard.CommentMark{{Label: "Responsibility", Mark: "-"}}, skills.Grid[0].Marks)

	testutil.CreateGrade(t, f.schRepo, 3, "Grade 3", "G3")
	rep, err = f.svc.CommentReport(ctx, 3, f.term.ID)
	require.NoError(t, err)
	assert.Empty(t, rep.Subjects)

	_, err = f.svc.CommentReport(ctx, 9, f.term.ID)
	assert.True(t, core.IsNotFound(err))
}
