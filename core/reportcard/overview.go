package reportcard

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

type gradeSubject struct {
	subjectID int64
	gradeID   int
}

// SubjectInfo counts the filled report cards of a subject for a grade.
type SubjectInfo struct {
	SubjectID   int64  `json:"id"`
	Name        string `json:"name"`
	GradeID     int    `json:"grade_id"`
	GradeName   string `json:"grade"`
	NumStudents int    `json:"num_students"`
	Filled      int    `json:"filled"`
}

type OverviewStudent struct {
	Student   school.Student `json:"student"`
	Completed bool           `json:"completed"`
	Editable  bool           `json:"editable"`
}

// TermOverview is what an actor has to fill in a term.
type TermOverview struct {
	Term        Term              `json:"term"`
	Subjects    []Subject         `json:"subjects"`
	Students    []OverviewStudent `json:"students"`
	SubjectInfo []SubjectInfo     `json:"subject_info"`
	Teachers    []school.Faculty  `json:"teachers"`
}

// termData loads what the overviews need about a term.
type termData struct {
	term      Term
	templates []Template
	idx       accessIndex
	students  map[int64]school.Student // active, with a grade
	grades    map[int]school.GradeLevel
	faculty   []school.Faculty
	cards     map[int64]ReportCard // by student
	entries   map[int64][]Entry    // by report card
	subs      map[int64][]Submission
}

func (svc *Service) loadTermData(ctx context.Context, termID int64) (termData, error) {
	term, err := svc.repo.GetTerm(ctx, termID)
	if err != nil {
		return termData{}, err
	}
	td := termData{
		term:     term,
		students: map[int64]school.Student{},
		grades:   map[int]school.GradeLevel{},
		cards:    map[int64]ReportCard{},
		entries:  map[int64][]Entry{},
		subs:     map[int64][]Submission{},
	}
	if td.templates, err = svc.termTemplates(ctx, term); err != nil {
		return termData{}, err
	}
	if td.idx, err = svc.accessIndex(ctx, term.SchoolYearID); err != nil {
		return termData{}, err
	}

	active := true
	students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{IsActive: &active, HasGrade: true})
	if err != nil {
		return termData{}, err
	}
	for _, st := range students {
		td.students[st.ID] = st
	}
	grades, err := svc.dir.QueryGradeLevels(ctx)
	if err != nil {
		return termData{}, err
	}
	for _, g := range grades {
		td.grades[g.ID] = g
	}
	if td.faculty, err = svc.dir.QueryFaculty(ctx, school.FacultyFilter{IsActive: &active}); err != nil {
		return termData{}, err
	}

	rcs, err := svc.repo.QueryReportCards(ctx, ReportCardFilter{TermIDs: []int64{term.ID}})
	if err != nil {
		return termData{}, err
	}
	if len(rcs) == 0 {
		return td, nil
	}
	ids := make([]int64, 0, len(rcs))
	for _, rc := range rcs {
		td.cards[rc.StudentID] = rc
		ids = append(ids, rc.ID)
	}
	entries, err := svc.repo.QueryEntries(ctx, EntryFilter{ReportCardIDs: ids})
	if err != nil {
		return termData{}, err
	}
	for _, e := range entries {
		td.entries[e.ReportCardID] = append(td.entries[e.ReportCardID], e)
	}
	subs, err := svc.repo.QuerySubmissions(ctx, ids)
	if err != nil {
		return termData{}, err
	}
	for _, s := range subs {
		td.subs[s.ReportCardID] = append(td.subs[s.ReportCardID], s)
	}
	return td, nil
}

func (td termData) completed(studentID int64, teacher *school.Faculty) bool {
	rc, ok := td.cards[studentID]
	if !ok {
		return false
	}
	subs := td.subs[rc.ID]
	if teacher != nil {
		for _, s := range subs {
			if s.FacultyID == teacher.ID {
				return s.Completed
			}
		}
		return false
	}
	if len(subs) == 0 {
		return false
	}
	for _, s := range subs {
		if !s.Completed {
			return false
		}
	}
	return true
}

func sortByGradeAndName(students []school.Student) {
	sort.SliceStable(students, func(i, j int) bool {
		gi, gj := *students[i].GradeLevelID, *students[j].GradeLevelID
		if gi != gj {
			return gi < gj
		}
		return strings.ToLower(students[i].FullName()) < strings.ToLower(students[j].FullName())
	})
}

// TermOverview lists the subjects & students the actor has to fill for a term, with the
// number of filled report cards per subject and grade.
func (svc *Service) TermOverview(ctx context.Context, actor Actor, termID int64) (TermOverview, error) {
	td, err := svc.loadTermData(ctx, termID)
	if err != nil {
		return TermOverview{}, err
	}
	rules := td.idx.forTeacher(actor.Teacher)

	ov := TermOverview{Term: td.term, Subjects: []Subject{}, Students: []OverviewStudent{}, SubjectInfo: []SubjectInfo{}}
	seenSubj := core.NewInt64Set()
	studentIDs := core.NewInt64Set()
	pairs := make(map[gradeSubject]bool)

	for _, tpl := range td.templates {
		for _, sect := range tpl.Sections {
			for _, subj := range sect.Subjects {
				for _, r := range rules {
					if !r.CoversSubject(subj) {
						continue
					}
					if !seenSubj.Has(subj.ID) {
						seenSubj.Add(subj.ID)
						ov.Subjects = append(ov.Subjects, subj)
					}
					for _, cid := range r.ClassIDs {
						class, ok := td.idx.classes[cid]
						if !ok {
							continue
						}
						for _, sid := range class.StudentIDs {
							st, ok := td.students[sid]
							if !ok || !tpl.HasGrade(*st.GradeLevelID) {
								continue
							}
							studentIDs.Add(sid)
							pairs[gradeSubject{subjectID: subj.ID, gradeID: *st.GradeLevelID}] = true
						}
					}
				}
			}
		}
	}
	sort.SliceStable(ov.Subjects, func(i, j int) bool { return ov.Subjects[i].NameEN < ov.Subjects[j].NameEN })

	students := make([]school.Student, 0, len(studentIDs))
	gradeIDs := make(map[int]bool)
	for _, id := range studentIDs.Slice() {
		st := td.students[id]
		students = append(students, st)
		gradeIDs[*st.GradeLevelID] = true
	}
	sortByGradeAndName(students)
	for _, st := range students {
		ov.Students = append(ov.Students, OverviewStudent{
			Student:   st,
			Completed: td.completed(st.ID, actor.Teacher),
			Editable:  td.term.IsOpen,
		})
	}

	// students of each grade that are in a class this year
	inClass := core.NewInt64Set()
	for _, c := range td.idx.classes {
		inClass.Add(c.StudentIDs...)
	}
	gradeCounts := make(map[int]int)
	for id, st := range td.students {
		if inClass.Has(id) {
			gradeCounts[*st.GradeLevelID]++
		}
	}

	sortedGrades := make([]int, 0, len(gradeIDs))
	for g := range gradeIDs {
		sortedGrades = append(sortedGrades, g)
	}
	sort.Ints(sortedGrades)
	for _, g := range sortedGrades {
		for _, subj := range ov.Subjects {
			if !pairs[gradeSubject{subjectID: subj.ID, gradeID: g}] {
				continue
			}
			ov.SubjectInfo = append(ov.SubjectInfo, SubjectInfo{
				SubjectID:   subj.ID,
				Name:        subj.NameEN,
				GradeID:     g,
				GradeName:   td.grades[g].Name,
				NumStudents: gradeCounts[g],
				Filled:      td.filledCards(subj.ID, g),
			})
		}
	}

	for _, f := range td.faculty {
		for _, r := range td.idx.rules {
			if r.HasTeacher(f.ID) {
				ov.Teachers = append(ov.Teachers, f)
				break
			}
		}
	}
	return ov, nil
}

// filledCards counts the grade's report cards whose entries for the subject are all complete.
func (td termData) filledCards(subjectID int64, gradeID int) int {
	filled := 0
	for sid, rc := range td.cards {
		st, ok := td.students[sid]
		if !ok || !st.InGrade(gradeID) {
			continue
		}
		total, done := 0, 0
		for _, e := range td.entries[rc.ID] {
			if e.SubjectID == nil || *e.SubjectID != subjectID {
				continue
			}
			total++
			if e.Completed {
				done++
			}
		}
		if total > 0 && total == done {
			filled++
		}
	}
	return filled
}

// AdminStudentRow is a student's progress in a term.
type AdminStudentRow struct {
	Student            school.Student   `json:"student"`
	Emailed            bool             `json:"emailed"`
	Expecting          int              `json:"expecting"`
	Completed          int              `json:"completed"`
	TotalEntries       int              `json:"total_entries"`
	FilledEntries      int              `json:"filled_entries"`
	PercentFilled      float64          `json:"percent_filled"`
	CompleteTeachers   []school.Faculty `json:"complete_teachers"`
	IncompleteTeachers []school.Faculty `json:"incomplete_teachers"`
}

// TermAdminOverview is the progress of every active student in a term.
type TermAdminOverview struct {
	Term      Term              `json:"term"`
	Students  []AdminStudentRow `json:"students"`
	Subjects  []Subject         `json:"subjects"`
	Teachers  []school.Faculty  `json:"teachers"`
	Templates []Template        `json:"templates"`
}

func (svc *Service) TermAdminOverview(ctx context.Context, termID int64) (TermAdminOverview, error) {
	td, err := svc.loadTermData(ctx, termID)
	if err != nil {
		return TermAdminOverview{}, err
	}
	active := true
	templates, err := svc.repo.QueryTemplates(ctx, TemplateFilter{Active: &active})
	if err != nil {
		return TermAdminOverview{}, err
	}
	ov := TermAdminOverview{
		Term:      td.term,
		Students:  []AdminStudentRow{},
		Subjects:  td.idx.subjectObjs(td.templates, nil),
		Templates: templates,
	}

	// teachers expected to complete the cards of each grade
	gradeTeachers := make(map[int][]school.Faculty)
	for _, f := range td.faculty {
		if f.IsTeacher {
			ov.Teachers = append(ov.Teachers, f)
		}
		grades := make(map[int]bool)
		for _, r := range td.idx.rules {
			if !r.HasTeacher(f.ID) {
				continue
			}
			for _, cid := range r.ClassIDs {
				for _, sid := range td.idx.classes[cid].StudentIDs {
					if st, ok := td.students[sid]; ok {
						grades[*st.GradeLevelID] = true
					}
				}
			}
		}
		for g := range grades {
			gradeTeachers[g] = append(gradeTeachers[g], f)
		}
	}

	students := make([]school.Student, 0, len(td.students))
	for _, st := range td.students {
		students = append(students, st)
	}
	sortByGradeAndName(students)

	for _, st := range students {
		row := AdminStudentRow{Student: st, CompleteTeachers: []school.Faculty{}, IncompleteTeachers: []school.Faculty{}}
		done := core.NewInt64Set()
		if rc, ok := td.cards[st.ID]; ok {
			row.Emailed = rc.Emailed
			for _, s := range td.subs[rc.ID] {
				if s.Completed {
					done.Add(s.FacultyID)
				}
			}
			for _, e := range td.entries[rc.ID] {
				row.TotalEntries++
				if e.Completed {
					row.FilledEntries++
				}
			}
		}
		if row.TotalEntries > 0 {
			row.PercentFilled = float64(row.FilledEntries) / float64(row.TotalEntries) * 100
		}
		row.Completed = len(done)
		teachers := gradeTeachers[*st.GradeLevelID]
		row.Expecting = len(teachers)
		for _, f := range teachers {
			if done.Has(f.ID) {
				row.CompleteTeachers = append(row.CompleteTeachers, f)
			} else {
				row.IncompleteTeachers = append(row.IncompleteTeachers, f)
			}
		}
		ov.Students = append(ov.Students, row)
	}
	return ov, nil
}

// SubjectObjs lists the term's subjects the teacher has access to. A nil teacher gets them all.
func (svc *Service) SubjectObjs(ctx context.Context, termID int64, teacher *school.Faculty) ([]Subject, error) {
	term, err := svc.repo.GetTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	tpls, err := svc.termTemplates(ctx, term)
	if err != nil {
		return nil, err
	}
	idx, err := svc.accessIndex(ctx, term.SchoolYearID)
	if err != nil {
		return nil, err
	}
	subjects := idx.subjectObjs(tpls, teacher)
	if subjects == nil {
		subjects = []Subject{}
	}
	return subjects, nil
}

func (svc *Service) termSubject(ctx context.Context, term Term, subjectID int64) (Template, Subject, error) {
	tpls, err := svc.termTemplates(ctx, term)
	if err != nil {
		return Template{}, Subject{}, err
	}
	for _, tpl := range tpls {
		if _, subj, ok := tpl.Subject(subjectID); ok {
			return tpl, *subj, nil
		}
	}
	return Template{}, Subject{}, ErrSubjectNotFound
}

// StudentsForSubject lists the active students that have the subject, optionally in a grade
// and optionally limited to the teacher's classes.
func (svc *Service) StudentsForSubject(ctx context.Context, subjectID, termID int64, gradeID *int, teacher *school.Faculty) ([]school.Student, error) {
	term, err := svc.repo.GetTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	tpl, subj, err := svc.termSubject(ctx, term, subjectID)
	if err != nil {
		return nil, err
	}
	idx, err := svc.accessIndex(ctx, term.SchoolYearID)
	if err != nil {
		return nil, err
	}
	active := true
	students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{IsActive: &active, GradeLevelID: gradeID})
	if err != nil {
		return nil, err
	}
	return idx.studentsForSubject(subj, tpl, students, gradeID, teacher), nil
}

// TeachersForSubject lists the active faculty assigned to the subject in the term's school year,
// optionally only those teaching the student.
func (svc *Service) TeachersForSubject(ctx context.Context, subjectID, termID int64, studentID *int64) ([]school.Faculty, error) {
	term, err := svc.repo.GetTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	_, subj, err := svc.termSubject(ctx, term, subjectID)
	if err != nil {
		return nil, err
	}
	idx, err := svc.accessIndex(ctx, term.SchoolYearID)
	if err != nil {
		return nil, err
	}
	var student *school.Student
	if studentID != nil {
		st, err := svc.dir.GetStudent(ctx, *studentID)
		if err != nil {
			return nil, err
		}
		student = &st
	}
	active := true
	faculty, err := svc.dir.QueryFaculty(ctx, school.FacultyFilter{IsActive: &active})
	if err != nil {
		return nil, err
	}
	teachers := idx.teachersForSubject(subj, student, term.SchoolYearID, faculty)
	if teachers == nil {
		teachers = []school.Faculty{}
	}
	return teachers, nil
}
