package reportcard

import (
	"context"
	"fmt"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

// Actor is the user editing report cards. Teacher is the faculty whose access rules apply;
// nil for a report card admin acting without restriction.
type Actor struct {
	Editor
	Teacher *school.Faculty
}

// StudentCard is a report card as seen by an actor.
type StudentCard struct {
	Card
	Access    TemplateAccess  `json:"access"`
	Editable  bool            `json:"editable"`
	Completed bool            `json:"completed"`
	PastTerms []PastTerm      `json:"past_terms"`
	Schemes   []GradingScheme `json:"gradingschemes"`
	Summary   Summary         `json:"summary"`
}

// ViewStudent returns the student's report card with what the actor may edit on it.
func (svc *Service) ViewStudent(ctx context.Context, actor Actor, studentID, termID int64) (StudentCard, error) {
	card, err := svc.GetOrCreate(ctx, studentID, termID)
	if err != nil {
		return StudentCard{}, err
	}
	idx, err := svc.accessIndex(ctx, card.Term.SchoolYearID)
	if err != nil {
		return StudentCard{}, err
	}
	sc := StudentCard{
		Card:     card,
		Access:   idx.accessForTemplate(card.Template, actor.Teacher, card.byKey),
		Editable: card.Term.IsOpen,
	}
	if sc.Completed, err = svc.IsCompleted(ctx, card.ReportCard.ID, actor.Teacher); err != nil {
		return StudentCard{}, err
	}
	if sc.PastTerms, err = svc.PastTerms(ctx, studentID, card.Term); err != nil {
		return StudentCard{}, err
	}
	if sc.Schemes, err = svc.TemplateGradingSchemes(ctx, card.Template.ID); err != nil {
		return StudentCard{}, err
	}
	if sc.Summary, err = svc.summary(ctx, card.Student, card.Term); err != nil {
		return StudentCard{}, err
	}
	return sc, nil
}

func studentLockTargets(card Card, acc TemplateAccess, accessibleOnly bool) []LockTarget {
	var targets []LockTarget
	for _, sect := range card.Template.Sections {
		for _, subj := range sect.Subjects {
			if accessibleOnly && !acc.Subjects[subj.ID] {
				continue
			}
			targets = append(targets, LockTarget{
				StudentID:   card.Student.ID,
				StudentName: card.Student.FullName(),
				SubjectID:   subj.ID,
				SubjectName: subj.EntryFormLabel(),
			})
		}
	}
	return targets
}

func (svc *Service) studentAccess(ctx context.Context, actor Actor, studentID, termID int64) (Card, TemplateAccess, error) {
	card, err := svc.GetOrCreate(ctx, studentID, termID)
	if err != nil {
		return Card{}, TemplateAccess{}, err
	}
	idx, err := svc.accessIndex(ctx, card.Term.SchoolYearID)
	if err != nil {
		return Card{}, TemplateAccess{}, err
	}
	return card, idx.accessForTemplate(card.Template, actor.Teacher, card.byKey), nil
}

// CheckStudentLocks checks, and unless checkOnly refreshes, the actor's locks on a student's report card.
func (svc *Service) CheckStudentLocks(ctx context.Context, actor Actor, studentID, termID int64, checkOnly bool) ([]string, error) {
	card, acc, err := svc.studentAccess(ctx, actor, studentID, termID)
	if err != nil {
		return nil, err
	}
	return svc.CheckLocks(ctx, actor.Editor, studentLockTargets(card, acc, true), EditStudent, checkOnly)
}

// ClearStudentLocks releases the actor's locks on a student's report card.
func (svc *Service) ClearStudentLocks(ctx context.Context, actor Actor, studentID, termID int64) error {
	card, acc, err := svc.studentAccess(ctx, actor, studentID, termID)
	if err != nil {
		return err
	}
	return svc.ClearLocks(ctx, actor.Editor, studentLockTargets(card, acc, false))
}

// EditResult is the outcome of an edit.
type EditResult struct {
	Entries   []Entry `json:"entries"`
	Completed []int64 `json:"completed"` // students whose report card is now complete for the actor
}

// apply validates & applies inputs to the allowed entries, recomputing their completion.
func (svc *Service) apply(ctx context.Context, tpl Template, allowed map[int64]Entry, canEdit func(Entry) bool, inputs []EntryInput) ([]Entry, error) {
	schemesBySection, err := svc.templateSchemes(ctx, tpl)
	if err != nil {
		return nil, err
	}
	var errs []core.FieldError
	updated := make([]Entry, 0, len(inputs))
	for i, in := range inputs {
		prefix := fmt.Sprintf("entries[%d].", i)
		e, ok := allowed[in.ID]
		if !ok {
			errs = append(errs, core.FieldError{Field: prefix + "id", Error: "entry is not part of this edit"})
			continue
		}
		if !canEdit(e) {
			return nil, core.ErrPermissionDenied
		}
		el, ok := tpl.elementOf(e)
		if !ok {
			errs = append(errs, core.FieldError{Field: prefix + "id", Error: "entry does not match the template"})
			continue
		}
		in.apply(&e)
		sc := schemesBySection[e.SectionID]
		if fieldErrs := cleanEntry(e, sc, prefix); len(fieldErrs) > 0 {
			errs = append(errs, fieldErrs...)
			continue
		}
		e.Completed = isEntryComplete(e, el, sc)
		updated = append(updated, e)
	}
	if len(errs) > 0 {
		return nil, core.NewValidationError(nil, errs...)
	}
	return updated, nil
}

// EditStudent saves a student's report card entries. Only entries the actor may edit are accepted.
// The term must be open and nobody else may be editing the same subjects.
func (svc *Service) EditStudent(ctx context.Context, actor Actor, studentID, termID int64, inputs []EntryInput, release bool) (EditResult, error) {
	card, acc, err := svc.studentAccess(ctx, actor, studentID, termID)
	if err != nil {
		return EditResult{}, err
	}
	if !card.Term.IsOpen {
		return EditResult{}, ErrTermClosed
	}
	targets := studentLockTargets(card, acc, true)
	conflicts, err := svc.CheckLocks(ctx, actor.Editor, targets, EditStudent, false)
	if err != nil {
		return EditResult{}, err
	}
	if len(conflicts) > 0 {
		return EditResult{}, &ConflictError{Conflicts: conflicts}
	}

	byID := make(map[int64]Entry, len(card.Entries))
	for _, e := range card.Entries {
		byID[e.ID] = e
	}
	updated, err := svc.apply(ctx, card.Template, byID, func(e Entry) bool { return acc.CanEdit(e.ID) }, inputs)
	if err != nil {
		return EditResult{}, err
	}
	for _, e := range updated {
		byID[e.ID] = e
	}

	res := EditResult{Entries: updated, Completed: []int64{}}
	err = core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		if err := svc.repo.UpdateEntries(ctx, updated, exec); err != nil {
			return err
		}
		rc := card.ReportCard
		rc.UpdatedAt = svc.now()
		if _, err := svc.repo.UpdateReportCard(ctx, rc, exec); err != nil {
			return err
		}

		all := true
		for _, id := range acc.EditableIDs {
			if !byID[id].Completed {
				all = false
				break
			}
		}
		completed, err := svc.setCompleted(ctx, rc.ID, actor.Teacher, all, exec)
		if completed {
			res.Completed = append(res.Completed, studentID)
		}
		return err
	})
	if err != nil {
		return EditResult{}, err
	}

	if release {
		if err := svc.ClearLocks(ctx, actor.Editor, studentLockTargets(card, acc, false)); err != nil {
			svc.logger.Error("clearing editor locks", err)
		}
	}
	return res, nil
}

// SubjectSheet is one subject of every student of a grade, as seen by an actor.
type SubjectSheet struct {
	Subject    Subject           `json:"subject"`
	GradeID    int               `json:"grade_id"`
	Percentile bool              `json:"percentile"`
	Students   []school.Student  `json:"students"`
	Entries    map[int64][]Entry `json:"entries"` // by student
	Teachers   []school.Faculty  `json:"teachers"`

	tpl   Template
	term  Term
	cards []Card
}

func (s SubjectSheet) lockTargets() []LockTarget {
	targets := make([]LockTarget, 0, len(s.Students))
	for _, st := range s.Students {
		targets = append(targets, LockTarget{
			StudentID:   st.ID,
			StudentName: st.FullName(),
			SubjectID:   s.Subject.ID,
			SubjectName: s.Subject.EntryFormLabel(),
		})
	}
	return targets
}

// findSubject finds the subject in the term's templates for the grade.
func (svc *Service) findSubject(ctx context.Context, term Term, subjectID int64, gradeID int) (Template, Subject, error) {
	tpls, err := svc.termTemplates(ctx, term)
	if err != nil {
		return Template{}, Subject{}, err
	}
	for _, tpl := range tpls {
		if tpl.Interim != term.Interim || !tpl.HasGrade(gradeID) {
			continue
		}
		if _, subj, ok := tpl.Subject(subjectID); ok {
			return tpl, *subj, nil
		}
	}
	return Template{}, Subject{}, ErrSubjectNotFound
}

// ViewSubject loads the subject's entries for the grade's students the actor teaches,
// creating the report cards when needed.
func (svc *Service) ViewSubject(ctx context.Context, actor Actor, subjectID int64, gradeID int, termID int64) (SubjectSheet, error) {
	term, err := svc.repo.GetTerm(ctx, termID)
	if err != nil {
		return SubjectSheet{}, err
	}
	tpl, subj, err := svc.findSubject(ctx, term, subjectID, gradeID)
	if err != nil {
		return SubjectSheet{}, err
	}
	idx, err := svc.accessIndex(ctx, term.SchoolYearID)
	if err != nil {
		return SubjectSheet{}, err
	}
	if !idx.teacherTeaches(subj, actor.Teacher) {
		return SubjectSheet{}, core.ErrPermissionDenied
	}

	active := true
	students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{GradeLevelID: &gradeID, IsActive: &active})
	if err != nil {
		return SubjectSheet{}, err
	}
	students = idx.studentsForSubject(subj, tpl, students, &gradeID, actor.Teacher)

	sect, _, _ := tpl.Subject(subj.ID)
	scheme, err := svc.repo.GetGradingScheme(ctx, sect.GradingSchemeID)
	if err != nil {
		return SubjectSheet{}, err
	}
	faculty, err := svc.dir.QueryFaculty(ctx, school.FacultyFilter{IsActive: &active})
	if err != nil {
		return SubjectSheet{}, err
	}

	sheet := SubjectSheet{
		Subject:    subj,
		GradeID:    gradeID,
		Percentile: scheme.Percentile,
		Students:   students,
		Entries:    make(map[int64][]Entry, len(students)),
		Teachers:   idx.teachersForSubject(subj, nil, term.SchoolYearID, faculty),
		tpl:        tpl,
		term:       term,
	}
	for _, st := range students {
		card, err := svc.getOrCreate(ctx, st, term)
		if err != nil {
			return SubjectSheet{}, err
		}
		sheet.cards = append(sheet.cards, card)
		for _, e := range card.Entries {
			if e.SubjectID != nil && *e.SubjectID == subj.ID {
				sheet.Entries[st.ID] = append(sheet.Entries[st.ID], e)
			}
		}
	}
	return sheet, nil
}

// CheckSubjectLocks checks, and unless checkOnly refreshes, the actor's locks on a subject of a grade.
func (svc *Service) CheckSubjectLocks(ctx context.Context, actor Actor, subjectID int64, gradeID int, termID int64, checkOnly bool) ([]string, error) {
	sheet, err := svc.ViewSubject(ctx, actor, subjectID, gradeID, termID)
	if err != nil {
		return nil, err
	}
	return svc.CheckLocks(ctx, actor.Editor, sheet.lockTargets(), EditSubject, checkOnly)
}

func (svc *Service) ClearSubjectLocks(ctx context.Context, actor Actor, subjectID int64, gradeID int, termID int64) error {
	sheet, err := svc.ViewSubject(ctx, actor, subjectID, gradeID, termID)
	if err != nil {
		return err
	}
	return svc.ClearLocks(ctx, actor.Editor, sheet.lockTargets())
}

// EditSubject saves one subject (and its strands) for the students of a grade.
func (svc *Service) EditSubject(ctx context.Context, actor Actor, subjectID int64, gradeID int, termID int64, inputs []EntryInput, release bool) (EditResult, error) {
	sheet, err := svc.ViewSubject(ctx, actor, subjectID, gradeID, termID)
	if err != nil {
		return EditResult{}, err
	}
	if !sheet.term.IsOpen {
		return EditResult{}, ErrTermClosed
	}
	conflicts, err := svc.CheckLocks(ctx, actor.Editor, sheet.lockTargets(), EditSubject, false)
	if err != nil {
		return EditResult{}, err
	}
	if len(conflicts) > 0 {
		return EditResult{}, &ConflictError{Conflicts: conflicts}
	}

	allowed := make(map[int64]Entry)
	for _, entries := range sheet.Entries {
		for _, e := range entries {
			allowed[e.ID] = e
		}
	}
	updated, err := svc.apply(ctx, sheet.tpl, allowed, func(Entry) bool { return true }, inputs)
	if err != nil {
		return EditResult{}, err
	}
	touched := core.NewInt64Set()
	for _, e := range updated {
		touched.Add(e.ReportCardID)
	}

	idx, err := svc.accessIndex(ctx, sheet.term.SchoolYearID)
	if err != nil {
		return EditResult{}, err
	}

	res := EditResult{Entries: updated, Completed: []int64{}}
	err = core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		if err := svc.repo.UpdateEntries(ctx, updated, exec); err != nil {
			return err
		}
		for _, card := range sheet.cards {
			if !touched.Has(card.ReportCard.ID) {
				continue
			}
			rc := card.ReportCard
			rc.UpdatedAt = svc.now()
			if _, err := svc.repo.UpdateReportCard(ctx, rc, exec); err != nil {
				return err
			}
			for _, e := range updated {
				if e.ReportCardID == rc.ID {
					card.byKey[e.Key()] = e
				}
			}
			completed, err := svc.calculateCompleted(ctx, card, actor.Teacher, idx, exec)
			if err != nil {
				return err
			}
			if completed {
				res.Completed = append(res.Completed, card.Student.ID)
			}
		}
		return nil
	})
	if err != nil {
		return EditResult{}, err
	}

	if release {
		if err := svc.ClearLocks(ctx, actor.Editor, sheet.lockTargets()); err != nil {
			svc.logger.Error("clearing editor locks", err)
		}
	}
	return res, nil
}

// Completion

// setCompleted records the teacher's submission. Without a teacher nothing is recorded.
func (svc *Service) setCompleted(ctx context.Context, reportCardID int64, teacher *school.Faculty, completed bool, exec ...core.DBExecutor) (bool, error) {
	if teacher == nil {
		return false, nil
	}
	_, err := svc.repo.SaveSubmission(ctx, Submission{
		ReportCardID: reportCardID,
		FacultyID:    teacher.ID,
		Completed:    completed,
		UpdatedAt:    svc.now(),
	}, exec...)
	if err != nil {
		return false, err
	}
	return completed, nil
}

// SetCompleted records whether the teacher has completed the report card.
func (svc *Service) SetCompleted(ctx context.Context, reportCardID int64, teacher *school.Faculty, completed bool) (bool, error) {
	if _, err := svc.repo.GetReportCard(ctx, reportCardID); err != nil {
		return false, err
	}
	return svc.setCompleted(ctx, reportCardID, teacher, completed)
}

// IsCompleted tells whether the teacher completed the report card. Without a teacher,
// a report card is complete when it has submissions and all of them are complete.
func (svc *Service) IsCompleted(ctx context.Context, reportCardID int64, teacher *school.Faculty) (bool, error) {
	subs, err := svc.repo.QuerySubmissions(ctx, []int64{reportCardID})
	if err != nil {
		return false, err
	}
	if teacher != nil {
		for _, s := range subs {
			if s.FacultyID == teacher.ID {
				return s.Completed, nil
			}
		}
		return false, nil
	}
	if len(subs) == 0 {
		return false, nil
	}
	for _, s := range subs {
		if !s.Completed {
			return false, nil
		}
	}
	return true, nil
}

// calculateCompleted marks the teacher's submission complete when every entry the teacher may edit is complete.
func (svc *Service) calculateCompleted(ctx context.Context, card Card, teacher *school.Faculty, idx accessIndex, exec ...core.DBExecutor) (bool, error) {
	if teacher == nil {
		return false, nil
	}
	acc := idx.accessForTemplate(card.Template, teacher, card.byKey)
	byID := make(map[int64]Entry, len(card.byKey))
	for _, e := range card.byKey {
		byID[e.ID] = e
	}
	for _, id := range acc.EditableIDs {
		if !byID[id].Completed {
			return false, nil
		}
	}
	return svc.setCompleted(ctx, card.ReportCard.ID, teacher, true, exec...)
}

// CalculateCompleted recomputes the teacher's submission of the student's report card.
func (svc *Service) CalculateCompleted(ctx context.Context, studentID, termID int64, teacher *school.Faculty) (bool, error) {
	card, err := svc.GetOrCreate(ctx, studentID, termID)
	if err != nil {
		return false, err
	}
	idx, err := svc.accessIndex(ctx, card.Term.SchoolYearID)
	if err != nil {
		return false, err
	}
	return svc.calculateCompleted(ctx, card, teacher, idx)
}
