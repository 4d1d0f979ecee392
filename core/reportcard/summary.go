package reportcard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

const draftMarker = "DRAFT / PRÉLIMINAIRE"

var frMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// Summary holds the report card fields printed around the entries.
type Summary struct {
	Year            string `json:"Year"`
	TermNo          int    `json:"TermNo"`
	StudentName     string `json:"StudentName"`
	TermAbsences    string `json:"TermAbsences"`
	YearAbsences    string `json:"YearAbsences"`
	TermLates       string `json:"TermLates"`
	YearLates       string `json:"YearLates"`
	GradeEN         string `json:"GradeEN"`
	GradeFR         string `json:"GradeFR"`
	GradeCodeEN     string `json:"GradeCodeEN"`
	GradeCodeFR     string `json:"GradeCodeFR"`
	DeliveryDateEN  string `json:"DeliveryDateEN"`
	DeliveryDateNN  string `json:"DeliveryDateNN"`
	DeliveryDateFR  string `json:"DeliveryDateFR"`
	StudentDOB      string `json:"StudentDOB"`
	Addr1           string `json:"Addr1"`
	Addr2           string `json:"Addr2"`
	Addr3           string `json:"Addr3"`
	HomeRoomTeacher string `json:"HomeRoomTeacher"`
	Draft           string `json:"Draft"`
	Filename        string `json:"filename"`
}

// Filename is "<grade> - <Last, First>[ (Draft)].pdf".
func Filename(grade school.GradeLevel, st school.Student, term Term) string {
	parts := []string{grade.Name, "-", st.FullName()}
	if term.IsOpen {
		parts = append(parts, "(Draft)")
	}
	return strings.Join(parts, " ") + ".pdf"
}

func formatDateFR(d time.Time) string {
	return fmt.Sprintf("%d %s %d", d.Day(), frMonths[d.Month()-1], d.Year())
}

// Summary computes the report card's summary fields.
func (svc *Service) Summary(ctx context.Context, reportCardID int64) (Summary, error) {
	rc, err := svc.repo.GetReportCard(ctx, reportCardID)
	if err != nil {
		return Summary{}, err
	}
	term, err := svc.repo.GetTerm(ctx, rc.TermID)
	if err != nil {
		return Summary{}, err
	}
	st, err := svc.dir.GetStudent(ctx, rc.StudentID)
	if err != nil {
		return Summary{}, err
	}
	return svc.summary(ctx, st, term)
}

func (svc *Service) summary(ctx context.Context, st school.Student, term Term) (Summary, error) {
	year, err := svc.dir.GetSchoolYear(ctx, term.SchoolYearID)
	if err != nil {
		return Summary{}, err
	}
	period, err := svc.dir.GetTerm(ctx, term.MarkingPeriodID)
	if err != nil {
		return Summary{}, err
	}

	termAtt, err := svc.att.Summaries(ctx, []int64{st.ID}, period.StartDate, period.EndDate)
	if err != nil {
		return Summary{}, err
	}
	yearAtt, err := svc.att.Summaries(ctx, []int64{st.ID}, year.StartDate, year.EndDate)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Year:         year.Name,
		TermNo:       term.Number,
		StudentName:  st.LongName(),
		TermAbsences: fmt.Sprintf("%1.1f", termAtt[st.ID].DaysAbsent),
		YearAbsences: fmt.Sprintf("%1.1f", yearAtt[st.ID].DaysAbsent),
		TermLates:    fmt.Sprintf("%1d", termAtt[st.ID].TimesLate),
		YearLates:    fmt.Sprintf("%1d", yearAtt[st.ID].TimesLate),
		Addr1:        st.Street,
		Addr2:        strings.Join([]string{st.City, st.State}, ", "),
		Addr3:        st.Zip,
	}

	var grade school.GradeLevel
	if st.GradeLevelID != nil {
		if grade, err = svc.dir.GetGradeLevel(ctx, *st.GradeLevelID); err != nil {
			return Summary{}, err
		}
		sum.GradeEN = grade.Name
		sum.GradeFR = grade.NameFR
		sum.GradeCodeEN = grade.ShortName
		sum.GradeCodeFR = grade.ShortNameFR
	}
	if d := term.DeliveryDate; d != nil {
		sum.DeliveryDateEN = d.Format("January 2, 2006")
		sum.DeliveryDateNN = d.Format("02-01-2006")
		sum.DeliveryDateFR = formatDateFR(*d)
	}
	if st.Birthday != nil {
		sum.StudentDOB = st.Birthday.Format("02-01-2006")
	}

	hrt, err := svc.dir.HomeroomTeacher(ctx, st.ID, term.SchoolYearID)
	switch {
	case err == nil:
		sum.HomeRoomTeacher = hrt.FullNameNoComma()
	case !core.IsNotFound(err):
		return Summary{}, err
	}

	if term.IsOpen {
		sum.Draft = draftMarker
	}
	sum.Filename = Filename(grade, st, term)
	return sum, nil
}

// SummaryLine is a filled element of a report card.
type SummaryLine struct {
	Label   string `json:"label"`
	Mark    string `json:"mark"`
	Comment string `json:"comment"`
}

// summaryLines lists the card's filled elements in template order.
func (svc *Service) summaryLines(ctx context.Context, card Card) ([]SummaryLine, error) {
	schemesBySection, err := svc.templateSchemes(ctx, card.Template)
	if err != nil {
		return nil, err
	}
	var lines []SummaryLine
	for _, el := range card.Template.Elements() {
		e, ok := card.Entry(el.Key())
		if !ok {
			continue
		}
		var line SummaryLine
		graded := (el.Strand != nil && el.Strand.Graded) || (el.Strand == nil && el.Subject != nil && el.Subject.Graded)
		if graded {
			sc := schemesBySection[el.Section.ID]
			if hasMark(sc.main, e.Percentile, e.ChoiceID) {
				line.Mark = markOrGrade(e, sc.main)
			}
		}
		if e.Comment != nil {
			line.Comment = *e.Comment
		}
		if line.Mark == "" && line.Comment == "" {
			continue
		}
		line.Label = el.Label()
		lines = append(lines, line)
	}
	return lines, nil
}

// CommentMark is one mark of a comment report row.
type CommentMark struct {
	Label string `json:"label"`
	Mark  string `json:"mark"`
}

type CommentRow struct {
	StudentID   int64         `json:"student_id"`
	StudentName string        `json:"student_name"`
	Marks       []CommentMark `json:"marks"`
	Comments    string        `json:"comments"`
}

type CommentReportItem struct {
	Name    string       `json:"name"`
	Teacher string       `json:"teacher"`
	Grid    []CommentRow `json:"grid"`
}

// CommentReport gathers the marks & comments of every report card of a grade for a term.
type CommentReport struct {
	Grade    string              `json:"grade"`
	Draft    bool                `json:"draft"`
	Subjects []CommentReportItem `json:"subjects"`
}

func (svc *Service) CommentReport(ctx context.Context, gradeID int, termID int64) (CommentReport, error) {
	term, err := svc.repo.GetTerm(ctx, termID)
	if err != nil {
		return CommentReport{}, err
	}
	grade, err := svc.dir.GetGradeLevel(ctx, gradeID)
	if err != nil {
		return CommentReport{}, err
	}
	report := CommentReport{Grade: grade.Name, Draft: term.IsOpen, Subjects: []CommentReportItem{}}

	students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{GradeLevelID: &gradeID})
	if err != nil {
		return CommentReport{}, err
	}
	byID := make(map[int64]school.Student, len(students))
	ids := make([]int64, 0, len(students))
	for _, st := range students {
		byID[st.ID] = st
		ids = append(ids, st.ID)
	}
	if len(ids) == 0 {
		return report, nil
	}
	rcs, err := svc.repo.QueryReportCards(ctx, ReportCardFilter{TermIDs: []int64{term.ID}, StudentIDs: ids})
	if err != nil {
		return CommentReport{}, err
	}
	if len(rcs) == 0 {
		return report, nil
	}
	sort.SliceStable(rcs, func(i, j int) bool {
		a, b := byID[rcs[i].StudentID], byID[rcs[j].StudentID]
		return strings.ToLower(a.FullName()) < strings.ToLower(b.FullName())
	})

	tpl, err := svc.repo.GetTemplate(ctx, rcs[0].TemplateID)
	if err != nil {
		return CommentReport{}, err
	}
	schemesBySection, err := svc.templateSchemes(ctx, tpl)
	if err != nil {
		return CommentReport{}, err
	}
	cards := make([]Card, 0, len(rcs))
	for _, rc := range rcs {
		entries, err := svc.repo.QueryEntries(ctx, EntryFilter{ReportCardIDs: []int64{rc.ID}})
		if err != nil {
			return CommentReport{}, err
		}
		cards = append(cards, newCard(rc, byID[rc.StudentID], term, tpl, entries))
	}

	rules, err := svc.repo.QueryAccessRules(ctx)
	if err != nil {
		return CommentReport{}, err
	}
	faculty, err := svc.dir.QueryFaculty(ctx, school.FacultyFilter{})
	if err != nil {
		return CommentReport{}, err
	}
	teacherNames := func(covers func(AccessRule) bool) string {
		var names []string
		for _, f := range faculty {
			for _, r := range rules {
				if r.HasTeacher(f.ID) && covers(r) {
					names = append(names, f.FullNameNoComma())
					break
				}
			}
		}
		sort.Strings(names)
		return strings.Join(names, " and ")
	}

	var homeroom string
	if hrt, err := svc.dir.HomeroomTeacher(ctx, cards[0].Student.ID, term.SchoolYearID); err == nil {
		homeroom = hrt.FullNameNoComma()
	} else if !core.IsNotFound(err) {
		return CommentReport{}, err
	}

	for _, sect := range tpl.Sections {
		sect := sect
		sc := schemesBySection[sect.ID]
		if sect.CommentsArea {
			item := CommentReportItem{Name: sect.Name, Teacher: homeroom, Grid: make([]CommentRow, 0, len(cards))}
			for _, c := range cards {
				row := CommentRow{StudentID: c.Student.ID, StudentName: c.Student.FullName(), Marks: []CommentMark{}}
				if e, ok := c.Entry(ElementKey{SectionID: sect.ID}); ok && e.Comment != nil {
					row.Comments = *e.Comment
				}
				for _, subj := range sect.Subjects {
					if !subj.Graded {
						continue
					}
					if e, ok := c.Entry(ElementKey{SectionID: sect.ID, SubjectID: subj.ID}); ok {
						row.Marks = append(row.Marks, CommentMark{Label: subj.Name(), Mark: markOrGrade(e, sc.main)})
					}
				}
				item.Grid = append(item.Grid, row)
			}
			report.Subjects = append(report.Subjects, item)
		}

		for _, subj := range sect.Subjects {
			subj := subj
			teachers := teacherNames(func(r AccessRule) bool {
				return containsID(r.SectionIDs, sect.ID) || containsID(r.SubjectIDs, subj.ID)
			})
			item := CommentReportItem{Name: subj.Name(), Teacher: teachers, Grid: make([]CommentRow, 0, len(cards))}
			for _, c := range cards {
				row := CommentRow{StudentID: c.Student.ID, StudentName: c.Student.FullName(), Marks: []CommentMark{}}
				if e, ok := c.Entry(ElementKey{SectionID: sect.ID, SubjectID: subj.ID}); ok {
					if subj.CommentsArea && e.Comment != nil {
						row.Comments = *e.Comment
					}
					if subj.Graded {
						row.Marks = append(row.Marks, CommentMark{Label: subj.Name(), Mark: markOrGrade(e, sc.main)})
					}
				}
				for _, str := range subj.Strands {
					if !str.Graded {
						continue
					}
					if e, ok := c.Entry(ElementKey{SectionID: sect.ID, SubjectID: subj.ID, StrandID: str.ID}); ok {
						row.Marks = append(row.Marks, CommentMark{Label: strandLabel(str), Mark: markOrGrade(e, sc.main)})
					}
				}
				item.Grid = append(item.Grid, row)
			}
			report.Subjects = append(report.Subjects, item)
		}
	}
	return report, nil
}

func strandLabel(s Strand) string {
	if s.Language == LangFR && s.TextFR != "" {
		return s.TextFR
	}
	return s.TextEN
}
