package reportcard

import (
	"fmt"
	"strings"
	"time"
)

const copySuffix = " (copy)"

// Subject & strand languages
const (
	LangEN = "en"
	LangFR = "fr"
)

// Editor lock types
const (
	EditStudent = "student"
	EditSubject = "subject"
)

type Choice struct {
	ID           int64  `json:"id" db:"id"`
	LevelID      int64  `json:"level_id" db:"level_id"`
	SortOrder    int    `json:"sortorder" db:"sortorder"`
	Code         string `json:"choice" db:"choice" validate:"required,max=8"`
	Name         string `json:"name" db:"name"`
	Description  string `json:"description" db:"description"`
	ViewFullName bool   `json:"view_fullname" db:"view_fullname"`
}

// Display is what an entry form shows for the choice.
func (c Choice) Display() string {
	if c.ViewFullName && c.Name != "" {
		return c.Name
	}
	return c.Code
}

type Level struct {
	ID          int64    `json:"id" db:"id"`
	SchemeID    int64    `json:"gradingscheme_id" db:"gradingscheme_id"`
	SortOrder   int      `json:"sortorder" db:"sortorder"`
	Range       string   `json:"range" db:"range"`
	Description string   `json:"description" db:"description"`
	Choices     []Choice `json:"choices" db:"-" validate:"dive"`
}

type GradingScheme struct {
	ID           int64   `json:"id" db:"id"`
	Name         string  `json:"name" db:"name" validate:"required"`
	Percentile   bool    `json:"percentile" db:"percentile"`
	MinValue     *int    `json:"min_value" db:"min_value" validate:"omitempty,min=0,max=100"`
	RangeHeading string  `json:"range_heading" db:"range_heading"`
	DescrHeading string  `json:"descr_heading" db:"descr_heading"`
	Levels       []Level `json:"levels" db:"-" validate:"dive"`
}

// Choice finds the choice with id among the scheme's levels.
func (g GradingScheme) Choice(id int64) (Choice, bool) {
	for _, lvl := range g.Levels {
		for _, c := range lvl.Choices {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Choice{}, false
}

// Copy returns a deep copy of the scheme without IDs.
func (g GradingScheme) Copy() GradingScheme {
	cp := g
	cp.ID = 0
	cp.Name = g.Name + copySuffix
	cp.Levels = make([]Level, 0, len(g.Levels))
	for _, lvl := range g.Levels {
		l := lvl
		l.ID, l.SchemeID = 0, 0
		l.Choices = make([]Choice, 0, len(lvl.Choices))
		for _, c := range lvl.Choices {
			c.ID, c.LevelID = 0, 0
			l.Choices = append(l.Choices, c)
		}
		cp.Levels = append(cp.Levels, l)
	}
	return cp
}

type Strand struct {
	ID        int64  `json:"id" db:"id"`
	SubjectID int64  `json:"subject_id" db:"subject_id"`
	SortOrder int    `json:"sortorder" db:"sortorder"`
	TextEN    string `json:"text_en" db:"text_en"`
	TextFR    string `json:"text_fr" db:"text_fr"`
	Graded    bool   `json:"graded" db:"graded"`
	FieldCode string `json:"field_code" db:"field_code"`
	Language  string `json:"rc_language" db:"rc_language"`
}

type Subject struct {
	ID              int64    `json:"id" db:"id"`
	SectionID       int64    `json:"section_id" db:"section_id"`
	SortOrder       int      `json:"sortorder" db:"sortorder"`
	NameEN          string   `json:"name_en" db:"name_en"`
	NameFR          string   `json:"name_fr" db:"name_fr"`
	TextEN          string   `json:"text_en" db:"text_en"`
	TextFR          string   `json:"text_fr" db:"text_fr"`
	CommentsArea    bool     `json:"comments_area" db:"comments_area"`
	CommentsHeading string   `json:"comments_heading" db:"comments_heading"`
	Graded          bool     `json:"graded" db:"graded"`
	FieldCode       string   `json:"field_code" db:"field_code"`
	Language        string   `json:"rc_language" db:"rc_language"`
	PageBreakAfter  bool     `json:"page_break_after" db:"page_break_after"`
	Strands         []Strand `json:"strands" db:"-"`
}

// Name returns the subject name in the report card language.
func (s Subject) Name() string {
	if s.Language == LangFR && s.NameFR != "" {
		return s.NameFR
	}
	return s.NameEN
}

// EntryFormLabel is "english / french", or a single name when both are equal.
func (s Subject) EntryFormLabel() string {
	if s.NameFR == "" || s.NameEN == s.NameFR {
		return s.NameEN
	}
	return s.NameEN + " / " + s.NameFR
}

type Section struct {
	ID                       int64     `json:"id" db:"id"`
	TemplateID               int64     `json:"template_id" db:"template_id"`
	SortOrder                int       `json:"sortorder" db:"sortorder"`
	Name                     string    `json:"name" db:"name"`
	Heading                  string    `json:"heading" db:"heading"`
	Text                     string    `json:"text" db:"text"`
	GradingSchemeID          int64     `json:"gradingscheme_id" db:"gradingscheme_id"`
	GradingSchemeLabel       string    `json:"gradingscheme_label" db:"gradingscheme_label"`
	SecondGradingSchemeID    *int64    `json:"second_gradingscheme_id" db:"second_gradingscheme_id"`
	SecondGradingSchemeLabel string    `json:"second_gradingscheme_label" db:"second_gradingscheme_label"`
	CommentsArea             bool      `json:"comments_area" db:"comments_area"`
	CommentsHeading          string    `json:"comments_heading" db:"comments_heading"`
	FieldCode                string    `json:"field_code" db:"field_code"`
	PageBreakAfter           bool      `json:"page_break_after" db:"page_break_after"`
	Subjects                 []Subject `json:"subjects" db:"-"`
}

func (s Section) HasSecondScheme() bool { return s.SecondGradingSchemeID != nil }

type Template struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	Description   string    `json:"description" db:"description"`
	Interim       bool      `json:"interim" db:"interim"`
	GradeLevelIDs []int     `json:"grade_ids" db:"-"`
	Sections      []Section `json:"sections" db:"-"`
}

func (t Template) HasGrade(gradeID int) bool {
	for _, id := range t.GradeLevelIDs {
		if id == gradeID {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the template tree without IDs.
func (t Template) Copy() Template {
	cp := t
	cp.ID = 0
	cp.Name = t.Name + copySuffix
	cp.GradeLevelIDs = append([]int(nil), t.GradeLevelIDs...)
	cp.Sections = make([]Section, 0, len(t.Sections))
	for _, sect := range t.Sections {
		s := sect
		s.ID, s.TemplateID = 0, 0
		s.Subjects = make([]Subject, 0, len(sect.Subjects))
		for _, subj := range sect.Subjects {
			sb := subj
			sb.ID, sb.SectionID = 0, 0
			sb.Strands = make([]Strand, 0, len(subj.Strands))
			for _, str := range subj.Strands {
				str.ID, str.SubjectID = 0, 0
				sb.Strands = append(sb.Strands, str)
			}
			s.Subjects = append(s.Subjects, sb)
		}
		cp.Sections = append(cp.Sections, s)
	}
	return cp
}

// Section finds a section by id.
func (t Template) Section(id int64) (*Section, bool) {
	for i := range t.Sections {
		if t.Sections[i].ID == id {
			return &t.Sections[i], true
		}
	}
	return nil, false
}

// Subject finds a subject and its section by subject id.
func (t Template) Subject(id int64) (*Section, *Subject, bool) {
	for i := range t.Sections {
		sect := &t.Sections[i]
		for j := range sect.Subjects {
			if sect.Subjects[j].ID == id {
				return sect, &sect.Subjects[j], true
			}
		}
	}
	return nil, nil, false
}

// Elements lists every section, subject and strand of the template in report card order.
func (t Template) Elements() []Element {
	var els []Element
	for i := range t.Sections {
		sect := &t.Sections[i]
		els = append(els, Element{Section: sect})
		for j := range sect.Subjects {
			subj := &sect.Subjects[j]
			els = append(els, Element{Section: sect, Subject: subj})
			for k := range subj.Strands {
				els = append(els, Element{Section: sect, Subject: subj, Strand: &subj.Strands[k]})
			}
		}
	}
	return els
}

// GradingSchemeIDs returns the unique grading schemes used by the template, in section order.
func (t Template) GradingSchemeIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, sect := range t.Sections {
		add(sect.GradingSchemeID)
		if sect.SecondGradingSchemeID != nil {
			add(*sect.SecondGradingSchemeID)
		}
	}
	return ids
}

// Element is a fillable piece of a template: a section, a subject of a section or a strand of a subject.
type Element struct {
	Section *Section
	Subject *Subject
	Strand  *Strand
}

// Key identifies the element within a report card.
func (e Element) Key() ElementKey {
	k := ElementKey{SectionID: e.Section.ID}
	if e.Subject != nil {
		k.SubjectID = e.Subject.ID
	}
	if e.Strand != nil {
		k.StrandID = e.Strand.ID
	}
	return k
}

// Label is a human readable name of the element.
func (e Element) Label() string {
	parts := []string{e.Section.Name}
	if e.Subject != nil {
		parts = append(parts, e.Subject.EntryFormLabel())
	}
	if e.Strand != nil {
		parts = append(parts, e.Strand.TextEN)
	}
	return strings.Join(parts, " - ")
}

// ElementKey is the (section, subject, strand) triple that is unique per report card. Zero means none.
type ElementKey struct {
	SectionID int64
	SubjectID int64
	StrandID  int64
}

// Term is a report card term. Each school year has several of them.
type Term struct {
	ID                 int64      `json:"id" db:"id"`
	SchoolYearID       int64      `json:"school_year_id" db:"school_year_id"`
	MarkingPeriodID    int64      `json:"term_id" db:"term_id"`
	Number             int        `json:"number" db:"number"`
	Name               string     `json:"name" db:"name"`
	Title              string     `json:"title" db:"title"`
	IsOpen             bool       `json:"is_open" db:"is_open"`
	Interim            bool       `json:"interim" db:"interim"`
	SubmissionDeadline *time.Time `json:"submission_deadline" db:"submission_deadline"`
	ReviewDeadline     *time.Time `json:"review_deadline" db:"review_deadline"`
	DeliveryDate       *time.Time `json:"delivery_date" db:"delivery_date"`
	ShortCode          string     `json:"shortcode" db:"shortcode"`
	DisplayLabel       string     `json:"displabel" db:"displabel"`
	EmailSubject       string     `json:"email_subject_template" db:"email_subject_template"`
	EmailBody          string     `json:"email_body_template" db:"email_body_template"`
	TemplateIDs        []int64    `json:"template_ids" db:"-"`
}

const (
	defaultEmailSubject = "{{.Term.Name}} Report Card / Bulletin: {{.Student.LongName}}"
	defaultEmailBody    = "The report card for {{.Student.LongName}} is below."
)

func (t Term) Status() string {
	if t.IsOpen {
		return "Open"
	}
	return "Closed"
}

func (t Term) HasTemplate(id int64) bool {
	for _, tid := range t.TemplateIDs {
		if tid == id {
			return true
		}
	}
	return false
}

func (t Term) String() string {
	if t.Interim {
		return fmt.Sprintf("%s (Interim)", t.Name)
	}
	return t.Name
}

// Copy returns a closed copy of the term.
func (t Term) Copy() Term {
	cp := t
	cp.ID = 0
	cp.Name = t.Name + copySuffix
	cp.IsOpen = false
	cp.TemplateIDs = append([]int64(nil), t.TemplateIDs...)
	return cp
}

type ReportCard struct {
	ID           int64     `json:"id" db:"id"`
	StudentID    int64     `json:"student_id" db:"student_id"`
	TermID       int64     `json:"term_id" db:"term_id"`
	TemplateID   int64     `json:"template_id" db:"template_id"`
	GradeLevelID *int      `json:"grade_level_id" db:"grade_level_id"`
	Emailed      bool      `json:"emailed" db:"emailed"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type Entry struct {
	ID               int64   `json:"id" db:"id"`
	ReportCardID     int64   `json:"reportcard_id" db:"reportcard_id"`
	SectionID        int64   `json:"section_id" db:"section_id"`
	SubjectID        *int64  `json:"subject_id" db:"subject_id"`
	StrandID         *int64  `json:"strand_id" db:"strand_id"`
	Percentile       *int    `json:"percentile" db:"percentile"`
	ChoiceID         *int64  `json:"choice_id" db:"choice_id"`
	SecondPercentile *int    `json:"second_percentile" db:"second_percentile"`
	SecondChoiceID   *int64  `json:"second_choice_id" db:"second_choice_id"`
	Comment          *string `json:"comment" db:"comment"`
	Completed        bool    `json:"completed" db:"completed"`
}

func (e Entry) Key() ElementKey {
	k := ElementKey{SectionID: e.SectionID}
	if e.SubjectID != nil {
		k.SubjectID = *e.SubjectID
	}
	if e.StrandID != nil {
		k.StrandID = *e.StrandID
	}
	return k
}

// UniqueKey is "reportcard-section-subject-strand".
func (e Entry) UniqueKey() string {
	k := e.Key()
	return fmt.Sprintf("%d-%d-%d-%d", e.ReportCardID, k.SectionID, k.SubjectID, k.StrandID)
}

// IsStrand, IsSubject & IsSection tell which element the entry is for.
func (e Entry) IsStrand() bool  { return e.StrandID != nil }
func (e Entry) IsSubject() bool { return e.StrandID == nil && e.SubjectID != nil }
func (e Entry) IsSection() bool { return e.StrandID == nil && e.SubjectID == nil }

// Submission records one teacher's completion of a report card.
type Submission struct {
	ID           int64     `json:"id" db:"id"`
	ReportCardID int64     `json:"reportcard_id" db:"reportcard_id"`
	FacultyID    int64     `json:"faculty_id" db:"faculty_id"`
	Completed    bool      `json:"completed" db:"completed"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AccessRule grants the listed teachers the listed subjects and sections for the listed classes.
type AccessRule struct {
	ID          int64   `json:"id" db:"id"`
	Description string  `json:"description" db:"description"`
	ClassIDs    []int64 `json:"class_ids" db:"-"`
	FacultyIDs  []int64 `json:"faculty_ids" db:"-"`
	SubjectIDs  []int64 `json:"subject_ids" db:"-"`
	SectionIDs  []int64 `json:"section_ids" db:"-"`
}

// Copy returns a copy of the rule without ID.
func (r AccessRule) Copy() AccessRule {
	return AccessRule{
		Description: r.Description + copySuffix,
		ClassIDs:    append([]int64(nil), r.ClassIDs...),
		FacultyIDs:  append([]int64(nil), r.FacultyIDs...),
		SubjectIDs:  append([]int64(nil), r.SubjectIDs...),
		SectionIDs:  append([]int64(nil), r.SectionIDs...),
	}
}

// EditorLock tracks a user editing a student's subject.
type EditorLock struct {
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	StudentID   int64     `json:"student_id"`
	StudentName string    `json:"student_name"`
	SubjectID   int64     `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	EditType    string    `json:"edit_type"`
	LastPing    time.Time `json:"last_ping"`
}
