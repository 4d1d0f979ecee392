package school

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/indysis/core"
)

const dateLayout = "2006-01-02"

type SchoolYear struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
	GradDate  time.Time `json:"grad_date" db:"grad_date"`
	Active    bool      `json:"active_year" db:"active_year"`
}

// Contains reports whether day falls within the school year.
func (y SchoolYear) Contains(day time.Time) bool {
	return !day.Before(y.StartDate) && !day.After(y.EndDate)
}

// Term is a marking period of a SchoolYear.
type Term struct {
	ID           int64     `json:"id" db:"id"`
	SchoolYearID int64     `json:"school_year_id" db:"school_year_id"`
	Name         string    `json:"name" db:"name"`
	ShortName    string    `json:"shortname" db:"shortname"`
	StartDate    time.Time `json:"start_date" db:"start_date"`
	EndDate      time.Time `json:"end_date" db:"end_date"`
}

type GradeLevel struct {
	ID          int    `json:"id" db:"id"` // the grade number
	Name        string `json:"name" db:"name"`
	ShortName   string `json:"shortname" db:"shortname"`
	NameFR      string `json:"name_fr" db:"name_fr"`
	ShortNameFR string `json:"shortname_fr" db:"shortname_fr"`
	IsActive    bool   `json:"is_active" db:"is_active"`
	NextGradeID *int   `json:"next_grade_id" db:"next_grade_id"`
}

// MailingListName is the parents mailing list for the grade.
func (g GradeLevel) MailingListName() string {
	lname := strings.ToLower(g.Name)
	if strings.Contains(lname, "maternelle") || strings.Contains(lname, "jardin") {
		return "parents-" + strings.ReplaceAll(lname, " ", "")
	}
	return "parents-" + strings.ToLower(strings.TrimSpace(strings.Replace(g.ShortName, "Gr", "", 1)))
}

type Faculty struct {
	ID        int64   `json:"id" db:"id"`
	UserID    *string `json:"user_id" db:"user_id"`
	FirstName string  `json:"first_name" db:"first_name"`
	LastName  string  `json:"last_name" db:"last_name"`
	Email     string  `json:"email" db:"email"`
	Cell      string  `json:"cell" db:"cell"`
	IsTeacher bool    `json:"teacher" db:"teacher"`
	IsActive  bool    `json:"is_active" db:"is_active"`
}

// FullName is "Last, First".
func (f Faculty) FullName() string {
	return joinNames(f.LastName, f.FirstName, ", ")
}

// FullNameNoComma is "First Last".
func (f Faculty) FullNameNoComma() string {
	return joinNames(f.FirstName, f.LastName, " ")
}

type Student struct {
	ID              int64      `json:"id" db:"id"`
	UserID          *string    `json:"user_id" db:"user_id"`
	FirstName       string     `json:"first_name" db:"first_name"`
	MiddleName      string     `json:"mname" db:"mname"`
	LastName        string     `json:"last_name" db:"last_name"`
	Sex             string     `json:"sex" db:"sex"` // M | F
	Birthday        *time.Time `json:"bday" db:"bday"`
	GradeLevelID    *int       `json:"year_id" db:"year_id"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	AfterschoolOnly bool       `json:"afterschool_only" db:"afterschool_only"`
	Street          string     `json:"street" db:"street"`
	City            string     `json:"city" db:"city"`
	State           string     `json:"state" db:"state"`
	Zip             string     `json:"zip" db:"zip"`
	GradDate        *time.Time `json:"grad_date" db:"grad_date"`
	ReasonLeft      string     `json:"reason_left" db:"reason_left"`
}

// FullName is "Last, First".
func (s Student) FullName() string {
	return joinNames(s.LastName, s.FirstName, ", ")
}

// LongName is "First Last".
func (s Student) LongName() string {
	return joinNames(s.FirstName, s.LastName, " ")
}

func (s Student) InGrade(gradeID int) bool {
	return s.GradeLevelID != nil && *s.GradeLevelID == gradeID
}

func joinNames(a, b, sep string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + sep + b
}

type ClassTeacher struct {
	FacultyID int64 `json:"faculty_id" db:"faculty_id"`
	Homeroom  bool  `json:"homeroom" db:"homeroom"`
}

type StudentClass struct {
	ID           int64          `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	ShortName    string         `json:"shortname" db:"shortname"`
	SortOrder    int            `json:"sortorder" db:"sortorder"`
	SchoolYearID int64          `json:"school_year_id" db:"school_year_id"`
	TermIDs      []int64        `json:"term_ids" db:"-"`
	StudentIDs   []int64        `json:"student_ids" db:"-"`
	Teachers     []ClassTeacher `json:"teachers" db:"-"`
}

func (c StudentClass) HasStudent(id int64) bool {
	for _, sid := range c.StudentIDs {
		if sid == id {
			return true
		}
	}
	return false
}

func (c StudentClass) HasTeacher(id int64) bool {
	for _, t := range c.Teachers {
		if t.FacultyID == id {
			return true
		}
	}
	return false
}

// Contact number types
const (
	NumberHome = "H"
	NumberCell = "C"
	NumberWork = "W"
)

type ContactNumber struct {
	Number  string `json:"number" db:"number"`
	Ext     string `json:"ext" db:"ext"`
	Type    string `json:"type" db:"type"`
	Primary bool   `json:"primary" db:"primary_number"`
}

type EmergencyContact struct {
	ID             int64           `json:"id" db:"id"`
	FirstName      string          `json:"fname" db:"fname"`
	LastName       string          `json:"lname" db:"lname"`
	Relationship   string          `json:"relationship_to_student" db:"relationship_to_student"`
	Email          string          `json:"email" db:"email"`
	AltEmail       string          `json:"alt_email" db:"alt_email"`
	PrimaryContact bool            `json:"primary_contact" db:"primary_contact"`
	EmergencyOnly  bool            `json:"emergency_only" db:"emergency_only"`
	StudentIDs     []int64         `json:"student_ids" db:"-"`
	Numbers        []ContactNumber `json:"numbers" db:"-"`
}

func (c EmergencyContact) FullName() string {
	return joinNames(c.FirstName, c.LastName, " ")
}

// IsParent reports whether the contact should receive parent communication.
func (c EmergencyContact) IsParent() bool {
	rel := strings.ToLower(strings.TrimSpace(c.Relationship))
	return !c.EmergencyOnly && rel != "" && rel != "physician"
}

// CellNumber returns the primary cell number, or the first one.
func (c EmergencyContact) CellNumber() string {
	var first string
	for _, n := range c.Numbers {
		if n.Type != NumberCell || n.Number == "" {
			continue
		}
		if n.Primary {
			return n.Number
		}
		if first == "" {
			first = n.Number
		}
	}
	return first
}

// Emails returns the contact's non-empty email addresses.
func (c EmergencyContact) Emails() []string {
	emails := make([]string, 0, 2)
	for _, e := range []string{c.Email, c.AltEmail} {
		if e = core.CleanString(e, true /* lower */); e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}

// Inputs

type NewSchoolYear struct {
	Name      string `json:"name" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	GradDate  string `json:"grad_date"`
	Active    bool   `json:"active_year"`
}

func (ny *NewSchoolYear) Validate(validate *validator.Validate) (SchoolYear, error) {
	ny.Name = core.CleanString(ny.Name)
	if err := validate.Struct(ny); err != nil {
		return SchoolYear{}, err
	}
	start, end, err := parseDateRange(ny.StartDate, ny.EndDate)
	if err != nil {
		return SchoolYear{}, err
	}
	year := SchoolYear{Name: ny.Name, StartDate: start, EndDate: end, Active: ny.Active}
	if ny.GradDate != "" {
		if year.GradDate, err = time.Parse(dateLayout, ny.GradDate); err != nil {
			return SchoolYear{}, core.NewValidationError(nil, core.FieldError{Field: "grad_date", Error: errInvalidDate.Error()})
		}
	}
	return year, nil
}

type NewTerm struct {
	SchoolYearID int64  `json:"school_year_id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	ShortName    string `json:"shortname"`
	StartDate    string `json:"start_date" validate:"required"`
	EndDate      string `json:"end_date" validate:"required"`
}

func (nt *NewTerm) Validate(validate *validator.Validate) (Term, error) {
	nt.Name = core.CleanString(nt.Name)
	nt.ShortName = core.CleanString(nt.ShortName)
	if err := validate.Struct(nt); err != nil {
		return Term{}, err
	}
	start, end, err := parseDateRange(nt.StartDate, nt.EndDate)
	if err != nil {
		return Term{}, err
	}
	return Term{SchoolYearID: nt.SchoolYearID, Name: nt.Name, ShortName: nt.ShortName, StartDate: start, EndDate: end}, nil
}

func parseDateRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, core.NewValidationError(nil, core.FieldError{Field: "start_date", Error: errInvalidDate.Error()})
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: errInvalidDate.Error()})
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, core.NewValidationError(errStartAfterEnd, core.FieldError{Field: "end_date", Error: errStartAfterEnd.Error()})
	}
	return start, end, nil
}

type NewStudent struct {
	FirstName       string  `json:"first_name" validate:"required"`
	MiddleName      string  `json:"mname"`
	LastName        string  `json:"last_name" validate:"required"`
	Sex             string  `json:"sex" validate:"omitempty,oneof=M F"`
	Birthday        string  `json:"bday"`
	GradeLevelID    *int    `json:"year_id"`
	UserID          *string `json:"user_id"`
	AfterschoolOnly bool    `json:"afterschool_only"`
	Street          string  `json:"street"`
	City            string  `json:"city"`
	State           string  `json:"state"`
	Zip             string  `json:"zip"`
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, svc *Service) (Student, error) {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.MiddleName = core.CleanString(ns.MiddleName)
	if err := validate.Struct(ns); err != nil {
		return Student{}, err
	}
	st := Student{
		UserID:          ns.UserID,
		FirstName:       ns.FirstName,
		MiddleName:      ns.MiddleName,
		LastName:        ns.LastName,
		Sex:             ns.Sex,
		GradeLevelID:    ns.GradeLevelID,
		IsActive:        true,
		AfterschoolOnly: ns.AfterschoolOnly,
		Street:          core.CleanString(ns.Street),
		City:            core.CleanString(ns.City),
		State:           core.CleanString(ns.State),
		Zip:             core.CleanString(ns.Zip),
	}
	if ns.Birthday != "" {
		bday, err := time.Parse(dateLayout, ns.Birthday)
		if err != nil {
			return Student{}, core.NewValidationError(nil, core.FieldError{Field: "bday", Error: errInvalidDate.Error()})
		}
		st.Birthday = &bday
	}
	if err := svc.checkPersonRole(ctx, st.UserID, true); err != nil {
		return Student{}, err
	}
	return st, nil
}

type NewFaculty struct {
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Email     string  `json:"email" validate:"omitempty,email"`
	Cell      string  `json:"cell" validate:"omitempty,phone"`
	IsTeacher bool    `json:"teacher"`
	UserID    *string `json:"user_id"`
}

func (nf *NewFaculty) Validate(ctx context.Context, validate *validator.Validate, svc *Service) (Faculty, error) {
	nf.FirstName = core.CleanString(nf.FirstName)
	nf.LastName = core.CleanString(nf.LastName)
	nf.Email = core.CleanString(nf.Email, true /* lower */)
	if err := validate.Struct(nf); err != nil {
		return Faculty{}, err
	}
	fac := Faculty{
		UserID:    nf.UserID,
		FirstName: nf.FirstName,
		LastName:  nf.LastName,
		Email:     nf.Email,
		Cell:      core.CleanString(nf.Cell),
		IsTeacher: nf.IsTeacher,
		IsActive:  true,
	}
	if err := svc.checkPersonRole(ctx, fac.UserID, false); err != nil {
		return Faculty{}, err
	}
	return fac, nil
}

type StudentFilter struct {
	IDs          []int64 `query:"id"`
	Search       string  `query:"search"`
	GradeLevelID *int    `query:"year_id"`
	IsActive     *bool   `query:"is_active"`
	HasGrade     bool    `query:"has_grade"`
}

type ClassFilter struct {
	IDs          []int64 `query:"id"`
	SchoolYearID int64   `query:"school_year_id"`
	StudentID    int64   `query:"student_id"`
	FacultyID    int64   `query:"faculty_id"`
}

type FacultyFilter struct {
	IDs      []int64 `query:"id"`
	UserID   string  `query:"user_id"`
	IsActive *bool   `query:"is_active"`
}

type ContactFilter struct {
	StudentIDs []int64
}

// SortStudents orders students by last then first name.
func SortStudents(students []Student) {
	sortStudents(students)
}
