package school

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
)

var (
	// errors
	ErrYearNotFound    = core.NewNotFoundError("school year")
	ErrTermNotFound    = core.NewNotFoundError("term")
	ErrGradeNotFound   = core.NewNotFoundError("grade level")
	ErrFacultyNotFound = core.NewNotFoundError("faculty")
	ErrStudentNotFound = core.NewNotFoundError("student")
	ErrClassNotFound   = core.NewNotFoundError("class")
	ErrContactNotFound = core.NewNotFoundError("contact")
	ErrNoActiveYear    = errors.New("no active school year")
	ErrStudentFaculty  = errors.New("a person cannot be both a student and a faculty member")

	errInvalidDate   = errors.New("enter a valid date (YYYY-MM-DD)")
	errStartAfterEnd = errors.New("start date must not be after end date")
)

const reasonGraduated = "Graduated"

type Repository interface {
	CreateSchoolYear(ctx context.Context, year SchoolYear, exec ...core.DBExecutor) (SchoolYear, error)
	UpdateSchoolYear(ctx context.Context, year SchoolYear, exec ...core.DBExecutor) (SchoolYear, error)
	GetSchoolYear(ctx context.Context, id int64, exec ...core.DBExecutor) (SchoolYear, error)
	GetActiveSchoolYear(ctx context.Context, exec ...core.DBExecutor) (SchoolYear, error)
	QuerySchoolYears(ctx context.Context, exec ...core.DBExecutor) ([]SchoolYear, error)
	// DeactivateSchoolYears clears the active flag of every year but exceptID.
	DeactivateSchoolYears(ctx context.Context, exceptID int64, exec ...core.DBExecutor) error

	CreateTerm(ctx context.Context, term Term, exec ...core.DBExecutor) (Term, error)
	GetTerm(ctx context.Context, id int64, exec ...core.DBExecutor) (Term, error)
	QueryTerms(ctx context.Context, schoolYearID int64, exec ...core.DBExecutor) ([]Term, error)

	SaveGradeLevel(ctx context.Context, grade GradeLevel, exec ...core.DBExecutor) (GradeLevel, error)
	GetGradeLevel(ctx context.Context, id int, exec ...core.DBExecutor) (GradeLevel, error)
	QueryGradeLevels(ctx context.Context, exec ...core.DBExecutor) ([]GradeLevel, error)

	CreateFaculty(ctx context.Context, fac Faculty, exec ...core.DBExecutor) (Faculty, error)
	UpdateFaculty(ctx context.Context, fac Faculty, exec ...core.DBExecutor) (Faculty, error)
	GetFaculty(ctx context.Context, id int64, exec ...core.DBExecutor) (Faculty, error)
	QueryFaculty(ctx context.Context, filter FacultyFilter, exec ...core.DBExecutor) ([]Faculty, error)

	CreateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
	UpdateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
	GetStudent(ctx context.Context, id int64, exec ...core.DBExecutor) (Student, error)
	QueryStudents(ctx context.Context, filter StudentFilter, exec ...core.DBExecutor) ([]Student, error)

	CreateClass(ctx context.Context, class StudentClass, exec ...core.DBExecutor) (StudentClass, error)
	UpdateClass(ctx context.Context, class StudentClass, exec ...core.DBExecutor) (StudentClass, error)
	GetClass(ctx context.Context, id int64, exec ...core.DBExecutor) (StudentClass, error)
	QueryClasses(ctx context.Context, filter ClassFilter, exec ...core.DBExecutor) ([]StudentClass, error)

	CreateContact(ctx context.Context, contact EmergencyContact, exec ...core.DBExecutor) (EmergencyContact, error)
	QueryContacts(ctx context.Context, filter ContactFilter, exec ...core.DBExecutor) ([]EmergencyContact, error)
}

type Service struct {
	db   core.DB
	repo Repository
}

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

// School years

func (svc *Service) CreateSchoolYear(ctx context.Context, year SchoolYear) (SchoolYear, error) {
	var created SchoolYear
	err := core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if created, err = svc.repo.CreateSchoolYear(ctx, year, exec); err != nil {
			return err
		}
		if created.Active {
			return svc.repo.DeactivateSchoolYears(ctx, created.ID, exec)
		}
		return nil
	})
	return created, err
}

// SetActiveYear makes year the only active school year.
func (svc *Service) SetActiveYear(ctx context.Context, id int64) (SchoolYear, error) {
	var year SchoolYear
	err := core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if year, err = svc.repo.GetSchoolYear(ctx, id, exec); err != nil {
			return err
		}
		year.Active = true
		if year, err = svc.repo.UpdateSchoolYear(ctx, year, exec); err != nil {
			return err
		}
		return svc.repo.DeactivateSchoolYears(ctx, year.ID, exec)
	})
	return year, err
}

func (svc *Service) GetSchoolYear(ctx context.Context, id int64) (SchoolYear, error) {
	return svc.repo.GetSchoolYear(ctx, id)
}

// CurrentYear returns the active school year.
func (svc *Service) CurrentYear(ctx context.Context) (SchoolYear, error) {
	year, err := svc.repo.GetActiveSchoolYear(ctx)
	if errors.Cause(err) == ErrYearNotFound {
		return SchoolYear{}, ErrNoActiveYear
	}
	return year, err
}

func (svc *Service) QuerySchoolYears(ctx context.Context) ([]SchoolYear, error) {
	return svc.repo.QuerySchoolYears(ctx)
}

// Terms

func (svc *Service) CreateTerm(ctx context.Context, term Term) (Term, error) {
	if term.StartDate.After(term.EndDate) {
		return Term{}, core.NewValidationError(errStartAfterEnd, core.FieldError{Field: "end_date", Error: errStartAfterEnd.Error()})
	}
	if _, err := svc.repo.GetSchoolYear(ctx, term.SchoolYearID); err != nil {
		return Term{}, err
	}
	return svc.repo.CreateTerm(ctx, term)
}

func (svc *Service) GetTerm(ctx context.Context, id int64) (Term, error) {
	return svc.repo.GetTerm(ctx, id)
}

func (svc *Service) QueryTerms(ctx context.Context, schoolYearID int64) ([]Term, error) {
	return svc.repo.QueryTerms(ctx, schoolYearID)
}

// Grade levels

func (svc *Service) SaveGradeLevel(ctx context.Context, grade GradeLevel) (GradeLevel, error) {
	grade.Name = core.CleanString(grade.Name)
	if grade.Name == "" {
		return GradeLevel{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
	}
	return svc.repo.SaveGradeLevel(ctx, grade)
}

func (svc *Service) GetGradeLevel(ctx context.Context, id int) (GradeLevel, error) {
	return svc.repo.GetGradeLevel(ctx, id)
}

func (svc *Service) QueryGradeLevels(ctx context.Context) ([]GradeLevel, error) {
	return svc.repo.QueryGradeLevels(ctx)
}

// Faculty

func (svc *Service) CreateFaculty(ctx context.Context, fac Faculty) (Faculty, error) {
	return svc.repo.CreateFaculty(ctx, fac)
}

func (svc *Service) UpdateFaculty(ctx context.Context, fac Faculty) (Faculty, error) {
	return svc.repo.UpdateFaculty(ctx, fac)
}

func (svc *Service) GetFaculty(ctx context.Context, id int64) (Faculty, error) {
	return svc.repo.GetFaculty(ctx, id)
}

// GetFacultyByUser returns the faculty linked to the login user.
func (svc *Service) GetFacultyByUser(ctx context.Context, userID string) (Faculty, error) {
	if userID == "" {
		return Faculty{}, ErrFacultyNotFound
	}
	facs, err := svc.repo.QueryFaculty(ctx, FacultyFilter{UserID: userID})
	if err != nil {
		return Faculty{}, err
	}
	if len(facs) == 0 {
		return Faculty{}, ErrFacultyNotFound
	}
	return facs[0], nil
}

func (svc *Service) QueryFaculty(ctx context.Context, filter FacultyFilter) ([]Faculty, error) {
	return svc.repo.QueryFaculty(ctx, filter)
}

// Students

func (svc *Service) CreateStudent(ctx context.Context, st Student) (Student, error) {
	if st.GradeLevelID != nil {
		if _, err := svc.repo.GetGradeLevel(ctx, *st.GradeLevelID); err != nil {
			return Student{}, err
		}
	}
	return svc.repo.CreateStudent(ctx, st)
}

func (svc *Service) UpdateStudent(ctx context.Context, st Student) (Student, error) {
	if err := svc.checkPersonRole(ctx, st.UserID, true); err != nil {
		return Student{}, err
	}
	return svc.repo.UpdateStudent(ctx, st)
}

func (svc *Service) GetStudent(ctx context.Context, id int64) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

// QueryStudents returns the students matching filter, ordered by last then first name.
func (svc *Service) QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, error) {
	filter.Search = core.CleanString(filter.Search)
	students, err := svc.repo.QueryStudents(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortStudents(students)
	return students, nil
}

// ActiveStudents returns the active students with a grade level.
func (svc *Service) ActiveStudents(ctx context.Context) ([]Student, error) {
	active := true
	return svc.QueryStudents(ctx, StudentFilter{IsActive: &active, HasGrade: true})
}

// checkPersonRole rejects linking a login user to a student when it is already a faculty, and vice versa.
func (svc *Service) checkPersonRole(ctx context.Context, userID *string, asStudent bool) error {
	if userID == nil || *userID == "" {
		return nil
	}
	if asStudent {
		facs, err := svc.repo.QueryFaculty(ctx, FacultyFilter{UserID: *userID})
		if err != nil {
			return err
		}
		if len(facs) > 0 {
			return core.NewValidationError(ErrStudentFaculty, core.FieldError{Field: "user_id", Error: ErrStudentFaculty.Error()})
		}
		return nil
	}
	students, err := svc.repo.QueryStudents(ctx, StudentFilter{})
	if err != nil {
		return err
	}
	for _, st := range students {
		if st.UserID != nil && *st.UserID == *userID {
			return core.NewValidationError(ErrStudentFaculty, core.FieldError{Field: "user_id", Error: ErrStudentFaculty.Error()})
		}
	}
	return nil
}

// PromoteStudents moves every active student to the next grade level.
// Students in a grade without a next grade graduate on gradDate.
func (svc *Service) PromoteStudents(ctx context.Context, gradDate time.Time) (promoted, graduated int, err error) {
	grades, err := svc.repo.QueryGradeLevels(ctx)
	if err != nil {
		return 0, 0, err
	}
	byID := make(map[int]GradeLevel, len(grades))
	for _, g := range grades {
		byID[g.ID] = g
	}

	students, err := svc.ActiveStudents(ctx)
	if err != nil {
		return 0, 0, err
	}

	err = core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		for _, st := range students {
			grade, ok := byID[*st.GradeLevelID]
			if !ok {
				continue
			}
			if grade.NextGradeID != nil {
				next := *grade.NextGradeID
				st.GradeLevelID = &next
				promoted++
			} else {
				gd := gradDate
				st.IsActive = false
				st.GradDate = &gd
				st.ReasonLeft = reasonGraduated
				graduated++
			}
			if _, err := svc.repo.UpdateStudent(ctx, st, exec); err != nil {
				return errors.Wrapf(err, "promoting student %d", st.ID)
			}
		}
		return nil
	})
	return promoted, graduated, err
}

// Classes

func (svc *Service) CreateClass(ctx context.Context, class StudentClass) (StudentClass, error) {
	class.Name = core.CleanString(class.Name)
	if class.Name == "" {
		return StudentClass{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
	}
	return svc.repo.CreateClass(ctx, class)
}

func (svc *Service) UpdateClass(ctx context.Context, class StudentClass) (StudentClass, error) {
	return svc.repo.UpdateClass(ctx, class)
}

func (svc *Service) GetClass(ctx context.Context, id int64) (StudentClass, error) {
	return svc.repo.GetClass(ctx, id)
}

// QueryClasses returns the classes matching filter ordered by sort order then name.
func (svc *Service) QueryClasses(ctx context.Context, filter ClassFilter) ([]StudentClass, error) {
	classes, err := svc.repo.QueryClasses(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(classes, func(i, j int) bool {
		if classes[i].SortOrder != classes[j].SortOrder {
			return classes[i].SortOrder < classes[j].SortOrder
		}
		return classes[i].Name < classes[j].Name
	})
	return classes, nil
}

// HomeroomTeacher returns the homeroom teacher of the student's classes in the school year.
func (svc *Service) HomeroomTeacher(ctx context.Context, studentID, schoolYearID int64) (Faculty, error) {
	classes, err := svc.QueryClasses(ctx, ClassFilter{SchoolYearID: schoolYearID, StudentID: studentID})
	if err != nil {
		return Faculty{}, err
	}
	for _, class := range classes {
		for _, t := range class.Teachers {
			if t.Homeroom {
				return svc.repo.GetFaculty(ctx, t.FacultyID)
			}
		}
	}
	return Faculty{}, ErrFacultyNotFound
}

// Contacts

func (svc *Service) CreateContact(ctx context.Context, contact EmergencyContact) (EmergencyContact, error) {
	contact.FirstName = core.CleanString(contact.FirstName)
	contact.LastName = core.CleanString(contact.LastName)
	contact.Email = core.CleanString(contact.Email, true /* lower */)
	contact.AltEmail = core.CleanString(contact.AltEmail, true /* lower */)
	for i, n := range contact.Numbers {
		contact.Numbers[i].Type = strings.ToUpper(core.CleanString(n.Type))
	}
	return svc.repo.CreateContact(ctx, contact)
}

func (svc *Service) QueryContacts(ctx context.Context, studentIDs ...int64) ([]EmergencyContact, error) {
	return svc.repo.QueryContacts(ctx, ContactFilter{StudentIDs: studentIDs})
}

// Parents returns the contacts of the student that receive parent communication.
func (svc *Service) Parents(ctx context.Context, studentID int64) ([]EmergencyContact, error) {
	contacts, err := svc.repo.QueryContacts(ctx, ContactFilter{StudentIDs: []int64{studentID}})
	if err != nil {
		return nil, err
	}
	parents := make([]EmergencyContact, 0, len(contacts))
	for _, c := range contacts {
		if c.IsParent() {
			parents = append(parents, c)
		}
	}
	return parents, nil
}

func sortStudents(students []Student) {
	sort.SliceStable(students, func(i, j int) bool {
		li, lj := strings.ToLower(students[i].LastName), strings.ToLower(students[j].LastName)
		if li != lj {
			return li < lj
		}
		return strings.ToLower(students[i].FirstName) < strings.ToLower(students[j].FirstName)
	})
}
