package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
	logsvc "github.com/trezcool/indysis/services/logger"
	inmemdb "github.com/trezcool/indysis/storage/database/inmem"
)

// NewConfig reads the TEST configuration and parses the email templates.
func NewConfig(t *testing.T) *core.Config {
	t.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	core.ParseEmailTemplates(conf, logsvc.NewDiscardLogger())
	return conf
}

func OpenMemDB(t *testing.T) *inmemdb.DB {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	return db
}

func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateSchoolYear(t *testing.T, repo school.Repository, name string, start, end time.Time, active bool) school.SchoolYear {
	year, err := repo.CreateSchoolYear(context.Background(), school.SchoolYear{
		Name:      name,
		StartDate: start,
		EndDate:   end,
		Active:    active,
	})
	if err != nil {
		t.Fatalf("createSchoolYear() failed: %v", err)
	}
	return year
}

func CreateTerm(t *testing.T, repo school.Repository, year school.SchoolYear, name string, start, end time.Time) school.Term {
	term, err := repo.CreateTerm(context.Background(), school.Term{
		SchoolYearID: year.ID,
		Name:         name,
		ShortName:    name,
		StartDate:    start,
		EndDate:      end,
	})
	if err != nil {
		t.Fatalf("createTerm() failed: %v", err)
	}
	return term
}

func CreateGrade(t *testing.T, repo school.Repository, id int, name, shortName string) school.GradeLevel {
	grade, err := repo.SaveGradeLevel(context.Background(), school.GradeLevel{
		ID:        id,
		Name:      name,
		ShortName: shortName,
		IsActive:  true,
	})
	if err != nil {
		t.Fatalf("createGrade() failed: %v", err)
	}
	return grade
}

func CreateStudent(t *testing.T, repo school.Repository, first, last string, gradeID int, isActive bool) school.Student {
	st := school.Student{FirstName: first, LastName: last, IsActive: isActive}
	if gradeID != 0 {
		st.GradeLevelID = &gradeID
	}
	st, err := repo.CreateStudent(context.Background(), st)
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return st
}

func CreateFaculty(t *testing.T, repo school.Repository, first, last, email string, usr *user.User) school.Faculty {
	fac := school.Faculty{FirstName: first, LastName: last, Email: email, IsTeacher: true, IsActive: true}
	if usr != nil {
		id := usr.ID
		fac.UserID = &id
	}
	fac, err := repo.CreateFaculty(context.Background(), fac)
	if err != nil {
		t.Fatalf("createFaculty() failed: %v", err)
	}
	return fac
}

func CreateClass(
	t *testing.T,
	repo school.Repository,
	name string,
	year school.SchoolYear,
	terms []school.Term,
	students []school.Student,
	teachers ...school.Faculty,
) school.StudentClass {
	class := school.StudentClass{Name: name, ShortName: name, SchoolYearID: year.ID}
	for _, term := range terms {
		class.TermIDs = append(class.TermIDs, term.ID)
	}
	for _, st := range students {
		class.StudentIDs = append(class.StudentIDs, st.ID)
	}
	for i, fac := range teachers {
		class.Teachers = append(class.Teachers, school.ClassTeacher{FacultyID: fac.ID, Homeroom: i == 0})
	}
	class, err := repo.CreateClass(context.Background(), class)
	if err != nil {
		t.Fatalf("createClass() failed: %v", err)
	}
	return class
}

func CreateContact(
	t *testing.T,
	repo school.Repository,
	first, last, email, cell string,
	emergencyOnly bool,
	students ...school.Student,
) school.EmergencyContact {
	contact := school.EmergencyContact{
		FirstName:     first,
		LastName:      last,
		Relationship:  "Parent",
		Email:         email,
		EmergencyOnly: emergencyOnly,
	}
	if cell != "" {
		contact.Numbers = []school.ContactNumber{{Number: cell, Type: school.NumberCell, Primary: true}}
	}
	for _, st := range students {
		contact.StudentIDs = append(contact.StudentIDs, st.ID)
	}
	contact, err := repo.CreateContact(context.Background(), contact)
	if err != nil {
		t.Fatalf("createContact() failed: %v", err)
	}
	return contact
}
