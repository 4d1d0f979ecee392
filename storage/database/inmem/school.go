package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

type schoolRepository struct {
	db *schoolTables
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db.school}
}

// School years

func (repo *schoolRepository) CreateSchoolYear(_ context.Context, year school.SchoolYear, _ ...core.DBExecutor) (school.SchoolYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	year.ID = repo.db.seq.next()
	repo.db.years[year.ID] = year
	return year, nil
}

func (repo *schoolRepository) UpdateSchoolYear(_ context.Context, year school.SchoolYear, _ ...core.DBExecutor) (school.SchoolYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.years[year.ID]; !ok {
		return school.SchoolYear{}, school.ErrYearNotFound
	}
	repo.db.years[year.ID] = year
	return year, nil
}

func (repo *schoolRepository) GetSchoolYear(_ context.Context, id int64, _ ...core.DBExecutor) (school.SchoolYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if year, ok := repo.db.years[id]; ok {
		return year, nil
	}
	return school.SchoolYear{}, school.ErrYearNotFound
}

func (repo *schoolRepository) GetActiveSchoolYear(_ context.Context, _ ...core.DBExecutor) (school.SchoolYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, year := range rows(repo.db.years, nil) {
		if year.Active {
			return year, nil
		}
	}
	return school.SchoolYear{}, school.ErrYearNotFound
}

func (repo *schoolRepository) QuerySchoolYears(_ context.Context, _ ...core.DBExecutor) ([]school.SchoolYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	years := rows(repo.db.years, nil)
	sort.SliceStable(years, func(i, j int) bool { return years[i].StartDate.After(years[j].StartDate) })
	return years, nil
}

func (repo *schoolRepository) DeactivateSchoolYears(_ context.Context, exceptID int64, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, year := range repo.db.years {
		if id != exceptID && year.Active {
			year.Active = false
			repo.db.years[id] = year
		}
	}
	return nil
}

// Terms

func (repo *schoolRepository) CreateTerm(_ context.Context, term school.Term, _ ...core.DBExecutor) (school.Term, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	term.ID = repo.db.seq.next()
	repo.db.terms[term.ID] = term
	return term, nil
}

func (repo *schoolRepository) GetTerm(_ context.Context, id int64, _ ...core.DBExecutor) (school.Term, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if term, ok := repo.db.terms[id]; ok {
		return term, nil
	}
	return school.Term{}, school.ErrTermNotFound
}

func (repo *schoolRepository) QueryTerms(_ context.Context, schoolYearID int64, _ ...core.DBExecutor) ([]school.Term, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	terms := rows(repo.db.terms, func(t school.Term) bool { return schoolYearID == 0 || t.SchoolYearID == schoolYearID })
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].StartDate.Before(terms[j].StartDate) })
	return terms, nil
}

// Grade levels

func (repo *schoolRepository) SaveGradeLevel(_ context.Context, grade school.GradeLevel, _ ...core.DBExecutor) (school.GradeLevel, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.grades[grade.ID] = grade
	return grade, nil
}

func (repo *schoolRepository) GetGradeLevel(_ context.Context, id int, _ ...core.DBExecutor) (school.GradeLevel, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if grade, ok := repo.db.grades[id]; ok {
		return grade, nil
	}
	return school.GradeLevel{}, school.ErrGradeNotFound
}

func (repo *schoolRepository) QueryGradeLevels(_ context.Context, _ ...core.DBExecutor) ([]school.GradeLevel, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	grades := make([]school.GradeLevel, 0, len(repo.db.grades))
	for _, g := range repo.db.grades {
		grades = append(grades, g)
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i].ID < grades[j].ID })
	return grades, nil
}

// Faculty

func (repo *schoolRepository) CreateFaculty(_ context.Context, fac school.Faculty, _ ...core.DBExecutor) (school.Faculty, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	fac.ID = repo.db.seq.next()
	repo.db.faculty[fac.ID] = fac
	return fac, nil
}

func (repo *schoolRepository) UpdateFaculty(_ context.Context, fac school.Faculty, _ ...core.DBExecutor) (school.Faculty, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.faculty[fac.ID]; !ok {
		return school.Faculty{}, school.ErrFacultyNotFound
	}
	repo.db.faculty[fac.ID] = fac
	return fac, nil
}

func (repo *schoolRepository) GetFaculty(_ context.Context, id int64, _ ...core.DBExecutor) (school.Faculty, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if fac, ok := repo.db.faculty[id]; ok {
		return fac, nil
	}
	return school.Faculty{}, school.ErrFacultyNotFound
}

func (repo *schoolRepository) QueryFaculty(_ context.Context, filter school.FacultyFilter, _ ...core.DBExecutor) ([]school.Faculty, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	facs := rows(repo.db.faculty, func(f school.Faculty) bool {
		switch {
		case len(filter.IDs) > 0 && !containsInt64(filter.IDs, f.ID):
			return false
		case filter.UserID != "" && (f.UserID == nil || *f.UserID != filter.UserID):
			return false
		case filter.IsActive != nil && f.IsActive != *filter.IsActive:
			return false
		}
		return true
	})
	sort.SliceStable(facs, func(i, j int) bool {
		if facs[i].LastName != facs[j].LastName {
			return facs[i].LastName < facs[j].LastName
		}
		return facs[i].FirstName < facs[j].FirstName
	})
	return facs, nil
}

// Students

func (repo *schoolRepository) CreateStudent(_ context.Context, st school.Student, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	st.ID = repo.db.seq.next()
	repo.db.students[st.ID] = st
	return st, nil
}

func (repo *schoolRepository) UpdateStudent(_ context.Context, st school.Student, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[st.ID]; !ok {
		return school.Student{}, school.ErrStudentNotFound
	}
	repo.db.students[st.ID] = st
	return st, nil
}

func (repo *schoolRepository) GetStudent(_ context.Context, id int64, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if st, ok := repo.db.students[id]; ok {
		return st, nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) QueryStudents(_ context.Context, filter school.StudentFilter, _ ...core.DBExecutor) ([]school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	return rows(repo.db.students, func(st school.Student) bool {
		switch {
		case len(filter.IDs) > 0 && !containsInt64(filter.IDs, st.ID):
			return false
		case filter.GradeLevelID != nil && !st.InGrade(*filter.GradeLevelID):
			return false
		case filter.IsActive != nil && st.IsActive != *filter.IsActive:
			return false
		case filter.HasGrade && st.GradeLevelID == nil:
			return false
		case search != "" && !strings.Contains(strings.ToLower(st.FirstName+" "+st.LastName), search):
			return false
		}
		return true
	}), nil
}

// Classes

func copyClass(class school.StudentClass) school.StudentClass {
	class.TermIDs = copyInt64s(class.TermIDs)
	class.StudentIDs = copyInt64s(class.StudentIDs)
	class.Teachers = append([]school.ClassTeacher(nil), class.Teachers...)
	return class
}

func (repo *schoolRepository) CreateClass(_ context.Context, class school.StudentClass, _ ...core.DBExecutor) (school.StudentClass, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	class.ID = repo.db.seq.next()
	repo.db.classes[class.ID] = copyClass(class)
	return class, nil
}

func (repo *schoolRepository) UpdateClass(_ context.Context, class school.StudentClass, _ ...core.DBExecutor) (school.StudentClass, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classes[class.ID]; !ok {
		return school.StudentClass{}, school.ErrClassNotFound
	}
	repo.db.classes[class.ID] = copyClass(class)
	return class, nil
}

func (repo *schoolRepository) GetClass(_ context.Context, id int64, _ ...core.DBExecutor) (school.StudentClass, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if class, ok := repo.db.classes[id]; ok {
		return copyClass(class), nil
	}
	return school.StudentClass{}, school.ErrClassNotFound
}

func (repo *schoolRepository) QueryClasses(_ context.Context, filter school.ClassFilter, _ ...core.DBExecutor) ([]school.StudentClass, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	classes := rows(repo.db.classes, func(c school.StudentClass) bool {
		switch {
		case len(filter.IDs) > 0 && !containsInt64(filter.IDs, c.ID):
			return false
		case filter.SchoolYearID != 0 && c.SchoolYearID != filter.SchoolYearID:
			return false
		case filter.StudentID != 0 && !c.HasStudent(filter.StudentID):
			return false
		case filter.FacultyID != 0 && !c.HasTeacher(filter.FacultyID):
			return false
		}
		return true
	})
	for i := range classes {
		classes[i] = copyClass(classes[i])
	}
	return classes, nil
}

// Contacts

func (repo *schoolRepository) CreateContact(_ context.Context, contact school.EmergencyContact, _ ...core.DBExecutor) (school.EmergencyContact, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	contact.ID = repo.db.seq.next()
	stored := contact
	stored.StudentIDs = copyInt64s(contact.StudentIDs)
	stored.Numbers = append([]school.ContactNumber(nil), contact.Numbers...)
	repo.db.contacts[contact.ID] = stored
	return contact, nil
}

func (repo *schoolRepository) QueryContacts(_ context.Context, filter school.ContactFilter, _ ...core.DBExecutor) ([]school.EmergencyContact, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	contacts := rows(repo.db.contacts, func(c school.EmergencyContact) bool {
		return len(filter.StudentIDs) == 0 || anyInt64(c.StudentIDs, filter.StudentIDs)
	})
	for i, c := range contacts {
		contacts[i].StudentIDs = copyInt64s(c.StudentIDs)
		contacts[i].Numbers = append([]school.ContactNumber(nil), c.Numbers...)
	}
	return contacts, nil
}
