package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

type (
	schoolRepository struct {
		db *sqlx.DB
	}

	// classLink is a row of one of the student_class_* join tables.
	classLink struct {
		ClassID  int64 `db:"student_class_id"`
		MemberID int64 `db:"member_id"`
		Homeroom bool  `db:"homeroom"`
	}

	contactStudent struct {
		ContactID int64 `db:"contact_id"`
		StudentID int64 `db:"student_id"`
	}

	contactNumber struct {
		ContactID int64 `db:"contact_id"`
		school.ContactNumber
	}
)

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) school.Repository {
	return &schoolRepository{db: db}
}

// School years

const (
	insertYear = `INSERT INTO school_years (name, start_date, end_date, grad_date, active_year)
		VALUES (:name, :start_date, :end_date, :grad_date, :active_year)`
	updateYear = `UPDATE school_years SET name = :name, start_date = :start_date, end_date = :end_date,
		grad_date = :grad_date, active_year = :active_year WHERE id = :id`
)

func (repo *schoolRepository) CreateSchoolYear(ctx context.Context, year school.SchoolYear, exec ...core.DBExecutor) (school.SchoolYear, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec), insertYear, year)
	if err != nil {
		return school.SchoolYear{}, errors.Wrap(err, "inserting school year")
	}
	year.ID = id
	return year, nil
}

func (repo *schoolRepository) UpdateSchoolYear(ctx context.Context, year school.SchoolYear, exec ...core.DBExecutor) (school.SchoolYear, error) {
	if err := updateNamed(ctx, core.PickExec(repo.db, exec), school.ErrYearNotFound, updateYear, year); err != nil {
		if err == school.ErrYearNotFound {
			return school.SchoolYear{}, err
		}
		return school.SchoolYear{}, errors.Wrap(err, "updating school year")
	}
	return year, nil
}

func (repo *schoolRepository) GetSchoolYear(ctx context.Context, id int64, exec ...core.DBExecutor) (school.SchoolYear, error) {
	return getOne[school.SchoolYear](ctx, core.PickExec(repo.db, exec), school.ErrYearNotFound,
		`SELECT * FROM school_years WHERE id = ?`, id)
}

func (repo *schoolRepository) GetActiveSchoolYear(ctx context.Context, exec ...core.DBExecutor) (school.SchoolYear, error) {
	return getOne[school.SchoolYear](ctx, core.PickExec(repo.db, exec), school.ErrYearNotFound,
		`SELECT * FROM school_years WHERE active_year ORDER BY id`)
}

func (repo *schoolRepository) QuerySchoolYears(ctx context.Context, exec ...core.DBExecutor) ([]school.SchoolYear, error) {
	years := []school.SchoolYear{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &years, `SELECT * FROM school_years ORDER BY start_date DESC, id`); err != nil {
		return nil, errors.Wrap(err, "querying school years")
	}
	return years, nil
}

func (repo *schoolRepository) DeactivateSchoolYears(ctx context.Context, exceptID int64, exec ...core.DBExecutor) error {
	_, err := execQuery(ctx, core.PickExec(repo.db, exec), `UPDATE school_years SET active_year = false WHERE active_year AND id <> ?`, exceptID)
	return errors.Wrap(err, "deactivating school years")
}

// Terms

func (repo *schoolRepository) CreateTerm(ctx context.Context, term school.Term, exec ...core.DBExecutor) (school.Term, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO terms (school_year_id, name, shortname, start_date, end_date)
		VALUES (:school_year_id, :name, :shortname, :start_date, :end_date)`, term)
	if err != nil {
		return school.Term{}, errors.Wrap(err, "inserting term")
	}
	term.ID = id
	return term, nil
}

func (repo *schoolRepository) GetTerm(ctx context.Context, id int64, exec ...core.DBExecutor) (school.Term, error) {
	return getOne[school.Term](ctx, core.PickExec(repo.db, exec), school.ErrTermNotFound, `SELECT * FROM terms WHERE id = ?`, id)
}

func (repo *schoolRepository) QueryTerms(ctx context.Context, schoolYearID int64, exec ...core.DBExecutor) ([]school.Term, error) {
	var w where
	if schoolYearID != 0 {
		w.add("school_year_id = ?", schoolYearID)
	}
	terms := []school.Term{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &terms, `SELECT * FROM terms`+w.String()+` ORDER BY start_date, id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying terms")
	}
	return terms, nil
}

// Grade levels

func (repo *schoolRepository) SaveGradeLevel(ctx context.Context, grade school.GradeLevel, exec ...core.DBExecutor) (school.GradeLevel, error) {
	q, args, err := sqlx.Named(
		`INSERT INTO grade_levels (id, name, shortname, name_fr, shortname_fr, is_active, next_grade_id)
		VALUES (:id, :name, :shortname, :name_fr, :shortname_fr, :is_active, :next_grade_id)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, shortname = EXCLUDED.shortname, name_fr = EXCLUDED.name_fr,
		shortname_fr = EXCLUDED.shortname_fr, is_active = EXCLUDED.is_active, next_grade_id = EXCLUDED.next_grade_id`,
		grade,
	)
	if err == nil {
		_, err = execQuery(ctx, core.PickExec(repo.db, exec), q, args...)
	}
	if err != nil {
		return school.GradeLevel{}, errors.Wrap(err, "saving grade level")
	}
	return grade, nil
}

func (repo *schoolRepository) GetGradeLevel(ctx context.Context, id int, exec ...core.DBExecutor) (school.GradeLevel, error) {
	return getOne[school.GradeLevel](ctx, core.PickExec(repo.db, exec), school.ErrGradeNotFound, `SELECT * FROM grade_levels WHERE id = ?`, id)
}

func (repo *schoolRepository) QueryGradeLevels(ctx context.Context, exec ...core.DBExecutor) ([]school.GradeLevel, error) {
	grades := []school.GradeLevel{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &grades, `SELECT * FROM grade_levels ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "querying grade levels")
	}
	return grades, nil
}

// Faculty

func (repo *schoolRepository) CreateFaculty(ctx context.Context, fac school.Faculty, exec ...core.DBExecutor) (school.Faculty, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO faculty (user_id, first_name, last_name, email, cell, teacher, is_active)
		VALUES (:user_id, :first_name, :last_name, :email, :cell, :teacher, :is_active)`, fac)
	if err != nil {
		return school.Faculty{}, errors.Wrap(err, "inserting faculty")
	}
	fac.ID = id
	return fac, nil
}

func (repo *schoolRepository) UpdateFaculty(ctx context.Context, fac school.Faculty, exec ...core.DBExecutor) (school.Faculty, error) {
	err := updateNamed(ctx, core.PickExec(repo.db, exec), school.ErrFacultyNotFound,
		`UPDATE faculty SET user_id = :user_id, first_name = :first_name, last_name = :last_name, email = :email,
		cell = :cell, teacher = :teacher, is_active = :is_active WHERE id = :id`, fac)
	if err != nil {
		if err == school.ErrFacultyNotFound {
			return school.Faculty{}, err
		}
		return school.Faculty{}, errors.Wrap(err, "updating faculty")
	}
	return fac, nil
}

func (repo *schoolRepository) GetFaculty(ctx context.Context, id int64, exec ...core.DBExecutor) (school.Faculty, error) {
	return getOne[school.Faculty](ctx, core.PickExec(repo.db, exec), school.ErrFacultyNotFound, `SELECT * FROM faculty WHERE id = ?`, id)
}

func (repo *schoolRepository) QueryFaculty(ctx context.Context, filter school.FacultyFilter, exec ...core.DBExecutor) ([]school.Faculty, error) {
	var w where
	if len(filter.IDs) > 0 {
		w.add("id = ANY(?)", pq.Array(filter.IDs))
	}
	if filter.UserID != "" {
		w.add("user_id::text = ?", filter.UserID)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	facs := []school.Faculty{}
	err := selectAll(ctx, core.PickExec(repo.db, exec), &facs, `SELECT * FROM faculty`+w.String()+` ORDER BY last_name, first_name, id`, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying faculty")
	}
	return facs, nil
}

// Students

const studentFields = `user_id = :user_id, first_name = :first_name, mname = :mname, last_name = :last_name, sex = :sex,
	bday = :bday, year_id = :year_id, is_active = :is_active, afterschool_only = :afterschool_only, street = :street,
	city = :city, state = :state, zip = :zip, grad_date = :grad_date, reason_left = :reason_left`

func (repo *schoolRepository) CreateStudent(ctx context.Context, st school.Student, exec ...core.DBExecutor) (school.Student, error) {
	id, err := insertNamed(ctx, core.PickExec(repo.db, exec),
		`INSERT INTO students (user_id, first_name, mname, last_name, sex, bday, year_id, is_active, afterschool_only,
		street, city, state, zip, grad_date, reason_left)
		VALUES (:user_id, :first_name, :mname, :last_name, :sex, :bday, :year_id, :is_active, :afterschool_only,
		:street, :city, :state, :zip, :grad_date, :reason_left)`, st)
	if err != nil {
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	st.ID = id
	return st, nil
}

func (repo *schoolRepository) UpdateStudent(ctx context.Context, st school.Student, exec ...core.DBExecutor) (school.Student, error) {
	err := updateNamed(ctx, core.PickExec(repo.db, exec), school.ErrStudentNotFound, `UPDATE students SET `+studentFields+` WHERE id = :id`, st)
	if err != nil {
		if err == school.ErrStudentNotFound {
			return school.Student{}, err
		}
		return school.Student{}, errors.Wrap(err, "updating student")
	}
	return st, nil
}

func (repo *schoolRepository) GetStudent(ctx context.Context, id int64, exec ...core.DBExecutor) (school.Student, error) {
	return getOne[school.Student](ctx, core.PickExec(repo.db, exec), school.ErrStudentNotFound, `SELECT * FROM students WHERE id = ?`, id)
}

func (repo *schoolRepository) QueryStudents(ctx context.Context, filter school.StudentFilter, exec ...core.DBExecutor) ([]school.Student, error) {
	var w where
	if len(filter.IDs) > 0 {
		w.add("id = ANY(?)", pq.Array(filter.IDs))
	}
	if filter.GradeLevelID != nil {
		w.add("year_id = ?", *filter.GradeLevelID)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if filter.HasGrade {
		w.add("year_id IS NOT NULL")
	}
	if filter.Search != "" {
		w.add("(first_name || ' ' || last_name) ILIKE ?", "%"+filter.Search+"%")
	}
	students := []school.Student{}
	if err := selectAll(ctx, core.PickExec(repo.db, exec), &students, `SELECT * FROM students`+w.String()+` ORDER BY id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

// Classes

func (repo *schoolRepository) CreateClass(ctx context.Context, class school.StudentClass, exec ...core.DBExecutor) (school.StudentClass, error) {
	err := withTx(ctx, repo.db, exec, func(exe core.DBExecutor) error {
		id, err := insertNamed(ctx, exe,
			`INSERT INTO student_classes (name, shortname, sortorder, school_year_id)
			VALUES (:name, :shortname, :sortorder, :school_year_id)`, class)
		if err != nil {
			return errors.Wrap(err, "inserting class")
		}
		class.ID = id
		return repo.saveClassLinks(ctx, exe, class)
	})
	if err != nil {
		return school.StudentClass{}, err
	}
	return class, nil
}

func (repo *schoolRepository) UpdateClass(ctx context.Context, class school.StudentClass, exec ...core.DBExecutor) (school.StudentClass, error) {
	err := withTx(ctx, repo.db, exec, func(exe core.DBExecutor) error {
		err := updateNamed(ctx, exe, school.ErrClassNotFound,
			`UPDATE student_classes SET name = :name, shortname = :shortname, sortorder = :sortorder,
			school_year_id = :school_year_id WHERE id = :id`, class)
		if err != nil {
			if err == school.ErrClassNotFound {
				return err
			}
			return errors.Wrap(err, "updating class")
		}
		for _, table := range []string{"student_class_terms", "student_class_students", "student_class_teachers"} {
			if _, err = execQuery(ctx, exe, `DELETE FROM `+table+` WHERE student_class_id = ?`, class.ID); err != nil {
				return errors.Wrapf(err, "clearing %s", table)
			}
		}
		return repo.saveClassLinks(ctx, exe, class)
	})
	if err != nil {
		return school.StudentClass{}, err
	}
	return class, nil
}

func (repo *schoolRepository) saveClassLinks(ctx context.Context, exe core.DBExecutor, class school.StudentClass) error {
	for _, id := range class.TermIDs {
		if _, err := execQuery(ctx, exe, `INSERT INTO student_class_terms (student_class_id, term_id) VALUES (?, ?)`, class.ID, id); err != nil {
			return errors.Wrap(err, "inserting class term")
		}
	}
	for _, id := range class.StudentIDs {
		if _, err := execQuery(ctx, exe, `INSERT INTO student_class_students (student_class_id, student_id) VALUES (?, ?)`, class.ID, id); err != nil {
			return errors.Wrap(err, "inserting class student")
		}
	}
	for _, t := range class.Teachers {
		_, err := execQuery(ctx, exe,
			`INSERT INTO student_class_teachers (student_class_id, faculty_id, homeroom) VALUES (?, ?, ?)`,
			class.ID, t.FacultyID, t.Homeroom)
		if err != nil {
			return errors.Wrap(err, "inserting class teacher")
		}
	}
	return nil
}

func (repo *schoolRepository) GetClass(ctx context.Context, id int64, exec ...core.DBExecutor) (school.StudentClass, error) {
	classes, err := repo.QueryClasses(ctx, school.ClassFilter{IDs: []int64{id}}, exec...)
	if err != nil {
		return school.StudentClass{}, err
	}
	if len(classes) == 0 {
		return school.StudentClass{}, school.ErrClassNotFound
	}
	return classes[0], nil
}

func (repo *schoolRepository) QueryClasses(ctx context.Context, filter school.ClassFilter, exec ...core.DBExecutor) ([]school.StudentClass, error) {
	exe := core.PickExec(repo.db, exec)

	var w where
	if len(filter.IDs) > 0 {
		w.add("id = ANY(?)", pq.Array(filter.IDs))
	}
	if filter.SchoolYearID != 0 {
		w.add("school_year_id = ?", filter.SchoolYearID)
	}
	if filter.StudentID != 0 {
		w.add("id IN (SELECT student_class_id FROM student_class_students WHERE student_id = ?)", filter.StudentID)
	}
	if filter.FacultyID != 0 {
		w.add("id IN (SELECT student_class_id FROM student_class_teachers WHERE faculty_id = ?)", filter.FacultyID)
	}
	classes := []school.StudentClass{}
	if err := selectAll(ctx, exe, &classes, `SELECT * FROM student_classes`+w.String()+` ORDER BY id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	if len(classes) == 0 {
		return classes, nil
	}

	ids := make([]int64, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ID)
	}
	byID := make(map[int64]*school.StudentClass, len(classes))
	for i := range classes {
		byID[classes[i].ID] = &classes[i]
	}

	var links []classLink
	err := selectAll(ctx, exe, &links,
		`SELECT student_class_id, term_id AS member_id, false AS homeroom FROM student_class_terms WHERE student_class_id = ANY(?) ORDER BY term_id`,
		pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "querying class terms")
	}
	for _, l := range links {
		byID[l.ClassID].TermIDs = append(byID[l.ClassID].TermIDs, l.MemberID)
	}

	links = nil
	err = selectAll(ctx, exe, &links,
		`SELECT student_class_id, student_id AS member_id, false AS homeroom FROM student_class_students WHERE student_class_id = ANY(?) ORDER BY student_id`,
		pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "querying class students")
	}
	for _, l := range links {
		byID[l.ClassID].StudentIDs = append(byID[l.ClassID].StudentIDs, l.MemberID)
	}

	links = nil
	err = selectAll(ctx, exe, &links,
		`SELECT student_class_id, faculty_id AS member_id, homeroom FROM student_class_teachers WHERE student_class_id = ANY(?) ORDER BY faculty_id`,
		pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "querying class teachers")
	}
	for _, l := range links {
		byID[l.ClassID].Teachers = append(byID[l.ClassID].Teachers, school.ClassTeacher{FacultyID: l.MemberID, Homeroom: l.Homeroom})
	}
	return classes, nil
}

// Contacts

func (repo *schoolRepository) CreateContact(ctx context.Context, contact school.EmergencyContact, exec ...core.DBExecutor) (school.EmergencyContact, error) {
	err := withTx(ctx, repo.db, exec, func(exe core.DBExecutor) error {
		id, err := insertNamed(ctx, exe,
			`INSERT INTO emergency_contacts (fname, lname, relationship_to_student, email, alt_email, primary_contact, emergency_only)
			VALUES (:fname, :lname, :relationship_to_student, :email, :alt_email, :primary_contact, :emergency_only)`, contact)
		if err != nil {
			return errors.Wrap(err, "inserting contact")
		}
		contact.ID = id
		for _, sid := range contact.StudentIDs {
			if _, err = execQuery(ctx, exe, `INSERT INTO emergency_contact_students (contact_id, student_id) VALUES (?, ?)`, id, sid); err != nil {
				return errors.Wrap(err, "inserting contact student")
			}
		}
		for _, n := range contact.Numbers {
			_, err = insertNamed(ctx, exe,
				`INSERT INTO contact_numbers (contact_id, number, ext, type, primary_number)
				VALUES (:contact_id, :number, :ext, :type, :primary_number)`,
				contactNumber{ContactID: id, ContactNumber: n})
			if err != nil {
				return errors.Wrap(err, "inserting contact number")
			}
		}
		return nil
	})
	if err != nil {
		return school.EmergencyContact{}, err
	}
	return contact, nil
}

func (repo *schoolRepository) QueryContacts(ctx context.Context, filter school.ContactFilter, exec ...core.DBExecutor) ([]school.EmergencyContact, error) {
	exe := core.PickExec(repo.db, exec)

	var w where
	if len(filter.StudentIDs) > 0 {
		w.add("id IN (SELECT contact_id FROM emergency_contact_students WHERE student_id = ANY(?))", pq.Array(filter.StudentIDs))
	}
	contacts := []school.EmergencyContact{}
	if err := selectAll(ctx, exe, &contacts, `SELECT * FROM emergency_contacts`+w.String()+` ORDER BY id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying contacts")
	}
	if len(contacts) == 0 {
		return contacts, nil
	}

	ids := make([]int64, 0, len(contacts))
	byID := make(map[int64]*school.EmergencyContact, len(contacts))
	for i := range contacts {
		ids = append(ids, contacts[i].ID)
		byID[contacts[i].ID] = &contacts[i]
	}

	var students []contactStudent
	err := selectAll(ctx, exe, &students,
		`SELECT contact_id, student_id FROM emergency_contact_students WHERE contact_id = ANY(?) ORDER BY student_id`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "querying contact students")
	}
	for _, s := range students {
		byID[s.ContactID].StudentIDs = append(byID[s.ContactID].StudentIDs, s.StudentID)
	}

	var numbers []contactNumber
	err = selectAll(ctx, exe, &numbers,
		`SELECT contact_id, number, ext, type, primary_number FROM contact_numbers WHERE contact_id = ANY(?) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "querying contact numbers")
	}
	for _, n := range numbers {
		byID[n.ContactID].Numbers = append(byID[n.ContactID].Numbers, n.ContactNumber)
	}
	return contacts, nil
}
