package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
)

type schoolApi struct {
	svc      *school.Service
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *school.Service, validate *validator.Validate) {
	api := schoolApi{svc: svc, validate: validate}

	sg := g.Group("/school", jwt, staffMiddleware())
	admin := adminMiddleware()

	sg.GET("/years", api.queryYears)
	sg.POST("/years", api.createYear, admin)
	sg.GET("/years/current", api.currentYear)
	sg.GET("/years/:id", api.retrieveYear)
	sg.PUT("/years/:id/activate", api.activateYear, admin)
	sg.GET("/years/:id/terms", api.queryTerms)
	sg.POST("/terms", api.createTerm, admin)
	sg.GET("/terms/:id", api.retrieveTerm)

	sg.GET("/grades", api.queryGrades)
	sg.GET("/grades/:id", api.retrieveGrade)
	sg.PUT("/grades/:id", api.saveGrade, admin)

	sg.GET("/faculty", api.queryFaculty)
	sg.POST("/faculty", api.createFaculty, admin)
	sg.GET("/faculty/:id", api.retrieveFaculty)
	sg.PUT("/faculty/:id", api.updateFaculty, admin)

	sg.GET("/students", api.queryStudents)
	sg.POST("/students", api.createStudent, admin)
	sg.POST("/students/promote", api.promoteStudents, adminMiddleware(user.RoleAdminOwner))
	sg.GET("/students/:id", api.retrieveStudent)
	sg.PUT("/students/:id", api.updateStudent, admin)
	sg.GET("/students/:id/contacts", api.studentContacts)
	sg.GET("/students/:id/parents", api.studentParents)
	sg.GET("/students/:id/homeroom", api.homeroomTeacher)

	sg.GET("/classes", api.queryClasses)
	sg.POST("/classes", api.createClass, admin)
	sg.GET("/classes/:id", api.retrieveClass)
	sg.PUT("/classes/:id", api.updateClass, admin)

	sg.POST("/contacts", api.createContact, admin)
}

// School years & terms

func (api *schoolApi) queryYears(ctx echo.Context) error {
	years, err := api.svc.QuerySchoolYears(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying school years")
	}
	return ctx.JSON(http.StatusOK, orEmpty(years))
}

func (api *schoolApi) createYear(ctx echo.Context) error {
	var data school.NewSchoolYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchoolYear")
	}
	year, err := data.Validate(api.validate)
	if err != nil {
		return err
	}
	year, err = api.svc.CreateSchoolYear(ctx.Request().Context(), year)
	if err != nil {
		return errors.Wrap(err, "creating school year")
	}
	return ctx.JSON(http.StatusCreated, year)
}

func (api *schoolApi) currentYear(ctx echo.Context) error {
	year, err := api.svc.CurrentYear(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "finding current school year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *schoolApi) retrieveYear(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	year, err := api.svc.GetSchoolYear(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding school year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *schoolApi) activateYear(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	year, err := api.svc.SetActiveYear(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "activating school year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *schoolApi) queryTerms(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	terms, err := api.svc.QueryTerms(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying terms")
	}
	return ctx.JSON(http.StatusOK, orEmpty(terms))
}

func (api *schoolApi) createTerm(ctx echo.Context) error {
	var data school.NewTerm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTerm")
	}
	term, err := data.Validate(api.validate)
	if err != nil {
		return err
	}
	term, err = api.svc.CreateTerm(ctx.Request().Context(), term)
	if err != nil {
		return errors.Wrap(err, "creating term")
	}
	return ctx.JSON(http.StatusCreated, term)
}

func (api *schoolApi) retrieveTerm(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	term, err := api.svc.GetTerm(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding term")
	}
	return ctx.JSON(http.StatusOK, term)
}

// Grade levels

func (api *schoolApi) queryGrades(ctx echo.Context) error {
	grades, err := api.svc.QueryGradeLevels(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying grade levels")
	}
	return ctx.JSON(http.StatusOK, orEmpty(grades))
}

func (api *schoolApi) retrieveGrade(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	grade, err := api.svc.GetGradeLevel(ctx.Request().Context(), int(id))
	if err != nil {
		return errors.Wrap(err, "finding grade level")
	}
	return ctx.JSON(http.StatusOK, grade)
}

func (api *schoolApi) saveGrade(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var grade school.GradeLevel
	if err = ctx.Bind(&grade); err != nil {
		return errors.Wrap(err, "binding to GradeLevel")
	}
	grade.ID = int(id)
	grade, err = api.svc.SaveGradeLevel(ctx.Request().Context(), grade)
	if err != nil {
		return errors.Wrap(err, "saving grade level")
	}
	return ctx.JSON(http.StatusOK, grade)
}

// Faculty

func (api *schoolApi) queryFaculty(ctx echo.Context) error {
	var filter school.FacultyFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Faculty{})
	}
	facs, err := api.svc.QueryFaculty(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying faculty")
	}
	return ctx.JSON(http.StatusOK, orEmpty(facs))
}

func (api *schoolApi) createFaculty(ctx echo.Context) error {
	var data school.NewFaculty
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFaculty")
	}
	fac, err := data.Validate(ctx.Request().Context(), api.validate, api.svc)
	if err != nil {
		return err
	}
	fac, err = api.svc.CreateFaculty(ctx.Request().Context(), fac)
	if err != nil {
		return errors.Wrap(err, "creating faculty")
	}
	return ctx.JSON(http.StatusCreated, fac)
}

func (api *schoolApi) retrieveFaculty(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	fac, err := api.svc.GetFaculty(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding faculty")
	}
	return ctx.JSON(http.StatusOK, fac)
}

func (api *schoolApi) updateFaculty(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	fac, err := api.svc.GetFaculty(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding faculty")
	}
	if err = ctx.Bind(&fac); err != nil {
		return errors.Wrap(err, "binding to Faculty")
	}
	fac.ID = id
	fac, err = api.svc.UpdateFaculty(ctx.Request().Context(), fac)
	if err != nil {
		return errors.Wrap(err, "updating faculty")
	}
	return ctx.JSON(http.StatusOK, fac)
}

// Students

func (api *schoolApi) queryStudents(ctx echo.Context) error {
	var filter school.StudentFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Student{})
	}
	students, err := api.svc.QueryStudents(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, orEmpty(students))
}

func (api *schoolApi) createStudent(ctx echo.Context) error {
	var data school.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	st, err := data.Validate(ctx.Request().Context(), api.validate, api.svc)
	if err != nil {
		return err
	}
	st, err = api.svc.CreateStudent(ctx.Request().Context(), st)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *schoolApi) retrieveStudent(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	st, err := api.svc.GetStudent(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *schoolApi) updateStudent(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	st, err := api.svc.GetStudent(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	if err = ctx.Bind(&st); err != nil {
		return errors.Wrap(err, "binding to Student")
	}
	st.ID = id
	st, err = api.svc.UpdateStudent(ctx.Request().Context(), st)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, st)
}

type promoteRequest struct {
	GradDate string `json:"grad_date"`
}

type promoteResponse struct {
	Promoted  int `json:"promoted"`
	Graduated int `json:"graduated"`
}

func (api *schoolApi) promoteStudents(ctx echo.Context) error {
	var data promoteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to promoteRequest")
	}
	gradDate, err := parseDate("grad_date", data.GradDate)
	if err != nil {
		return err
	}
	if gradDate.IsZero() {
		gradDate = today()
	}
	promoted, graduated, err := api.svc.PromoteStudents(ctx.Request().Context(), gradDate)
	if err != nil {
		return errors.Wrap(err, "promoting students")
	}
	return ctx.JSON(http.StatusOK, promoteResponse{Promoted: promoted, Graduated: graduated})
}

func (api *schoolApi) studentContacts(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	contacts, err := api.svc.QueryContacts(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying contacts")
	}
	return ctx.JSON(http.StatusOK, orEmpty(contacts))
}

func (api *schoolApi) studentParents(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	parents, err := api.svc.Parents(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying parents")
	}
	return ctx.JSON(http.StatusOK, orEmpty(parents))
}

func (api *schoolApi) homeroomTeacher(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	yearID, ok, err := intQuery(ctx, "school_year_id")
	if err != nil {
		return err
	}
	if !ok {
		year, err := api.svc.CurrentYear(ctx.Request().Context())
		if err != nil {
			return errors.Wrap(err, "finding current school year")
		}
		yearID = year.ID
	}
	fac, err := api.svc.HomeroomTeacher(ctx.Request().Context(), id, yearID)
	if err != nil {
		return errors.Wrap(err, "finding homeroom teacher")
	}
	return ctx.JSON(http.StatusOK, fac)
}

// Classes & contacts

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	var filter school.ClassFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.StudentClass{})
	}
	classes, err := api.svc.QueryClasses(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, orEmpty(classes))
}

func (api *schoolApi) createClass(ctx echo.Context) error {
	var class school.StudentClass
	if err := ctx.Bind(&class); err != nil {
		return errors.Wrap(err, "binding to StudentClass")
	}
	class.ID = 0
	class, err := api.svc.CreateClass(ctx.Request().Context(), class)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, class)
}

func (api *schoolApi) retrieveClass(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	class, err := api.svc.GetClass(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding class")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *schoolApi) updateClass(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	class, err := api.svc.GetClass(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding class")
	}
	if err = ctx.Bind(&class); err != nil {
		return errors.Wrap(err, "binding to StudentClass")
	}
	class.ID = id
	class, err = api.svc.UpdateClass(ctx.Request().Context(), class)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *schoolApi) createContact(ctx echo.Context) error {
	var contact school.EmergencyContact
	if err := ctx.Bind(&contact); err != nil {
		return errors.Wrap(err, "binding to EmergencyContact")
	}
	contact.ID = 0
	contact, err := api.svc.CreateContact(ctx.Request().Context(), contact)
	if err != nil {
		return errors.Wrap(err, "creating contact")
	}
	return ctx.JSON(http.StatusCreated, contact)
}

// orEmpty keeps empty lists from being encoded as null.
func orEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
