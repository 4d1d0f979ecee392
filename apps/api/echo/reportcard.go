package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/reportcard"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
)

type reportCardApi struct {
	svc    *reportcard.Service
	school *school.Service
	users  user.ServiceInterface
}

func registerReportCardAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *reportcard.Service,
	schoolSvc *school.Service,
	usrSvc user.ServiceInterface,
) {
	api := reportCardApi{svc: svc, school: schoolSvc, users: usrSvc}

	rg := g.Group("/reportcards", jwt, staffMiddleware())
	admin := adminMiddleware(user.RoleAdminOwner, user.RoleAdminReportCard)

	// setup (admins)
	rg.GET("/schemes", api.querySchemes, admin)
	rg.POST("/schemes", api.createScheme, admin)
	rg.GET("/schemes/:id", api.retrieveScheme, admin)
	rg.POST("/schemes/:id/copy", api.copyScheme, admin)

	rg.GET("/templates", api.queryTemplates, admin)
	rg.POST("/templates", api.createTemplate, admin)
	rg.GET("/templates/:id", api.retrieveTemplate, admin)
	rg.POST("/templates/:id/copy", api.copyTemplate, admin)
	rg.GET("/templates/:id/schemes", api.templateSchemes, admin)

	rg.GET("/access-rules", api.queryAccessRules, admin)
	rg.POST("/access-rules", api.createAccessRule, admin)
	rg.POST("/access-rules/:id/copy", api.copyAccessRule, admin)

	rg.GET("/terms", api.queryTerms)
	rg.POST("/terms", api.createTerm, admin)
	rg.GET("/terms/:id", api.retrieveTerm)
	rg.PUT("/terms/:id", api.updateTerm, admin)
	rg.POST("/terms/:id/copy", api.copyTerm, admin)
	rg.PUT("/terms/:id/open", api.setTermOpen, admin)
	rg.POST("/terms/:id/reportcards", api.createReportCards, admin)
	rg.GET("/terms/:id/duplicates", api.checkDuplicates, admin)
	rg.GET("/terms/:id/admin-overview", api.termAdminOverview, admin)
	rg.GET("/terms/:id/comments", api.commentReport, admin)

	// teacher views; report card admins may pass `teacher_id` to act as a teacher
	rg.GET("/terms/:id/overview", api.termOverview)
	rg.GET("/terms/:id/subjects", api.subjectObjs)
	rg.GET("/terms/:id/subjects/:subject/students", api.studentsForSubject)
	rg.GET("/terms/:id/subjects/:subject/teachers", api.teachersForSubject, admin)

	sg := rg.Group("/terms/:id/students/:student")
	sg.GET("", api.viewStudent)
	sg.PUT("", api.editStudent)
	sg.POST("/locks", api.checkStudentLocks)
	sg.DELETE("/locks", api.clearStudentLocks)
	sg.GET("/completed", api.calculateCompleted)
	sg.GET("/past", api.pastReportCards)
	sg.POST("/send", api.sendReportCard, admin)

	jg := rg.Group("/terms/:id/subjects/:subject/grades/:grade")
	jg.GET("", api.viewSubject)
	jg.PUT("", api.editSubject)
	jg.POST("/locks", api.checkSubjectLocks)
	jg.DELETE("/locks", api.clearSubjectLocks)

	rg.GET("/:rc/summary", api.summary)
	rg.GET("/:rc/completed", api.isCompleted)
	rg.PUT("/:rc/completed", api.setCompleted)
	rg.PUT("/:rc/template", api.changeTemplate, admin)
}

// actor resolves who is editing: report card admins act unrestricted, or as the teacher in `teacher_id`;
// everyone else acts as the faculty linked to their login.
func (api *reportCardApi) actor(ctx echo.Context) (reportcard.Actor, error) {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return reportcard.Actor{}, errors.Wrap(err, "getting context user")
	}
	actor := reportcard.Actor{Editor: reportcard.Editor{UserID: usr.ID, Name: usr.Name}}

	if usr.IsReportCardAdmin() {
		teacherID, ok, err := intQuery(ctx, "teacher_id")
		if err != nil || !ok {
			return actor, err
		}
		fac, err := api.school.GetFaculty(ctx.Request().Context(), teacherID)
		if err != nil {
			return reportcard.Actor{}, errors.Wrap(err, "finding teacher")
		}
		actor.Teacher = &fac
		return actor, nil
	}

	fac, err := api.school.GetFacultyByUser(ctx.Request().Context(), usr.ID)
	if err != nil {
		if core.IsNotFound(err) {
			return reportcard.Actor{}, core.ErrPermissionDenied
		}
		return reportcard.Actor{}, errors.Wrap(err, "finding faculty")
	}
	actor.Teacher = &fac
	return actor, nil
}

// Grading schemes

func (api *reportCardApi) querySchemes(ctx echo.Context) error {
	schemes, err := api.svc.QueryGradingSchemes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying grading schemes")
	}
	return ctx.JSON(http.StatusOK, orEmpty(schemes))
}

func (api *reportCardApi) createScheme(ctx echo.Context) error {
	var scheme reportcard.GradingScheme
	if err := ctx.Bind(&scheme); err != nil {
		return errors.Wrap(err, "binding to GradingScheme")
	}
	scheme, err := api.svc.CreateGradingScheme(ctx.Request().Context(), scheme)
	if err != nil {
		return errors.Wrap(err, "creating grading scheme")
	}
	return ctx.JSON(http.StatusCreated, scheme)
}

func (api *reportCardApi) retrieveScheme(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	scheme, err := api.svc.GetGradingScheme(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding grading scheme")
	}
	return ctx.JSON(http.StatusOK, scheme)
}

func (api *reportCardApi) copyScheme(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	scheme, err := api.svc.CopyGradingScheme(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "copying grading scheme")
	}
	return ctx.JSON(http.StatusCreated, scheme)
}

// Templates

func (api *reportCardApi) queryTemplates(ctx echo.Context) error {
	var filter reportcard.TemplateFilter
	if v := ctx.QueryParam("active"); v != "" {
		active := v == "true" || v == "1"
		filter.Active = &active
	}
	tpls, err := api.svc.QueryTemplates(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying templates")
	}
	return ctx.JSON(http.StatusOK, orEmpty(tpls))
}

func (api *reportCardApi) createTemplate(ctx echo.Context) error {
	var tpl reportcard.Template
	if err := ctx.Bind(&tpl); err != nil {
		return errors.Wrap(err, "binding to Template")
	}
	tpl, err := api.svc.CreateTemplate(ctx.Request().Context(), tpl)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tpl)
}

func (api *reportCardApi) retrieveTemplate(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	tpl, err := api.svc.GetTemplate(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding template")
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (api *reportCardApi) copyTemplate(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	tpl, err := api.svc.CopyTemplate(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "copying template")
	}
	return ctx.JSON(http.StatusCreated, tpl)
}

func (api *reportCardApi) templateSchemes(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	schemes, err := api.svc.TemplateGradingSchemes(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying template grading schemes")
	}
	return ctx.JSON(http.StatusOK, orEmpty(schemes))
}

// Access rules

func (api *reportCardApi) queryAccessRules(ctx echo.Context) error {
	rules, err := api.svc.QueryAccessRules(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying access rules")
	}
	return ctx.JSON(http.StatusOK, orEmpty(rules))
}

func (api *reportCardApi) createAccessRule(ctx echo.Context) error {
	var rule reportcard.AccessRule
	if err := ctx.Bind(&rule); err != nil {
		return errors.Wrap(err, "binding to AccessRule")
	}
	rule, err := api.svc.CreateAccessRule(ctx.Request().Context(), rule)
	if err != nil {
		return errors.Wrap(err, "creating access rule")
	}
	return ctx.JSON(http.StatusCreated, rule)
}

func (api *reportCardApi) copyAccessRule(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	rule, err := api.svc.CopyAccessRule(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "copying access rule")
	}
	return ctx.JSON(http.StatusCreated, rule)
}

// Terms

func (api *reportCardApi) queryTerms(ctx echo.Context) error {
	yearID, ok, err := intQuery(ctx, "school_year_id")
	if err != nil {
		return err
	}
	if !ok {
		year, err := api.school.CurrentYear(ctx.Request().Context())
		if err != nil {
			return errors.Wrap(err, "finding current school year")
		}
		yearID = year.ID
	}
	terms, err := api.svc.QueryTerms(ctx.Request().Context(), yearID)
	if err != nil {
		return errors.Wrap(err, "querying terms")
	}
	return ctx.JSON(http.StatusOK, orEmpty(terms))
}

func (api *reportCardApi) createTerm(ctx echo.Context) error {
	var term reportcard.Term
	if err := ctx.Bind(&term); err != nil {
		return errors.Wrap(err, "binding to Term")
	}
	term.ID = 0
	term, err := api.svc.CreateTerm(ctx.Request().Context(), term)
	if err != nil {
		return errors.Wrap(err, "creating term")
	}
	return ctx.JSON(http.StatusCreated, term)
}

func (api *reportCardApi) retrieveTerm(ctx echo.Context) error {
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

func (api *reportCardApi) updateTerm(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	term, err := api.svc.GetTerm(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding term")
	}
	if err = ctx.Bind(&term); err != nil {
		return errors.Wrap(err, "binding to Term")
	}
	term.ID = id
	term, err = api.svc.UpdateTerm(ctx.Request().Context(), term)
	if err != nil {
		return errors.Wrap(err, "updating term")
	}
	return ctx.JSON(http.StatusOK, term)
}

func (api *reportCardApi) copyTerm(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	term, err := api.svc.CopyTerm(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "copying term")
	}
	return ctx.JSON(http.StatusCreated, term)
}

type openRequest struct {
	IsOpen bool `json:"is_open"`
}

func (api *reportCardApi) setTermOpen(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data openRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to openRequest")
	}
	term, err := api.svc.SetTermOpen(ctx.Request().Context(), id, data.IsOpen)
	if err != nil {
		return errors.Wrap(err, "opening term")
	}
	return ctx.JSON(http.StatusOK, term)
}

type countResponse struct {
	Count int `json:"count"`
}

func (api *reportCardApi) createReportCards(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	n, err := api.svc.CreateReportCards(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "creating report cards")
	}
	return ctx.JSON(http.StatusOK, countResponse{Count: n})
}

func (api *reportCardApi) checkDuplicates(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	dups, err := api.svc.CheckDuplicates(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "checking duplicate entries")
	}
	return ctx.JSON(http.StatusOK, orEmpty(dups))
}

func (api *reportCardApi) termAdminOverview(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	ov, err := api.svc.TermAdminOverview(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "building admin overview")
	}
	return ctx.JSON(http.StatusOK, ov)
}

func (api *reportCardApi) commentReport(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	gradeID, ok, err := intQuery(ctx, "grade_id")
	if err != nil {
		return err
	}
	if !ok {
		return core.NewValidationError(nil, core.FieldError{Field: "grade_id", Error: "this field is required"})
	}
	report, err := api.svc.CommentReport(ctx.Request().Context(), int(gradeID), id)
	if err != nil {
		return errors.Wrap(err, "building comment report")
	}
	return ctx.JSON(http.StatusOK, report)
}

// Teacher views

func (api *reportCardApi) termOverview(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	ov, err := api.svc.TermOverview(ctx.Request().Context(), actor, id)
	if err != nil {
		return errors.Wrap(err, "building term overview")
	}
	return ctx.JSON(http.StatusOK, ov)
}

func (api *reportCardApi) subjectObjs(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	subjects, err := api.svc.SubjectObjs(ctx.Request().Context(), id, actor.Teacher)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return ctx.JSON(http.StatusOK, orEmpty(subjects))
}

func (api *reportCardApi) studentsForSubject(ctx echo.Context) error {
	termID, subjectID, err := termAndSubject(ctx)
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var gradeID *int
	if g, ok, err := intQuery(ctx, "grade_id"); err != nil {
		return err
	} else if ok {
		gid := int(g)
		gradeID = &gid
	}
	students, err := api.svc.StudentsForSubject(ctx.Request().Context(), subjectID, termID, gradeID, actor.Teacher)
	if err != nil {
		return errors.Wrap(err, "querying students for subject")
	}
	return ctx.JSON(http.StatusOK, orEmpty(students))
}

func (api *reportCardApi) teachersForSubject(ctx echo.Context) error {
	termID, subjectID, err := termAndSubject(ctx)
	if err != nil {
		return err
	}
	var studentID *int64
	if id, ok, err := intQuery(ctx, "student_id"); err != nil {
		return err
	} else if ok {
		studentID = &id
	}
	facs, err := api.svc.TeachersForSubject(ctx.Request().Context(), subjectID, termID, studentID)
	if err != nil {
		return errors.Wrap(err, "querying teachers for subject")
	}
	return ctx.JSON(http.StatusOK, orEmpty(facs))
}

// Student report card

// EditRequest holds the entries to save. Release drops the editor's locks once saved.
type EditRequest struct {
	Entries []reportcard.EntryInput `json:"entries"`
	Release bool                    `json:"release"`
}

func termAndStudent(ctx echo.Context) (termID, studentID int64, err error) {
	if termID, err = idParam(ctx, "id"); err != nil {
		return 0, 0, err
	}
	if studentID, err = idParam(ctx, "student"); err != nil {
		return 0, 0, err
	}
	return termID, studentID, nil
}

func (api *reportCardApi) viewStudent(ctx echo.Context) error {
	termID, studentID, err := termAndStudent(ctx)
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	card, err := api.svc.ViewStudent(ctx.Request().Context(), actor, studentID, termID)
	if err != nil {
		return errors.Wrap(err, "viewing report card")
	}
	return ctx.JSON(http.StatusOK, card)
}

func (api *reportCardApi) editStudent(ctx echo.Context) error {
	termID, studentID, err := termAndStudent(ctx)
	if err != nil {
		return err
	}
	var data EditRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditRequest")
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.EditStudent(ctx.Request().Context(), actor, studentID, termID, data.Entries, data.Release)
	if err != nil {
		return errors.Wrap(err, "editing report card")
	}
	return ctx.JSON(http.StatusOK, res)
}

// LocksResponse lists the edits of other users conflicting with the caller's.
type LocksResponse struct {
	Conflicts []string `json:"conflicts"`
}

func (api *reportCardApi) checkStudentLocks(ctx echo.Context) error {
	termID, studentID, err := termAndStudent(ctx)
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	checkOnly := ctx.QueryParam("check_only") == "true"
	conflicts, err := api.svc.CheckStudentLocks(ctx.Request().Context(), actor, studentID, termID, checkOnly)
	if err != nil {
		return errors.Wrap(err, "checking locks")
	}
	return ctx.JSON(http.StatusOK, LocksResponse{Conflicts: orEmpty(conflicts)})
}

func (api *reportCardApi) clearStudentLocks(ctx echo.Context) error {
	termID, studentID, err := termAndStudent(ctx)
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.ClearStudentLocks(ctx.Request().Context(), actor, studentID, termID); err != nil {
		return errors.Wrap(err, "clearing locks")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// CompletedResponse tells whether a report card is complete for the acting teacher.
type CompletedResponse struct {
	Completed bool `json:"completed"`
}

func (api *reportCardApi) calculateCompleted(ctx echo.Context) error {
	termID, studentID, err := termAndStudent(ctx)
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	done, err := api.svc.CalculateCompleted(ctx.Request().Context(), studentID, termID, actor.Teacher)
	if err != nil {
		return errors.Wrap(err, "calculating completion")
	}
	return ctx.JSON(http.StatusOK, CompletedResponse{Completed: done})
}

func (api *reportCardApi) pastReportCards(ctx echo.Context) error {
	termID, studentID, err := termAndStudent(ctx)
	if err != nil {
		return err
	}
	term, err := api.svc.GetTerm(ctx.Request().Context(), termID)
	if err != nil {
		return errors.Wrap(err, "finding term")
	}
	includeCurrent := ctx.QueryParam("include_current") == "true"
	past, err := api.svc.PastReportCards(ctx.Request().Context(), studentID, term, includeCurrent)
	if err != nil {
		return errors.Wrap(err, "querying past report cards")
	}
	return ctx.JSON(http.StatusOK, orEmpty(past))
}

func (api *reportCardApi) sendReportCard(ctx echo.Context) error {
	termID, studentID, err := termAndStudent(ctx)
	if err != nil {
		return err
	}
	var opts reportcard.SendOptions
	if err = ctx.Bind(&opts); err != nil {
		return errors.Wrap(err, "binding to SendOptions")
	}
	res, err := api.svc.SendReportCard(ctx.Request().Context(), studentID, termID, opts)
	if err != nil {
		return errors.Wrap(err, "sending report card")
	}
	return ctx.JSON(http.StatusOK, res)
}

// Subject sheet

func termAndSubject(ctx echo.Context) (termID, subjectID int64, err error) {
	if termID, err = idParam(ctx, "id"); err != nil {
		return 0, 0, err
	}
	if subjectID, err = idParam(ctx, "subject"); err != nil {
		return 0, 0, err
	}
	return termID, subjectID, nil
}

func subjectParams(ctx echo.Context) (termID, subjectID int64, gradeID int, err error) {
	if termID, subjectID, err = termAndSubject(ctx); err != nil {
		return 0, 0, 0, err
	}
	g, err := idParam(ctx, "grade")
	if err != nil {
		return 0, 0, 0, err
	}
	return termID, subjectID, int(g), nil
}

func (api *reportCardApi) viewSubject(ctx echo.Context) error {
	termID, subjectID, gradeID, err := subjectParams(ctx)
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	sheet, err := api.svc.ViewSubject(ctx.Request().Context(), actor, subjectID, gradeID, termID)
	if err != nil {
		return errors.Wrap(err, "viewing subject")
	}
	return ctx.JSON(http.StatusOK, sheet)
}

func (api *reportCardApi) editSubject(ctx echo.Context) error {
	termID, subjectID, gradeID, err := subjectParams(ctx)
	if err != nil {
		return err
	}
	var data EditRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditRequest")
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.EditSubject(ctx.Request().Context(), actor, subjectID, gradeID, termID, data.Entries, data.Release)
	if err != nil {
		return errors.Wrap(err, "editing subject")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *reportCardApi) checkSubjectLocks(ctx echo.Context) error {
	termID, subjectID, gradeID, err := subjectParams(ctx)
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	checkOnly := ctx.QueryParam("check_only") == "true"
	conflicts, err := api.svc.CheckSubjectLocks(ctx.Request().Context(), actor, subjectID, gradeID, termID, checkOnly)
	if err != nil {
		return errors.Wrap(err, "checking locks")
	}
	return ctx.JSON(http.StatusOK, LocksResponse{Conflicts: orEmpty(conflicts)})
}

func (api *reportCardApi) clearSubjectLocks(ctx echo.Context) error {
	termID, subjectID, gradeID, err := subjectParams(ctx)
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.ClearSubjectLocks(ctx.Request().Context(), actor, subjectID, gradeID, termID); err != nil {
		return errors.Wrap(err, "clearing locks")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Report card

func (api *reportCardApi) summary(ctx echo.Context) error {
	id, err := idParam(ctx, "rc")
	if err != nil {
		return err
	}
	sum, err := api.svc.Summary(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "summarizing report card")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *reportCardApi) isCompleted(ctx echo.Context) error {
	id, err := idParam(ctx, "rc")
	if err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	done, err := api.svc.IsCompleted(ctx.Request().Context(), id, actor.Teacher)
	if err != nil {
		return errors.Wrap(err, "checking completion")
	}
	return ctx.JSON(http.StatusOK, CompletedResponse{Completed: done})
}

func (api *reportCardApi) setCompleted(ctx echo.Context) error {
	id, err := idParam(ctx, "rc")
	if err != nil {
		return err
	}
	var data CompletedResponse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompletedResponse")
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	done, err := api.svc.SetCompleted(ctx.Request().Context(), id, actor.Teacher, data.Completed)
	if err != nil {
		return errors.Wrap(err, "setting completion")
	}
	return ctx.JSON(http.StatusOK, CompletedResponse{Completed: done})
}

type changeTemplateRequest struct {
	TemplateID int64 `json:"template_id"`
}

func (api *reportCardApi) changeTemplate(ctx echo.Context) error {
	id, err := idParam(ctx, "rc")
	if err != nil {
		return err
	}
	var data changeTemplateRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to changeTemplateRequest")
	}
	res, err := api.svc.ChangeTemplate(ctx.Request().Context(), id, data.TemplateID)
	if err != nil {
		return errors.Wrap(err, "changing template")
	}
	return ctx.JSON(http.StatusOK, res)
}
