package reportcard

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/attendance"
	"github.com/trezcool/indysis/core/school"
)

var (
	// errors
	ErrSchemeNotFound     = core.NewNotFoundError("grading scheme")
	ErrTemplateNotFound   = core.NewNotFoundError("report card template")
	ErrTermNotFound       = core.NewNotFoundError("report card term")
	ErrReportCardNotFound = core.NewNotFoundError("report card")
	ErrSubjectNotFound    = core.NewNotFoundError("report card subject")
	ErrAccessNotFound     = core.NewNotFoundError("report card access rule")
	ErrReportCardExists   = errors.New("report card already exists")
	ErrNoTemplate         = errors.New("no template for this grade")
	ErrMultipleTemplates  = errors.New("more than one template for this grade")
	ErrNoGrade            = errors.New("student has no grade")
	ErrTermClosed         = errors.New("term is not open")
)

// ConflictError is returned when other users are editing the same entries.
type ConflictError struct {
	Conflicts []string
}

func (err ConflictError) Error() string {
	return "conflicting edits: " + strings.Join(err.Conflicts, "; ")
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

type (
	TemplateFilter struct {
		IDs    []int64
		Active *bool
	}

	TermFilter struct {
		IDs          []int64
		SchoolYearID int64
	}

	ReportCardFilter struct {
		IDs        []int64
		TermIDs    []int64
		StudentIDs []int64
		TemplateID int64
	}

	EntryFilter struct {
		ReportCardIDs []int64
		SubjectID     int64
	}

	Repository interface {
		// CreateGradingScheme saves the scheme with its levels & choices.
		CreateGradingScheme(ctx context.Context, scheme GradingScheme, exec ...core.DBExecutor) (GradingScheme, error)
		GetGradingScheme(ctx context.Context, id int64, exec ...core.DBExecutor) (GradingScheme, error)
		// QueryGradingSchemes returns every scheme when ids is empty.
		QueryGradingSchemes(ctx context.Context, ids []int64, exec ...core.DBExecutor) ([]GradingScheme, error)

		// CreateTemplate saves the template with its sections, subjects & strands.
		CreateTemplate(ctx context.Context, tpl Template, exec ...core.DBExecutor) (Template, error)
		GetTemplate(ctx context.Context, id int64, exec ...core.DBExecutor) (Template, error)
		QueryTemplates(ctx context.Context, filter TemplateFilter, exec ...core.DBExecutor) ([]Template, error)

		CreateTerm(ctx context.Context, term Term, exec ...core.DBExecutor) (Term, error)
		UpdateTerm(ctx context.Context, term Term, exec ...core.DBExecutor) (Term, error)
		GetTerm(ctx context.Context, id int64, exec ...core.DBExecutor) (Term, error)
		QueryTerms(ctx context.Context, filter TermFilter, exec ...core.DBExecutor) ([]Term, error)

		// CreateReportCard returns ErrReportCardExists when the student already has a card for the term & template.
		CreateReportCard(ctx context.Context, rc ReportCard, exec ...core.DBExecutor) (ReportCard, error)
		UpdateReportCard(ctx context.Context, rc ReportCard, exec ...core.DBExecutor) (ReportCard, error)
		GetReportCard(ctx context.Context, id int64, exec ...core.DBExecutor) (ReportCard, error)
		QueryReportCards(ctx context.Context, filter ReportCardFilter, exec ...core.DBExecutor) ([]ReportCard, error)

		// CreateEntries skips entries whose (report card, section, subject, strand) already exist.
		CreateEntries(ctx context.Context, entries []Entry, exec ...core.DBExecutor) error
		UpdateEntries(ctx context.Context, entries []Entry, exec ...core.DBExecutor) error
		DeleteEntries(ctx context.Context, ids []int64, exec ...core.DBExecutor) error
		QueryEntries(ctx context.Context, filter EntryFilter, exec ...core.DBExecutor) ([]Entry, error)

		// SaveSubmission inserts or updates the submission of the faculty for the report card.
		SaveSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
		QuerySubmissions(ctx context.Context, reportCardIDs []int64, exec ...core.DBExecutor) ([]Submission, error)

		CreateAccessRule(ctx context.Context, rule AccessRule, exec ...core.DBExecutor) (AccessRule, error)
		GetAccessRule(ctx context.Context, id int64, exec ...core.DBExecutor) (AccessRule, error)
		QueryAccessRules(ctx context.Context, exec ...core.DBExecutor) ([]AccessRule, error)
	}

	// Directory gives access to the school records.
	Directory interface {
		GetStudent(ctx context.Context, id int64) (school.Student, error)
		QueryStudents(ctx context.Context, filter school.StudentFilter) ([]school.Student, error)
		GetFaculty(ctx context.Context, id int64) (school.Faculty, error)
		QueryFaculty(ctx context.Context, filter school.FacultyFilter) ([]school.Faculty, error)
		QueryClasses(ctx context.Context, filter school.ClassFilter) ([]school.StudentClass, error)
		GetSchoolYear(ctx context.Context, id int64) (school.SchoolYear, error)
		GetTerm(ctx context.Context, id int64) (school.Term, error)
		GetGradeLevel(ctx context.Context, id int) (school.GradeLevel, error)
		QueryGradeLevels(ctx context.Context) ([]school.GradeLevel, error)
		HomeroomTeacher(ctx context.Context, studentID, schoolYearID int64) (school.Faculty, error)
		Parents(ctx context.Context, studentID int64) ([]school.EmergencyContact, error)
	}

	// Attendance counts absences & lates.
	Attendance interface {
		Summaries(ctx context.Context, studentIDs []int64, from, to time.Time) (map[int64]attendance.Summary, error)
	}

	Service struct {
		conf        *core.Config
		db          core.DB
		repo        Repository
		locks       LockStore
		dir         Directory
		att         Attendance
		mailSvc     core.EmailService
		logger      core.Logger
		lockTimeout time.Duration
		now         func() time.Time
		spawn       func(fn func())
	}
)

func NewService(
	conf *core.Config,
	db core.DB,
	repo Repository,
	locks LockStore,
	dir Directory,
	att Attendance,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		conf:        conf,
		db:          db,
		repo:        repo,
		locks:       locks,
		dir:         dir,
		att:         att,
		mailSvc:     mailSvc,
		logger:      logger,
		lockTimeout: conf.ReportCard.LockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		spawn:       func(fn func()) { go fn() },
	}
}

func required(field string) core.FieldError {
	return core.FieldError{Field: field, Error: "this field is required"}
}

// Grading schemes

func (svc *Service) CreateGradingScheme(ctx context.Context, scheme GradingScheme) (GradingScheme, error) {
	scheme.Name = core.CleanString(scheme.Name)
	if scheme.Name == "" {
		return GradingScheme{}, core.NewValidationError(nil, required("name"))
	}
	if scheme.MinValue != nil && (*scheme.MinValue < 0 || *scheme.MinValue > 100) {
		return GradingScheme{}, core.NewValidationError(nil, core.FieldError{Field: "min_value", Error: "enter a value between 0 and 100"})
	}
	for i, lvl := range scheme.Levels {
		for j, c := range lvl.Choices {
			c.Code = core.CleanString(c.Code)
			if c.Code == "" {
				return GradingScheme{}, core.NewValidationError(nil, required("levels.choices.choice"))
			}
			scheme.Levels[i].Choices[j] = c
		}
	}

	var created GradingScheme
	err := core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		created, err = svc.repo.CreateGradingScheme(ctx, scheme, exec)
		return err
	})
	return created, err
}

func (svc *Service) GetGradingScheme(ctx context.Context, id int64) (GradingScheme, error) {
	return svc.repo.GetGradingScheme(ctx, id)
}

func (svc *Service) QueryGradingSchemes(ctx context.Context) ([]GradingScheme, error) {
	return svc.repo.QueryGradingSchemes(ctx, nil)
}

// CopyGradingScheme saves a deep copy of the scheme named "<name> (copy)".
func (svc *Service) CopyGradingScheme(ctx context.Context, id int64) (GradingScheme, error) {
	scheme, err := svc.repo.GetGradingScheme(ctx, id)
	if err != nil {
		return GradingScheme{}, err
	}
	return svc.CreateGradingScheme(ctx, scheme.Copy())
}

// Templates

func (svc *Service) CreateTemplate(ctx context.Context, tpl Template) (Template, error) {
	tpl.Name = core.CleanString(tpl.Name)
	if tpl.Name == "" {
		return Template{}, core.NewValidationError(nil, required("name"))
	}

	schemes, err := svc.repo.QueryGradingSchemes(ctx, nil)
	if err != nil {
		return Template{}, err
	}
	known := core.NewInt64Set()
	for _, g := range schemes {
		known.Add(g.ID)
	}
	for i := range tpl.Sections {
		sect := &tpl.Sections[i]
		sect.Name = core.CleanString(sect.Name)
		if !known.Has(sect.GradingSchemeID) {
			return Template{}, core.NewValidationError(ErrSchemeNotFound, core.FieldError{Field: "sections.gradingscheme_id", Error: ErrSchemeNotFound.Error()})
		}
		if sect.SecondGradingSchemeID != nil && !known.Has(*sect.SecondGradingSchemeID) {
			return Template{}, core.NewValidationError(ErrSchemeNotFound, core.FieldError{Field: "sections.second_gradingscheme_id", Error: ErrSchemeNotFound.Error()})
		}
		for j := range sect.Subjects {
			subj := &sect.Subjects[j]
			subj.NameEN = core.CleanString(subj.NameEN)
			subj.NameFR = core.CleanString(subj.NameFR)
			subj.Language = normalizeLanguage(subj.Language)
			for k := range subj.Strands {
				subj.Strands[k].Language = normalizeLanguage(subj.Strands[k].Language)
			}
		}
	}

	var created Template
	err = core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		created, err = svc.repo.CreateTemplate(ctx, tpl, exec)
		return err
	})
	return created, err
}

func normalizeLanguage(lang string) string {
	if strings.ToLower(lang) == LangFR {
		return LangFR
	}
	return LangEN
}

func (svc *Service) GetTemplate(ctx context.Context, id int64) (Template, error) {
	return svc.repo.GetTemplate(ctx, id)
}

func (svc *Service) QueryTemplates(ctx context.Context, filter TemplateFilter) ([]Template, error) {
	return svc.repo.QueryTemplates(ctx, filter)
}

// CopyTemplate saves a deep copy of the template named "<name> (copy)".
func (svc *Service) CopyTemplate(ctx context.Context, id int64) (Template, error) {
	tpl, err := svc.repo.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, err
	}
	return svc.CreateTemplate(ctx, tpl.Copy())
}

// TemplateGradingSchemes returns the grading schemes used by the template, in section order.
func (svc *Service) TemplateGradingSchemes(ctx context.Context, id int64) ([]GradingScheme, error) {
	tpl, err := svc.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := tpl.GradingSchemeIDs()
	if len(ids) == 0 {
		return []GradingScheme{}, nil
	}
	found, err := svc.repo.QueryGradingSchemes(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]GradingScheme, len(found))
	for _, g := range found {
		byID[g.ID] = g
	}
	out := make([]GradingScheme, 0, len(ids))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// templateSchemes loads the grading schemes of the template's sections.
func (svc *Service) templateSchemes(ctx context.Context, tpl Template) (map[int64]schemes, error) {
	ids := tpl.GradingSchemeIDs()
	found, err := svc.repo.QueryGradingSchemes(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]GradingScheme, len(found))
	for _, g := range found {
		byID[g.ID] = g
	}
	out := make(map[int64]schemes, len(tpl.Sections))
	for _, sect := range tpl.Sections {
		sc := schemes{main: byID[sect.GradingSchemeID]}
		if sect.SecondGradingSchemeID != nil {
			second := byID[*sect.SecondGradingSchemeID]
			sc.second = &second
		}
		out[sect.ID] = sc
	}
	return out, nil
}

// Terms

func (svc *Service) validateTerm(ctx context.Context, term *Term) error {
	term.Name = core.CleanString(term.Name)
	var errs []core.FieldError
	if term.Name == "" {
		errs = append(errs, required("name"))
	}
	if _, err := svc.dir.GetSchoolYear(ctx, term.SchoolYearID); err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		errs = append(errs, core.FieldError{Field: "school_year_id", Error: err.Error()})
	}
	if _, err := svc.dir.GetTerm(ctx, term.MarkingPeriodID); err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		errs = append(errs, core.FieldError{Field: "term_id", Error: err.Error()})
	}
	if len(term.TemplateIDs) > 0 {
		tpls, err := svc.repo.QueryTemplates(ctx, TemplateFilter{IDs: term.TemplateIDs})
		if err != nil {
			return err
		}
		if len(tpls) != len(core.NewInt64Set(term.TemplateIDs...)) {
			errs = append(errs, core.FieldError{Field: "template_ids", Error: ErrTemplateNotFound.Error()})
		}
	}
	if len(errs) > 0 {
		return core.NewValidationError(nil, errs...)
	}
	if strings.TrimSpace(term.EmailSubject) == "" {
		term.EmailSubject = defaultEmailSubject
	}
	if strings.TrimSpace(term.EmailBody) == "" {
		term.EmailBody = defaultEmailBody
	}
	if _, _, err := parseTermEmail(*term); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: err.Error()})
	}
	return nil
}

func (svc *Service) CreateTerm(ctx context.Context, term Term) (Term, error) {
	if err := svc.validateTerm(ctx, &term); err != nil {
		return Term{}, err
	}
	return svc.repo.CreateTerm(ctx, term)
}

// UpdateTerm saves the term's details. Opening & closing goes through SetTermOpen.
func (svc *Service) UpdateTerm(ctx context.Context, term Term) (Term, error) {
	orig, err := svc.repo.GetTerm(ctx, term.ID)
	if err != nil {
		return Term{}, err
	}
	term.IsOpen = orig.IsOpen
	if err := svc.validateTerm(ctx, &term); err != nil {
		return Term{}, err
	}
	return svc.repo.UpdateTerm(ctx, term)
}

func (svc *Service) GetTerm(ctx context.Context, id int64) (Term, error) {
	return svc.repo.GetTerm(ctx, id)
}

// QueryTerms lists the terms of a school year by number. A zero schoolYearID lists all terms.
func (svc *Service) QueryTerms(ctx context.Context, schoolYearID int64) ([]Term, error) {
	terms, err := svc.repo.QueryTerms(ctx, TermFilter{SchoolYearID: schoolYearID})
	if err != nil {
		return nil, err
	}
	sortTerms(terms)
	return terms, nil
}

func sortTerms(terms []Term) {
	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].SchoolYearID != terms[j].SchoolYearID {
			return terms[i].SchoolYearID < terms[j].SchoolYearID
		}
		return terms[i].Number < terms[j].Number
	})
}

// CopyTerm saves a closed copy of the term named "<name> (copy)".
func (svc *Service) CopyTerm(ctx context.Context, id int64) (Term, error) {
	term, err := svc.repo.GetTerm(ctx, id)
	if err != nil {
		return Term{}, err
	}
	return svc.repo.CreateTerm(ctx, term.Copy())
}

// SetTermOpen opens or closes a term. Opening a term creates the missing report cards in the background.
func (svc *Service) SetTermOpen(ctx context.Context, id int64, open bool) (Term, error) {
	term, err := svc.repo.GetTerm(ctx, id)
	if err != nil {
		return Term{}, err
	}
	term.IsOpen = open
	term, err = svc.repo.UpdateTerm(ctx, term)
	if err != nil {
		return Term{}, err
	}
	if open {
		svc.spawn(func() {
			created, err := svc.CreateReportCards(context.Background(), id)
			if err != nil {
				svc.logger.Error("creating report cards", err, map[string]interface{}{"term": id})
				return
			}
			svc.logger.Info("report cards created", map[string]interface{}{"term": id, "created": created})
		})
	}
	return term, nil
}

// TemplateForGrade returns the only template of the term for the grade, with the term's interim flag.
func (svc *Service) TemplateForGrade(ctx context.Context, term Term, gradeID int) (Template, error) {
	if len(term.TemplateIDs) == 0 {
		return Template{}, ErrNoTemplate
	}
	tpls, err := svc.repo.QueryTemplates(ctx, TemplateFilter{IDs: term.TemplateIDs})
	if err != nil {
		return Template{}, err
	}
	var found []Template
	for _, tpl := range tpls {
		if tpl.HasGrade(gradeID) && tpl.Interim == term.Interim {
			found = append(found, tpl)
		}
	}
	switch len(found) {
	case 0:
		return Template{}, ErrNoTemplate
	case 1:
		return found[0], nil
	}
	return Template{}, ErrMultipleTemplates
}

func (svc *Service) termTemplates(ctx context.Context, term Term) ([]Template, error) {
	if len(term.TemplateIDs) == 0 {
		return []Template{}, nil
	}
	return svc.repo.QueryTemplates(ctx, TemplateFilter{IDs: term.TemplateIDs})
}

// Access rules

func (svc *Service) CreateAccessRule(ctx context.Context, rule AccessRule) (AccessRule, error) {
	rule.Description = core.CleanString(rule.Description)
	var errs []core.FieldError
	if len(rule.FacultyIDs) == 0 {
		errs = append(errs, required("faculty_ids"))
	}
	if len(rule.SubjectIDs) == 0 && len(rule.SectionIDs) == 0 {
		errs = append(errs, core.FieldError{Field: "subject_ids", Error: "select at least one subject or section"})
	}
	if len(errs) > 0 {
		return AccessRule{}, core.NewValidationError(nil, errs...)
	}
	return svc.repo.CreateAccessRule(ctx, rule)
}

func (svc *Service) QueryAccessRules(ctx context.Context) ([]AccessRule, error) {
	return svc.repo.QueryAccessRules(ctx)
}

func (svc *Service) CopyAccessRule(ctx context.Context, id int64) (AccessRule, error) {
	rule, err := svc.repo.GetAccessRule(ctx, id)
	if err != nil {
		return AccessRule{}, err
	}
	return svc.repo.CreateAccessRule(ctx, rule.Copy())
}

// accessIndex loads the access rules with the classes of the school year.
func (svc *Service) accessIndex(ctx context.Context, schoolYearID int64) (accessIndex, error) {
	rules, err := svc.repo.QueryAccessRules(ctx)
	if err != nil {
		return accessIndex{}, err
	}
	classes, err := svc.dir.QueryClasses(ctx, school.ClassFilter{SchoolYearID: schoolYearID})
	if err != nil {
		return accessIndex{}, err
	}
	return newAccessIndex(rules, classes), nil
}
