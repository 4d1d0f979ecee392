package boiledrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/reportcard"
)

const (
	schemesTable     = "grading_schemes"
	levelsTable      = "grading_levels"
	choicesTable     = "grading_choices"
	templatesTable   = "rc_templates"
	sectionsTable    = "rc_sections"
	subjectsTable    = "rc_subjects"
	strandsTable     = "rc_strands"
	rcTermsTable     = "rc_terms"
	cardsTable       = "report_cards"
	entriesTable     = "rc_entries"
	submissionsTable = "rc_submissions"
	rulesTable       = "rc_access_rules"
)

var sortOrder = qm.OrderBy("sortorder, id")

type (
	schemeRow struct {
		ID           int64    `boil:"id"`
		Name         string   `boil:"name"`
		Percentile   bool     `boil:"percentile"`
		MinValue     null.Int `boil:"min_value"`
		RangeHeading string   `boil:"range_heading"`
		DescrHeading string   `boil:"descr_heading"`
	}

	levelRow struct {
		ID          int64  `boil:"id"`
		SchemeID    int64  `boil:"gradingscheme_id"`
		SortOrder   int    `boil:"sortorder"`
		Range       string `boil:"range"`
		Description string `boil:"description"`
	}

	choiceRow struct {
		ID           int64  `boil:"id"`
		LevelID      int64  `boil:"level_id"`
		SortOrder    int    `boil:"sortorder"`
		Code         string `boil:"choice"`
		Name         string `boil:"name"`
		Description  string `boil:"description"`
		ViewFullName bool   `boil:"view_fullname"`
	}

	templateRow struct {
		ID          int64            `boil:"id"`
		Name        string           `boil:"name"`
		IsActive    bool             `boil:"is_active"`
		Description string           `boil:"description"`
		Interim     bool             `boil:"interim"`
		GradeIDs    types.Int64Array `boil:"grade_ids"`
	}

	sectionRow struct {
		ID                       int64      `boil:"id"`
		TemplateID               int64      `boil:"template_id"`
		SortOrder                int        `boil:"sortorder"`
		Name                     string     `boil:"name"`
		Heading                  string     `boil:"heading"`
		Text                     string     `boil:"text"`
		GradingSchemeID          int64      `boil:"gradingscheme_id"`
		GradingSchemeLabel       string     `boil:"gradingscheme_label"`
		SecondGradingSchemeID    null.Int64 `boil:"second_gradingscheme_id"`
		SecondGradingSchemeLabel string     `boil:"second_gradingscheme_label"`
		CommentsArea             bool       `boil:"comments_area"`
		CommentsHeading          string     `boil:"comments_heading"`
		FieldCode                string     `boil:"field_code"`
		PageBreakAfter           bool       `boil:"page_break_after"`
	}

	subjectRow struct {
		ID              int64  `boil:"id"`
		SectionID       int64  `boil:"section_id"`
		SortOrder       int    `boil:"sortorder"`
		NameEN          string `boil:"name_en"`
		NameFR          string `boil:"name_fr"`
		TextEN          string `boil:"text_en"`
		TextFR          string `boil:"text_fr"`
		CommentsArea    bool   `boil:"comments_area"`
		CommentsHeading string `boil:"comments_heading"`
		Graded          bool   `boil:"graded"`
		FieldCode       string `boil:"field_code"`
		Language        string `boil:"rc_language"`
		PageBreakAfter  bool   `boil:"page_break_after"`
	}

	strandRow struct {
		ID        int64  `boil:"id"`
		SubjectID int64  `boil:"subject_id"`
		SortOrder int    `boil:"sortorder"`
		TextEN    string `boil:"text_en"`
		TextFR    string `boil:"text_fr"`
		Graded    bool   `boil:"graded"`
		FieldCode string `boil:"field_code"`
		Language  string `boil:"rc_language"`
	}

	termRow struct {
		ID                 int64            `boil:"id"`
		SchoolYearID       int64            `boil:"school_year_id"`
		MarkingPeriodID    int64            `boil:"term_id"`
		Number             int              `boil:"number"`
		Name               string           `boil:"name"`
		Title              string           `boil:"title"`
		IsOpen             bool             `boil:"is_open"`
		Interim            bool             `boil:"interim"`
		SubmissionDeadline null.Time        `boil:"submission_deadline"`
		ReviewDeadline     null.Time        `boil:"review_deadline"`
		DeliveryDate       null.Time        `boil:"delivery_date"`
		ShortCode          string           `boil:"shortcode"`
		DisplayLabel       string           `boil:"displabel"`
		EmailSubject       string           `boil:"email_subject_template"`
		EmailBody          string           `boil:"email_body_template"`
		TemplateIDs        types.Int64Array `boil:"template_ids"`
	}

	cardRow struct {
		ID           int64     `boil:"id"`
		StudentID    int64     `boil:"student_id"`
		TermID       int64     `boil:"term_id"`
		TemplateID   int64     `boil:"template_id"`
		GradeLevelID null.Int  `boil:"grade_level_id"`
		Emailed      bool      `boil:"emailed"`
		CreatedAt    time.Time `boil:"created_at"`
		UpdatedAt    time.Time `boil:"updated_at"`
	}

	entryRow struct {
		ID               int64       `boil:"id"`
		ReportCardID     int64       `boil:"reportcard_id"`
		SectionID        int64       `boil:"section_id"`
		SubjectID        null.Int64  `boil:"subject_id"`
		StrandID         null.Int64  `boil:"strand_id"`
		Percentile       null.Int    `boil:"percentile"`
		ChoiceID         null.Int64  `boil:"choice_id"`
		SecondPercentile null.Int    `boil:"second_percentile"`
		SecondChoiceID   null.Int64  `boil:"second_choice_id"`
		Comment          null.String `boil:"comment"`
		Completed        bool        `boil:"completed"`
	}

	submissionRow struct {
		ID           int64     `boil:"id"`
		ReportCardID int64     `boil:"reportcard_id"`
		FacultyID    int64     `boil:"faculty_id"`
		Completed    bool      `boil:"completed"`
		UpdatedAt    time.Time `boil:"updated_at"`
	}

	ruleRow struct {
		ID          int64            `boil:"id"`
		Description string           `boil:"description"`
		ClassIDs    types.Int64Array `boil:"class_ids"`
		FacultyIDs  types.Int64Array `boil:"faculty_ids"`
		SubjectIDs  types.Int64Array `boil:"subject_ids"`
		SectionIDs  types.Int64Array `boil:"section_ids"`
	}
)

type reportCardRepository struct {
	db core.DB
}

var _ reportcard.Repository = (*reportCardRepository)(nil) // interface compliance check

func NewReportCardRepository(db core.DB) reportcard.Repository {
	return &reportCardRepository{db: db}
}

func int64Array(ids []int64) types.Int64Array {
	if ids == nil {
		return types.Int64Array{}
	}
	return ids
}

func intsToArray(ids []int) types.Int64Array {
	arr := make(types.Int64Array, 0, len(ids))
	for _, id := range ids {
		arr = append(arr, int64(id))
	}
	return arr
}

func arrayToInts(arr types.Int64Array) []int {
	ids := make([]int, 0, len(arr))
	for _, id := range arr {
		ids = append(ids, int(id))
	}
	return ids
}

func arrayToInt64s(arr types.Int64Array) []int64 {
	if len(arr) == 0 {
		return nil
	}
	return append([]int64(nil), arr...)
}

// Grading schemes

func (repo *reportCardRepository) CreateGradingScheme(ctx context.Context, scheme reportcard.GradingScheme, exec ...core.DBExecutor) (reportcard.GradingScheme, error) {
	var created reportcard.GradingScheme
	err := repo.withTx(ctx, exec, func(exe core.DBExecutor) error {
		var err error
		scheme.ID, err = insert(ctx, exe, schemesTable,
			[]string{"name", "percentile", "min_value", "range_heading", "descr_heading"},
			[]interface{}{scheme.Name, scheme.Percentile, null.IntFromPtr(scheme.MinValue), scheme.RangeHeading, scheme.DescrHeading},
		)
		if err != nil {
			return errors.Wrap(err, "inserting grading scheme")
		}

		levels := make([]reportcard.Level, 0, len(scheme.Levels))
		for i, lvl := range scheme.Levels {
			lvl.SchemeID = scheme.ID
			if lvl.SortOrder == 0 {
				lvl.SortOrder = i
			}
			lvl.ID, err = insert(ctx, exe, levelsTable,
				[]string{"gradingscheme_id", "sortorder", "range", "description"},
				[]interface{}{lvl.SchemeID, lvl.SortOrder, lvl.Range, lvl.Description},
			)
			if err != nil {
				return errors.Wrap(err, "inserting grading level")
			}

			choices := make([]reportcard.Choice, 0, len(lvl.Choices))
			for j, ch := range lvl.Choices {
				ch.LevelID = lvl.ID
				if ch.SortOrder == 0 {
					ch.SortOrder = j
				}
				ch.ID, err = insert(ctx, exe, choicesTable,
					[]string{"level_id", "sortorder", "choice", "name", "description", "view_fullname"},
					[]interface{}{ch.LevelID, ch.SortOrder, ch.Code, ch.Name, ch.Description, ch.ViewFullName},
				)
				if err != nil {
					return errors.Wrap(err, "inserting grading choice")
				}
				choices = append(choices, ch)
			}
			lvl.Choices = choices
			levels = append(levels, lvl)
		}
		scheme.Levels = levels
		created = scheme
		return nil
	})
	return created, err
}

func (repo *reportCardRepository) GetGradingScheme(ctx context.Context, id int64, exec ...core.DBExecutor) (reportcard.GradingScheme, error) {
	schemes, err := repo.QueryGradingSchemes(ctx, []int64{id}, exec...)
	if err != nil {
		return reportcard.GradingScheme{}, err
	}
	if len(schemes) == 0 {
		return reportcard.GradingScheme{}, reportcard.ErrSchemeNotFound
	}
	return schemes[0], nil
}

func (repo *reportCardRepository) QueryGradingSchemes(ctx context.Context, ids []int64, exec ...core.DBExecutor) ([]reportcard.GradingScheme, error) {
	exe := core.PickExec(repo.db, exec)

	mods := []qm.QueryMod{qm.From(schemesTable), qm.OrderBy("name, id")}
	if len(ids) > 0 {
		mods = append(mods, qm.WhereIn("id IN ?", int64sToIfaces(ids)...))
	}
	var rows []schemeRow
	if err := bindAll(ctx, exe, &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying grading schemes")
	}
	if len(rows) == 0 {
		return []reportcard.GradingScheme{}, nil
	}

	schemeIDs := make([]int64, 0, len(rows))
	for _, r := range rows {
		schemeIDs = append(schemeIDs, r.ID)
	}
	var levels []levelRow
	if err := bindAll(ctx, exe, &levels, qm.From(levelsTable), qm.WhereIn("gradingscheme_id IN ?", int64sToIfaces(schemeIDs)...), sortOrder); err != nil {
		return nil, errors.Wrap(err, "querying grading levels")
	}
	levelIDs := make([]int64, 0, len(levels))
	for _, l := range levels {
		levelIDs = append(levelIDs, l.ID)
	}
	choicesByLevel := make(map[int64][]reportcard.Choice, len(levels))
	if len(levelIDs) > 0 {
		var choices []choiceRow
		if err := bindAll(ctx, exe, &choices, qm.From(choicesTable), qm.WhereIn("level_id IN ?", int64sToIfaces(levelIDs)...), sortOrder); err != nil {
			return nil, errors.Wrap(err, "querying grading choices")
		}
		for _, c := range choices {
			choicesByLevel[c.LevelID] = append(choicesByLevel[c.LevelID], reportcard.Choice{
				ID:           c.ID,
				LevelID:      c.LevelID,
				SortOrder:    c.SortOrder,
				Code:         c.Code,
				Name:         c.Name,
				Description:  c.Description,
				ViewFullName: c.ViewFullName,
			})
		}
	}
	levelsByScheme := make(map[int64][]reportcard.Level, len(rows))
	for _, l := range levels {
		levelsByScheme[l.SchemeID] = append(levelsByScheme[l.SchemeID], reportcard.Level{
			ID:          l.ID,
			SchemeID:    l.SchemeID,
			SortOrder:   l.SortOrder,
			Range:       l.Range,
			Description: l.Description,
			Choices:     choicesByLevel[l.ID],
		})
	}

	schemes := make([]reportcard.GradingScheme, 0, len(rows))
	for _, r := range rows {
		schemes = append(schemes, reportcard.GradingScheme{
			ID:           r.ID,
			Name:         r.Name,
			Percentile:   r.Percentile,
			MinValue:     r.MinValue.Ptr(),
			RangeHeading: r.RangeHeading,
			DescrHeading: r.DescrHeading,
			Levels:       levelsByScheme[r.ID],
		})
	}
	return schemes, nil
}

// Templates

func (repo *reportCardRepository) CreateTemplate(ctx context.Context, tpl reportcard.Template, exec ...core.DBExecutor) (reportcard.Template, error) {
	var created reportcard.Template
	err := repo.withTx(ctx, exec, func(exe core.DBExecutor) error {
		var err error
		tpl.ID, err = insert(ctx, exe, templatesTable,
			[]string{"name", "is_active", "description", "interim", "grade_ids"},
			[]interface{}{tpl.Name, tpl.IsActive, tpl.Description, tpl.Interim, intsToArray(tpl.GradeLevelIDs)},
		)
		if err != nil {
			return errors.Wrap(err, "inserting template")
		}

		sections := make([]reportcard.Section, 0, len(tpl.Sections))
		for i, sect := range tpl.Sections {
			if sect, err = repo.insertSection(ctx, exe, tpl.ID, i, sect); err != nil {
				return err
			}
			sections = append(sections, sect)
		}
		tpl.Sections = sections
		created = tpl
		return nil
	})
	return created, err
}

func (repo *reportCardRepository) insertSection(ctx context.Context, exe core.DBExecutor, templateID int64, pos int, sect reportcard.Section) (reportcard.Section, error) {
	var err error
	sect.TemplateID = templateID
	if sect.SortOrder == 0 {
		sect.SortOrder = pos
	}
	sect.ID, err = insert(ctx, exe, sectionsTable,
		[]string{
			"template_id", "sortorder", "name", "heading", "text", "gradingscheme_id", "gradingscheme_label",
			"second_gradingscheme_id", "second_gradingscheme_label", "comments_area", "comments_heading", "field_code", "page_break_after",
		},
		[]interface{}{
			sect.TemplateID, sect.SortOrder, sect.Name, sect.Heading, sect.Text, sect.GradingSchemeID, sect.GradingSchemeLabel,
			null.Int64FromPtr(sect.SecondGradingSchemeID), sect.SecondGradingSchemeLabel, sect.CommentsArea, sect.CommentsHeading,
			sect.FieldCode, sect.PageBreakAfter,
		},
	)
	if err != nil {
		return sect, errors.Wrap(err, "inserting section")
	}

	subjects := make([]reportcard.Subject, 0, len(sect.Subjects))
	for j, subj := range sect.Subjects {
		subj.SectionID = sect.ID
		if subj.SortOrder == 0 {
			subj.SortOrder = j
		}
		subj.ID, err = insert(ctx, exe, subjectsTable,
			[]string{
				"section_id", "sortorder", "name_en", "name_fr", "text_en", "text_fr", "comments_area", "comments_heading",
				"graded", "field_code", "rc_language", "page_break_after",
			},
			[]interface{}{
				subj.SectionID, subj.SortOrder, subj.NameEN, subj.NameFR, subj.TextEN, subj.TextFR, subj.CommentsArea,
				subj.CommentsHeading, subj.Graded, subj.FieldCode, subj.Language, subj.PageBreakAfter,
			},
		)
		if err != nil {
			return sect, errors.Wrap(err, "inserting subject")
		}

		strands := make([]reportcard.Strand, 0, len(subj.Strands))
		for k, str := range subj.Strands {
			str.SubjectID = subj.ID
			if str.SortOrder == 0 {
				str.SortOrder = k
			}
			str.ID, err = insert(ctx, exe, strandsTable,
				[]string{"subject_id", "sortorder", "text_en", "text_fr", "graded", "field_code", "rc_language"},
				[]interface{}{str.SubjectID, str.SortOrder, str.TextEN, str.TextFR, str.Graded, str.FieldCode, str.Language},
			)
			if err != nil {
				return sect, errors.Wrap(err, "inserting strand")
			}
			strands = append(strands, str)
		}
		subj.Strands = strands
		subjects = append(subjects, subj)
	}
	sect.Subjects = subjects
	return sect, nil
}

func (repo *reportCardRepository) GetTemplate(ctx context.Context, id int64, exec ...core.DBExecutor) (reportcard.Template, error) {
	tpls, err := repo.QueryTemplates(ctx, reportcard.TemplateFilter{IDs: []int64{id}}, exec...)
	if err != nil {
		return reportcard.Template{}, err
	}
	if len(tpls) == 0 {
		return reportcard.Template{}, reportcard.ErrTemplateNotFound
	}
	return tpls[0], nil
}

func (repo *reportCardRepository) QueryTemplates(ctx context.Context, filter reportcard.TemplateFilter, exec ...core.DBExecutor) ([]reportcard.Template, error) {
	exe := core.PickExec(repo.db, exec)

	mods := []qm.QueryMod{qm.From(templatesTable), qm.OrderBy("id")}
	if len(filter.IDs) > 0 {
		mods = append(mods, qm.WhereIn("id IN ?", int64sToIfaces(filter.IDs)...))
	}
	if filter.Active != nil {
		mods = append(mods, qm.Where("is_active = ?", *filter.Active))
	}
	var rows []templateRow
	if err := bindAll(ctx, exe, &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying templates")
	}
	if len(rows) == 0 {
		return []reportcard.Template{}, nil
	}

	tplIDs := make([]int64, 0, len(rows))
	for _, r := range rows {
		tplIDs = append(tplIDs, r.ID)
	}
	sections, err := repo.loadSections(ctx, exe, tplIDs)
	if err != nil {
		return nil, err
	}

	tpls := make([]reportcard.Template, 0, len(rows))
	for _, r := range rows {
		tpls = append(tpls, reportcard.Template{
			ID:            r.ID,
			Name:          r.Name,
			IsActive:      r.IsActive,
			Description:   r.Description,
			Interim:       r.Interim,
			GradeLevelIDs: arrayToInts(r.GradeIDs),
			Sections:      sections[r.ID],
		})
	}
	return tpls, nil
}

// loadSections returns the sections (with subjects & strands) of the templates, by template.
func (repo *reportCardRepository) loadSections(ctx context.Context, exe core.DBExecutor, tplIDs []int64) (map[int64][]reportcard.Section, error) {
	var sectRows []sectionRow
	if err := bindAll(ctx, exe, &sectRows, qm.From(sectionsTable), qm.WhereIn("template_id IN ?", int64sToIfaces(tplIDs)...), sortOrder); err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	sectIDs := make([]int64, 0, len(sectRows))
	for _, s := range sectRows {
		sectIDs = append(sectIDs, s.ID)
	}

	var subjRows []subjectRow
	if len(sectIDs) > 0 {
		if err := bindAll(ctx, exe, &subjRows, qm.From(subjectsTable), qm.WhereIn("section_id IN ?", int64sToIfaces(sectIDs)...), sortOrder); err != nil {
			return nil, errors.Wrap(err, "querying subjects")
		}
	}
	subjIDs := make([]int64, 0, len(subjRows))
	for _, s := range subjRows {
		subjIDs = append(subjIDs, s.ID)
	}

	strands := make(map[int64][]reportcard.Strand)
	if len(subjIDs) > 0 {
		var strRows []strandRow
		if err := bindAll(ctx, exe, &strRows, qm.From(strandsTable), qm.WhereIn("subject_id IN ?", int64sToIfaces(subjIDs)...), sortOrder); err != nil {
			return nil, errors.Wrap(err, "querying strands")
		}
		for _, s := range strRows {
			strands[s.SubjectID] = append(strands[s.SubjectID], reportcard.Strand{
				ID:        s.ID,
				SubjectID: s.SubjectID,
				SortOrder: s.SortOrder,
				TextEN:    s.TextEN,
				TextFR:    s.TextFR,
				Graded:    s.Graded,
				FieldCode: s.FieldCode,
				Language:  s.Language,
			})
		}
	}

	subjects := make(map[int64][]reportcard.Subject)
	for _, s := range subjRows {
		subjects[s.SectionID] = append(subjects[s.SectionID], reportcard.Subject{
			ID:              s.ID,
			SectionID:       s.SectionID,
			SortOrder:       s.SortOrder,
			NameEN:          s.NameEN,
			NameFR:          s.NameFR,
			TextEN:          s.TextEN,
			TextFR:          s.TextFR,
			CommentsArea:    s.CommentsArea,
			CommentsHeading: s.CommentsHeading,
			Graded:          s.Graded,
			FieldCode:       s.FieldCode,
			Language:        s.Language,
			PageBreakAfter:  s.PageBreakAfter,
			Strands:         strands[s.ID],
		})
	}

	sections := make(map[int64][]reportcard.Section, len(tplIDs))
	for _, s := range sectRows {
		sections[s.TemplateID] = append(sections[s.TemplateID], reportcard.Section{
			ID:                       s.ID,
			TemplateID:               s.TemplateID,
			SortOrder:                s.SortOrder,
			Name:                     s.Name,
			Heading:                  s.Heading,
			Text:                     s.Text,
			GradingSchemeID:          s.GradingSchemeID,
			GradingSchemeLabel:       s.GradingSchemeLabel,
			SecondGradingSchemeID:    s.SecondGradingSchemeID.Ptr(),
			SecondGradingSchemeLabel: s.SecondGradingSchemeLabel,
			CommentsArea:             s.CommentsArea,
			CommentsHeading:          s.CommentsHeading,
			FieldCode:                s.FieldCode,
			PageBreakAfter:           s.PageBreakAfter,
			Subjects:                 subjects[s.ID],
		})
	}
	return sections, nil
}

// Terms

var termColumns = []string{
	"school_year_id", "term_id", "number", "name", "title", "is_open", "interim", "submission_deadline", "review_deadline",
	"delivery_date", "shortcode", "displabel", "email_subject_template", "email_body_template", "template_ids",
}

func termValues(term reportcard.Term) []interface{} {
	return []interface{}{
		term.SchoolYearID, term.MarkingPeriodID, term.Number, term.Name, term.Title, term.IsOpen, term.Interim,
		null.TimeFromPtr(term.SubmissionDeadline), null.TimeFromPtr(term.ReviewDeadline), null.TimeFromPtr(term.DeliveryDate),
		term.ShortCode, term.DisplayLabel, term.EmailSubject, term.EmailBody, int64Array(term.TemplateIDs),
	}
}

func unboilTerm(r termRow) reportcard.Term {
	return reportcard.Term{
		ID:                 r.ID,
		SchoolYearID:       r.SchoolYearID,
		MarkingPeriodID:    r.MarkingPeriodID,
		Number:             r.Number,
		Name:               r.Name,
		Title:              r.Title,
		IsOpen:             r.IsOpen,
		Interim:            r.Interim,
		SubmissionDeadline: r.SubmissionDeadline.Ptr(),
		ReviewDeadline:     r.ReviewDeadline.Ptr(),
		DeliveryDate:       r.DeliveryDate.Ptr(),
		ShortCode:          r.ShortCode,
		DisplayLabel:       r.DisplayLabel,
		EmailSubject:       r.EmailSubject,
		EmailBody:          r.EmailBody,
		TemplateIDs:        arrayToInt64s(r.TemplateIDs),
	}
}

func (repo *reportCardRepository) CreateTerm(ctx context.Context, term reportcard.Term, exec ...core.DBExecutor) (reportcard.Term, error) {
	id, err := insert(ctx, core.PickExec(repo.db, exec), rcTermsTable, termColumns, termValues(term))
	if err != nil {
		return reportcard.Term{}, errors.Wrap(err, "inserting term")
	}
	term.ID = id
	return term, nil
}

func (repo *reportCardRepository) UpdateTerm(ctx context.Context, term reportcard.Term, exec ...core.DBExecutor) (reportcard.Term, error) {
	err := update(ctx, core.PickExec(repo.db, exec), rcTermsTable, term.ID, termColumns, termValues(term), reportcard.ErrTermNotFound)
	if err != nil && err != reportcard.ErrTermNotFound {
		return reportcard.Term{}, errors.Wrap(err, "updating term")
	}
	return term, err
}

func (repo *reportCardRepository) GetTerm(ctx context.Context, id int64, exec ...core.DBExecutor) (reportcard.Term, error) {
	var row termRow
	if err := bindOne(ctx, core.PickExec(repo.db, exec), &row, reportcard.ErrTermNotFound, qm.From(rcTermsTable), qm.Where("id = ?", id)); err != nil {
		if err == reportcard.ErrTermNotFound {
			return reportcard.Term{}, err
		}
		return reportcard.Term{}, errors.Wrap(err, "finding term")
	}
	return unboilTerm(row), nil
}

func (repo *reportCardRepository) QueryTerms(ctx context.Context, filter reportcard.TermFilter, exec ...core.DBExecutor) ([]reportcard.Term, error) {
	mods := []qm.QueryMod{qm.From(rcTermsTable), qm.OrderBy("id")}
	if len(filter.IDs) > 0 {
		mods = append(mods, qm.WhereIn("id IN ?", int64sToIfaces(filter.IDs)...))
	}
	if filter.SchoolYearID != 0 {
		mods = append(mods, qm.Where("school_year_id = ?", filter.SchoolYearID))
	}
	var rows []termRow
	if err := bindAll(ctx, core.PickExec(repo.db, exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying terms")
	}
	terms := make([]reportcard.Term, 0, len(rows))
	for _, r := range rows {
		terms = append(terms, unboilTerm(r))
	}
	return terms, nil
}

// Report cards

func unboilCard(r cardRow) reportcard.ReportCard {
	return reportcard.ReportCard{
		ID:           r.ID,
		StudentID:    r.StudentID,
		TermID:       r.TermID,
		TemplateID:   r.TemplateID,
		GradeLevelID: r.GradeLevelID.Ptr(),
		Emailed:      r.Emailed,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func (repo *reportCardRepository) CreateReportCard(ctx context.Context, rc reportcard.ReportCard, exec ...core.DBExecutor) (reportcard.ReportCard, error) {
	id, err := insert(ctx, core.PickExec(repo.db, exec), cardsTable,
		[]string{"student_id", "term_id", "template_id", "grade_level_id", "emailed", "created_at", "updated_at"},
		[]interface{}{rc.StudentID, rc.TermID, rc.TemplateID, null.IntFromPtr(rc.GradeLevelID), rc.Emailed, rc.CreatedAt.UTC(), rc.UpdatedAt.UTC()},
	)
	if err != nil {
		if isUniqueViolation(err) {
			return reportcard.ReportCard{}, reportcard.ErrReportCardExists
		}
		return reportcard.ReportCard{}, errors.Wrap(err, "inserting report card")
	}
	rc.ID = id
	return rc, nil
}

func (repo *reportCardRepository) UpdateReportCard(ctx context.Context, rc reportcard.ReportCard, exec ...core.DBExecutor) (reportcard.ReportCard, error) {
	err := update(ctx, core.PickExec(repo.db, exec), cardsTable, rc.ID,
		[]string{"template_id", "grade_level_id", "emailed", "updated_at"},
		[]interface{}{rc.TemplateID, null.IntFromPtr(rc.GradeLevelID), rc.Emailed, rc.UpdatedAt.UTC()},
		reportcard.ErrReportCardNotFound,
	)
	if err != nil && err != reportcard.ErrReportCardNotFound {
		return reportcard.ReportCard{}, errors.Wrap(err, "updating report card")
	}
	return rc, err
}

func (repo *reportCardRepository) GetReportCard(ctx context.Context, id int64, exec ...core.DBExecutor) (reportcard.ReportCard, error) {
	var row cardRow
	if err := bindOne(ctx, core.PickExec(repo.db, exec), &row, reportcard.ErrReportCardNotFound, qm.From(cardsTable), qm.Where("id = ?", id)); err != nil {
		if err == reportcard.ErrReportCardNotFound {
			return reportcard.ReportCard{}, err
		}
		return reportcard.ReportCard{}, errors.Wrap(err, "finding report card")
	}
	return unboilCard(row), nil
}

func (repo *reportCardRepository) QueryReportCards(ctx context.Context, filter reportcard.ReportCardFilter, exec ...core.DBExecutor) ([]reportcard.ReportCard, error) {
	mods := []qm.QueryMod{qm.From(cardsTable), qm.OrderBy("id")}
	if len(filter.IDs) > 0 {
		mods = append(mods, qm.WhereIn("id IN ?", int64sToIfaces(filter.IDs)...))
	}
	if len(filter.TermIDs) > 0 {
		mods = append(mods, qm.WhereIn("term_id IN ?", int64sToIfaces(filter.TermIDs)...))
	}
	if len(filter.StudentIDs) > 0 {
		mods = append(mods, qm.WhereIn("student_id IN ?", int64sToIfaces(filter.StudentIDs)...))
	}
	if filter.TemplateID != 0 {
		mods = append(mods, qm.Where("template_id = ?", filter.TemplateID))
	}
	var rows []cardRow
	if err := bindAll(ctx, core.PickExec(repo.db, exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying report cards")
	}
	cards := make([]reportcard.ReportCard, 0, len(rows))
	for _, r := range rows {
		cards = append(cards, unboilCard(r))
	}
	return cards, nil
}

// Entries

var entryColumns = []string{
	"reportcard_id", "section_id", "subject_id", "strand_id", "percentile", "choice_id",
	"second_percentile", "second_choice_id", "comment", "completed",
}

func entryValues(e reportcard.Entry) []interface{} {
	return []interface{}{
		e.ReportCardID, e.SectionID, null.Int64FromPtr(e.SubjectID), null.Int64FromPtr(e.StrandID),
		null.IntFromPtr(e.Percentile), null.Int64FromPtr(e.ChoiceID), null.IntFromPtr(e.SecondPercentile),
		null.Int64FromPtr(e.SecondChoiceID), null.StringFromPtr(e.Comment), e.Completed,
	}
}

func (repo *reportCardRepository) CreateEntries(ctx context.Context, entries []reportcard.Entry, exec ...core.DBExecutor) error {
	if len(entries) == 0 {
		return nil
	}
	return repo.withTx(ctx, exec, func(exe core.DBExecutor) error {
		// ON CONFLICT on the element index skips the entries that already exist
		q := insertQuery(entriesTable, entryColumns) + " ON CONFLICT DO NOTHING"
		for _, e := range entries {
			if _, err := exe.ExecContext(ctx, q, entryValues(e)...); err != nil {
				return errors.Wrap(err, "inserting entry")
			}
		}
		return nil
	})
}

func (repo *reportCardRepository) UpdateEntries(ctx context.Context, entries []reportcard.Entry, exec ...core.DBExecutor) error {
	return repo.withTx(ctx, exec, func(exe core.DBExecutor) error {
		for _, e := range entries {
			err := update(ctx, exe, entriesTable, e.ID, entryColumns, entryValues(e), nil)
			if err != nil {
				return errors.Wrap(err, "updating entry")
			}
		}
		return nil
	})
}

func (repo *reportCardRepository) DeleteEntries(ctx context.Context, ids []int64, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := deleteAll(ctx, core.PickExec(repo.db, exec), qm.From(entriesTable), qm.WhereIn("id IN ?", int64sToIfaces(ids)...)); err != nil {
		return errors.Wrap(err, "deleting entries")
	}
	return nil
}

func (repo *reportCardRepository) QueryEntries(ctx context.Context, filter reportcard.EntryFilter, exec ...core.DBExecutor) ([]reportcard.Entry, error) {
	mods := []qm.QueryMod{qm.From(entriesTable), qm.OrderBy("id")}
	if len(filter.ReportCardIDs) > 0 {
		mods = append(mods, qm.WhereIn("reportcard_id IN ?", int64sToIfaces(filter.ReportCardIDs)...))
	}
	if filter.SubjectID != 0 {
		mods = append(mods, qm.Where("subject_id = ?", filter.SubjectID))
	}
	var rows []entryRow
	if err := bindAll(ctx, core.PickExec(repo.db, exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying entries")
	}
	entries := make([]reportcard.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, reportcard.Entry{
			ID:               r.ID,
			ReportCardID:     r.ReportCardID,
			SectionID:        r.SectionID,
			SubjectID:        r.SubjectID.Ptr(),
			StrandID:         r.StrandID.Ptr(),
			Percentile:       r.Percentile.Ptr(),
			ChoiceID:         r.ChoiceID.Ptr(),
			SecondPercentile: r.SecondPercentile.Ptr(),
			SecondChoiceID:   r.SecondChoiceID.Ptr(),
			Comment:          r.Comment.Ptr(),
			Completed:        r.Completed,
		})
	}
	return entries, nil
}

// Submissions

func (repo *reportCardRepository) SaveSubmission(ctx context.Context, sub reportcard.Submission, exec ...core.DBExecutor) (reportcard.Submission, error) {
	q := insertQuery(submissionsTable, []string{"reportcard_id", "faculty_id", "completed", "updated_at"}) +
		` ON CONFLICT (reportcard_id, faculty_id) DO UPDATE SET completed = EXCLUDED.completed, updated_at = EXCLUDED.updated_at`
	err := core.PickExec(repo.db, exec).
		QueryRowContext(ctx, q+" RETURNING id", sub.ReportCardID, sub.FacultyID, sub.Completed, sub.UpdatedAt.UTC()).
		Scan(&sub.ID)
	if err != nil {
		return reportcard.Submission{}, errors.Wrap(err, "saving submission")
	}
	return sub, nil
}

func (repo *reportCardRepository) QuerySubmissions(ctx context.Context, reportCardIDs []int64, exec ...core.DBExecutor) ([]reportcard.Submission, error) {
	if len(reportCardIDs) == 0 {
		return []reportcard.Submission{}, nil
	}
	var rows []submissionRow
	err := bindAll(ctx, core.PickExec(repo.db, exec), &rows,
		qm.From(submissionsTable), qm.WhereIn("reportcard_id IN ?", int64sToIfaces(reportCardIDs)...), qm.OrderBy("id"))
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]reportcard.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, reportcard.Submission{
			ID:           r.ID,
			ReportCardID: r.ReportCardID,
			FacultyID:    r.FacultyID,
			Completed:    r.Completed,
			UpdatedAt:    r.UpdatedAt.UTC(),
		})
	}
	return subs, nil
}

// Access rules

func unboilRule(r ruleRow) reportcard.AccessRule {
	return reportcard.AccessRule{
		ID:          r.ID,
		Description: r.Description,
		ClassIDs:    arrayToInt64s(r.ClassIDs),
		FacultyIDs:  arrayToInt64s(r.FacultyIDs),
		SubjectIDs:  arrayToInt64s(r.SubjectIDs),
		SectionIDs:  arrayToInt64s(r.SectionIDs),
	}
}

func (repo *reportCardRepository) CreateAccessRule(ctx context.Context, rule reportcard.AccessRule, exec ...core.DBExecutor) (reportcard.AccessRule, error) {
	id, err := insert(ctx, core.PickExec(repo.db, exec), rulesTable,
		[]string{"description", "class_ids", "faculty_ids", "subject_ids", "section_ids"},
		[]interface{}{
			rule.Description, int64Array(rule.ClassIDs), int64Array(rule.FacultyIDs),
			int64Array(rule.SubjectIDs), int64Array(rule.SectionIDs),
		},
	)
	if err != nil {
		return reportcard.AccessRule{}, errors.Wrap(err, "inserting access rule")
	}
	rule.ID = id
	return rule, nil
}

func (repo *reportCardRepository) GetAccessRule(ctx context.Context, id int64, exec ...core.DBExecutor) (reportcard.AccessRule, error) {
	var row ruleRow
	if err := bindOne(ctx, core.PickExec(repo.db, exec), &row, reportcard.ErrAccessNotFound, qm.From(rulesTable), qm.Where("id = ?", id)); err != nil {
		if err == reportcard.ErrAccessNotFound {
			return reportcard.AccessRule{}, err
		}
		return reportcard.AccessRule{}, errors.Wrap(err, "finding access rule")
	}
	return unboilRule(row), nil
}

func (repo *reportCardRepository) QueryAccessRules(ctx context.Context, exec ...core.DBExecutor) ([]reportcard.AccessRule, error) {
	var rows []ruleRow
	if err := bindAll(ctx, core.PickExec(repo.db, exec), &rows, qm.From(rulesTable), qm.OrderBy("id")); err != nil {
		return nil, errors.Wrap(err, "querying access rules")
	}
	rules := make([]reportcard.AccessRule, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, unboilRule(r))
	}
	return rules, nil
}

// withTx runs fn in the caller's transaction, or in a new one.
func (repo *reportCardRepository) withTx(ctx context.Context, exec []core.DBExecutor, fn func(exe core.DBExecutor) error) error {
	if len(exec) > 0 && exec[0] != nil {
		return fn(exec[0])
	}
	return core.WithTx(ctx, repo.db, fn)
}
