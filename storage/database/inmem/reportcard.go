package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/reportcard"
)

type reportCardRepository struct {
	db *reportcardTables
}

var _ reportcard.Repository = (*reportCardRepository)(nil) // interface compliance check

func NewReportCardRepository(db *DB) reportcard.Repository {
	return &reportCardRepository{db: db.reportcard}
}

func copyScheme(scheme reportcard.GradingScheme) reportcard.GradingScheme {
	levels := make([]reportcard.Level, 0, len(scheme.Levels))
	for _, lvl := range scheme.Levels {
		lvl.Choices = append([]reportcard.Choice(nil), lvl.Choices...)
		levels = append(levels, lvl)
	}
	scheme.Levels = levels
	return scheme
}

func copyTemplate(tpl reportcard.Template) reportcard.Template {
	tpl.GradeLevelIDs = append([]int(nil), tpl.GradeLevelIDs...)
	sections := make([]reportcard.Section, 0, len(tpl.Sections))
	for _, sect := range tpl.Sections {
		subjects := make([]reportcard.Subject, 0, len(sect.Subjects))
		for _, subj := range sect.Subjects {
			subj.Strands = append([]reportcard.Strand(nil), subj.Strands...)
			subjects = append(subjects, subj)
		}
		sect.Subjects = subjects
		sections = append(sections, sect)
	}
	tpl.Sections = sections
	return tpl
}

func copyRule(rule reportcard.AccessRule) reportcard.AccessRule {
	rule.ClassIDs = copyInt64s(rule.ClassIDs)
	rule.FacultyIDs = copyInt64s(rule.FacultyIDs)
	rule.SubjectIDs = copyInt64s(rule.SubjectIDs)
	rule.SectionIDs = copyInt64s(rule.SectionIDs)
	return rule
}

// Grading schemes

func (repo *reportCardRepository) CreateGradingScheme(_ context.Context, scheme reportcard.GradingScheme, _ ...core.DBExecutor) (reportcard.GradingScheme, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	scheme = copyScheme(scheme)
	scheme.ID = repo.db.seq.next()
	for i := range scheme.Levels {
		lvl := &scheme.Levels[i]
		lvl.ID = repo.db.seq.next()
		lvl.SchemeID = scheme.ID
		for j := range lvl.Choices {
			lvl.Choices[j].ID = repo.db.seq.next()
			lvl.Choices[j].LevelID = lvl.ID
		}
	}
	repo.db.schemes[scheme.ID] = scheme
	return copyScheme(scheme), nil
}

func (repo *reportCardRepository) GetGradingScheme(_ context.Context, id int64, _ ...core.DBExecutor) (reportcard.GradingScheme, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if scheme, ok := repo.db.schemes[id]; ok {
		return copyScheme(scheme), nil
	}
	return reportcard.GradingScheme{}, reportcard.ErrSchemeNotFound
}

func (repo *reportCardRepository) QueryGradingSchemes(_ context.Context, ids []int64, _ ...core.DBExecutor) ([]reportcard.GradingScheme, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	schemes := rows(repo.db.schemes, func(s reportcard.GradingScheme) bool { return len(ids) == 0 || containsInt64(ids, s.ID) })
	for i := range schemes {
		schemes[i] = copyScheme(schemes[i])
	}
	sort.SliceStable(schemes, func(i, j int) bool { return schemes[i].Name < schemes[j].Name })
	return schemes, nil
}

// Templates

func (repo *reportCardRepository) CreateTemplate(_ context.Context, tpl reportcard.Template, _ ...core.DBExecutor) (reportcard.Template, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	tpl = copyTemplate(tpl)
	tpl.ID = repo.db.seq.next()
	for i := range tpl.Sections {
		sect := &tpl.Sections[i]
		sect.ID = repo.db.seq.next()
		sect.TemplateID = tpl.ID
		for j := range sect.Subjects {
			subj := &sect.Subjects[j]
			subj.ID = repo.db.seq.next()
			subj.SectionID = sect.ID
			for k := range subj.Strands {
				subj.Strands[k].ID = repo.db.seq.next()
				subj.Strands[k].SubjectID = subj.ID
			}
		}
	}
	repo.db.templates[tpl.ID] = tpl
	return copyTemplate(tpl), nil
}

func (repo *reportCardRepository) GetTemplate(_ context.Context, id int64, _ ...core.DBExecutor) (reportcard.Template, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if tpl, ok := repo.db.templates[id]; ok {
		return copyTemplate(tpl), nil
	}
	return reportcard.Template{}, reportcard.ErrTemplateNotFound
}

func (repo *reportCardRepository) QueryTemplates(_ context.Context, filter reportcard.TemplateFilter, _ ...core.DBExecutor) ([]reportcard.Template, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tpls := rows(repo.db.templates, func(t reportcard.Template) bool {
		switch {
		case len(filter.IDs) > 0 && !containsInt64(filter.IDs, t.ID):
			return false
		case filter.Active != nil && t.IsActive != *filter.Active:
			return false
		}
		return true
	})
	for i := range tpls {
		tpls[i] = copyTemplate(tpls[i])
	}
	return tpls, nil
}

// Terms

func (repo *reportCardRepository) CreateTerm(_ context.Context, term reportcard.Term, _ ...core.DBExecutor) (reportcard.Term, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	term.ID = repo.db.seq.next()
	term.TemplateIDs = copyInt64s(term.TemplateIDs)
	repo.db.terms[term.ID] = term
	return term, nil
}

func (repo *reportCardRepository) UpdateTerm(_ context.Context, term reportcard.Term, _ ...core.DBExecutor) (reportcard.Term, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.terms[term.ID]; !ok {
		return reportcard.Term{}, reportcard.ErrTermNotFound
	}
	term.TemplateIDs = copyInt64s(term.TemplateIDs)
	repo.db.terms[term.ID] = term
	return term, nil
}

func (repo *reportCardRepository) GetTerm(_ context.Context, id int64, _ ...core.DBExecutor) (reportcard.Term, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if term, ok := repo.db.terms[id]; ok {
		term.TemplateIDs = copyInt64s(term.TemplateIDs)
		return term, nil
	}
	return reportcard.Term{}, reportcard.ErrTermNotFound
}

func (repo *reportCardRepository) QueryTerms(_ context.Context, filter reportcard.TermFilter, _ ...core.DBExecutor) ([]reportcard.Term, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	terms := rows(repo.db.terms, func(t reportcard.Term) bool {
		switch {
		case len(filter.IDs) > 0 && !containsInt64(filter.IDs, t.ID):
			return false
		case filter.SchoolYearID != 0 && t.SchoolYearID != filter.SchoolYearID:
			return false
		}
		return true
	})
	for i := range terms {
		terms[i].TemplateIDs = copyInt64s(terms[i].TemplateIDs)
	}
	return terms, nil
}

// Report cards

func (repo *reportCardRepository) CreateReportCard(_ context.Context, rc reportcard.ReportCard, _ ...core.DBExecutor) (reportcard.ReportCard, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, c := range repo.db.cards {
		if c.StudentID == rc.StudentID && c.TermID == rc.TermID && c.TemplateID == rc.TemplateID {
			return reportcard.ReportCard{}, reportcard.ErrReportCardExists
		}
	}
	rc.ID = repo.db.seq.next()
	repo.db.cards[rc.ID] = rc
	return rc, nil
}

func (repo *reportCardRepository) UpdateReportCard(_ context.Context, rc reportcard.ReportCard, _ ...core.DBExecutor) (reportcard.ReportCard, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.cards[rc.ID]; !ok {
		return reportcard.ReportCard{}, reportcard.ErrReportCardNotFound
	}
	repo.db.cards[rc.ID] = rc
	return rc, nil
}

func (repo *reportCardRepository) GetReportCard(_ context.Context, id int64, _ ...core.DBExecutor) (reportcard.ReportCard, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rc, ok := repo.db.cards[id]; ok {
		return rc, nil
	}
	return reportcard.ReportCard{}, reportcard.ErrReportCardNotFound
}

func (repo *reportCardRepository) QueryReportCards(_ context.Context, filter reportcard.ReportCardFilter, _ ...core.DBExecutor) ([]reportcard.ReportCard, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return rows(repo.db.cards, func(rc reportcard.ReportCard) bool {
		switch {
		case len(filter.IDs) > 0 && !containsInt64(filter.IDs, rc.ID):
			return false
		case len(filter.TermIDs) > 0 && !containsInt64(filter.TermIDs, rc.TermID):
			return false
		case len(filter.StudentIDs) > 0 && !containsInt64(filter.StudentIDs, rc.StudentID):
			return false
		case filter.TemplateID != 0 && rc.TemplateID != filter.TemplateID:
			return false
		}
		return true
	}), nil
}

// Entries

func (repo *reportCardRepository) CreateEntries(_ context.Context, entries []reportcard.Entry, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing := make(map[string]bool, len(repo.db.entries))
	for _, e := range repo.db.entries {
		existing[e.UniqueKey()] = true
	}
	for _, e := range entries {
		key := e.UniqueKey()
		if existing[key] {
			continue
		}
		existing[key] = true
		e.ID = repo.db.seq.next()
		repo.db.entries[e.ID] = e
	}
	return nil
}

func (repo *reportCardRepository) UpdateEntries(_ context.Context, entries []reportcard.Entry, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, e := range entries {
		if _, ok := repo.db.entries[e.ID]; ok {
			repo.db.entries[e.ID] = e
		}
	}
	return nil
}

func (repo *reportCardRepository) DeleteEntries(_ context.Context, ids []int64, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.entries, id)
	}
	return nil
}

func (repo *reportCardRepository) QueryEntries(_ context.Context, filter reportcard.EntryFilter, _ ...core.DBExecutor) ([]reportcard.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return rows(repo.db.entries, func(e reportcard.Entry) bool {
		switch {
		case len(filter.ReportCardIDs) > 0 && !containsInt64(filter.ReportCardIDs, e.ReportCardID):
			return false
		case filter.SubjectID != 0 && (e.SubjectID == nil || *e.SubjectID != filter.SubjectID):
			return false
		}
		return true
	}), nil
}

// Submissions

func (repo *reportCardRepository) SaveSubmission(_ context.Context, sub reportcard.Submission, _ ...core.DBExecutor) (reportcard.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, s := range repo.db.submissions {
		if s.ReportCardID == sub.ReportCardID && s.FacultyID == sub.FacultyID {
			sub.ID = id
			repo.db.submissions[id] = sub
			return sub, nil
		}
	}
	sub.ID = repo.db.seq.next()
	repo.db.submissions[sub.ID] = sub
	return sub, nil
}

func (repo *reportCardRepository) QuerySubmissions(_ context.Context, reportCardIDs []int64, _ ...core.DBExecutor) ([]reportcard.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return rows(repo.db.submissions, func(s reportcard.Submission) bool {
		return containsInt64(reportCardIDs, s.ReportCardID)
	}), nil
}

// Access rules

func (repo *reportCardRepository) CreateAccessRule(_ context.Context, rule reportcard.AccessRule, _ ...core.DBExecutor) (reportcard.AccessRule, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rule = copyRule(rule)
	rule.ID = repo.db.seq.next()
	repo.db.rules[rule.ID] = rule
	return copyRule(rule), nil
}

func (repo *reportCardRepository) GetAccessRule(_ context.Context, id int64, _ ...core.DBExecutor) (reportcard.AccessRule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rule, ok := repo.db.rules[id]; ok {
		return copyRule(rule), nil
	}
	return reportcard.AccessRule{}, reportcard.ErrAccessNotFound
}

func (repo *reportCardRepository) QueryAccessRules(_ context.Context, _ ...core.DBExecutor) ([]reportcard.AccessRule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rules := rows(repo.db.rules, nil)
	for i := range rules {
		rules[i] = copyRule(rules[i])
	}
	return rules, nil
}
