package reportcard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

// Card is a report card with its template & entries.
type Card struct {
	ReportCard ReportCard     `json:"reportcard"`
	Student    school.Student `json:"student"`
	Term       Term           `json:"term"`
	Template   Template       `json:"-"`
	Entries    []Entry        `json:"entries"`
	byKey      map[ElementKey]Entry
}

// Entry returns the card's entry for an element.
func (c Card) Entry(k ElementKey) (Entry, bool) {
	e, ok := c.byKey[k]
	return e, ok
}

func newCard(rc ReportCard, st school.Student, term Term, tpl Template, entries []Entry) Card {
	c := Card{ReportCard: rc, Student: st, Term: term, Template: tpl, byKey: make(map[ElementKey]Entry, len(entries))}
	for _, e := range entries {
		if _, dup := c.byKey[e.Key()]; !dup {
			c.byKey[e.Key()] = e
		}
	}
	// template order
	for _, el := range tpl.Elements() {
		if e, ok := c.byKey[el.Key()]; ok {
			c.Entries = append(c.Entries, e)
		}
	}
	return c
}

// GetOrCreate returns the student's report card for the term, creating it and its entries when needed.
// The template is the term's template for the student's grade.
func (svc *Service) GetOrCreate(ctx context.Context, studentID, termID int64) (Card, error) {
	term, err := svc.repo.GetTerm(ctx, termID)
	if err != nil {
		return Card{}, err
	}
	st, err := svc.dir.GetStudent(ctx, studentID)
	if err != nil {
		return Card{}, err
	}
	return svc.getOrCreate(ctx, st, term)
}

func (svc *Service) getOrCreate(ctx context.Context, st school.Student, term Term) (Card, error) {
	if st.GradeLevelID == nil {
		return Card{}, ErrNoGrade
	}
	tpl, err := svc.TemplateForGrade(ctx, term, *st.GradeLevelID)
	if err != nil {
		return Card{}, err
	}

	rc, err := svc.findReportCard(ctx, st.ID, term.ID, tpl.ID)
	if core.IsNotFound(err) {
		rc, err = svc.repo.CreateReportCard(ctx, ReportCard{
			StudentID:    st.ID,
			TermID:       term.ID,
			TemplateID:   tpl.ID,
			GradeLevelID: st.GradeLevelID,
		})
		if errors.Cause(err) == ErrReportCardExists {
			// created concurrently
			rc, err = svc.findReportCard(ctx, st.ID, term.ID, tpl.ID)
		}
	}
	if err != nil {
		return Card{}, err
	}

	entries, err := svc.ensureEntries(ctx, rc, tpl)
	if err != nil {
		return Card{}, err
	}
	return newCard(rc, st, term, tpl, entries), nil
}

func (svc *Service) findReportCard(ctx context.Context, studentID, termID, templateID int64) (ReportCard, error) {
	rcs, err := svc.repo.QueryReportCards(ctx, ReportCardFilter{
		StudentIDs: []int64{studentID},
		TermIDs:    []int64{termID},
		TemplateID: templateID,
	})
	if err != nil {
		return ReportCard{}, err
	}
	if len(rcs) == 0 {
		return ReportCard{}, ErrReportCardNotFound
	}
	return rcs[0], nil
}

// ensureEntries creates the missing entries of the report card: one per section, subject & strand.
func (svc *Service) ensureEntries(ctx context.Context, rc ReportCard, tpl Template, exec ...core.DBExecutor) ([]Entry, error) {
	entries, err := svc.repo.QueryEntries(ctx, EntryFilter{ReportCardIDs: []int64{rc.ID}}, exec...)
	if err != nil {
		return nil, err
	}
	existing := make(map[ElementKey]bool, len(entries))
	for _, e := range entries {
		existing[e.Key()] = true
	}

	var missing []Entry
	for _, el := range tpl.Elements() {
		k := el.Key()
		if existing[k] {
			continue
		}
		e := Entry{ReportCardID: rc.ID, SectionID: k.SectionID}
		if k.SubjectID != 0 {
			e.SubjectID = int64Ptr(k.SubjectID)
		}
		if k.StrandID != 0 {
			e.StrandID = int64Ptr(k.StrandID)
		}
		// elements with nothing to fill start completed
		sc := schemes{}
		if el.Section.HasSecondScheme() {
			sc.second = &GradingScheme{}
		}
		e.Completed = isEntryComplete(e, element{section: el.Section, subject: el.Subject, strand: el.Strand}, sc)
		missing = append(missing, e)
	}
	if len(missing) == 0 {
		return entries, nil
	}
	if err := svc.repo.CreateEntries(ctx, missing, exec...); err != nil {
		return nil, err
	}
	return svc.repo.QueryEntries(ctx, EntryFilter{ReportCardIDs: []int64{rc.ID}}, exec...)
}

func int64Ptr(v int64) *int64 { return &v }

// CreateReportCards creates the missing report cards of a term for every active student with a grade.
// Students whose grade has no template are skipped.
func (svc *Service) CreateReportCards(ctx context.Context, termID int64) (int, error) {
	term, err := svc.repo.GetTerm(ctx, termID)
	if err != nil {
		return 0, err
	}
	active := true
	students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{IsActive: &active, HasGrade: true})
	if err != nil {
		return 0, err
	}
	existing, err := svc.repo.QueryReportCards(ctx, ReportCardFilter{TermIDs: []int64{term.ID}})
	if err != nil {
		return 0, err
	}
	had := core.NewInt64Set()
	for _, rc := range existing {
		had.Add(rc.StudentID)
	}

	var created int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, st := range students {
		st := st
		g.Go(func() error {
			_, err := svc.getOrCreate(gctx, st, term)
			switch errors.Cause(err) {
			case nil:
				if !had.Has(st.ID) {
					atomic.AddInt64(&created, 1)
				}
				return nil
			case ErrNoTemplate, ErrMultipleTemplates, ErrNoGrade:
				svc.logger.Warn(fmt.Sprintf("no report card for %s: %v", st.FullName(), err), map[string]interface{}{"student": st.ID, "term": term.ID})
				return nil
			}
			return errors.Wrapf(err, "creating report card for student %d", st.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return int(created), err
	}
	return int(created), nil
}

// ChangeTemplateResult lists the entries dropped by a template change.
type ChangeTemplateResult struct {
	ReportCard ReportCard `json:"reportcard"`
	Moved      int        `json:"moved"`
	Deleted    []Entry    `json:"deleted"`
}

// ChangeTemplate moves a report card to another template. Entries are matched to the new template's
// elements by section name, subject names and strand texts. Unmatched entries are deleted.
func (svc *Service) ChangeTemplate(ctx context.Context, reportCardID, templateID int64) (ChangeTemplateResult, error) {
	rc, err := svc.repo.GetReportCard(ctx, reportCardID)
	if err != nil {
		return ChangeTemplateResult{}, err
	}
	oldTpl, err := svc.repo.GetTemplate(ctx, rc.TemplateID)
	if err != nil {
		return ChangeTemplateResult{}, err
	}
	newTpl, err := svc.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return ChangeTemplateResult{}, err
	}

	entries, err := svc.repo.QueryEntries(ctx, EntryFilter{ReportCardIDs: []int64{rc.ID}})
	if err != nil {
		return ChangeTemplateResult{}, err
	}

	targets := make(map[string]ElementKey)
	for _, el := range newTpl.Elements() {
		name := elementName(el)
		if _, dup := targets[name]; !dup {
			targets[name] = el.Key()
		}
	}

	res := ChangeTemplateResult{Deleted: []Entry{}}
	var moved []Entry
	var deleted []int64
	taken := make(map[ElementKey]bool)
	for _, e := range entries {
		el, ok := oldTpl.elementOf(e)
		var k ElementKey
		if ok {
			k, ok = targets[elementName(Element{Section: el.section, Subject: el.subject, Strand: el.strand})]
		}
		if !ok || taken[k] {
			svc.logger.Info(fmt.Sprintf("unmatched entry %s deleted", e.UniqueKey()), map[string]interface{}{"entry": e})
			deleted = append(deleted, e.ID)
			res.Deleted = append(res.Deleted, e)
			continue
		}
		taken[k] = true
		e.SectionID = k.SectionID
		e.SubjectID, e.StrandID = nil, nil
		if k.SubjectID != 0 {
			e.SubjectID = int64Ptr(k.SubjectID)
		}
		if k.StrandID != 0 {
			e.StrandID = int64Ptr(k.StrandID)
		}
		moved = append(moved, e)
	}

	err = core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		if len(deleted) > 0 {
			if err := svc.repo.DeleteEntries(ctx, deleted, exec); err != nil {
				return err
			}
		}
		if len(moved) > 0 {
			if err := svc.repo.UpdateEntries(ctx, moved, exec); err != nil {
				return err
			}
		}
		rc.TemplateID = newTpl.ID
		rc.UpdatedAt = svc.now()
		if rc, err = svc.repo.UpdateReportCard(ctx, rc, exec); err != nil {
			return err
		}
		_, err := svc.ensureEntries(ctx, rc, newTpl, exec)
		return err
	})
	if err != nil {
		return ChangeTemplateResult{}, err
	}
	res.ReportCard = rc
	res.Moved = len(moved)
	return res, nil
}

// elementName identifies an element across templates.
func elementName(el Element) string {
	parts := []string{"sect", el.Section.Name}
	if el.Subject != nil {
		parts = append(parts, "subj", el.Subject.NameEN, el.Subject.NameFR)
	}
	if el.Strand != nil {
		parts = append(parts, "strand", el.Strand.TextEN, el.Strand.TextFR)
	}
	return strings.Join(parts, "\x1f")
}

// PastTerm holds the student's entries of an earlier term.
type PastTerm struct {
	Term    Term    `json:"term"`
	Entries []Entry `json:"entries"`
}

// PastTerms returns the entries of the student's report cards in the earlier terms of the same school year.
// Interim terms only look at interim terms and regular terms at regular ones.
func (svc *Service) PastTerms(ctx context.Context, studentID int64, term Term) ([]PastTerm, error) {
	terms, err := svc.pastTermList(ctx, term, false, true)
	if err != nil {
		return nil, err
	}
	out := make([]PastTerm, 0, len(terms))
	for _, t := range terms {
		pt := PastTerm{Term: t, Entries: []Entry{}}
		rcs, err := svc.repo.QueryReportCards(ctx, ReportCardFilter{StudentIDs: []int64{studentID}, TermIDs: []int64{t.ID}})
		if err != nil {
			return nil, err
		}
		if len(rcs) > 0 {
			if pt.Entries, err = svc.repo.QueryEntries(ctx, EntryFilter{ReportCardIDs: []int64{rcs[0].ID}}); err != nil {
				return nil, err
			}
		}
		out = append(out, pt)
	}
	return out, nil
}

// PastReportCard is the student's report card of a term, nil when there is none.
type PastReportCard struct {
	Term       Term        `json:"term"`
	ReportCard *ReportCard `json:"reportcard"`
}

// PastReportCards returns the student's report cards of the earlier terms of the school year, interim or not.
func (svc *Service) PastReportCards(ctx context.Context, studentID int64, term Term, includeCurrent bool) ([]PastReportCard, error) {
	terms, err := svc.pastTermList(ctx, term, includeCurrent, false)
	if err != nil {
		return nil, err
	}
	out := make([]PastReportCard, 0, len(terms))
	for _, t := range terms {
		prc := PastReportCard{Term: t}
		rcs, err := svc.repo.QueryReportCards(ctx, ReportCardFilter{StudentIDs: []int64{studentID}, TermIDs: []int64{t.ID}})
		if err != nil {
			return nil, err
		}
		if len(rcs) > 0 {
			prc.ReportCard = &rcs[0]
		}
		out = append(out, prc)
	}
	return out, nil
}

func (svc *Service) pastTermList(ctx context.Context, term Term, includeCurrent, sameInterim bool) ([]Term, error) {
	all, err := svc.repo.QueryTerms(ctx, TermFilter{SchoolYearID: term.SchoolYearID})
	if err != nil {
		return nil, err
	}
	terms := make([]Term, 0, len(all))
	for _, t := range all {
		if t.Number > term.Number || (t.Number == term.Number && !includeCurrent) {
			continue
		}
		if sameInterim && t.Interim != term.Interim {
			continue
		}
		terms = append(terms, t)
	}
	sortTerms(terms)
	return terms, nil
}

// DuplicateEntries lists the entries of a report card sharing the same element.
type DuplicateEntries struct {
	Key     string  `json:"key"`
	Entries []Entry `json:"entries"`
}

// CheckDuplicates finds report card entries of the term that exist more than once.
func (svc *Service) CheckDuplicates(ctx context.Context, termID int64) ([]DuplicateEntries, error) {
	rcs, err := svc.repo.QueryReportCards(ctx, ReportCardFilter{TermIDs: []int64{termID}})
	if err != nil {
		return nil, err
	}
	if len(rcs) == 0 {
		return []DuplicateEntries{}, nil
	}
	ids := make([]int64, 0, len(rcs))
	for _, rc := range rcs {
		ids = append(ids, rc.ID)
	}
	entries, err := svc.repo.QueryEntries(ctx, EntryFilter{ReportCardIDs: ids})
	if err != nil {
		return nil, err
	}
	return findDuplicates(entries), nil
}

func findDuplicates(entries []Entry) []DuplicateEntries {
	byKey := make(map[string][]Entry)
	for _, e := range entries {
		byKey[e.UniqueKey()] = append(byKey[e.UniqueKey()], e)
	}
	dups := []DuplicateEntries{}
	for k, es := range byKey {
		if len(es) > 1 {
			dups = append(dups, DuplicateEntries{Key: k, Entries: es})
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].Key < dups[j].Key })
	return dups
}
