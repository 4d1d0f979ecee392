package reportcard

import (
	"fmt"
	"strings"

	"github.com/trezcool/indysis/core"
)

// EntryInput is an edit of one report card entry.
type EntryInput struct {
	ID               int64   `json:"id" validate:"required"`
	Percentile       *int    `json:"percentile" validate:"omitempty,min=0,max=100"`
	ChoiceID         *int64  `json:"choice_id"`
	SecondPercentile *int    `json:"second_percentile" validate:"omitempty,min=0,max=100"`
	SecondChoiceID   *int64  `json:"second_choice_id"`
	Comment          *string `json:"comment"`
}

func (in EntryInput) apply(e *Entry) {
	e.Percentile = in.Percentile
	e.ChoiceID = in.ChoiceID
	e.SecondPercentile = in.SecondPercentile
	e.SecondChoiceID = in.SecondChoiceID
	e.Comment = in.Comment
	if e.Comment != nil {
		c := strings.TrimSpace(*e.Comment)
		e.Comment = &c
	}
}

// element resolves the template parts an entry belongs to.
type element struct {
	section *Section
	subject *Subject
	strand  *Strand
}

func (t Template) elementOf(e Entry) (element, bool) {
	sect, ok := t.Section(e.SectionID)
	if !ok {
		return element{}, false
	}
	el := element{section: sect}
	if e.SubjectID == nil {
		return el, e.StrandID == nil
	}
	for i := range sect.Subjects {
		if sect.Subjects[i].ID == *e.SubjectID {
			el.subject = &sect.Subjects[i]
		}
	}
	if el.subject == nil {
		return element{}, false
	}
	if e.StrandID == nil {
		return el, true
	}
	for i := range el.subject.Strands {
		if el.subject.Strands[i].ID == *e.StrandID {
			el.strand = &el.subject.Strands[i]
		}
	}
	return el, el.strand != nil
}

// schemes of a section: the main one and the optional second one.
type schemes struct {
	main   GradingScheme
	second *GradingScheme
}

// cleanEntry checks the marks of an entry against the grading schemes of its section.
func cleanEntry(e Entry, sc schemes, prefix string) []core.FieldError {
	var errs []core.FieldError
	add := func(field, msg string) {
		errs = append(errs, core.FieldError{Field: prefix + field, Error: msg})
	}

	checkMark := func(scheme GradingScheme, pct *int, choiceID *int64, pctField, choiceField string) {
		if pct != nil {
			if *pct < 0 || *pct > 100 {
				add(pctField, "enter a value between 0 and 100")
			} else if scheme.Percentile && scheme.MinValue != nil && *scheme.MinValue > 0 && *pct < *scheme.MinValue {
				add(pctField, fmt.Sprintf("Minimum percentile is %d, select a choice instead", *scheme.MinValue))
			}
		}
		if choiceID == nil {
			return
		}
		choice, ok := scheme.Choice(*choiceID)
		if !ok {
			add(choiceField, "select a valid choice")
			return
		}
		if pct != nil {
			add(pctField, fmt.Sprintf("Percentage cannot be combined with choice '%s'", choice.Code))
		}
	}

	checkMark(sc.main, e.Percentile, e.ChoiceID, "percentile", "choice_id")
	if sc.second != nil {
		checkMark(*sc.second, e.SecondPercentile, e.SecondChoiceID, "second_percentile", "second_choice_id")
	} else if e.SecondPercentile != nil || e.SecondChoiceID != nil {
		add("second_choice_id", "this section has no second mark")
	}
	return errs
}

func hasMark(scheme GradingScheme, pct *int, choiceID *int64) bool {
	if choiceID != nil {
		return true
	}
	return scheme.Percentile && pct != nil
}

func hasComment(c *string) bool {
	return c != nil && strings.TrimSpace(*c) != ""
}

// isEntryComplete tells whether every field the entry's element asks for is filled.
// An element with nothing to fill is always complete.
func isEntryComplete(e Entry, el element, sc schemes) bool {
	var checks []bool
	mark := func() {
		checks = append(checks, hasMark(sc.main, e.Percentile, e.ChoiceID))
		if sc.second != nil {
			checks = append(checks, hasMark(*sc.second, e.SecondPercentile, e.SecondChoiceID))
		}
	}

	switch {
	case el.strand != nil:
		mark()
	case el.subject != nil:
		if el.subject.CommentsArea {
			checks = append(checks, hasComment(e.Comment))
		}
		if el.subject.Graded {
			mark()
		}
	default:
		if el.section.CommentsArea {
			checks = append(checks, hasComment(e.Comment))
		}
	}

	for _, ok := range checks {
		if !ok {
			return false
		}
	}
	return true
}

// markOrGrade is the printable mark of an entry: the choice name, the percentile, or "-".
func markOrGrade(e Entry, scheme GradingScheme) string {
	if e.ChoiceID != nil {
		if c, ok := scheme.Choice(*e.ChoiceID); ok {
			return c.Display()
		}
	}
	if scheme.Percentile {
		if e.Percentile != nil {
			return fmt.Sprintf("%d", *e.Percentile)
		}
		return ""
	}
	return "-"
}
