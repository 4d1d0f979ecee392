package reportcard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

var (
	testPercent = GradingScheme{
		ID:         1,
		Percentile: true,
		MinValue:   ptr(50),
		Levels:     []Level{{Choices: []Choice{{ID: 10, Code: "INC", Name: "Incomplete"}}}},
	}
	testLetters = GradingScheme{
		ID:     2,
		Levels: []Level{{Choices: []Choice{{ID: 20, Code: "A", Name: "Excellent", ViewFullName: true}, {ID: 21, Code: "B"}}}},
	}
)

func TestCleanEntry(t *testing.T) {
	both := schemes{main: testPercent, second: &testLetters}

	tests := []struct {
		name       string
		entry      Entry
		sc         schemes
		wantFields []string
	}{
		{name: "empty", entry: Entry{}, sc: both},
		{name: "valid marks", entry: Entry{Percentile: ptr(80), SecondChoiceID: ptr(int64(21))}, sc: both},
		{name: "zero percentile", entry: Entry{Percentile: ptr(0)}, sc: schemes{main: GradingScheme{Percentile: true}}},
		{name: "below minimum", entry: Entry{Percentile: ptr(49)}, sc: both, wantFields: []string{"x.percentile"}},
		{name: "negative", entry: Entry{Percentile: ptr(-1)}, sc: both, wantFields: []string{"x.percentile"}},
		{name: "unknown choice", entry: Entry{ChoiceID: ptr(int64(20))}, sc: both, wantFields: []string{"x.choice_id"}},
		{
			name:       "second mark errors",
			entry:      Entry{SecondPercentile: ptr(101), SecondChoiceID: ptr(int64(10))},
			sc:         both,
			wantFields: []string{"x.second_percentile", "x.second_choice_id"},
		},
		{
			name:       "no second scheme",
			entry:      Entry{SecondPercentile: ptr(60)},
			sc:         schemes{main: testPercent},
			wantFields: []string{"x.second_choice_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := cleanEntry(tt.entry, tt.sc, "x.")
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestIsEntryComplete(t *testing.T) {
	sect := &Section{ID: 1, CommentsArea: true}
	plainSect := &Section{ID: 2}
	subj := &Subject{ID: 3, Graded: true, CommentsArea: true}
	ungraded := &Subject{ID: 4}
	strand := &Strand{ID: 5, Graded: true}

	tests := []struct {
		name  string
		entry Entry
		el    element
		sc    schemes
		want  bool
	}{
		{name: "nothing to fill", el: element{section: plainSect}, want: true},
		{name: "ungraded subject", el: element{section: plainSect, subject: ungraded}, want: true},
		{name: "section comment missing", el: element{section: sect}, want: false},
		{name: "blank section comment", entry: Entry{Comment: ptr("  ")}, el: element{section: sect}, want: false},
		{name: "section comment", entry: Entry{Comment: ptr("ok")}, el: element{section: sect}, want: true},
		{
			name:  "subject mark without comment",
			entry: Entry{Percentile: ptr(90)},
			el:    element{section: sect, subject: subj},
			sc:    schemes{main: testPercent},
			want:  false,
		},
		{
			name:  "subject mark & comment",
			entry: Entry{Percentile: ptr(90), Comment: ptr("Well done")},
			el:    element{section: sect, subject: subj},
			sc:    schemes{main: testPercent},
			want:  true,
		},
		{
			name:  "percentile on a choice scheme",
			entry: Entry{Percentile: ptr(90)},
			el:    element{section: sect, subject: subj, strand: strand},
			sc:    schemes{main: testLetters},
			want:  false,
		},
		{
			name:  "strand choice",
			entry: Entry{ChoiceID: ptr(int64(20))},
			el:    element{section: sect, subject: subj, strand: strand},
			sc:    schemes{main: testLetters},
			want:  true,
		},
		{
			name:  "second mark missing",
			entry: Entry{ChoiceID: ptr(int64(20))},
			el:    element{section: sect, subject: subj, strand: strand},
			sc:    schemes{main: testLetters, second: &testLetters},
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isEntryComplete(tt.entry, tt.el, tt.sc))
		})
	}
}

func TestMarkOrGrade(t *testing.T) {
	assert.Equal(t, "Excellent", markOrGrade(Entry{ChoiceID: ptr(int64(20))}, testLetters))
	assert.Equal(t, "B", markOrGrade(Entry{ChoiceID: ptr(int64(21))}, testLetters))
	assert.Equal(t, "-", markOrGrade(Entry{}, testLetters))
	assert.Equal(t, "0", markOrGrade(Entry{Percentile: ptr(0)}, testPercent))
	assert.Equal(t, "", markOrGrade(Entry{}, testPercent))
}

func TestEditorLockConflict(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	l := EditorLock{
		UserName:    "Hannah Home",
		StudentName: "Adams, Ana",
		SubjectName: "English",
		EditType:    EditSubject,
		LastPing:    now.Add(-30 * time.Second),
	}
	assert.Equal(t, "Hannah Home is editing subject Adams, Ana - English", l.Conflict(now))

	l.LastPing = now.Add(-150 * time.Second)
	assert.Equal(t, "Hannah Home is editing subject Adams, Ana - English - last seen 2 minutes ago", l.Conflict(now))
}

func TestTemplateElements(t *testing.T) {
	tpl := Template{
		ID:   1,
		Name: "Primary",
		Sections: []Section{{
			ID:   2,
			Name: "Academics",
			Subjects: []Subject{{
				ID:      3,
				NameEN:  "Math",
				NameFR:  "Mathématiques",
				Strands: []Strand{{ID: 4, TextEN: "Geometry"}},
			}},
		}},
	}

	var labels []string
	var keys []ElementKey
	for _, el := range tpl.Elements() {
		labels = append(labels, el.Label())
		keys = append(keys, el.Key())
	}
	assert.Equal(t, []string{"Academics", "Academics - Math / Mathématiques", "Academics - Math / Mathématiques - Geometry"}, labels)
	assert.Equal(t, []ElementKey{{SectionID: 2}, {SectionID: 2, SubjectID: 3}, {SectionID: 2, SubjectID: 3, StrandID: 4}}, keys)

	cp := tpl.Copy()
	assert.Equal(t, "Primary (copy)", cp.Name)
	assert.Zero(t, cp.Sections[0].ID)
	assert.Zero(t, cp.Sections[0].Subjects[0].Strands[0].ID)
	assert.Equal(t, int64(4), tpl.Sections[0].Subjects[0].Strands[0].ID, "copy must not alias the original")

	e := Entry{ReportCardID: 9, SectionID: 2, SubjectID: ptr(int64(3))}
	assert.True(t, e.IsSubject())
	assert.Equal(t, "9-2-3-0", e.UniqueKey())
	el, ok := tpl.elementOf(e)
	assert.True(t, ok)
	assert.Equal(t, "Math", el.subject.NameEN)
	_, ok = tpl.elementOf(Entry{SectionID: 2, SubjectID: ptr(int64(3)), StrandID: ptr(int64(99))})
	assert.False(t, ok)
}

func TestFindDuplicates(t *testing.T) {
	subj := ptr(int64(3))
	dups := findDuplicates([]Entry{
		{ID: 1, ReportCardID: 7, SectionID: 2},
		{ID: 2, ReportCardID: 7, SectionID: 2, SubjectID: subj},
		{ID: 3, ReportCardID: 7, SectionID: 2, SubjectID: subj},
		{ID: 4, ReportCardID: 8, SectionID: 2, SubjectID: subj},
	})
	if assert.Len(t, dups, 1) {
		assert.Equal(t, "7-2-3-0", dups[0].Key)
		assert.Len(t, dups[0].Entries, 2)
	}
}
