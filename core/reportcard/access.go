package reportcard

import (
	"sort"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

func sortedIDs(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func containsID(ids []int64, id int64) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

// CoversSubject tells whether the rule grants the subject, directly or through its section.
func (r AccessRule) CoversSubject(subj Subject) bool {
	return containsID(r.SubjectIDs, subj.ID) || containsID(r.SectionIDs, subj.SectionID)
}

// CoversSection tells whether the rule grants the section or any of its subjects.
func (r AccessRule) CoversSection(sect Section) bool {
	if containsID(r.SectionIDs, sect.ID) {
		return true
	}
	for _, subj := range sect.Subjects {
		if containsID(r.SubjectIDs, subj.ID) {
			return true
		}
	}
	return false
}

func (r AccessRule) HasTeacher(facultyID int64) bool { return containsID(r.FacultyIDs, facultyID) }

// accessIndex evaluates access rules against the classes they reference.
type accessIndex struct {
	rules   []AccessRule
	classes map[int64]school.StudentClass
}

func newAccessIndex(rules []AccessRule, classes []school.StudentClass) accessIndex {
	idx := accessIndex{rules: rules, classes: make(map[int64]school.StudentClass, len(classes))}
	for _, c := range classes {
		idx.classes[c.ID] = c
	}
	return idx
}

// forTeacher keeps the rules of the teacher. A nil teacher keeps them all.
func (idx accessIndex) forTeacher(teacher *school.Faculty) []AccessRule {
	if teacher == nil {
		return idx.rules
	}
	rules := make([]AccessRule, 0, len(idx.rules))
	for _, r := range idx.rules {
		if r.HasTeacher(teacher.ID) {
			rules = append(rules, r)
		}
	}
	return rules
}

// sectionMayEdit tells whether teacher may edit the section's entries.
func (idx accessIndex) sectionMayEdit(sect Section, teacher *school.Faculty) bool {
	if teacher == nil {
		return true
	}
	for _, r := range idx.forTeacher(teacher) {
		if r.CoversSection(sect) {
			return true
		}
	}
	return false
}

func (idx accessIndex) teacherTeaches(subj Subject, teacher *school.Faculty) bool {
	if teacher == nil {
		return true
	}
	for _, r := range idx.forTeacher(teacher) {
		if r.CoversSubject(subj) {
			return true
		}
	}
	return false
}

// subjectObjs lists the subjects of the templates that teacher has access to.
func (idx accessIndex) subjectObjs(templates []Template, teacher *school.Faculty) []Subject {
	var subjects []Subject
	for _, tpl := range templates {
		for _, sect := range tpl.Sections {
			for _, subj := range sect.Subjects {
				if idx.teacherTeaches(subj, teacher) {
					subjects = append(subjects, subj)
				}
			}
		}
	}
	return subjects
}

// studentsForSubject filters students (active ones) down to those that have the subject,
// optionally in grade and optionally taught by teacher.
func (idx accessIndex) studentsForSubject(subj Subject, tpl Template, students []school.Student, grade *int, teacher *school.Faculty) []school.Student {
	if grade != nil && !tpl.HasGrade(*grade) {
		return []school.Student{}
	}

	var allowed core.Int64Set
	if teacher != nil {
		allowed = core.NewInt64Set()
		for _, r := range idx.forTeacher(teacher) {
			if !r.CoversSubject(subj) {
				continue
			}
			for _, cid := range r.ClassIDs {
				for _, sid := range idx.classes[cid].StudentIDs {
					allowed.Add(sid)
				}
			}
		}
	}

	out := make([]school.Student, 0, len(students))
	for _, st := range students {
		if !st.IsActive {
			continue
		}
		if st.GradeLevelID == nil || !tpl.HasGrade(*st.GradeLevelID) {
			continue
		}
		if grade != nil && !st.InGrade(*grade) {
			continue
		}
		if allowed != nil && !allowed.Has(st.ID) {
			continue
		}
		out = append(out, st)
	}
	school.SortStudents(out)
	return out
}

// teachersForSubject lists the faculty assigned to the subject in the school year.
// With a student, only the teachers of the student's classes count.
func (idx accessIndex) teachersForSubject(subj Subject, student *school.Student, schoolYearID int64, faculty []school.Faculty) []school.Faculty {
	var out []school.Faculty
	for _, f := range faculty {
		if !f.IsActive {
			continue
		}
		if idx.assigned(subj, f.ID, student, schoolYearID) {
			out = append(out, f)
		}
	}
	return out
}

func (idx accessIndex) assigned(subj Subject, facultyID int64, student *school.Student, schoolYearID int64) bool {
	teachesInYear := false
	for _, c := range idx.classes {
		if c.SchoolYearID == schoolYearID && c.HasTeacher(facultyID) {
			teachesInYear = true
			break
		}
	}
	if !teachesInYear {
		return false
	}

	for _, r := range idx.rules {
		if !r.HasTeacher(facultyID) || !r.CoversSubject(subj) {
			continue
		}
		for _, cid := range r.ClassIDs {
			c, ok := idx.classes[cid]
			if !ok || c.SchoolYearID != schoolYearID {
				continue
			}
			if student == nil {
				return true
			}
			if c.HasStudent(student.ID) && c.HasTeacher(facultyID) {
				return true
			}
		}
	}
	return false
}

// TemplateAccess is what a teacher may edit on one report card.
type TemplateAccess struct {
	Sections    map[int64]bool `json:"sections"`
	Subjects    map[int64]bool `json:"subjects"`
	EditableIDs []int64        `json:"editable_ids"`
	NumEditable int            `json:"num_editable"`
}

func (a TemplateAccess) CanEdit(entryID int64) bool { return containsID(a.EditableIDs, entryID) }

// EditableSubjectIDs are the subjects of the card the teacher has access to.
func (a TemplateAccess) EditableSubjectIDs() []int64 {
	ids := make([]int64, 0, len(a.Subjects))
	for id, ok := range a.Subjects {
		if ok {
			ids = append(ids, id)
		}
	}
	return sortedIDs(ids)
}

// accessForTemplate evaluates the sections & subjects the teacher may edit on a report card.
// NumEditable counts the elements that actually have something to fill.
func (idx accessIndex) accessForTemplate(tpl Template, teacher *school.Faculty, entries map[ElementKey]Entry) TemplateAccess {
	acc := TemplateAccess{Sections: map[int64]bool{}, Subjects: map[int64]bool{}}
	add := func(k ElementKey) {
		if e, ok := entries[k]; ok {
			acc.EditableIDs = append(acc.EditableIDs, e.ID)
		}
	}

	for _, sect := range tpl.Sections {
		acc.Sections[sect.ID] = idx.sectionMayEdit(sect, teacher)
		if !acc.Sections[sect.ID] {
			continue
		}
		add(ElementKey{SectionID: sect.ID})
		if sect.CommentsArea {
			acc.NumEditable++
		}

		for _, subj := range sect.Subjects {
			acc.Subjects[subj.ID] = idx.teacherTeaches(subj, teacher)
			if !acc.Subjects[subj.ID] {
				continue
			}
			if subj.Graded || subj.CommentsArea {
				acc.NumEditable++
			}
			add(ElementKey{SectionID: sect.ID, SubjectID: subj.ID})
			for _, str := range subj.Strands {
				if str.Graded {
					acc.NumEditable++
				}
				add(ElementKey{SectionID: sect.ID, SubjectID: subj.ID, StrandID: str.ID})
			}
		}
	}
	return acc
}
