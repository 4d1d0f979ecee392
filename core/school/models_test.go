package school

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradeLevelMailingListName(t *testing.T) {
	tests := []struct {
		grade GradeLevel
		want  string
	}{
		{grade: GradeLevel{Name: "Grade 1", ShortName: "Gr1"}, want: "parents-1"},
		{grade: GradeLevel{Name: "Grade 10", ShortName: "Gr 10 "}, want: "parents-10"},
		{grade: GradeLevel{Name: "Pre Maternelle", ShortName: "PM"}, want: "parents-prematernelle"},
		{grade: GradeLevel{Name: "Jardin", ShortName: "JK"}, want: "parents-jardin"},
	}
	for _, tt := range tests {
		t.Run(tt.grade.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.grade.MailingListName())
		})
	}
}

func TestEmergencyContact(t *testing.T) {
	tests := []struct {
		name       string
		contact    EmergencyContact
		wantParent bool
		wantCell   string
		wantEmails []string
	}{
		{
			name: "primary cell",
			contact: EmergencyContact{
				Relationship: "Mother",
				Email:        " Mom@Home.test ",
				AltEmail:     "mom@work.test",
				Numbers: []ContactNumber{
					{Number: "555-0100", Type: NumberHome, Primary: true},
					{Number: "555-0101", Type: NumberCell},
					{Number: "555-0102", Type: NumberCell, Primary: true},
				},
			},
			wantParent: true,
			wantCell:   "555-0102",
			wantEmails: []string{"mom@home.test", "mom@work.test"},
		},
		{
			name: "first cell",
			contact: EmergencyContact{
				Relationship: "Father",
				Numbers:      []ContactNumber{{Number: "555-0200", Type: NumberCell}, {Number: "555-0201", Type: NumberCell}},
			},
			wantParent: true,
			wantCell:   "555-0200",
			wantEmails: []string{},
		},
		{
			name:       "emergency only",
			contact:    EmergencyContact{Relationship: "Neighbour", EmergencyOnly: true, Email: "n@test.test"},
			wantEmails: []string{"n@test.test"},
		},
		{
			name:       "physician",
			contact:    EmergencyContact{Relationship: " Physician "},
			wantEmails: []string{},
		},
		{
			name:       "empty relationship",
			contact:    EmergencyContact{Relationship: "  ", Email: "who@home.test"},
			wantEmails: []string{"who@home.test"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantParent, tt.contact.IsParent())
			assert.Equal(t, tt.wantCell, tt.contact.CellNumber())
			assert.Equal(t, tt.wantEmails, tt.contact.Emails())
		})
	}
}

func TestNames(t *testing.T) {
	st := Student{FirstName: "Marie", LastName: "Curie"}
	assert.Equal(t, "Curie, Marie", st.FullName())
	assert.Equal(t, "Marie Curie", st.LongName())

	fac := Faculty{LastName: "Tremblay"}
	assert.Equal(t, "Tremblay", fac.FullName())
	assert.Equal(t, "Tremblay", fac.FullNameNoComma())
}
