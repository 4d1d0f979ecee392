package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/indysis/core"
)

// PresentStatus is the name of the status that is never stored.
const PresentStatus = "Present"

// AM / PM office log sessions
const (
	SessionAM = "AM"
	SessionPM = "PM"
)

type Status struct {
	ID                int64  `json:"id" db:"id"`
	Name              string `json:"name" db:"name"`
	Code              string `json:"code" db:"code"`
	TeacherSelectable bool   `json:"teacher_selectable" db:"teacher_selectable"`
	Excused           bool   `json:"excused" db:"excused"`
	Absent            bool   `json:"absent" db:"absent"`
	Tardy             bool   `json:"tardy" db:"tardy"`
	Half              bool   `json:"half" db:"half"`
	Order             int    `json:"order" db:"sort_order"`
}

func (s Status) IsPresent() bool { return s.Name == PresentStatus }

// DaysAbsent is the weight of the status in an absence count. The half and absent flags add up.
func (s Status) DaysAbsent() float64 {
	w := 0.0
	if s.Half {
		w += 0.5
	}
	if s.Absent {
		w++
	}
	return w
}

// IsLate reports whether the status counts as a late arrival.
func (s Status) IsLate() bool { return s.Tardy && !s.Excused }

type Record struct {
	ID           int64     `json:"id" db:"id"`
	StudentID    int64     `json:"student_id" db:"student_id"`
	Date         time.Time `json:"date" db:"date"`
	StatusID     int64     `json:"status_id" db:"status_id"`
	RecordedBy   string    `json:"recorded_by" db:"recorded_by"`
	Time         string    `json:"time" db:"time"`
	Notes        string    `json:"notes" db:"notes"`
	PrivateNotes string    `json:"private_notes" db:"private_notes"`
}

// OfficeLog marks that a class's attendance was taken for a session.
type OfficeLog struct {
	ID             int64     `json:"id" db:"id"`
	Date           time.Time `json:"date" db:"date"`
	StudentClassID int64     `json:"student_class_id" db:"student_class_id"`
	AMPM           string    `json:"ampm" db:"ampm"`
	UserID         string    `json:"user_id" db:"user_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type RecordFilter struct {
	StudentIDs []int64
	From       time.Time
	To         time.Time
	StatusIDs  []int64
}

type ClassEntry struct {
	StudentID int64  `json:"student_id" validate:"required"`
	StatusID  int64  `json:"status_id" validate:"required"`
	Notes     string `json:"notes"`
	Time      string `json:"time"`
}

// TakeAttendance is the form a teacher submits for a class session.
type TakeAttendance struct {
	StudentClassID int64        `json:"student_class_id" validate:"required"`
	Date           string       `json:"date" validate:"required"`
	AMPM           string       `json:"ampm" validate:"required,oneof=AM PM"`
	Entries        []ClassEntry `json:"entries" validate:"dive"`

	date time.Time
}

func (ta *TakeAttendance) Validate(validate *validator.Validate) error {
	if err := validate.Struct(ta); err != nil {
		return err
	}
	d, err := time.Parse("2006-01-02", ta.Date)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "date", Error: "enter a valid date (YYYY-MM-DD)"})
	}
	ta.date = d
	return nil
}

// ExceptionRow is one non-present student in the daily exception report.
type ExceptionRow struct {
	StudentID   int64  `json:"student_id"`
	StudentName string `json:"student_name"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
}

// ClassStatus tells whether attendance was submitted for a class.
type ClassStatus struct {
	StudentClassID int64  `json:"student_class_id"`
	Name           string `json:"name"`
	AMTaken        bool   `json:"am_taken"`
	PMTaken        bool   `json:"pm_taken"`
}
