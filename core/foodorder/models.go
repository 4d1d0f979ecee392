package foodorder

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/indysis/core"
)

// SchoolWide is the grade filter of a report over every grade in one table.
const SchoolWide = "school"

type Event struct {
	ID    int64      `json:"id" db:"id"`
	Name  string     `json:"name" db:"name"`
	Date  *time.Time `json:"date" db:"date"`
	Notes string     `json:"notes" db:"notes"`
}

func (e Event) String() string {
	if e.Date != nil {
		return e.Name + " (" + e.Date.Format("2006-01-02") + ")"
	}
	return e.Name
}

type Item struct {
	ID      int64  `json:"id" db:"id"`
	EventID int64  `json:"event_id" db:"event_id"`
	Name    string `json:"name" db:"item"`
	Active  bool   `json:"active" db:"active"`
}

type Order struct {
	ID           int64     `json:"id" db:"id"`
	StudentID    int64     `json:"student_id" db:"student_id"`
	SchoolYearID int64     `json:"school_year_id" db:"school_year_id"`
	ItemID       int64     `json:"item_id" db:"item_id"`
	Quantity     int       `json:"quantity" db:"quantity"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type OrderFilter struct {
	SchoolYearID int64
	ItemIDs      []int64
	StudentIDs   []int64
}

type NewEvent struct {
	Name  string `json:"name" validate:"required,max=255"`
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes string `json:"notes" validate:"max=4000"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) (Event, error) {
	ne.Name = core.CleanString(ne.Name)
	ne.Notes = core.CleanString(ne.Notes)
	if err := validate.Struct(ne); err != nil {
		return Event{}, err
	}
	ev := Event{Name: ne.Name, Notes: ne.Notes}
	if ne.Date != "" {
		d, _ := time.Parse("2006-01-02", ne.Date)
		ev.Date = &d
	}
	return ev, nil
}

type NewItem struct {
	Name   string `json:"name" validate:"required,max=255"`
	Active *bool  `json:"active"`
}

func (ni *NewItem) Validate(validate *validator.Validate) error {
	ni.Name = core.CleanString(ni.Name)
	return validate.Struct(ni)
}

type NewOrder struct {
	StudentID    int64 `json:"student_id" validate:"required"`
	ItemID       int64 `json:"item_id" validate:"required"`
	Quantity     int   `json:"quantity" validate:"required,min=1,max=10"`
	SchoolYearID int64 `json:"school_year_id"` // defaults to the current year
}

func (no NewOrder) Validate(validate *validator.Validate) error { return validate.Struct(no) }

// ReportRow holds the quantities a student ordered, in item order.
type ReportRow struct {
	StudentID  int64  `json:"student_id"`
	Name       string `json:"name"`
	Grade      string `json:"grade,omitempty"`
	Quantities []int  `json:"quantities"`
}

type ReportTable struct {
	Heading string      `json:"heading"`
	Rows    []ReportRow `json:"rows"`
	Totals  []int       `json:"totals"`
}

type Report struct {
	Title  string        `json:"title"`
	Items  []Item        `json:"items"`
	Tables []ReportTable `json:"tables"`
}
