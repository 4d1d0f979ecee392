package afterschool

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/indysis/core"
)

const defaultSymbol = "X"

type RegistrationPeriod struct {
	ID           int64     `json:"id" db:"id"`
	SchoolYearID int64     `json:"school_year_id" db:"school_year_id"`
	StartDate    time.Time `json:"start_date" db:"start_date"`
	EndDate      time.Time `json:"end_date" db:"end_date"`
	IsActive     bool      `json:"is_active" db:"is_active"`
}

func (p RegistrationPeriod) String() string {
	return p.StartDate.Format("2006-01-02") + " to " + p.EndDate.Format("2006-01-02")
}

// Overlaps reports whether the period shares a day with [from, to].
func (p RegistrationPeriod) Overlaps(from, to time.Time) bool {
	return !p.StartDate.After(to) && !p.EndDate.Before(from)
}

type Package struct {
	ID        int64    `json:"id" db:"id"`
	Name      string   `json:"name" db:"name"`
	ShortName string   `json:"short_name" db:"short_name"`
	PeriodID  *int64   `json:"period_id" db:"period_id"`
	IsActive  bool     `json:"is_active" db:"is_active"`
	Cost      *float64 `json:"cost" db:"cost"`
	Days      int      `json:"days" db:"days"`
	UsageCode string   `json:"usage_code" db:"usage_code"`
	UnitValue float64  `json:"unit_value" db:"unit_value"`
	Carryover bool     `json:"carryover" db:"carryover"`
	Pooled    bool     `json:"pooled" db:"pooled"`
	Shared    bool     `json:"shared" db:"shared"`
	DropIn    bool     `json:"drop_in" db:"drop_in"`
	Monday    bool     `json:"monday" db:"monday"`
	Tuesday   bool     `json:"tuesday" db:"tuesday"`
	Wednesday bool     `json:"wednesday" db:"wednesday"`
	Thursday  bool     `json:"thursday" db:"thursday"`
	Friday    bool     `json:"friday" db:"friday"`
}

// Covers reports whether the package includes the weekday.
func (p Package) Covers(day time.Weekday) bool {
	switch day {
	case time.Monday:
		return p.Monday
	case time.Tuesday:
		return p.Tuesday
	case time.Wednesday:
		return p.Wednesday
	case time.Thursday:
		return p.Thursday
	case time.Friday:
		return p.Friday
	}
	return false
}

// weekdayMask orders packages like the registration form: Monday packages first.
func (p Package) weekdayMask() int {
	mask := 0
	for i, on := range []bool{p.Monday, p.Tuesday, p.Wednesday, p.Thursday, p.Friday} {
		if on {
			mask |= 1 << (4 - i)
		}
	}
	return mask
}

type Purchase struct {
	ID             int64     `json:"id" db:"id"`
	StudentID      int64     `json:"student_id" db:"student_id"`
	PackageID      int64     `json:"package_id" db:"package_id"`
	DateRegistered time.Time `json:"date_registered" db:"date_registered"`
}

// Attendance is a day of afterschool program, one per student per day.
type Attendance struct {
	ID           int64     `json:"id" db:"id"`
	SchoolYearID int64     `json:"school_year_id" db:"school_year_id"`
	StudentID    int64     `json:"student_id" db:"student_id"`
	Date         time.Time `json:"date" db:"date"`
	PackageID    *int64    `json:"package_id" db:"package_id"`
}

// BeforeschoolAttendance is a day of beforeschool program, one per student per day.
type BeforeschoolAttendance struct {
	ID           int64     `json:"id" db:"id"`
	SchoolYearID int64     `json:"school_year_id" db:"school_year_id"`
	StudentID    int64     `json:"student_id" db:"student_id"`
	Date         time.Time `json:"date" db:"date"`
}

type AttendanceFilter struct {
	StudentIDs []int64
	From       time.Time
	To         time.Time
}

type NewPeriod struct {
	SchoolYearID int64  `json:"school_year_id" validate:"required"`
	StartDate    string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (np *NewPeriod) Validate(validate *validator.Validate) (RegistrationPeriod, error) {
	if err := validate.Struct(np); err != nil {
		return RegistrationPeriod{}, err
	}
	start, _ := time.Parse("2006-01-02", np.StartDate)
	end, _ := time.Parse("2006-01-02", np.EndDate)
	if start.After(end) {
		return RegistrationPeriod{}, core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: "start date must not be after end date"})
	}
	return RegistrationPeriod{SchoolYearID: np.SchoolYearID, StartDate: start, EndDate: end, IsActive: true}, nil
}

type NewAttendance struct {
	StudentID int64  `json:"student_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	PackageID *int64 `json:"package_id"`
}

func (na NewAttendance) Validate(validate *validator.Validate) error { return validate.Struct(na) }

func (na NewAttendance) day() time.Time {
	d, _ := time.Parse("2006-01-02", na.Date)
	return d
}

// UsageRow is a student's afterschool usage for a month.
type UsageRow struct {
	StudentID int64    `json:"student_id"`
	Name      string   `json:"name"`
	Package   string   `json:"package"`
	Usage     []string `json:"usage"`   // symbol per weekday of the month
	Moved     []bool   `json:"moved"`   // usage recorded on a weekend, shown on the nearest weekday
	Covered   []bool   `json:"covered"` // weekday covered by a package
	Total     float64  `json:"total"`
	Extra     float64  `json:"extra"`
}

type UsageReport struct {
	Title string      `json:"title"`
	Days  []time.Time `json:"days"`
	Rows  []UsageRow  `json:"rows"`
}
