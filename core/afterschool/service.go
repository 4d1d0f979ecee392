package afterschool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

var (
	// errors
	ErrPeriodNotFound  = core.NewNotFoundError("registration period")
	ErrPackageNotFound = core.NewNotFoundError("afterschool package")
	ErrNoSchoolYear    = errors.New("no school year for this date")
)

type (
	Repository interface {
		CreatePeriod(ctx context.Context, p RegistrationPeriod, exec ...core.DBExecutor) (RegistrationPeriod, error)
		QueryPeriods(ctx context.Context, exec ...core.DBExecutor) ([]RegistrationPeriod, error)

		CreatePackage(ctx context.Context, p Package, exec ...core.DBExecutor) (Package, error)
		GetPackage(ctx context.Context, id int64, exec ...core.DBExecutor) (Package, error)
		QueryPackages(ctx context.Context, exec ...core.DBExecutor) ([]Package, error)

		CreatePurchase(ctx context.Context, p Purchase, exec ...core.DBExecutor) (Purchase, error)
		QueryPurchases(ctx context.Context, studentIDs []int64, exec ...core.DBExecutor) ([]Purchase, error)

		// SaveAttendance inserts the day or updates the student's record of the same date.
		SaveAttendance(ctx context.Context, a Attendance, exec ...core.DBExecutor) (Attendance, error)
		QueryAttendance(ctx context.Context, filter AttendanceFilter, exec ...core.DBExecutor) ([]Attendance, error)
		SaveBeforeschool(ctx context.Context, a BeforeschoolAttendance, exec ...core.DBExecutor) (BeforeschoolAttendance, error)
		QueryBeforeschool(ctx context.Context, filter AttendanceFilter, exec ...core.DBExecutor) ([]BeforeschoolAttendance, error)
	}

	// Directory gives access to the school records.
	Directory interface {
		GetStudent(ctx context.Context, id int64) (school.Student, error)
		QueryStudents(ctx context.Context, filter school.StudentFilter) ([]school.Student, error)
		QuerySchoolYears(ctx context.Context) ([]school.SchoolYear, error)
		GetSchoolYear(ctx context.Context, id int64) (school.SchoolYear, error)
	}

	Service struct {
		repo Repository
		dir  Directory
	}
)

func NewService(repo Repository, dir Directory) *Service {
	return &Service{repo: repo, dir: dir}
}

func (svc *Service) CreatePeriod(ctx context.Context, p RegistrationPeriod) (RegistrationPeriod, error) {
	if _, err := svc.dir.GetSchoolYear(ctx, p.SchoolYearID); err != nil {
		if core.IsNotFound(err) {
			return RegistrationPeriod{}, core.NewValidationError(err, core.FieldError{Field: "school_year_id", Error: err.Error()})
		}
		return RegistrationPeriod{}, err
	}
	return svc.repo.CreatePeriod(ctx, p)
}

func (svc *Service) QueryPeriods(ctx context.Context) ([]RegistrationPeriod, error) {
	return svc.repo.QueryPeriods(ctx)
}

func (svc *Service) CreatePackage(ctx context.Context, p Package) (Package, error) {
	p.Name = core.CleanString(p.Name)
	p.ShortName = core.CleanString(p.ShortName)
	p.UsageCode = core.CleanString(p.UsageCode)
	var errs []core.FieldError
	if p.Name == "" {
		errs = append(errs, core.FieldError{Field: "name", Error: "this field is required"})
	}
	if len(p.UsageCode) > 2 {
		errs = append(errs, core.FieldError{Field: "usage_code", Error: "at most 2 characters"})
	}
	if p.Days < 1 {
		p.Days = 1
	}
	if p.UnitValue <= 0 {
		p.UnitValue = 1
	}
	if len(errs) > 0 {
		return Package{}, core.NewValidationError(nil, errs...)
	}
	if p.PeriodID != nil {
		periods, err := svc.repo.QueryPeriods(ctx)
		if err != nil {
			return Package{}, err
		}
		found := false
		for _, per := range periods {
			found = found || per.ID == *p.PeriodID
		}
		if !found {
			return Package{}, core.NewValidationError(ErrPeriodNotFound, core.FieldError{Field: "period_id", Error: ErrPeriodNotFound.Error()})
		}
	}
	return svc.repo.CreatePackage(ctx, p)
}

// QueryPackages returns the packages, those including Monday first.
func (svc *Service) QueryPackages(ctx context.Context) ([]Package, error) {
	pkgs, err := svc.repo.QueryPackages(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pkgs, func(i, j int) bool { return pkgs[i].weekdayMask() > pkgs[j].weekdayMask() })
	return pkgs, nil
}

// Purchase registers a student to a package.
func (svc *Service) Purchase(ctx context.Context, studentID, packageID int64, registered time.Time) (Purchase, error) {
	if _, err := svc.dir.GetStudent(ctx, studentID); err != nil {
		return Purchase{}, err
	}
	if _, err := svc.repo.GetPackage(ctx, packageID); err != nil {
		return Purchase{}, err
	}
	if registered.IsZero() {
		registered = time.Now().UTC()
	}
	return svc.repo.CreatePurchase(ctx, Purchase{StudentID: studentID, PackageID: packageID, DateRegistered: truncateDay(registered)})
}

// yearOf returns the school year containing day.
func (svc *Service) yearOf(ctx context.Context, day time.Time) (school.SchoolYear, error) {
	years, err := svc.dir.QuerySchoolYears(ctx)
	if err != nil {
		return school.SchoolYear{}, err
	}
	for _, y := range years {
		if y.Contains(day) {
			return y, nil
		}
	}
	return school.SchoolYear{}, ErrNoSchoolYear
}

// RecordAttendance saves the student's afterschool day, replacing the record of the same date.
func (svc *Service) RecordAttendance(ctx context.Context, na NewAttendance) (Attendance, error) {
	day := truncateDay(na.day())
	if _, err := svc.dir.GetStudent(ctx, na.StudentID); err != nil {
		return Attendance{}, err
	}
	if na.PackageID != nil {
		if _, err := svc.repo.GetPackage(ctx, *na.PackageID); err != nil {
			return Attendance{}, err
		}
	}
	year, err := svc.yearOf(ctx, day)
	if err != nil {
		return Attendance{}, err
	}
	return svc.repo.SaveAttendance(ctx, Attendance{
		SchoolYearID: year.ID,
		StudentID:    na.StudentID,
		Date:         day,
		PackageID:    na.PackageID,
	})
}

// RecordBeforeschool saves the student's beforeschool day.
func (svc *Service) RecordBeforeschool(ctx context.Context, studentID int64, date time.Time) (BeforeschoolAttendance, error) {
	day := truncateDay(date)
	if _, err := svc.dir.GetStudent(ctx, studentID); err != nil {
		return BeforeschoolAttendance{}, err
	}
	year, err := svc.yearOf(ctx, day)
	if err != nil {
		return BeforeschoolAttendance{}, err
	}
	return svc.repo.SaveBeforeschool(ctx, BeforeschoolAttendance{SchoolYearID: year.ID, StudentID: studentID, Date: day})
}

func (svc *Service) QueryBeforeschool(ctx context.Context, from, to time.Time) ([]BeforeschoolAttendance, error) {
	return svc.repo.QueryBeforeschool(ctx, AttendanceFilter{From: truncateDay(from), To: truncateDay(to)})
}

var dayLabels = map[time.Weekday]string{
	time.Monday:    "Mo",
	time.Tuesday:   "Tu",
	time.Wednesday: "We",
	time.Thursday:  "Th",
	time.Friday:    "Fr",
}

// MonthlyUsage reports, per active student, the afterschool days used in the month of month.
// Days recorded on a weekend are shown on the nearest weekday of the month. Days outside the
// student's packages count as extra unless a package is a pool of days.
func (svc *Service) MonthlyUsage(ctx context.Context, month time.Time) (UsageReport, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	rep := UsageReport{Title: "Afterschool Usage - " + start.Format("Jan 2006"), Rows: []UsageRow{}}
	dayIndex := make(map[time.Time]int)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			dayIndex[d] = len(rep.Days)
			rep.Days = append(rep.Days, d)
		}
	}

	active := true
	students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{IsActive: &active})
	if err != nil {
		return UsageReport{}, err
	}
	if len(students) == 0 {
		return rep, nil
	}
	school.SortStudents(students)
	ids := make([]int64, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}

	days, err := svc.repo.QueryAttendance(ctx, AttendanceFilter{StudentIDs: ids, From: start, To: end})
	if err != nil {
		return UsageReport{}, err
	}
	byStudent := make(map[int64][]Attendance)
	for _, a := range days {
		byStudent[a.StudentID] = append(byStudent[a.StudentID], a)
	}

	purchases, err := svc.repo.QueryPurchases(ctx, ids)
	if err != nil {
		return UsageReport{}, err
	}
	pkgs, err := svc.repo.QueryPackages(ctx)
	if err != nil {
		return UsageReport{}, err
	}
	periods, err := svc.repo.QueryPeriods(ctx)
	if err != nil {
		return UsageReport{}, err
	}
	pkgByID := make(map[int64]Package, len(pkgs))
	for _, p := range pkgs {
		pkgByID[p.ID] = p
	}
	overlapping := core.NewInt64Set()
	for _, per := range periods {
		if per.Overlaps(start, end) {
			overlapping.Add(per.ID)
		}
	}
	bought := make(map[int64][]Package)
	for _, pur := range purchases {
		p, ok := pkgByID[pur.PackageID]
		if !ok || p.PeriodID == nil || !overlapping.Has(*p.PeriodID) {
			continue
		}
		bought[pur.StudentID] = append(bought[pur.StudentID], p)
	}

	for _, st := range students {
		row := UsageRow{
			StudentID: st.ID,
			Name:      st.FullName(),
			Usage:     make([]string, len(rep.Days)),
			Moved:     make([]bool, len(rep.Days)),
			Covered:   make([]bool, len(rep.Days)),
		}

		pooled := 0
		covered := make(map[time.Weekday]bool)
		for _, p := range bought[st.ID] {
			if p.Pooled {
				pooled += p.Days
			}
			for wd := time.Monday; wd <= time.Friday; wd++ {
				if p.Covers(wd) {
					covered[wd] = true
				}
			}
		}
		switch {
		case pooled > 0:
			row.Package = fmt.Sprintf("%d days", pooled)
		case len(covered) > 0:
			var labels []string
			for wd := time.Monday; wd <= time.Friday; wd++ {
				if covered[wd] {
					labels = append(labels, dayLabels[wd])
				}
			}
			row.Package = strings.Join(labels, "")
		}

		for _, a := range byStudent[st.ID] {
			var pkg *Package
			if a.PackageID != nil {
				if p, ok := pkgByID[*a.PackageID]; ok {
					pkg = &p
				}
			}
			value, symbol := 1.0, defaultSymbol
			if pkg != nil {
				value = pkg.UnitValue
				if pkg.UsageCode != "" {
					symbol = pkg.UsageCode
				}
			}

			day := truncateDay(a.Date)
			idx, ok := dayIndex[day]
			moved := false
			if !ok {
				for _, shift := range []int{1, -1, -2, 2} {
					if i, found := dayIndex[day.AddDate(0, 0, shift)]; found {
						day = day.AddDate(0, 0, shift)
						idx, ok, moved = i, true, true
						break
					}
				}
			}
			if ok {
				row.Usage[idx] = symbol
				row.Moved[idx] = row.Moved[idx] || moved
			}
			if !covered[day.Weekday()] && pooled == 0 {
				row.Extra += value
			}
			row.Total += value
		}
		for i, d := range rep.Days {
			row.Covered[i] = covered[d.Weekday()]
		}
		rep.Rows = append(rep.Rows, row)
	}
	return rep, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
