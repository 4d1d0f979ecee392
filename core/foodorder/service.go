package foodorder

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

var (
	// errors
	ErrEventNotFound = core.NewNotFoundError("food order event")
	ErrItemNotFound  = core.NewNotFoundError("food order item")
	ErrItemInactive  = errors.New("this item is no longer offered")
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, ev Event, exec ...core.DBExecutor) (Event, error)
		GetEvent(ctx context.Context, id int64, exec ...core.DBExecutor) (Event, error)
		// QueryEvents returns the events, latest first.
		QueryEvents(ctx context.Context, exec ...core.DBExecutor) ([]Event, error)

		CreateItem(ctx context.Context, item Item, exec ...core.DBExecutor) (Item, error)
		UpdateItem(ctx context.Context, item Item, exec ...core.DBExecutor) (Item, error)
		GetItem(ctx context.Context, id int64, exec ...core.DBExecutor) (Item, error)
		QueryItems(ctx context.Context, eventID int64, exec ...core.DBExecutor) ([]Item, error)

		CreateOrder(ctx context.Context, order Order, exec ...core.DBExecutor) (Order, error)
		DeleteOrder(ctx context.Context, id int64, exec ...core.DBExecutor) error
		QueryOrders(ctx context.Context, filter OrderFilter, exec ...core.DBExecutor) ([]Order, error)
	}

	// Directory gives access to the school records.
	Directory interface {
		GetStudent(ctx context.Context, id int64) (school.Student, error)
		QueryStudents(ctx context.Context, filter school.StudentFilter) ([]school.Student, error)
		QueryGradeLevels(ctx context.Context) ([]school.GradeLevel, error)
		GetGradeLevel(ctx context.Context, id int) (school.GradeLevel, error)
		GetSchoolYear(ctx context.Context, id int64) (school.SchoolYear, error)
		CurrentYear(ctx context.Context) (school.SchoolYear, error)
	}

	Service struct {
		repo Repository
		dir  Directory
	}
)

func NewService(repo Repository, dir Directory) *Service {
	return &Service{repo: repo, dir: dir}
}

func (svc *Service) CreateEvent(ctx context.Context, ev Event) (Event, error) {
	return svc.repo.CreateEvent(ctx, ev)
}

func (svc *Service) GetEvent(ctx context.Context, id int64) (Event, error) {
	return svc.repo.GetEvent(ctx, id)
}

func (svc *Service) QueryEvents(ctx context.Context) ([]Event, error) {
	return svc.repo.QueryEvents(ctx)
}

func (svc *Service) AddItem(ctx context.Context, eventID int64, ni NewItem) (Item, error) {
	if _, err := svc.repo.GetEvent(ctx, eventID); err != nil {
		return Item{}, err
	}
	active := ni.Active == nil || *ni.Active
	return svc.repo.CreateItem(ctx, Item{EventID: eventID, Name: ni.Name, Active: active})
}

// SetItemActive lists or unlists an item in the order form.
func (svc *Service) SetItemActive(ctx context.Context, id int64, active bool) (Item, error) {
	item, err := svc.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	item.Active = active
	return svc.repo.UpdateItem(ctx, item)
}

func (svc *Service) QueryItems(ctx context.Context, eventID int64) ([]Item, error) {
	items, err := svc.repo.QueryItems(ctx, eventID)
	if err != nil {
		return nil, err
	}
	sortItems(items)
	return items, nil
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}

// PlaceOrder orders an active item for a student, in the current school year by default.
func (svc *Service) PlaceOrder(ctx context.Context, no NewOrder) (Order, error) {
	item, err := svc.repo.GetItem(ctx, no.ItemID)
	if err != nil {
		return Order{}, err
	}
	if !item.Active {
		return Order{}, core.NewValidationError(ErrItemInactive, core.FieldError{Field: "item_id", Error: ErrItemInactive.Error()})
	}
	if _, err := svc.dir.GetStudent(ctx, no.StudentID); err != nil {
		return Order{}, err
	}
	year, err := svc.schoolYear(ctx, no.SchoolYearID)
	if err != nil {
		return Order{}, err
	}
	return svc.repo.CreateOrder(ctx, Order{
		StudentID:    no.StudentID,
		SchoolYearID: year.ID,
		ItemID:       item.ID,
		Quantity:     no.Quantity,
		CreatedAt:    time.Now().UTC(),
	})
}

func (svc *Service) CancelOrder(ctx context.Context, id int64) error {
	return svc.repo.DeleteOrder(ctx, id)
}

func (svc *Service) schoolYear(ctx context.Context, id int64) (school.SchoolYear, error) {
	if id == 0 {
		return svc.dir.CurrentYear(ctx)
	}
	return svc.dir.GetSchoolYear(ctx, id)
}

// ReportFilter selects the content of an event report.
type ReportFilter struct {
	SchoolYearID int64  `query:"school_year_id"`
	Grade        string `query:"grade"` // "" for one table per grade, SchoolWide or a grade id
	Keyword      string `query:"keyword"`
}

// EventReport lists, per active student, the quantities of each active item of the event ordered
// in the school year, with totals.
func (svc *Service) EventReport(ctx context.Context, eventID int64, filter ReportFilter) (Report, error) {
	ev, err := svc.repo.GetEvent(ctx, eventID)
	if err != nil {
		return Report{}, err
	}
	year, err := svc.schoolYear(ctx, filter.SchoolYearID)
	if err != nil {
		return Report{}, err
	}

	keyword := strings.ToLower(core.CleanString(filter.Keyword))
	all, err := svc.repo.QueryItems(ctx, ev.ID)
	if err != nil {
		return Report{}, err
	}
	sortItems(all)
	allIDs := make([]int64, 0, len(all))
	items := make([]Item, 0, len(all))
	for _, item := range all {
		allIDs = append(allIDs, item.ID)
		if item.Active && (keyword == "" || strings.Contains(strings.ToLower(item.Name), keyword)) {
			items = append(items, item)
		}
	}

	title := "Food Orders"
	if keyword != "" {
		title += " (" + capitalize(keyword) + ")"
	}
	rep := Report{Title: title + " - " + ev.String() + " - " + year.Name, Items: items, Tables: []ReportTable{}}

	// quantities by student & item
	qty := make(map[int64]map[int64]int)
	if len(allIDs) > 0 {
		orders, err := svc.repo.QueryOrders(ctx, OrderFilter{SchoolYearID: year.ID, ItemIDs: allIDs})
		if err != nil {
			return Report{}, err
		}
		for _, o := range orders {
			if qty[o.StudentID] == nil {
				qty[o.StudentID] = make(map[int64]int)
			}
			qty[o.StudentID][o.ItemID] += o.Quantity
		}
	}

	active := true
	students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{IsActive: &active})
	if err != nil {
		return Report{}, err
	}
	school.SortStudents(students)
	var ordered []school.Student
	for _, st := range students {
		if _, ok := qty[st.ID]; ok {
			ordered = append(ordered, st)
		}
	}

	grades, err := svc.dir.QueryGradeLevels(ctx)
	if err != nil {
		return Report{}, err
	}
	gradeNames := make(map[int]string, len(grades))
	for _, g := range grades {
		gradeNames[g.ID] = g.ShortName
	}

	table := func(heading string, students []school.Student, withGrade bool) ReportTable {
		t := ReportTable{Heading: heading, Rows: []ReportRow{}, Totals: make([]int, len(items))}
		for _, st := range students {
			row := ReportRow{StudentID: st.ID, Name: st.FullName(), Quantities: make([]int, len(items))}
			if withGrade && st.GradeLevelID != nil {
				row.Grade = gradeNames[*st.GradeLevelID]
			}
			for i, item := range items {
				n := qty[st.ID][item.ID]
				row.Quantities[i] = n
				t.Totals[i] += n
			}
			t.Rows = append(t.Rows, row)
		}
		return t
	}
	heading := func(name string) string {
		if keyword != "" {
			return name + " - " + capitalize(keyword)
		}
		return name
	}

	switch grade := core.CleanString(filter.Grade); grade {
	case SchoolWide:
		rep.Tables = append(rep.Tables, table(heading("School"), ordered, true))
	case "":
		sort.SliceStable(grades, func(i, j int) bool { return grades[i].ID < grades[j].ID })
		for _, g := range grades {
			rep.Tables = append(rep.Tables, table(heading(g.Name), inGrade(ordered, g.ID), false))
		}
	default:
		id, err := strconv.Atoi(grade)
		if err != nil {
			return Report{}, core.NewValidationError(err, core.FieldError{Field: "grade", Error: "invalid grade"})
		}
		g, err := svc.dir.GetGradeLevel(ctx, id)
		if err != nil {
			return Report{}, err
		}
		rep.Tables = append(rep.Tables, table(heading(g.Name), inGrade(ordered, g.ID), false))
	}
	return rep, nil
}

func inGrade(students []school.Student, gradeID int) []school.Student {
	var out []school.Student
	for _, st := range students {
		if st.InGrade(gradeID) {
			out = append(out, st)
		}
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
