package inmemdb

import (
	"sort"
	"sync"
	"time"

	"github.com/trezcool/indysis/core/afterschool"
	"github.com/trezcool/indysis/core/attendance"
	"github.com/trezcool/indysis/core/broadcast"
	"github.com/trezcool/indysis/core/foodorder"
	"github.com/trezcool/indysis/core/googlesync"
	"github.com/trezcool/indysis/core/reportcard"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
)

type (
	// DB keeps every table in memory. It is used in tests and with the `memory` database engine.
	DB struct {
		user        *userTable
		school      *schoolTables
		attendance  *attendanceTables
		reportcard  *reportcardTables
		locks       *lockTable
		broadcast   *broadcastTables
		googlesync  *googlesyncTables
		foodorder   *foodorderTables
		afterschool *afterschoolTables
	}

	// sequence hands out primary keys.
	sequence struct {
		last int64
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	schoolTables struct {
		sync.RWMutex
		seq      sequence
		years    map[int64]school.SchoolYear
		terms    map[int64]school.Term
		grades   map[int]school.GradeLevel
		faculty  map[int64]school.Faculty
		students map[int64]school.Student
		classes  map[int64]school.StudentClass
		contacts map[int64]school.EmergencyContact
	}

	attendanceTables struct {
		sync.RWMutex
		seq      sequence
		statuses map[int64]attendance.Status
		records  map[int64]attendance.Record
		logs     map[int64]attendance.OfficeLog
	}

	reportcardTables struct {
		sync.RWMutex
		seq         sequence
		schemes     map[int64]reportcard.GradingScheme
		templates   map[int64]reportcard.Template
		terms       map[int64]reportcard.Term
		cards       map[int64]reportcard.ReportCard
		entries     map[int64]reportcard.Entry
		submissions map[int64]reportcard.Submission
		rules       map[int64]reportcard.AccessRule
	}

	lockKey struct {
		userID    string
		studentID int64
		subjectID int64
	}

	lockTable struct {
		sync.Mutex
		table map[lockKey]reportcard.EditorLock
	}

	broadcastTables struct {
		sync.RWMutex
		seq        sequence
		broadcasts map[int64]broadcast.Broadcast
		recipients map[int64]broadcast.Recipient
	}

	googlesyncTables struct {
		sync.RWMutex
		seq    sequence
		groups map[int64]googlesync.Group
		logs   map[int64]googlesync.SyncLog
	}

	foodorderTables struct {
		sync.RWMutex
		seq    sequence
		events map[int64]foodorder.Event
		items  map[int64]foodorder.Item
		orders map[int64]foodorder.Order
	}

	afterschoolTables struct {
		sync.RWMutex
		seq          sequence
		periods      map[int64]afterschool.RegistrationPeriod
		packages     map[int64]afterschool.Package
		purchases    map[int64]afterschool.Purchase
		attendance   map[int64]afterschool.Attendance
		beforeschool map[int64]afterschool.BeforeschoolAttendance
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		school: &schoolTables{
			years:    make(map[int64]school.SchoolYear),
			terms:    make(map[int64]school.Term),
			grades:   make(map[int]school.GradeLevel),
			faculty:  make(map[int64]school.Faculty),
			students: make(map[int64]school.Student),
			classes:  make(map[int64]school.StudentClass),
			contacts: make(map[int64]school.EmergencyContact),
		},
		attendance: &attendanceTables{
			statuses: make(map[int64]attendance.Status),
			records:  make(map[int64]attendance.Record),
			logs:     make(map[int64]attendance.OfficeLog),
		},
		reportcard: &reportcardTables{
			schemes:     make(map[int64]reportcard.GradingScheme),
			templates:   make(map[int64]reportcard.Template),
			terms:       make(map[int64]reportcard.Term),
			cards:       make(map[int64]reportcard.ReportCard),
			entries:     make(map[int64]reportcard.Entry),
			submissions: make(map[int64]reportcard.Submission),
			rules:       make(map[int64]reportcard.AccessRule),
		},
		locks: &lockTable{table: make(map[lockKey]reportcard.EditorLock)},
		broadcast: &broadcastTables{
			broadcasts: make(map[int64]broadcast.Broadcast),
			recipients: make(map[int64]broadcast.Recipient),
		},
		googlesync: &googlesyncTables{
			groups: make(map[int64]googlesync.Group),
			logs:   make(map[int64]googlesync.SyncLog),
		},
		foodorder: &foodorderTables{
			events: make(map[int64]foodorder.Event),
			items:  make(map[int64]foodorder.Item),
			orders: make(map[int64]foodorder.Order),
		},
		afterschool: &afterschoolTables{
			periods:      make(map[int64]afterschool.RegistrationPeriod),
			packages:     make(map[int64]afterschool.Package),
			purchases:    make(map[int64]afterschool.Purchase),
			attendance:   make(map[int64]afterschool.Attendance),
			beforeschool: make(map[int64]afterschool.BeforeschoolAttendance),
		},
	}
	return db, nil
}

func (s *sequence) next() int64 {
	s.last++
	return s.last
}

func containsInt64(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func anyInt64(ids []int64, others []int64) bool {
	for _, id := range others {
		if containsInt64(ids, id) {
			return true
		}
	}
	return false
}

func copyInt64s(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	return append([]int64(nil), ids...)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// inRange reports whether t is within [from, to]. Zero bounds are open.
func inRange(t, from, to time.Time) bool {
	return (from.IsZero() || !t.Before(from)) && (to.IsZero() || !t.After(to))
}

// rows returns the rows of table kept by keep, in primary key order.
func rows[T any](table map[int64]T, keep func(T) bool) []T {
	ids := make([]int64, 0, len(table))
	for id, row := range table {
		if keep == nil || keep(row) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, table[id])
	}
	return out
}
