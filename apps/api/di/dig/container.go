package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/indysis/apps/api/echo"
	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/afterschool"
	"github.com/trezcool/indysis/core/attendance"
	"github.com/trezcool/indysis/core/broadcast"
	"github.com/trezcool/indysis/core/foodorder"
	"github.com/trezcool/indysis/core/googlesync"
	"github.com/trezcool/indysis/core/reportcard"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
	emailsvc "github.com/trezcool/indysis/services/email"
	"github.com/trezcool/indysis/services/groupdir"
	logsvc "github.com/trezcool/indysis/services/logger"
	"github.com/trezcool/indysis/services/scheduler"
	smssvc "github.com/trezcool/indysis/services/sms"
	rediscache "github.com/trezcool/indysis/storage/cache/redis"
	"github.com/trezcool/indysis/storage/database"
	inmemdb "github.com/trezcool/indysis/storage/database/inmem"
	boiledrepos "github.com/trezcool/indysis/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/indysis/storage/database/sqlx"
)

const engineMemory = "memory"

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Cleanup releases the storage connections.
type Cleanup func()

// Storage holds the repositories of the configured database engine.
// DB is nil with the memory engine.
type Storage struct {
	dig.Out

	DB          core.DB
	Users       user.Repository
	School      school.Repository
	Attendance  attendance.Repository
	ReportCards reportcard.Repository
	Locks       reportcard.LockStore
	Broadcasts  broadcast.Repository
	FoodOrders  foodorder.Repository
	Afterschool afterschool.Repository
	GroupSync   googlesync.Repository
	Cleanup     Cleanup
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func openPostgres(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// newLockStore shares the editor locks through redis when it is configured.
// Locks are kept in process memory otherwise.
func newLockStore(conf *core.Config, mem *inmemdb.DB, logger core.Logger) (reportcard.LockStore, func(), error) {
	if conf.Redis.Address != "" {
		rdb, err := rediscache.Open(context.Background(), conf)
		if err != nil {
			return nil, nil, err
		}
		return rediscache.NewLockStore(rdb, conf), func() {
			if err := rdb.Close(); err != nil {
				logger.Error("Failed to close redis", err)
			}
		}, nil
	}
	if mem == nil {
		var err error
		if mem, err = inmemdb.Open(); err != nil {
			return nil, nil, err
		}
	}
	return inmemdb.NewLockStore(mem), func() {}, nil
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	logger := loggerParam.Logger

	if conf.Database.Engine == engineMemory {
		mem, err := inmemdb.Open()
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		locks, closeLocks, err := newLockStore(conf, mem, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up locks: %v", err), err)
		}
		return Storage{
			Users:       inmemdb.NewUserRepository(mem),
			School:      inmemdb.NewSchoolRepository(mem),
			Attendance:  inmemdb.NewAttendanceRepository(mem),
			ReportCards: inmemdb.NewReportCardRepository(mem),
			Locks:       locks,
			Broadcasts:  inmemdb.NewBroadcastRepository(mem),
			FoodOrders:  inmemdb.NewFoodOrderRepository(mem),
			Afterschool: inmemdb.NewAfterschoolRepository(mem),
			GroupSync:   inmemdb.NewGroupSyncRepository(mem),
			Cleanup:     Cleanup(closeLocks),
		}
	}

	db, err := openPostgres(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	locks, closeLocks, err := newLockStore(conf, nil, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up locks: %v", err), err)
	}
	dbx := database.NewSqlx(db)
	return Storage{
		DB:          db,
		Users:       boiledrepos.NewUserRepository(db),
		School:      sqlxrepos.NewSchoolRepository(dbx),
		Attendance:  sqlxrepos.NewAttendanceRepository(dbx),
		ReportCards: boiledrepos.NewReportCardRepository(db),
		Locks:       locks,
		Broadcasts:  sqlxrepos.NewBroadcastRepository(dbx),
		FoodOrders:  sqlxrepos.NewFoodOrderRepository(dbx),
		Afterschool: sqlxrepos.NewAfterschoolRepository(dbx),
		GroupSync:   sqlxrepos.NewGroupSyncRepository(dbx),
		Cleanup: func() {
			closeLocks()
			if err := db.Close(); err != nil {
				logger.Error("Failed to close", err)
			}
		},
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newSMSService(conf *core.Config) core.SMSService {
	if conf.Twilio.AccountSID == "" {
		return smssvc.NewConsoleService(log.New(os.Stdout, "SMS : ", log.LstdFlags))
	}
	return smssvc.NewTwilioService(conf)
}

// newGroupDirectory returns the in-memory groups directory, used in every environment.
func newGroupDirectory() googlesync.GroupDirectory {
	return groupdir.NewMemory()
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newAttendanceService(st StorageParam, sch *school.Service) *attendance.Service {
	return attendance.NewService(st.DB, st.Attendance, sch)
}

func newSchoolService(st StorageParam) *school.Service {
	return school.NewService(st.DB, st.School)
}

func newReportCardService(
	conf *core.Config,
	st StorageParam,
	sch *school.Service,
	att *attendance.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *reportcard.Service {
	return reportcard.NewService(conf, st.DB, st.ReportCards, st.Locks, sch, att, mailSvc, logger)
}

func newBroadcastService(
	conf *core.Config,
	st StorageParam,
	sch *school.Service,
	users user.ServiceInterface,
	smsSvc core.SMSService,
	mailSvc core.EmailService,
	logger core.Logger,
) *broadcast.Service {
	return broadcast.NewService(conf, st.DB, st.Broadcasts, sch, users, smsSvc, mailSvc, logger)
}

func newFoodOrderService(st StorageParam, sch *school.Service) *foodorder.Service {
	return foodorder.NewService(st.FoodOrders, sch)
}

func newAfterschoolService(st StorageParam, sch *school.Service) *afterschool.Service {
	return afterschool.NewService(st.Afterschool, sch)
}

func newGroupSyncService(
	conf *core.Config,
	st StorageParam,
	groups googlesync.GroupDirectory,
	sch *school.Service,
	users user.ServiceInterface,
	logger core.Logger,
) *googlesync.Service {
	return googlesync.NewService(conf, st.GroupSync, groups, sch, users, logger)
}

func newScheduler(conf *core.Config, syncSvc *googlesync.Service, logger core.Logger) (*scheduler.Scheduler, error) {
	return scheduler.New(conf, syncSvc, logger)
}

// StorageParam receives the repositories provided by Storage.
type StorageParam struct {
	dig.In

	DB          core.DB
	Attendance  attendance.Repository
	School      school.Repository
	ReportCards reportcard.Repository
	Locks       reportcard.LockStore
	Broadcasts  broadcast.Repository
	FoodOrders  foodorder.Repository
	Afterschool afterschool.Repository
	GroupSync   googlesync.Repository
}

type serverParam struct {
	dig.In

	Conf           *core.Config
	Logger         core.Logger
	Validate       *validator.Validate
	Translator     ut.Translator
	UserSvc        user.ServiceInterface
	SchoolSvc      *school.Service
	AttendanceSvc  *attendance.Service
	ReportCardSvc  *reportcard.Service
	BroadcastSvc   *broadcast.Service
	FoodOrderSvc   *foodorder.Service
	AfterschoolSvc *afterschool.Service
	GroupSyncSvc   *googlesync.Service
}

func newServer(p serverParam) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:           p.Conf,
		Logger:         p.Logger,
		Validate:       p.Validate,
		Translator:     p.Translator,
		UserSvc:        p.UserSvc,
		SchoolSvc:      p.SchoolSvc,
		AttendanceSvc:  p.AttendanceSvc,
		ReportCardSvc:  p.ReportCardSvc,
		BroadcastSvc:   p.BroadcastSvc,
		FoodOrderSvc:   p.FoodOrderSvc,
		AfterschoolSvc: p.AfterschoolSvc,
		GroupSyncSvc:   p.GroupSyncSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(newSMSService))
	must(c.Provide(newGroupDirectory))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(user.NewService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(newSchoolService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newReportCardService))
	must(c.Provide(newBroadcastService))
	must(c.Provide(newFoodOrderService))
	must(c.Provide(newAfterschoolService))
	must(c.Provide(newGroupSyncService))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
