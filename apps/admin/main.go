package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/attendance"
	"github.com/trezcool/indysis/core/googlesync"
	"github.com/trezcool/indysis/core/reportcard"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
	emailsvc "github.com/trezcool/indysis/services/email"
	"github.com/trezcool/indysis/services/groupdir"
	logsvc "github.com/trezcool/indysis/services/logger"
	"github.com/trezcool/indysis/storage/database"
	inmemdb "github.com/trezcool/indysis/storage/database/inmem"
	boiledrepos "github.com/trezcool/indysis/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/indysis/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)
	defer logger.Flush()

	// set up DB
	errAndDie(logger, database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(logger, err)
	defer db.Close()
	dbx := database.NewSqlx(db)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(conf, logger)
	mem, err := inmemdb.Open()
	errAndDie(logger, err)

	usrRepo := boiledrepos.NewUserRepository(db)
	usrSvc := user.NewService(conf, usrRepo, mailSvc, logger)
	schSvc := school.NewService(db, sqlxrepos.NewSchoolRepository(dbx))
	attSvc := attendance.NewService(db, sqlxrepos.NewAttendanceRepository(dbx), schSvc)

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: usrRepo,
		rcSvc: reportcard.NewService(
			conf, db,
			boiledrepos.NewReportCardRepository(db),
			inmemdb.NewLockStore(mem),
			schSvc, attSvc, mailSvc, logger,
		),
		syncSvc: googlesync.NewService(conf, sqlxrepos.NewGroupSyncRepository(dbx), groupdir.NewMemory(), schSvc, usrSvc, logger),
		out:     os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		logger.Flush()
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
