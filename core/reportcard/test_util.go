package reportcard

import (
	"time"

	"github.com/trezcool/indysis/core"
)

// NewServiceMock returns a service that runs background jobs synchronously, with a settable clock.
func NewServiceMock(
	conf *core.Config,
	repo Repository,
	locks LockStore,
	dir Directory,
	att Attendance,
	mailSvc core.EmailService,
	logger core.Logger,
	now func() time.Time,
) *Service {
	var db core.DB // in-memory repositories need no transaction
	svc := NewService(conf, db, repo, locks, dir, att, mailSvc, logger)
	svc.spawn = func(fn func()) { fn() }
	if now != nil {
		svc.now = now
	}
	return svc
}
