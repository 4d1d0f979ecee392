package broadcast

import (
	"github.com/trezcool/indysis/core"
)

// NewServiceMock returns a service that delivers broadcasts synchronously.
func NewServiceMock(
	conf *core.Config,
	repo Repository,
	dir Directory,
	owners Owners,
	smsSvc core.SMSService,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	var db core.DB
	svc := NewService(conf, db, repo, dir, owners, smsSvc, mailSvc, logger)
	svc.spawn = func(fn func()) { fn() }
	return svc
}
