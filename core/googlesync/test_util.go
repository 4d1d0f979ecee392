package googlesync

import (
	"time"

	"github.com/trezcool/indysis/core"
)

// NewServiceMock returns a service with a settable clock.
func NewServiceMock(conf *core.Config, repo Repository, groups GroupDirectory, dir Directory, users Users, logger core.Logger, now func() time.Time) *Service {
	svc := NewService(conf, repo, groups, dir, users, logger)
	if now != nil {
		svc.now = now
	}
	return svc
}
