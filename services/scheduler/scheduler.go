package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/indysis/core"
)

const (
	// purge old sync logs every night
	purgeSchedule = "30 3 * * *"
	jobTimeout    = 30 * time.Minute
)

// GroupSyncer is the part of the group sync service run periodically.
type GroupSyncer interface {
	SyncAll(ctx context.Context) (int, error)
	PurgeLogs(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron   *cron.Cron
	logger core.Logger
}

// New schedules the background jobs. An empty sync schedule disables the group sync.
func New(conf *core.Config, syncer GroupSyncer, logger core.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(conf.TimeZone)),
		logger: logger,
	}
	if conf.GoogleSync.Schedule != "" && conf.GoogleSync.Domain != "" {
		if _, err := s.add(conf.GoogleSync.Schedule, "group sync", syncer.SyncAll); err != nil {
			return nil, err
		}
		if _, err := s.add(purgeSchedule, "group sync log purge", syncer.PurgeLogs); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(spec, name string, job func(ctx context.Context) (int, error)) (cron.EntryID, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return 0, errors.Wrapf(err, "parsing %s schedule %q", name, spec)
	}
	return s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		n, err := job(ctx)
		if err != nil {
			s.logger.Error(fmt.Sprintf("%s: %v", name, err), err)
			return
		}
		s.logger.Info(fmt.Sprintf("%s: %d done", name, n))
	})
}

// Entries is the number of scheduled jobs.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for the running jobs to finish or ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
