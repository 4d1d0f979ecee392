package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/indysis/core"
	logsvc "github.com/trezcool/indysis/services/logger"
)

type syncerMock struct {
	mu      sync.Mutex
	synced  int
	purged  int
	syncErr error
}

func (m *syncerMock) SyncAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("missing job timeout")
	}
	m.synced++
	return 3, m.syncErr
}

func (m *syncerMock) PurgeLogs(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged++
	return 0, nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		domain      string
		schedule    string
		wantEntries int
		wantErr     bool
	}{
		{name: "no domain", schedule: "0 */4 * * *"},
		{name: "no schedule", domain: "school.test"},
		{name: "invalid schedule", domain: "school.test", schedule: "every hour", wantErr: true},
		{name: "scheduled", domain: "school.test", schedule: "0 */4 * * *", wantEntries: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := &core.Config{TimeZone: time.UTC}
			conf.GoogleSync.Domain = tt.domain
			conf.GoogleSync.Schedule = tt.schedule

			s, err := New(conf, &syncerMock{}, logsvc.NewDiscardLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEntries, s.Entries())
		})
	}
}

func TestJobs(t *testing.T) {
	conf := &core.Config{TimeZone: time.UTC}
	conf.GoogleSync.Domain = "school.test"
	conf.GoogleSync.Schedule = "@hourly"

	syncer := &syncerMock{syncErr: errors.New("directory unavailable")}
	s, err := New(conf, syncer, logsvc.NewDiscardLogger())
	require.NoError(t, err)

	for _, entry := range s.cron.Entries() {
		entry.Job.Run()
	}
	assert.Equal(t, 1, syncer.synced)
	assert.Equal(t, 1, syncer.purged)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.NoError(t, ctx.Err(), "stopping an idle scheduler returns at once")
}
