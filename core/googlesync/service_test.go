package googlesync_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/indysis/core/googlesync"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
	emailsvc "github.com/trezcool/indysis/services/email"
	"github.com/trezcool/indysis/services/groupdir"
	logsvc "github.com/trezcool/indysis/services/logger"
	inmemdb "github.com/trezcool/indysis/storage/database/inmem"
	testutil "github.com/trezcool/indysis/tests"
)

type fixture struct {
	svc     *googlesync.Service
	repo    googlesync.Repository
	groups  *groupdir.Memory
	schRepo school.Repository
	usrRepo user.Repository
	now     *time.Time
}

func setup(t *testing.T, domain string) fixture {
	conf := testutil.NewConfig(t)
	conf.GoogleSync.Domain = domain
	conf.GoogleSync.KeepLogs = 30
	db := testutil.OpenMemDB(t)
	repo := inmemdb.NewGroupSyncRepository(db)
	schRepo := inmemdb.NewSchoolRepository(db)
	usrRepo := inmemdb.NewUserRepository(db)
	logger := logsvc.NewDiscardLogger()
	groups := groupdir.NewMemory()

	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	f := fixture{repo: repo, groups: groups, schRepo: schRepo, usrRepo: usrRepo, now: &now}
	f.svc = googlesync.NewServiceMock(
		conf,
		repo,
		groups,
		school.NewService(nil, schRepo),
		user.NewServiceMock(conf, usrRepo, emailsvc.NewConsoleServiceMock(conf), logger),
		logger,
		func() time.Time { return *f.now },
	)
	return f
}

func TestCompareMembers(t *testing.T) {
	member := func(email, role string) googlesync.Member { return googlesync.Member{Email: email, Role: role} }

	tests := []struct {
		name     string
		current  map[string]googlesync.Member
		expected map[string]googlesync.Member
		want     []googlesync.Change
	}{
		{
			name:     "in sync",
			current:  map[string]googlesync.Member{"a@x.test": member("a@x.test", googlesync.RoleMember)},
			expected: map[string]googlesync.Member{"a@x.test": member("a@x.test", googlesync.RoleMember)},
		},
		{
			name: "adds, role updates then removals",
			current: map[string]googlesync.Member{
				"b@x.test": {Email: "b@x.test", Role: googlesync.RoleMember, MemberID: "42"},
				"z@x.test": member("z@x.test", googlesync.RoleMember),
				"y@x.test": member("y@x.test", googlesync.RoleOwner),
			},
			expected: map[string]googlesync.Member{
				"c@x.test": member("c@x.test", googlesync.RoleMember),
				"b@x.test": member("b@x.test", googlesync.RoleManager),
				"a@x.test": member("a@x.test", googlesync.RoleOwner),
			},
			want: []googlesync.Change{
				{Type: googlesync.ChangeAdd, Member: member("a@x.test", googlesync.RoleOwner)},
				{Type: googlesync.ChangeRole, Member: googlesync.Member{Email: "b@x.test", Role: googlesync.RoleManager, MemberID: "42"}},
				{Type: googlesync.ChangeAdd, Member: member("c@x.test", googlesync.RoleMember)},
				{Type: googlesync.ChangeDel, Member: member("y@x.test", googlesync.RoleOwner)},
				{Type: googlesync.ChangeDel, Member: member("z@x.test", googlesync.RoleMember)},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, googlesync.CompareMembers(tt.current, tt.expected))
		})
	}
}

func TestRefreshGroups(t *testing.T) {
	ctx := context.Background()

	f := setup(t, "")
	_, err := f.svc.RefreshGroups(ctx)
	assert.Equal(t, googlesync.ErrNotConfigured, err)

	f = setup(t, "school.test")
	staffID := f.groups.AddGroup("Staff@school.test", "All staff")
	parentsID := f.groups.AddGroup("parents-1@school.test", "Grade 1 parents")
	f.groups.AddGroup("friends@elsewhere.test", "Not ours")

	known, err := f.repo.CreateGroup(ctx, googlesync.Group{GroupID: "old-id", Email: "staff@school.test", Description: "Staff", AutoSync: true})
	require.NoError(t, err)

	groups, err := f.svc.RefreshGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "parents-1@school.test", groups[0].Email)
	assert.Equal(t, parentsID, groups[0].GroupID)
	assert.False(t, groups[0].AutoSync)

	assert.Equal(t, known.ID, groups[1].ID)
	assert.Equal(t, staffID, groups[1].GroupID)
	assert.Equal(t, "All staff", groups[1].Description)
	assert.True(t, groups[1].AutoSync)
}

func TestSyncGroup(t *testing.T) {
	f := setup(t, "school.test")
	ctx := context.Background()

	year := testutil.CreateSchoolYear(t, f.schRepo, "2023-2024", testutil.Date(2023, 9, 1), testutil.Date(2024, 6, 30), true)
	ana := testutil.CreateStudent(t, f.schRepo, "Ana", "Abel", 1, true)
	old := testutil.CreateStudent(t, f.schRepo, "Old", "Timer", 1, false)
	class := testutil.CreateClass(t, f.schRepo, "Gr1", year, nil, []school.Student{ana, old})

	_, err := f.schRepo.CreateContact(ctx, school.EmergencyContact{
		FirstName:  "Mia",
		LastName:   "Abel",
		Email:      "Mom@Home.test",
		AltEmail:   " mom2@home.test",
		StudentIDs: []int64{ana.ID},
	})
	require.NoError(t, err)
	testutil.CreateContact(t, f.schRepo, "Ned", "Next", "ned@home.test", "", true, ana)
	testutil.CreateContact(t, f.schRepo, "Ola", "Timer", "ola@home.test", "", false, old)
	testutil.CreateContact(t, f.schRepo, "Noe", "Mail", "", "", false, ana)

	olive := testutil.CreateUser(t, f.usrRepo, "Olive", "olive", "olive@school.test", "", []string{user.RoleAdminOwner}, true)
	max := testutil.CreateUser(t, f.usrRepo, "Max", "max", "max@school.test", "", []string{user.RoleFaculty}, true)
	gone := testutil.CreateUser(t, f.usrRepo, "Gus", "gus", "gus@school.test", "", []string{user.RoleFaculty}, false)

	groupID := f.groups.AddGroup("parents-1@school.test", "Grade 1 parents",
		googlesync.Member{Email: "mom@home.test", Role: googlesync.RoleMember},
		googlesync.Member{Email: "Max@school.test", Role: googlesync.RoleMember},
		googlesync.Member{Email: "gone@home.test", Role: googlesync.RoleMember},
		googlesync.Member{Email: "stuck@home.test", Role: googlesync.RoleMember},
	)
	errStuck := errors.New("backend error")
	f.groups.FailOn("stuck@home.test", errStuck)

	g, err := f.repo.CreateGroup(ctx, googlesync.Group{GroupID: groupID, Email: "parents-1@school.test", AutoSync: true})
	require.NoError(t, err)
	g, err = f.svc.UpdateGroup(ctx, g.ID, googlesync.UpdateGroup{
		ClassIDs: []int64{class.ID},
		Owners:   []string{olive.ID},
		Managers: []string{max.ID, "missing-user"},
		Staff:    []string{gone.ID},
		AutoSync: true,
		ExtraEmails: []googlesync.ExtraEmail{
			{Email: "Extra@Friends.test", Role: "member"},
			{Email: "bad email", Role: googlesync.RoleMember},
		},
	})
	require.NoError(t, err)

	expected, err := f.svc.ExpectedMembers(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, map[string]googlesync.Member{
		"mom@home.test":      {Email: "mom@home.test", Role: googlesync.RoleMember},
		"mom2@home.test":     {Email: "mom2@home.test", Role: googlesync.RoleMember},
		"max@school.test":    {Email: "max@school.test", Role: googlesync.RoleManager},
		"olive@school.test":  {Email: "olive@school.test", Role: googlesync.RoleOwner},
		"extra@friends.test": {Email: "extra@friends.test", Role: googlesync.RoleMember},
		"bad email":          {Email: "bad email", Role: googlesync.RoleMember},
	}, expected)

	log, err := f.svc.SyncGroup(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, "2 errors, 3 added, 1 removed, 1 updated", log.Status)
	assert.Equal(t, strings.Join([]string{
		"Invalid email: bad email",
		"Added extra@friends.test with role MEMBER",
		"Updated role for max@school.test to MANAGER",
		"Added mom2@home.test with role MEMBER",
		"Added olive@school.test with role OWNER",
		"Removed gone@home.test",
		"Failed to process change type=del email=stuck@home.test:",
		"    backend error",
	}, "\n"), log.Messages)
	assert.Equal(t, *f.now, log.CreatedAt)

	// fix the errors
	f.groups.FailOn("stuck@home.test", nil)
	g, err = f.svc.UpdateGroup(ctx, g.ID, googlesync.UpdateGroup{
		ClassIDs:    g.ClassIDs,
		Owners:      g.Owners,
		Managers:    g.Managers,
		AutoSync:    true,
		ExtraEmails: []googlesync.ExtraEmail{{Email: "extra@friends.test", Role: googlesync.RoleMember}},
	})
	require.NoError(t, err)

	*f.now = f.now.Add(time.Hour)
	log, err = f.svc.SyncGroupByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 removed", log.Status)

	*f.now = f.now.Add(time.Hour)
	log, err = f.svc.SyncGroupByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "no changes", log.Status)
	assert.Equal(t, "All 5 members are in sync", log.Messages)

	members, err := f.groups.ListMembers(ctx, groupID)
	require.NoError(t, err)
	var emails []string
	for _, m := range members {
		emails = append(emails, m.Email)
	}
	assert.Equal(t, []string{"extra@friends.test", "max@school.test", "mom2@home.test", "mom@home.test", "olive@school.test"}, emails)

	logs, err := f.svc.Logs(ctx, g.ID, 2)
	require.NoError(t, err)
	if assert.Len(t, logs, 2) {
		assert.Equal(t, "no changes", logs[0].Status)
		assert.Equal(t, "1 removed", logs[1].Status)
	}

	_, err = f.svc.SyncGroupByID(ctx, 999)
	assert.Equal(t, googlesync.ErrNotFound, err)
}

func TestSyncGroupUnknown(t *testing.T) {
	f := setup(t, "school.test")
	ctx := context.Background()

	g, err := f.repo.CreateGroup(ctx, googlesync.Group{GroupID: "deleted", Email: "deleted@school.test", AutoSync: true})
	require.NoError(t, err)

	log, err := f.svc.SyncGroup(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, "1 error", log.Status)
	assert.Equal(t, "Unexpected error processing batch:\n    "+groupdir.ErrGroupNotFound.Error(), log.Messages)
}

func TestSyncAllAndPurge(t *testing.T) {
	f := setup(t, "school.test")
	ctx := context.Background()

	autoID := f.groups.AddGroup("auto@school.test", "")
	manualID := f.groups.AddGroup("manual@school.test", "")
	auto, err := f.repo.CreateGroup(ctx, googlesync.Group{GroupID: autoID, Email: "auto@school.test", AutoSync: true})
	require.NoError(t, err)
	manual, err := f.repo.CreateGroup(ctx, googlesync.Group{GroupID: manualID, Email: "manual@school.test"})
	require.NoError(t, err)

	n, err := f.svc.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	logs, err := f.svc.Logs(ctx, manual.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	// older logs are purged on the next sync
	*f.now = f.now.AddDate(0, 0, 31)
	n, err = f.svc.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	logs, err = f.svc.Logs(ctx, auto.ID, 0)
	require.NoError(t, err)
	if assert.Len(t, logs, 1) {
		assert.Equal(t, *f.now, logs[0].CreatedAt)
	}

	*f.now = f.now.AddDate(0, 0, 31)
	purged, err := f.svc.PurgeLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.svc.SyncAll(cancelled)
	assert.Equal(t, context.Canceled, err)
}
