package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/indysis/core/googlesync"
	"github.com/trezcool/indysis/core/reportcard"
	"github.com/trezcool/indysis/core/user"
	inmemdb "github.com/trezcool/indysis/storage/database/inmem"
	testutil "github.com/trezcool/indysis/tests"
)

type reportCardsStub struct {
	created map[int64]int
	dups    []reportcard.DuplicateEntries
}

func (s *reportCardsStub) CreateReportCards(_ context.Context, termID int64) (int, error) {
	n, ok := s.created[termID]
	if !ok {
		return 0, reportcard.ErrTermNotFound
	}
	return n, nil
}

func (s *reportCardsStub) CheckDuplicates(_ context.Context, termID int64) ([]reportcard.DuplicateEntries, error) {
	if _, ok := s.created[termID]; !ok {
		return nil, reportcard.ErrTermNotFound
	}
	return s.dups, nil
}

type groupSyncerStub struct {
	synced []int64
}

func (s *groupSyncerStub) SyncAll(_ context.Context) (int, error) {
	s.synced = append(s.synced, 1, 2)
	return 2, nil
}

func (s *groupSyncerStub) SyncGroupByID(_ context.Context, id int64) (googlesync.SyncLog, error) {
	if id != 1 {
		return googlesync.SyncLog{}, googlesync.ErrNotFound
	}
	s.synced = append(s.synced, id)
	return googlesync.SyncLog{GroupID: id, Status: "1 added", Messages: "Added paula@home.ca with role MEMBER"}, nil
}

type cliEnv struct {
	cli     *commandLine
	usrRepo user.Repository
	rc      *reportCardsStub
	groups  *groupSyncerStub
	out     *bytes.Buffer
}

func setup(t *testing.T) *cliEnv {
	db := testutil.OpenMemDB(t)
	env := &cliEnv{
		usrRepo: inmemdb.NewUserRepository(db),
		rc:      &reportCardsStub{created: map[int64]int{7: 12}},
		groups:  &groupSyncerStub{},
		out:     new(bytes.Buffer),
	}
	env.cli = &commandLine{
		usrRepo: env.usrRepo,
		rcSvc:   env.rc,
		syncSvc: env.groups,
		out:     env.out,
	}
	return env
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, env *cliEnv) {
	t.Helper()
	env.out.Reset()
	err := env.cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		require.NoError(t, err)
	}
	if tt.wantOut != "" {
		assert.Contains(t, env.out.String(), tt.wantOut)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	env := setup(t)

	migrationRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "broadcast_index", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.check(t, env) })
	}
}

func Test_commandLine_addUser(t *testing.T) {
	env := setup(t)
	existing := testutil.CreateUser(t, env.usrRepo, "Olive Owner", "olive", "olive@school.ca", "old", nil, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "missing email", args: []string{"adduser", "-username", "ada"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "ada", "-email", "ada@school.ca"}, wantErr: errHelp},
		{
			name: "create", args: []string{"adduser", "-username", " Ada ", "-email", "Ada@School.ca", "-name", "Ada Admin", "-admin"},
			extra: extra{pwd: "s3cret!pass"}, wantOut: "saved user ada",
		},
		{
			name: "update existing", args: []string{"adduser", "-username", "olive", "-email", "olive@school.ca"},
			extra: extra{pwd: "n3w!pass"},
		},
	}
	for _, tt := range tests {
		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}
		t.Run(tt.name, func(t *testing.T) { tt.check(t, env) })
	}

	ada, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@school.ca", ada.Email)
	assert.Equal(t, "Ada Admin", ada.Name)
	assert.ElementsMatch(t, user.AllRoles, ada.Roles)
	assert.True(t, ada.Active())
	assert.NoError(t, ada.CheckPassword("s3cret!pass"))

	olive, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.True(t, olive.Active(), "reactivated")
	assert.Equal(t, "Olive Owner", olive.Name)
	assert.NoError(t, olive.CheckPassword("n3w!pass"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	env := setup(t)
	usr := testutil.CreateUser(t, env.usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, env)
			if tt.wantErr == nil {
				refreshed, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.False(t, bytes.Equal(refreshed.PasswordHash, usr.PasswordHash), "failed to update new password")
				assert.NoError(t, refreshed.CheckPassword(tt.extra.(extra).pwd))
			}
		})
	}
}

func Test_commandLine_reportCards(t *testing.T) {
	env := setup(t)
	sub := int64(3)

	tests := []cliTest{
		{name: "create: no term", args: []string{"createreportcards"}, wantErr: errHelp},
		{name: "create: unknown term", args: []string{"createreportcards", "-term", "9"}, wantErr: reportcard.ErrTermNotFound},
		{name: "create", args: []string{"createreportcards", "-term", "7"}, wantOut: "created 12 report cards"},
		{name: "check: no term", args: []string{"checkreportcards"}, wantErr: errHelp},
		{name: "check: clean", args: []string{"checkreportcards", "-term", "7"}, wantOut: "no duplicate entries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.check(t, env) })
	}

	env.rc.dups = []reportcard.DuplicateEntries{{
		Key:     "5-1-3-0",
		Entries: []reportcard.Entry{{ID: 40, ReportCardID: 5, SectionID: 1, SubjectID: &sub}, {ID: 41, ReportCardID: 5, SectionID: 1, SubjectID: &sub}},
	}}
	cliTest{args: []string{"checkreportcards", "-term", "7"}, wantOut: "5-1-3-0: entries [40 41]\n1 duplicated elements"}.check(t, env)
}

func Test_commandLine_syncGroups(t *testing.T) {
	env := setup(t)

	tests := []cliTest{
		{name: "unknown group", args: []string{"syncgroups", "-group", "9"}, wantErr: googlesync.ErrNotFound},
		{name: "one group", args: []string{"syncgroups", "-group", "1"}, wantOut: "1 added\nAdded paula@home.ca with role MEMBER"},
		{name: "all groups", args: []string{"syncgroups"}, wantOut: "synced 2 groups"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.check(t, env) })
	}
	assert.Equal(t, []int64{1, 1, 2}, env.groups.synced)
}
