package tests

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/indysis/apps/api/echo"
	"github.com/trezcool/indysis/core/user"
	emailsvc "github.com/trezcool/indysis/services/email"
	testutil "github.com/trezcool/indysis/tests"
)

func Test_userApi_login(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.usrRepo, "Ada", "ada", "ada@school.ca", "LolC@t123", []string{user.RoleFaculty}, true)
	testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog", "ndog@school.ca", "LolC@t123", []string{user.RoleFaculty}, false)

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Username: "this field is required", Password: "this field is required"}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ada", Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/login"
	}
	runTests(t, env, tests)

	t.Run("login by email", func(t *testing.T) {
		var resp echoapi.LoginResponse
		code := env.do(t, http.MethodPost, "/v1/users/login", "", echoapi.LoginRequest{Username: "ADA@school.ca", Password: "LolC@t123"}, &resp)
		assert.Equal(t, http.StatusOK, code)
		assert.NotEmpty(t, resp.Token)

		var me user.User
		code = env.do(t, http.MethodGet, "/v1/users/me", resp.Token, nil, &me)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ada", me.Username)
		assert.False(t, me.LastLogin.IsZero())
	})
}

func Test_userApi_query(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@school.ca", "", []string{user.RoleAdmin}, true)
	owner := testutil.CreateUser(t, env.usrRepo, "Owner", "owner", "owner@school.ca", "", []string{user.RoleAdminOwner}, true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@school.ca", "", []string{user.RoleFaculty}, true)
	naughty := testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog", "ndog@school.ca", "", []string{user.RoleFaculty}, false)
	adminToken := env.getToken(t, admin)

	runTests(t, env, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: env.getToken(t, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "get all", path: "/v1/users", token: adminToken, wantData: marchallList(t, admin, owner, teacher, naughty)},
		{name: "search", path: "/v1/users?search=TEACH", token: adminToken, wantData: marchallList(t, teacher)},
		{name: "role", path: "/v1/users?role=admin:owner", token: adminToken, wantData: marchallList(t, owner)},
		{name: "is_active", path: "/v1/users?is_active=false", token: adminToken, wantData: marchallList(t, naughty)},
		{name: "unknown search", path: "/v1/users?search=lol", token: adminToken, wantData: marchallList(t)},
		{name: "roles", path: "/v1/users/roles", token: adminToken, wantData: marchallObj(t, user.Roles)},
	})
}

func Test_userApi_detail(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@school.ca", "", []string{user.RoleAdmin}, true)
	owner := testutil.CreateUser(t, env.usrRepo, "Owner", "owner", "owner@school.ca", "", []string{user.RoleAdminOwner}, true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@school.ca", "", []string{user.RoleFaculty}, true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other", "other@school.ca", "", []string{user.RoleFaculty}, true)
	adminToken := env.getToken(t, admin)
	teacherToken := env.getToken(t, teacher)

	runTests(t, env, []httpTest{
		{name: "own profile", path: "/v1/users/" + teacher.ID, token: teacherToken, wantData: marchallObj(t, teacher)},
		{
			name: "other profile hidden", path: "/v1/users/" + other.ID, token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "admin sees all", path: "/v1/users/" + other.ID, token: adminToken, wantData: marchallObj(t, other)},
		{
			name: "faculty cannot change roles", method: http.MethodPut, path: "/v1/users/" + teacher.ID, token: teacherToken,
			body:     marchallObj(t, map[string]interface{}{"roles": []string{user.RoleAdminOwner}}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admin cannot grant higher roles", method: http.MethodPut, path: "/v1/users/" + other.ID, token: adminToken,
			body:     marchallObj(t, map[string]interface{}{"roles": []string{user.RoleAdminOwner}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "admin cannot delete owner", method: http.MethodDelete, path: "/v1/users/" + owner.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "cannot delete self", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	})

	t.Run("update name", func(t *testing.T) {
		var usr user.User
		code := env.do(t, http.MethodPut, "/v1/users/"+teacher.ID, teacherToken, map[string]string{"name": "  Tina  "}, &usr)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Tina", usr.Name)
	})

	t.Run("delete", func(t *testing.T) {
		code := env.do(t, http.MethodDelete, "/v1/users/"+other.ID, adminToken, nil, nil)
		assert.Equal(t, http.StatusNoContent, code)
		_, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: other.ID})
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}

func Test_userApi_register(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@school.ca", "", []string{user.RoleAdmin}, true)
	adminToken := env.getToken(t, admin)

	runTests(t, env, []httpTest{
		{
			name: "higher role", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: marchallObj(t, user.NewUser{
				Name: "New", Username: "new", Password: "LolC@t123", PasswordConfirm: "LolC@t123", Roles: []string{user.RoleAdminOwner},
			}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "taken username", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body:     marchallObj(t, user.NewUser{Name: "New", Username: "ADMIN", Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantCode: http.StatusBadRequest,
		},
	})

	var usr user.User
	code := env.do(t, http.MethodPost, "/v1/users/register", adminToken, user.NewUser{
		Name: "Faculty", Username: "faculty", Email: "faculty@school.ca", Password: "LolC@t123", PasswordConfirm: "LolC@t123",
		Roles: []string{user.RoleFaculty},
	}, &usr)
	assert.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsFaculty())
}

func Test_userApi_refreshToken(t *testing.T) {
	env := setup(t)
	naughty := testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog", "ndog@school.ca", "", []string{user.RoleFaculty}, false)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@school.ca", "", []string{user.RoleFaculty}, true)

	now := time.Now()
	unrefreshable := echoapi.GetUserClaims(env.conf, teacher, now.Add(-2*env.conf.Server.JWTRefreshExpirationDelta).Unix())
	unrefreshableToken, err := echoapi.GenerateToken(env.conf, unrefreshable)
	require.NoError(t, err)

	expired := echoapi.GetUserClaims(env.conf, teacher)
	expired.StandardClaims = jwt.StandardClaims{Subject: teacher.ID, ExpiresAt: now.Add(-time.Minute).Unix()}
	expiredToken, err := echoapi.GenerateToken(env.conf, expired)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "expired token", token: expiredToken, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"})},
		{name: "inactive user", token: env.getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/token-refresh"
	}
	runTests(t, env, tests)

	var resp echoapi.LoginResponse
	code := env.do(t, http.MethodPost, "/v1/users/token-refresh", env.getToken(t, teacher), nil, &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, resp.Token)
}

func Test_userApi_passwordReset(t *testing.T) {
	env := setup(t)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@school.ca", "LolC@t123", []string{user.RoleFaculty}, true)
	success := echoapi.SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	}

	runTests(t, env, []httpTest{
		{
			name: "invalid email", method: http.MethodPost, path: "/v1/users/password-reset",
			body:     marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/v1/users/password-reset",
			body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@school.ca"}), wantData: marchallObj(t, success),
		},
	})
	assert.Empty(t, emailsvc.ResetSentMessages())

	code := env.do(t, http.MethodPost, "/v1/users/password-reset", "", echoapi.PasswordResetRequest{Email: teacher.Email}, nil)
	require.Equal(t, http.StatusOK, code)
	sent := emailsvc.ResetSentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, teacher.Email, sent[0].To[0].Address)

	match := regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s"]+)`).FindStringSubmatch(sent[0].TextContent)
	require.Len(t, match, 3)
	uid, token := match[1], match[2]

	runTests(t, env, []httpTest{
		{
			name: "mismatched passwords", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "N3w-P@ssw0rd", PasswordConfirm: "lol"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "invalid token", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig-sig", UID: uid, Password: "N3w-P@ssw0rd", PasswordConfirm: "N3w-P@ssw0rd"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "valid token", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "N3w-P@ssw0rd", PasswordConfirm: "N3w-P@ssw0rd"}),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	})

	usr, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: teacher.ID})
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("N3w-P@ssw0rd"))
}
