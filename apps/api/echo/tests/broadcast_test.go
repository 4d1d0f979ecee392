package tests

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/indysis/core/broadcast"
	"github.com/trezcool/indysis/core/user"
	emailsvc "github.com/trezcool/indysis/services/email"
	testutil "github.com/trezcool/indysis/tests"
)

func Test_broadcastApi_incoming(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.usrRepo, "Olive Owner", "olive", "olive@school.ca", "", []string{user.RoleAdminOwner}, true)

	form := url.Values{
		"From":      {"+15062345601"},
		"To":        {"+15065550000"},
		"FromCity":  {"Moncton"},
		"FromState": {"NB"},
		"Body":      {"Is school closed?"},
	}
	req, rec := newFormRequest("/v1/sms/incoming", form.Encode())
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")

	var resp struct {
		XMLName xml.Name `xml:"Response"`
		Message string   `xml:"Message"`
	}
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, broadcast.NotMonitoredReply, resp.Message)

	sent := emailsvc.ResetSentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, "olive@school.ca", sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "Is school closed?")
	}
}

func Test_broadcastApi_lifecycle(t *testing.T) {
	env := setup(t)
	owner := testutil.CreateUser(t, env.usrRepo, "Olive Owner", "olive", "olive@school.ca", "", []string{user.RoleAdminOwner}, true)
	admin := testutil.CreateUser(t, env.usrRepo, "Ada Admin", "admin", "admin@school.ca", "", []string{user.RoleAdmin}, true)
	token := env.getToken(t, owner)

	runTests(t, env, []httpTest{
		{name: "auth required", path: "/v1/broadcasts", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "broadcast role required", path: "/v1/broadcasts", token: env.getToken(t, admin),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "message required", method: http.MethodPost, path: "/v1/broadcasts", token: token,
			body:     marchallObj(t, broadcast.NewBroadcast{}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"message": "this field is required"}),
		},
		{
			name: "invalid extra number", method: http.MethodPost, path: "/v1/broadcasts", token: token,
			body:     marchallObj(t, broadcast.NewBroadcast{Message: "School is closed today", ExtraNumbers: "506 234 5601\nlol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"extra_numbers": "invalid phone number: lol"}),
		},
		{
			name: "unknown broadcast", path: "/v1/broadcasts/999", token: token,
			wantCode: http.StatusNotFound,
		},
	})

	var bc broadcast.Broadcast
	code := env.do(t, http.MethodPost, "/v1/broadcasts", token, broadcast.NewBroadcast{
		Message:      "  School is closed today  ",
		ExtraNumbers: "506 234 5601\n+15062345601\n(506) 234-5602",
	}, &bc)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "School is closed today", bc.Message)
	assert.Equal(t, owner.ID, bc.CreatedBy)
	assert.Equal(t, broadcast.StatusPending, bc.Status)
	base := fmt.Sprintf("/v1/broadcasts/%d", bc.ID)

	var recipients []broadcast.Recipient
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base+"/recipients", token, nil, &recipients))
	assert.Len(t, recipients, 2, "duplicates are dropped")

	runTests(t, env, []httpTest{
		{
			name: "send untested", method: http.MethodPost, path: base + "/send", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: broadcast.ErrNotTested.Error()}),
		},
		{
			name: "test number required", method: http.MethodPost, path: base + "/test", token: token,
			body:     marchallObj(t, broadcast.TestBroadcast{}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"phone_number": "this field is required"}),
		},
	})

	t.Run("test & send", func(t *testing.T) {
		code := env.do(t, http.MethodPost, base+"/test", token, broadcast.TestBroadcast{PhoneNumber: "506-234-5699"}, &bc)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, broadcast.StatusTested, bc.Status)
		require.Len(t, env.sms.Sent(), 1)
		assert.Equal(t, "+15062345699", env.sms.Sent()[0].To)

		code = env.do(t, http.MethodPost, base+"/send", token, nil, &bc)
		require.Equal(t, http.StatusAccepted, code)
		assert.Equal(t, broadcast.StatusSent, bc.Status)
		assert.Len(t, env.sms.Sent(), 3)

		var stats broadcast.Stats
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base+"/stats", token, nil, &stats))
		assert.Equal(t, broadcast.Stats{Recipients: 2, Sent: 2}, stats)

		runTests(t, env, []httpTest{
			{
				name: "send twice", method: http.MethodPost, path: base + "/send", token: token,
				wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: broadcast.ErrAlreadySent.Error()}),
			},
		})
	})

	t.Run("delivery report", func(t *testing.T) {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base+"/recipients", token, nil, &recipients))
		require.NotEmpty(t, recipients)
		require.NotNil(t, recipients[0].MessageSID)

		report := func(sid, status string) int {
			form := url.Values{"MessageSid": {sid}, "MessageStatus": {status}}
			req, rec := newFormRequest("/v1/sms/status", form.Encode())
			env.app.ServeHTTP(rec, req)
			return rec.Code
		}
		assert.Equal(t, http.StatusNoContent, report(*recipients[0].MessageSID, broadcast.RecipientFailed))
		assert.Equal(t, http.StatusNotFound, report("SMunknown", "delivered"))
		assert.Equal(t, http.StatusBadRequest, report("", "delivered"))

		var stats broadcast.Stats
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base+"/stats", token, nil, &stats))
		assert.Equal(t, broadcast.Stats{Recipients: 2, Sent: 1, Failed: 1}, stats)
	})
}
