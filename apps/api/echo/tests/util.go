package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/indysis/apps/api/echo"
	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/afterschool"
	"github.com/trezcool/indysis/core/attendance"
	"github.com/trezcool/indysis/core/broadcast"
	"github.com/trezcool/indysis/core/foodorder"
	"github.com/trezcool/indysis/core/googlesync"
	"github.com/trezcool/indysis/core/reportcard"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
	emailsvc "github.com/trezcool/indysis/services/email"
	"github.com/trezcool/indysis/services/groupdir"
	logsvc "github.com/trezcool/indysis/services/logger"
	smssvc "github.com/trezcool/indysis/services/sms"
	inmemdb "github.com/trezcool/indysis/storage/database/inmem"
	testutil "github.com/trezcool/indysis/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	app  *echoapi.Server
	conf *core.Config

	usrRepo user.Repository
	schRepo school.Repository

	schoolSvc *school.Service
	rcSvc     *reportcard.Service
	bcSvc     *broadcast.Service
	sms       *smssvc.ConsoleServiceMock
	groups    *groupdir.Memory
}

func setup(t *testing.T) *testEnv {
	conf := testutil.NewConfig(t)
	conf.Debug = false
	db := testutil.OpenMemDB(t)
	logger := logsvc.NewDiscardLogger()

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)

	env := &testEnv{
		conf:    conf,
		usrRepo: inmemdb.NewUserRepository(db),
		schRepo: inmemdb.NewSchoolRepository(db),
		sms:     smssvc.NewConsoleServiceMock(),
		groups:  groupdir.NewMemory(),
	}

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ResetSentMessages()
	usrSvc := user.NewServiceMock(conf, env.usrRepo, mailSvc, logger)
	env.schoolSvc = school.NewService(nil, env.schRepo)
	attSvc := attendance.NewService(nil, inmemdb.NewAttendanceRepository(db), env.schoolSvc)
	env.rcSvc = reportcard.NewServiceMock(
		conf,
		inmemdb.NewReportCardRepository(db),
		inmemdb.NewLockStore(db),
		env.schoolSvc,
		attSvc,
		mailSvc,
		logger,
		nil, /* now */
	)
	env.bcSvc = broadcast.NewServiceMock(conf, inmemdb.NewBroadcastRepository(db), env.schoolSvc, usrSvc, env.sms, mailSvc, logger)

	// set up server
	env.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		SchoolSvc:      env.schoolSvc,
		AttendanceSvc:  attSvc,
		ReportCardSvc:  env.rcSvc,
		BroadcastSvc:   env.bcSvc,
		FoodOrderSvc:   foodorder.NewService(inmemdb.NewFoodOrderRepository(db), env.schoolSvc),
		AfterschoolSvc: afterschool.NewService(inmemdb.NewAfterschoolRepository(db), env.schoolSvc),
		GroupSyncSvc:   googlesync.NewService(conf, inmemdb.NewGroupSyncRepository(db), env.groups, env.schoolSvc, usrSvc, logger),
	})
	return env
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func newFormRequest(path, form string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, httptest.NewRecorder()
}

func (env *testEnv) getToken(t *testing.T, usr user.User) string {
	claims := echoapi.GetUserClaims(env.conf, usr)
	token, err := echoapi.GenerateToken(env.conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// do serves a request & decodes the JSON response into out, when given.
func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var data []byte
	if body != nil {
		data = marchallObj(t, body)
	}
	req, rec := newAuthRequest(method, path, token, data)
	env.app.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
		}
	}
	return rec.Code
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	l1, ok1 := j1.([]interface{})
	l2, ok2 := j2.([]interface{})
	if !ok1 || !ok2 {
		return false, nil
	}
	return assert.ElementsMatch(t, l1, l2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
