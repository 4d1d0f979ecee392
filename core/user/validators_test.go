package user

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/indysis/core"
)

func newTestValidator() *validator.Validate {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

func TestPasswordPolicy(t *testing.T) {
	validate := newTestValidator()
	commonPasswords = []string{"p@ssw0rd", "password"}

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 1234!", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "not complex", pwd: "abcdefgh1", wantTag: pwdComplexityTag},
		{name: "similar to username", pwd: "Jdupont-1", wantTag: pwdAttrSimTag},
		{name: "common", pwd: "P@ssw0rd", wantTag: pwdNoCommonTag},
		{name: "valid", pwd: "Tr0ub4dor&3x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := NewUser{
				Name:            "Jean",
				Username:        "jdupont",
				Email:           "j@school.test",
				Password:        tt.pwd,
				PasswordConfirm: tt.pwd,
			}
			err := validate.Struct(nu)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			if assert.True(t, ok, "want validator.ValidationErrors, got %v", err) {
				assert.Equal(t, tt.wantTag, vErrs[0].Tag())
			}
		})
	}
}

func TestAllRolesValidation(t *testing.T) {
	validate := newTestValidator()

	ok := UpdateUser{Roles: []string{RoleFaculty, RoleAdminReportCard}}
	assert.NoError(t, validate.Struct(ok))

	bad := UpdateUser{Roles: []string{RoleFaculty, "student:"}}
	assert.Error(t, validate.Struct(bad))
}
