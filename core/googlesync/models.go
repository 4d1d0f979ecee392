package googlesync

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/indysis/core"
)

// Member roles
const (
	RoleMember  = "MEMBER"
	RoleManager = "MANAGER"
	RoleOwner   = "OWNER"
)

// Change types
const (
	ChangeAdd  = "add"
	ChangeRole = "role"
	ChangeDel  = "del"
)

// Group is the sync configuration of a Workspace group.
type Group struct {
	ID          int64        `json:"id" db:"id"`
	GroupID     string       `json:"group_id" db:"group_id"`
	Email       string       `json:"email" db:"email"`
	Description string       `json:"description" db:"description"`
	ClassIDs    []int64      `json:"class_ids" db:"-"`
	Owners      []string     `json:"owners" db:"-"`
	Managers    []string     `json:"managers" db:"-"`
	Staff       []string     `json:"staff" db:"-"`
	AutoSync    bool         `json:"auto_sync" db:"auto_sync"`
	ExtraEmails []ExtraEmail `json:"extra_emails" db:"-"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

type ExtraEmail struct {
	Email string `json:"email" db:"email" validate:"required,email"`
	Role  string `json:"role" db:"role" validate:"required,oneof=MEMBER MANAGER OWNER"`
}

type SyncLog struct {
	ID        int64     `json:"id" db:"id"`
	GroupID   int64     `json:"group_id" db:"group_sync_id"`
	Status    string    `json:"status" db:"status"`
	Messages  string    `json:"messages" db:"messages"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Member is a group member as known by the directory.
type Member struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	MemberID string `json:"id,omitempty"`
}

type Change struct {
	Type   string `json:"type"`
	Member Member `json:"member"`
}

// DirectoryGroup is a group listed by the directory.
type DirectoryGroup struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Description string `json:"description"`
}

type GroupFilter struct {
	AutoSync *bool
}

// UpdateGroup is the editable part of a group configuration.
type UpdateGroup struct {
	ClassIDs    []int64      `json:"class_ids"`
	Owners      []string     `json:"owners"`
	Managers    []string     `json:"managers"`
	Staff       []string     `json:"staff"`
	AutoSync    bool         `json:"auto_sync"`
	ExtraEmails []ExtraEmail `json:"extra_emails" validate:"dive"`
}

func (ug *UpdateGroup) Validate(validate *validator.Validate) error {
	for i, e := range ug.ExtraEmails {
		ug.ExtraEmails[i].Email = core.CleanString(e.Email, true /* lower */)
		ug.ExtraEmails[i].Role = strings.ToUpper(core.CleanString(e.Role))
	}
	return validate.Struct(ug)
}
