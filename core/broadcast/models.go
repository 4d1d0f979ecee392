package broadcast

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/indysis/core"
)

// Broadcast statuses
const (
	StatusPending = "pending"
	StatusTested  = "tested"
	StatusSent    = "sent"
)

// Recipient statuses
const (
	RecipientPending   = "pending"
	RecipientQueued    = "queued"
	RecipientDelivered = "delivered"
	RecipientFailed    = "failed"
)

// NotMonitoredReply answers incoming text messages.
const NotMonitoredReply = "This number is not monitored / Ce numéro n'est pas surveillé"

type Broadcast struct {
	ID        int64     `json:"id" db:"id"`
	Message   string    `json:"message" db:"message"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Recipient struct {
	ID            int64     `json:"id" db:"id"`
	BroadcastID   int64     `json:"broadcast_id" db:"broadcast_id"`
	ContactID     *int64    `json:"contact_id" db:"contact_id"`
	FacultyID     *int64    `json:"faculty_id" db:"faculty_id"`
	PhoneNumber   string    `json:"phone_number" db:"phone_number"`
	Status        string    `json:"status" db:"status"`
	MessageSID    *string   `json:"message_sid" db:"message_sid"`
	StatusMessage *string   `json:"status_message" db:"status_message"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Stats counts the recipients of a broadcast by status.
type Stats struct {
	Recipients int `json:"recipients"`
	Sent       int `json:"sent"`
	Queued     int `json:"queued"`
	Failed     int `json:"failed"`
}

type RecipientFilter struct {
	BroadcastID int64
	Status      string
}

// NewBroadcast is the form to create a broadcast.
type NewBroadcast struct {
	Message        string `json:"message" validate:"required,min=4,max=140"`
	IncludeParents bool   `json:"include_parents"`
	IncludeStaff   bool   `json:"include_staff"`
	ExtraNumbers   string `json:"extra_numbers"` // one per line
}

func (nb *NewBroadcast) Validate(validate *validator.Validate, region string) error {
	nb.Message = core.CleanString(nb.Message)
	if err := validate.Struct(nb); err != nil {
		return err
	}
	_, err := nb.Numbers(region)
	return err
}

// Numbers parses the extra numbers as E.164.
func (nb NewBroadcast) Numbers(region string) ([]string, error) {
	var numbers []string
	for _, line := range strings.Split(nb.ExtraNumbers, "\n") {
		line = core.CleanString(line)
		if line == "" {
			continue
		}
		num, err := core.NormalizePhone(line, region)
		if err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "extra_numbers", Error: "invalid phone number: " + line})
		}
		numbers = append(numbers, num)
	}
	return numbers, nil
}

// TestBroadcast sends the message of a broadcast to a single number.
type TestBroadcast struct {
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
}

func (tb TestBroadcast) Validate(validate *validator.Validate) error { return validate.Struct(tb) }

// IncomingSMS is a text message received on the broadcast number.
type IncomingSMS struct {
	From      string `form:"From"`
	To        string `form:"To"`
	FromCity  string `form:"FromCity"`
	FromState string `form:"FromState"`
	Body      string `form:"Body"`
}

// StatusUpdate is the provider's delivery report for a message.
type StatusUpdate struct {
	MessageSID    string `form:"MessageSid"`
	MessageStatus string `form:"MessageStatus"`
}
