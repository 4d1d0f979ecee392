package core

import "context"

type (
	SMSMessage struct {
		To   string // E.164
		Body string
	}

	// SMSResult holds the provider's answer for one message.
	SMSResult struct {
		SID    string
		Status string
	}

	// SMSService is any service that can send text messages.
	SMSService interface {
		Send(ctx context.Context, msg SMSMessage) (SMSResult, error)
	}
)
