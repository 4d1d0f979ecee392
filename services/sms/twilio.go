package smssvc

import (
	"context"

	"github.com/pkg/errors"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/trezcool/indysis/core"
)

type twilioService struct {
	client         *twilio.RestClient
	from           string
	statusCallback string
}

var _ core.SMSService = (*twilioService)(nil)

func NewTwilioService(conf *core.Config) core.SMSService {
	return &twilioService{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: conf.Twilio.AccountSID,
			Password: conf.Twilio.AuthToken,
		}),
		from:           conf.Twilio.FromNumber,
		statusCallback: conf.Twilio.StatusCallbackURL,
	}
}

func (svc twilioService) Send(ctx context.Context, msg core.SMSMessage) (core.SMSResult, error) {
	if err := ctx.Err(); err != nil {
		return core.SMSResult{}, err
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(svc.from)
	params.SetBody(msg.Body)
	if svc.statusCallback != "" {
		params.SetStatusCallback(svc.statusCallback)
	}

	resp, err := svc.client.Api.CreateMessage(params)
	if err != nil {
		return core.SMSResult{}, errors.Wrap(err, "twilio.CreateMessage")
	}
	var res core.SMSResult
	if resp.Sid != nil {
		res.SID = *resp.Sid
	}
	if resp.Status != nil {
		res.Status = *resp.Status
	}
	return res, nil
}
