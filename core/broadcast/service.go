package broadcast

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("broadcast")
	ErrRecipientNotFound = core.NewNotFoundError("broadcast recipient")
	ErrNotTested         = errors.New("broadcast must be tested before it is sent")
	ErrAlreadySent       = errors.New("broadcast was already sent")
	ErrMissingSID        = errors.New("missing message SID")
)

type (
	Repository interface {
		CreateBroadcast(ctx context.Context, b Broadcast, exec ...core.DBExecutor) (Broadcast, error)
		UpdateBroadcast(ctx context.Context, b Broadcast, exec ...core.DBExecutor) (Broadcast, error)
		GetBroadcast(ctx context.Context, id int64, exec ...core.DBExecutor) (Broadcast, error)
		// QueryBroadcasts returns the broadcasts, newest first.
		QueryBroadcasts(ctx context.Context, exec ...core.DBExecutor) ([]Broadcast, error)

		CreateRecipients(ctx context.Context, recipients []Recipient, exec ...core.DBExecutor) error
		UpdateRecipient(ctx context.Context, r Recipient, exec ...core.DBExecutor) (Recipient, error)
		// QueueRecipients marks the pending recipients of the broadcast as queued and returns them.
		QueueRecipients(ctx context.Context, broadcastID int64, exec ...core.DBExecutor) ([]Recipient, error)
		QueryRecipients(ctx context.Context, filter RecipientFilter, exec ...core.DBExecutor) ([]Recipient, error)
		GetRecipientBySID(ctx context.Context, sid string, exec ...core.DBExecutor) (Recipient, error)
	}

	// Directory gives access to the people a broadcast can reach.
	Directory interface {
		QueryStudents(ctx context.Context, filter school.StudentFilter) ([]school.Student, error)
		QueryContacts(ctx context.Context, studentIDs ...int64) ([]school.EmergencyContact, error)
		QueryFaculty(ctx context.Context, filter school.FacultyFilter) ([]school.Faculty, error)
	}

	// Owners lists the users notified of incoming messages.
	Owners interface {
		QueryOwners(ctx context.Context) ([]user.User, error)
	}

	Service struct {
		db          core.DB
		repo        Repository
		dir         Directory
		owners      Owners
		smsSvc      core.SMSService
		mailSvc     core.EmailService
		logger      core.Logger
		region      string
		concurrency int
		now         func() time.Time
		spawn       func(fn func())
	}
)

func NewService(
	conf *core.Config,
	db core.DB,
	repo Repository,
	dir Directory,
	owners Owners,
	smsSvc core.SMSService,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	concurrency := conf.Broadcast.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		db:          db,
		repo:        repo,
		dir:         dir,
		owners:      owners,
		smsSvc:      smsSvc,
		mailSvc:     mailSvc,
		logger:      logger,
		region:      conf.Broadcast.PhoneRegion,
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
		spawn:       func(fn func()) { go fn() },
	}
}

// Create saves a broadcast and its recipients: parents with a cell number of active students,
// active staff with a cell number and the extra numbers. A number is only messaged once.
func (svc *Service) Create(ctx context.Context, createdBy string, nb NewBroadcast) (Broadcast, error) {
	extra, err := nb.Numbers(svc.region)
	if err != nil {
		return Broadcast{}, err
	}

	now := svc.now()
	seen := make(map[string]bool)
	var recipients []Recipient
	add := func(number string, contactID, facultyID *int64) {
		num, err := core.NormalizePhone(number, svc.region)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("skipping invalid phone number %q", number))
			return
		}
		if seen[num] {
			return
		}
		seen[num] = true
		recipients = append(recipients, Recipient{
			ContactID:   contactID,
			FacultyID:   facultyID,
			PhoneNumber: num,
			Status:      RecipientPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	active := true
	if nb.IncludeParents {
		students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{IsActive: &active})
		if err != nil {
			return Broadcast{}, err
		}
		ids := make([]int64, 0, len(students))
		for _, st := range students {
			ids = append(ids, st.ID)
		}
		if len(ids) > 0 {
			contacts, err := svc.dir.QueryContacts(ctx, ids...)
			if err != nil {
				return Broadcast{}, err
			}
			for _, c := range contacts {
				if c.EmergencyOnly {
					continue
				}
				if cell := c.CellNumber(); cell != "" {
					id := c.ID
					add(cell, &id, nil)
				}
			}
		}
	}
	if nb.IncludeStaff {
		faculty, err := svc.dir.QueryFaculty(ctx, school.FacultyFilter{IsActive: &active})
		if err != nil {
			return Broadcast{}, err
		}
		for _, f := range faculty {
			if core.CleanString(f.Cell) != "" {
				id := f.ID
				add(f.Cell, nil, &id)
			}
		}
	}
	for _, num := range extra {
		add(num, nil, nil)
	}

	var created Broadcast
	err = core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		created, err = svc.repo.CreateBroadcast(ctx, Broadcast{
			Message:   core.CleanString(nb.Message),
			CreatedBy: createdBy,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		if err != nil {
			return err
		}
		for i := range recipients {
			recipients[i].BroadcastID = created.ID
		}
		if len(recipients) == 0 {
			return nil
		}
		return svc.repo.CreateRecipients(ctx, recipients, exec)
	})
	if err != nil {
		return Broadcast{}, err
	}
	return created, nil
}

func (svc *Service) Get(ctx context.Context, id int64) (Broadcast, error) {
	return svc.repo.GetBroadcast(ctx, id)
}

func (svc *Service) Query(ctx context.Context) ([]Broadcast, error) {
	return svc.repo.QueryBroadcasts(ctx)
}

func (svc *Service) Recipients(ctx context.Context, id int64) ([]Recipient, error) {
	return svc.repo.QueryRecipients(ctx, RecipientFilter{BroadcastID: id})
}

// SendTest sends the message to a single number and marks a pending broadcast tested.
func (svc *Service) SendTest(ctx context.Context, id int64, tb TestBroadcast) (Broadcast, error) {
	b, err := svc.repo.GetBroadcast(ctx, id)
	if err != nil {
		return Broadcast{}, err
	}
	num, err := core.NormalizePhone(tb.PhoneNumber, svc.region)
	if err != nil {
		return Broadcast{}, core.NewValidationError(err, core.FieldError{Field: "phone_number", Error: err.Error()})
	}
	if _, err := svc.smsSvc.Send(ctx, core.SMSMessage{To: num, Body: b.Message}); err != nil {
		return Broadcast{}, errors.Wrap(err, "sending test message")
	}
	if b.Status != StatusPending {
		return b, nil
	}
	b.Status = StatusTested
	b.UpdatedAt = svc.now()
	return svc.repo.UpdateBroadcast(ctx, b)
}

// Deliver queues the pending recipients of a tested broadcast and sends them in the background.
func (svc *Service) Deliver(ctx context.Context, id int64) (Broadcast, error) {
	b, err := svc.repo.GetBroadcast(ctx, id)
	if err != nil {
		return Broadcast{}, err
	}
	switch b.Status {
	case StatusPending:
		return Broadcast{}, ErrNotTested
	case StatusSent:
		return Broadcast{}, ErrAlreadySent
	}

	var queued []Recipient
	err = core.WithTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if queued, err = svc.repo.QueueRecipients(ctx, b.ID, exec); err != nil {
			return err
		}
		b.Status = StatusSent
		b.UpdatedAt = svc.now()
		b, err = svc.repo.UpdateBroadcast(ctx, b, exec)
		return err
	})
	if err != nil {
		return Broadcast{}, err
	}

	message := b.Message
	svc.spawn(func() { svc.sendAll(context.Background(), message, queued) })
	return b, nil
}

// sendAll sends the message to the recipients concurrently.
func (svc *Service) sendAll(ctx context.Context, message string, recipients []Recipient) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.concurrency)
	for _, r := range recipients {
		r := r
		g.Go(func() error {
			svc.send(ctx, message, r)
			return nil
		})
	}
	_ = g.Wait()
}

func (svc *Service) send(ctx context.Context, message string, r Recipient) {
	res, err := svc.smsSvc.Send(ctx, core.SMSMessage{To: r.PhoneNumber, Body: message})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending broadcast to %s: %v", r.PhoneNumber, err), err)
		r.Status = RecipientFailed
		msg := err.Error()
		r.StatusMessage = &msg
	} else {
		r.Status = RecipientDelivered
		r.MessageSID = &res.SID
		if res.Status != "" {
			r.StatusMessage = &res.Status
		}
	}
	r.UpdatedAt = svc.now()
	if _, err := svc.repo.UpdateRecipient(ctx, r); err != nil {
		svc.logger.Error(fmt.Sprintf("saving broadcast recipient %d: %v", r.ID, err), err)
	}
}

func (svc *Service) Stats(ctx context.Context, id int64) (Stats, error) {
	if _, err := svc.repo.GetBroadcast(ctx, id); err != nil {
		return Stats{}, err
	}
	recipients, err := svc.repo.QueryRecipients(ctx, RecipientFilter{BroadcastID: id})
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Recipients: len(recipients)}
	for _, r := range recipients {
		switch r.Status {
		case RecipientDelivered:
			stats.Sent++
		case RecipientQueued:
			stats.Queued++
		case RecipientFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// UpdateStatus records a delivery report. Unknown messages are ignored.
func (svc *Service) UpdateStatus(ctx context.Context, upd StatusUpdate) error {
	sid := core.CleanString(upd.MessageSID)
	if sid == "" {
		return ErrMissingSID
	}
	r, err := svc.repo.GetRecipientBySID(ctx, sid)
	if err != nil {
		return err
	}
	status := core.CleanString(upd.MessageStatus)
	r.StatusMessage = &status
	if status == RecipientFailed {
		r.Status = RecipientFailed
	}
	r.UpdatedAt = svc.now()
	_, err = svc.repo.UpdateRecipient(ctx, r)
	return err
}

// Incoming forwards a received text message to the owners and returns the reply to send back.
func (svc *Service) Incoming(ctx context.Context, in IncomingSMS) string {
	owners, err := svc.owners.QueryOwners(ctx)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("listing owners: %v", err), err)
		return NotMonitoredReply
	}
	msg := &core.EmailMessage{
		Subject:      "Incoming text message from " + in.From,
		TemplateName: "sms_incoming",
		TemplateData: map[string]interface{}{
			"From": fmt.Sprintf("%s (%s, %s)", in.From, in.FromCity, in.FromState),
			"Body": in.Body,
		},
	}
	for _, usr := range owners {
		if usr.Email != "" && usr.Active() {
			msg.To = append(msg.To, mail.Address{Name: usr.Name, Address: usr.Email})
		}
	}
	if msg.HasRecipients() {
		svc.mailSvc.SendMessages(msg)
	}
	return NotMonitoredReply
}
