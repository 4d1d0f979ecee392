package reportcard

import (
	"bytes"
	"context"
	"net/mail"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
)

var (
	ErrTermOpen     = errors.New("report cards cannot be sent to parents while the term is open")
	ErrNoRecipients = errors.New("no recipients")
)

const summaryEmailTemplate = "reportcard_summary"

// SendOptions picks the recipients of a report card email.
type SendOptions struct {
	To          []string `json:"to"`
	ToParents   bool     `json:"to_parents"`
	MarkEmailed bool     `json:"mark_emailed"`
}

type SendResult struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
}

type emailContext struct {
	Term    Term
	Student school.Student
	Summary Summary
}

func parseTermEmail(term Term) (subject, body *template.Template, err error) {
	if subject, err = template.New("subject").Parse(term.EmailSubject); err != nil {
		return nil, nil, errors.Wrap(err, "email subject")
	}
	if body, err = template.New("body").Parse(term.EmailBody); err != nil {
		return nil, nil, errors.Wrap(err, "email body")
	}
	return subject, body, nil
}

func renderString(tmpl *template.Template, data interface{}) (string, error) {
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return "", err
	}
	return buff.String(), nil
}

// SendReportCard emails the report card summary of the student to the given addresses or to the parents.
// Parents only receive report cards of closed terms.
func (svc *Service) SendReportCard(ctx context.Context, studentID, termID int64, opts SendOptions) (SendResult, error) {
	term, err := svc.repo.GetTerm(ctx, termID)
	if err != nil {
		return SendResult{}, err
	}
	if opts.ToParents && term.IsOpen {
		return SendResult{}, ErrTermOpen
	}
	st, err := svc.dir.GetStudent(ctx, studentID)
	if err != nil {
		return SendResult{}, err
	}

	rcs, err := svc.repo.QueryReportCards(ctx, ReportCardFilter{StudentIDs: []int64{st.ID}, TermIDs: []int64{term.ID}})
	if err != nil {
		return SendResult{}, err
	}
	if len(rcs) == 0 {
		return SendResult{}, ErrReportCardNotFound
	}
	rc := rcs[0]
	tpl, err := svc.repo.GetTemplate(ctx, rc.TemplateID)
	if err != nil {
		return SendResult{}, err
	}
	entries, err := svc.repo.QueryEntries(ctx, EntryFilter{ReportCardIDs: []int64{rc.ID}})
	if err != nil {
		return SendResult{}, err
	}
	card := newCard(rc, st, term, tpl, entries)

	recipients, err := svc.recipients(ctx, st.ID, opts)
	if err != nil {
		return SendResult{}, err
	}

	sum, err := svc.summary(ctx, st, term)
	if err != nil {
		return SendResult{}, err
	}
	lines, err := svc.summaryLines(ctx, card)
	if err != nil {
		return SendResult{}, err
	}

	subjTmpl, bodyTmpl, err := parseTermEmail(term)
	if err != nil {
		return SendResult{}, err
	}
	data := emailContext{Term: term, Student: st, Summary: sum}
	subject, err := renderString(subjTmpl, data)
	if err != nil {
		return SendResult{}, errors.Wrap(err, "rendering email subject")
	}
	body, err := renderString(bodyTmpl, data)
	if err != nil {
		return SendResult{}, errors.Wrap(err, "rendering email body")
	}

	title := term.Title
	if title == "" {
		title = term.Name
	}
	msg := &core.EmailMessage{
		Subject:      strings.TrimSpace(subject),
		TemplateName: summaryEmailTemplate,
		TemplateData: map[string]interface{}{
			"Body":      body,
			"Summary":   sum,
			"TermTitle": title,
			"Lines":     lines,
		},
	}
	for _, addr := range recipients {
		msg.To = append(msg.To, mail.Address{Address: addr})
	}
	if svc.conf != nil {
		from := svc.conf.DefaultFromEmail()
		msg.ReplyTo = &from
	}
	svc.mailSvc.SendMessages(msg)

	if opts.MarkEmailed && !rc.Emailed {
		rc.Emailed = true
		rc.UpdatedAt = svc.now()
		if _, err := svc.repo.UpdateReportCard(ctx, rc); err != nil {
			return SendResult{}, err
		}
	}
	return SendResult{Recipients: recipients, Subject: msg.Subject}, nil
}

func (svc *Service) recipients(ctx context.Context, studentID int64, opts SendOptions) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		addr = core.CleanString(addr, true)
		if addr == "" || seen[addr] {
			return
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}

	if opts.ToParents {
		parents, err := svc.dir.Parents(ctx, studentID)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			for _, addr := range p.Emails() {
				add(addr)
			}
		}
	} else {
		for _, addr := range opts.To {
			add(addr)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}
