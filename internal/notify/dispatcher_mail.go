package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// MailDispatcher emails host-addressed events over SMTP. Events without a
// host email, and admin-audience copies, are skipped silently; the admin
// channel is Kafka and the ops log.
type MailDispatcher struct {
	client *mail.Client
	from   string
}

// NewMailDispatcher builds an SMTP-backed dispatcher.
func NewMailDispatcher(host string, port int, username, password, from string) (*MailDispatcher, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &MailDispatcher{client: client, from: from}, nil
}

// Dispatch implements Dispatcher.
func (d *MailDispatcher) Dispatch(ctx context.Context, event Event) error {
	if event.Audience != AudienceHost || event.HostEmail == "" {
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(d.from); err != nil {
		return fmt.Errorf("set mail sender: %w", err)
	}
	if err := msg.To(event.HostEmail); err != nil {
		return fmt.Errorf("set mail recipient: %w", err)
	}
	msg.Subject(subjectFor(event))
	msg.SetBodyString(mail.TypeTextPlain, bodyFor(event))

	if err := d.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send notification mail: %w", err)
	}
	return nil
}

func subjectFor(event Event) string {
	switch event.Kind {
	case KindVisitRequested:
		return fmt.Sprintf("Visit request %s awaiting your approval", event.VisitCode)
	case KindVisitApproved:
		return fmt.Sprintf("Visit %s approved", event.VisitCode)
	case KindVisitRejected:
		return fmt.Sprintf("Visit %s rejected", event.VisitCode)
	case KindVisitorArrived:
		return fmt.Sprintf("%s has arrived", event.VisitorName)
	case KindVisitorDeparted:
		return fmt.Sprintf("%s has left the building", event.VisitorName)
	default:
		return fmt.Sprintf("Visit %s update", event.VisitCode)
	}
}

func bodyFor(event Event) string {
	body := fmt.Sprintf("Hello %s,\n\nVisit %s (%s): %s.",
		event.HostName, event.VisitCode, event.VisitorName, event.Kind)
	if event.Detail != "" {
		body += "\n\n" + event.Detail
	}
	return body + "\n"
}
