// Package mail delivers notification emails over SMTP.
package mail

import (
	"context"
	"errors"
	"strings"

	gomail "github.com/wneessen/go-mail"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// Sender is the part of *gomail.Client used by the gateway.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPGateway sends HTML messages through an SMTP relay.
type SMTPGateway struct {
	sender Sender
	from   string
}

// NewSMTPGateway creates a gateway over an existing sender.
func NewSMTPGateway(sender Sender, from string) *SMTPGateway {
	return &SMTPGateway{sender: sender, from: from}
}

// NewSMTPClient builds the go-mail client from the mail configuration.
func NewSMTPClient(cfg config.MailConfig) (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(tlsPolicy(cfg.TLS)),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, exception.NewConfigurationError("mail", "invalid smtp configuration", err)
	}
	return client, nil
}

func tlsPolicy(name string) gomail.TLSPolicy {
	switch strings.ToLower(name) {
	case "none":
		return gomail.NoTLS
	case "mandatory":
		return gomail.TLSMandatory
	default:
		return gomail.TLSOpportunistic
	}
}

// Build assembles the message sent for one notification.
func (g *SMTPGateway) Build(to, subject, htmlBody string) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(g.from); err != nil {
		return nil, exception.NewConfigurationError("mail", "invalid sender address", err)
	}
	if err := m.To(to); err != nil {
		return nil, exception.NewValidationError("mail", "invalid recipient address", err)
	}
	m.Subject(subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextHTML, htmlBody)
	return m, nil
}

// Send builds and delivers one message.
func (g *SMTPGateway) Send(ctx context.Context, to, subject, htmlBody string) error {
	m, err := g.Build(to, subject, htmlBody)
	if err != nil {
		return err
	}
	if err := g.sender.DialAndSendWithContext(ctx, m); err != nil {
		return exception.NewTransientError("mail", "smtp delivery to "+to+" failed", err)
	}
	logger.Infof("Email %q sent to %s", subject, to)
	return nil
}

// LogGateway replaces SMTP delivery when mail is disabled.
type LogGateway struct{}

// Send logs the message instead of delivering it.
func (LogGateway) Send(ctx context.Context, to, subject, htmlBody string) error {
	logger.Infof("Mail disabled; skipping %q to %s", subject, to)
	return nil
}

// ErrQueueFull is returned by AsyncGateway.Send when no slot is free.
var ErrQueueFull = errors.New("mail queue is full")

var (
	_ ports.MailGateway = (*SMTPGateway)(nil)
	_ ports.MailGateway = LogGateway{}
)
