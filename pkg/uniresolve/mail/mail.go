// Package mail delivers notification emails. Delivery is best-effort: callers
// log failures and carry on.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/config"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Sender delivers a single HTML email
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender sends through an SMTP relay
type SMTPSender struct {
	client *gomail.Client
	from   string
}

// NewSMTPSender builds a sender from cfg. The connection is opened per send.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	opts := []gomail.Option{gomail.WithPort(cfg.Port)}
	if cfg.TLS {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.NoTLS))
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
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	return s.client.DialAndSendWithContext(ctx, msg)
}

// NoopSender only logs. It is used when SMTP is not configured.
type NoopSender struct {
	logger zerolog.Logger
}

func NewNoopSender(logger zerolog.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

func (s *NoopSender) Send(_ context.Context, to, subject, _ string) error {
	s.logger.Debug().Str("to", to).Str("subject", subject).Msg("email delivery disabled, skipping")
	return nil
}

// NewSender returns an SMTP sender when cfg has a host, a NoopSender
// otherwise.
func NewSender(cfg config.SMTPConfig, logger zerolog.Logger) (Sender, error) {
	if !cfg.Enabled() {
		return NewNoopSender(logger), nil
	}
	return NewSMTPSender(cfg)
}

// NotificationData fills the notification email template
type NotificationData struct {
	RecipientName string
	Title         string
	Message       string
	Link          string
}

// RenderNotification renders the HTML body of a notification email.
func RenderNotification(data NotificationData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "notification.html", data); err != nil {
		return "", fmt.Errorf("render notification email: %w", err)
	}
	return buf.String(), nil
}
