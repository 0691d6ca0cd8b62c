package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Notifier delivers a fired alert.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// LogNotifier writes alerts to the log. Used when no mail transport is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.log.Warn().
		Str("subject", msg.Subject).
		Str("recipient", msg.Recipient).
		Msg(msg.Text)
	return nil
}

// SMTPConfig holds mail transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From    string
	Timeout time.Duration
}

// SMTPNotifier sends alerts over SMTP with STARTTLS and PLAIN auth.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send func(ctx context.Context, m *mail.Msg) error
}

// NewSMTPNotifier validates cfg and returns a notifier.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("smtp username and password are required")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	n := &SMTPNotifier{cfg: cfg}
	n.send = n.dialAndSend
	return n, nil
}

// Notify implements Notifier. Every failure is a *domain.TransportError.
func (n *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return &domain.TransportError{Transport: "smtp", Err: errors.New("no recipient configured")}
	}

	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return &domain.TransportError{Transport: "smtp", Err: fmt.Errorf("sender address: %w", err)}
	}
	if err := m.To(msg.Recipient); err != nil {
		return &domain.TransportError{Transport: "smtp", Err: fmt.Errorf("recipient address: %w", err)}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body())

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	if err := n.send(ctx, m); err != nil {
		return &domain.TransportError{Transport: "smtp", Err: err}
	}
	return nil
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, m *mail.Msg) error {
	client, err := mail.NewClient(n.cfg.Host,
		mail.WithPort(n.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.Username),
		mail.WithPassword(n.cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithTimeout(n.cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, m)
}

var (
	_ Notifier = (*SMTPNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = NotifierFunc(nil)
)
