// Package alert decides when cumulative spending warrants a warning and
// delivers it.
package alert

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultSubject is the email subject used for threshold alerts.
const DefaultSubject = "Spending Alert - Monthly Threshold Exceeded"

// DefaultCurrency prefixes amounts in alert text.
const DefaultCurrency = "RM"

// Message is a fired threshold alert.
type Message struct {
	Subject   string          `json:"subject"`
	Text      string          `json:"text"`
	Threshold decimal.Decimal `json:"threshold"`
	Total     decimal.Decimal `json:"total"`
	Recipient string          `json:"recipient,omitempty"`
}

// Body renders the plain-text email body around the alert text.
func (m Message) Body() string {
	return "Dear User,\n\n" +
		m.Text + "\n\n" +
		"This is an automated alert from your Smart Budgeting App.\n" +
		"Please review your spending and take necessary actions.\n\n" +
		"Best regards,\n" +
		"Smart Budgeting App Team"
}

// Alert holds the threshold configuration. Evaluate is pure.
type Alert struct {
	threshold decimal.Decimal
	recipient string
	currency  string
	subject   string
}

// Option configures an Alert.
type Option func(*Alert)

// WithCurrency sets the prefix printed before amounts.
func WithCurrency(currency string) Option {
	return func(a *Alert) { a.currency = currency }
}

// WithSubject overrides DefaultSubject.
func WithSubject(subject string) Option {
	return func(a *Alert) { a.subject = subject }
}

// New configures an alert for spending above threshold.
func New(threshold decimal.Decimal, recipient string, opts ...Option) (*Alert, error) {
	if threshold.IsNegative() {
		return nil, errors.New("alert threshold must not be negative")
	}
	a := &Alert{
		threshold: threshold,
		recipient: recipient,
		currency:  DefaultCurrency,
		subject:   DefaultSubject,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Threshold returns the configured limit.
func (a *Alert) Threshold() decimal.Decimal {
	return a.threshold
}

// Recipient returns the configured recipient.
func (a *Alert) Recipient() string {
	return a.recipient
}

// Evaluate returns an alert message when total is strictly greater than the
// threshold. A total equal to the threshold does not fire.
func (a *Alert) Evaluate(total decimal.Decimal) (Message, bool) {
	if !total.GreaterThan(a.threshold) {
		return Message{}, false
	}
	return Message{
		Subject: a.subject,
		Text: fmt.Sprintf(
			"Alert: Total spending exceeds the monthly threshold of %s%s! Current total spending: %s%s",
			a.currency, a.threshold.StringFixed(2), a.currency, total.StringFixed(2),
		),
		Threshold: a.threshold,
		Total:     total,
		Recipient: a.recipient,
	}, true
}
