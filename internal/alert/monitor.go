package alert

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Mode controls how often Monitor delivers alerts.
type Mode string

const (
	// ModeEvery delivers on every check above the threshold.
	ModeEvery Mode = "every"
	// ModeOnce delivers once per upward crossing. A later check at or below
	// the threshold rearms it.
	ModeOnce Mode = "once"
)

// Delivery outcomes reported to the Observer.
const (
	OutcomeSent       = "sent"
	OutcomeFailed     = "failed"
	OutcomeSuppressed = "suppressed"
)

// Observer receives delivery outcomes. The metrics registry implements it.
type Observer interface {
	ObserveAlert(outcome string)
}

// Status is a snapshot of delivery state.
type Status struct {
	Mode              Mode      `json:"mode"`
	Latched           bool      `json:"latched"`
	Delivered         int       `json:"delivered"`
	Failed            int       `json:"failed"`
	LastDeliveredAt   time.Time `json:"last_delivered_at,omitempty"`
	LastDeliveryError string    `json:"last_delivery_error,omitempty"`
}

// Monitor evaluates totals and delivers alerts. Delivery errors are logged
// and counted, never returned.
type Monitor struct {
	alert    *Alert
	notifier Notifier
	mode     Mode
	log      zerolog.Logger
	observer Observer
	now      func() time.Time

	mu     sync.Mutex
	status Status
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMode selects ModeEvery (default) or ModeOnce.
func WithMode(mode Mode) MonitorOption {
	return func(m *Monitor) { m.mode = mode }
}

// WithLogger sets the logger for delivery events.
func WithLogger(log zerolog.Logger) MonitorOption {
	return func(m *Monitor) { m.log = log }
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) MonitorOption {
	return func(m *Monitor) { m.observer = o }
}

// NewMonitor wires an alert to a notifier.
func NewMonitor(a *Alert, n Notifier, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		alert:    a,
		notifier: n,
		mode:     ModeEvery,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.mode != ModeOnce {
		m.mode = ModeEvery
	}
	m.status.Mode = m.mode
	return m
}

// Alert returns the underlying evaluator.
func (m *Monitor) Alert() *Alert {
	return m.alert
}

// Check evaluates total and, if it fires, delivers the message. It returns
// the fired message, or nil when nothing fired or a ModeOnce latch held it back.
func (m *Monitor) Check(ctx context.Context, total decimal.Decimal) *Message {
	msg, over := m.alert.Evaluate(total)

	m.mu.Lock()
	if !over {
		m.status.Latched = false
		m.mu.Unlock()
		return nil
	}
	if m.mode == ModeOnce && m.status.Latched {
		m.mu.Unlock()
		m.observe(OutcomeSuppressed)
		m.log.Debug().Str("total", total.StringFixed(2)).Msg("Alert suppressed until total drops below threshold")
		return nil
	}
	// Claim the latch before sending so concurrent checks do not double-send.
	m.status.Latched = true
	m.mu.Unlock()

	err := m.notifier.Notify(ctx, msg)

	m.mu.Lock()
	if err != nil {
		m.status.Failed++
		m.status.LastDeliveryError = err.Error()
		if m.mode == ModeOnce {
			m.status.Latched = false
		}
	} else {
		m.status.Delivered++
		m.status.LastDeliveredAt = m.now()
		m.status.LastDeliveryError = ""
	}
	m.mu.Unlock()

	if err != nil {
		m.observe(OutcomeFailed)
		m.log.Warn().
			Err(err).
			Str("event", "alert_delivery_failed").
			Str("recipient", msg.Recipient).
			Str("total", total.StringFixed(2)).
			Msg("Alert delivery failed")
	} else {
		m.observe(OutcomeSent)
		m.log.Info().
			Str("recipient", msg.Recipient).
			Str("total", total.StringFixed(2)).
			Str("threshold", msg.Threshold.StringFixed(2)).
			Msg("Alert delivered")
	}

	return &msg
}

// Reset rearms a ModeOnce latch.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.status.Latched = false
	m.mu.Unlock()
}

// Status returns a snapshot of delivery state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) observe(outcome string) {
	if m.observer != nil {
		m.observer.ObserveAlert(outcome)
	}
}
