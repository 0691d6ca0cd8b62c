package alert

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wneessen/go-mail"
)

func mustAlert(t *testing.T, threshold string) *Alert {
	t.Helper()
	a, err := New(decimal.RequireFromString(threshold), "me@example.com")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestEvaluate(t *testing.T) {
	a := mustAlert(t, "3000")

	tests := []struct {
		total string
		fires bool
	}{
		{"0", false},
		{"2999.99", false},
		{"3000", false},
		{"3000.00", false},
		{"3000.01", true},
		{"3500", true},
	}

	for _, tt := range tests {
		t.Run(tt.total, func(t *testing.T) {
			_, fired := a.Evaluate(decimal.RequireFromString(tt.total))
			if fired != tt.fires {
				t.Errorf("Evaluate(%s) fired = %v, want %v", tt.total, fired, tt.fires)
			}
		})
	}
}

func TestEvaluate_MessageText(t *testing.T) {
	a := mustAlert(t, "3000")

	msg, fired := a.Evaluate(decimal.RequireFromString("3500"))
	if !fired {
		t.Fatal("expected alert to fire")
	}
	if !strings.Contains(msg.Text, "3000") {
		t.Errorf("message should mention threshold: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "3500.00") {
		t.Errorf("message should mention total with two decimals: %q", msg.Text)
	}
	want := "Alert: Total spending exceeds the monthly threshold of RM3000.00! Current total spending: RM3500.00"
	if msg.Text != want {
		t.Errorf("Text = %q, want %q", msg.Text, want)
	}
	if msg.Subject != DefaultSubject || msg.Recipient != "me@example.com" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	a := mustAlert(t, "100")
	total := decimal.RequireFromString("150.5")

	first, _ := a.Evaluate(total)
	second, _ := a.Evaluate(total)
	if first.Text != second.Text {
		t.Error("Evaluate should return the same result for the same input")
	}
}

func TestNew_RejectsNegativeThreshold(t *testing.T) {
	if _, err := New(decimal.NewFromInt(-1), ""); err == nil {
		t.Error("expected error for negative threshold")
	}
}

func TestWithCurrency(t *testing.T) {
	a, err := New(decimal.NewFromInt(10), "", WithCurrency("$"))
	if err != nil {
		t.Fatal(err)
	}
	msg, _ := a.Evaluate(decimal.NewFromInt(11))
	if !strings.Contains(msg.Text, "$10.00") || !strings.Contains(msg.Text, "$11.00") {
		t.Errorf("Text = %q", msg.Text)
	}
}

func TestMessageBody(t *testing.T) {
	msg := Message{Text: "Alert: over"}
	body := msg.Body()
	if !strings.HasPrefix(body, "Dear User,\n\nAlert: over\n\n") {
		t.Errorf("unexpected body start: %q", body)
	}
	if !strings.HasSuffix(body, "Smart Budgeting App Team") {
		t.Errorf("unexpected body end: %q", body)
	}
}

// recordingNotifier captures delivered messages and can be told to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (r *recordingNotifier) Notify(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type outcomeCounter struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *outcomeCounter) ObserveAlert(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

func TestMonitor_EveryMode(t *testing.T) {
	n := &recordingNotifier{}
	m := NewMonitor(mustAlert(t, "3000"), n)
	ctx := context.Background()

	if msg := m.Check(ctx, decimal.RequireFromString("2999.99")); msg != nil {
		t.Errorf("unexpected alert below threshold: %+v", msg)
	}
	for i := 0; i < 3; i++ {
		if msg := m.Check(ctx, decimal.RequireFromString("3025.90")); msg == nil {
			t.Fatalf("check %d: expected alert", i)
		}
	}
	if n.count() != 3 {
		t.Errorf("delivered %d alerts, want 3", n.count())
	}
	if st := m.Status(); st.Delivered != 3 || st.Mode != ModeEvery {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestMonitor_OnceModeLatches(t *testing.T) {
	n := &recordingNotifier{}
	obs := &outcomeCounter{}
	m := NewMonitor(mustAlert(t, "100"), n, WithMode(ModeOnce), WithObserver(obs))
	ctx := context.Background()

	if m.Check(ctx, decimal.NewFromInt(150)) == nil {
		t.Fatal("expected first crossing to fire")
	}
	if m.Check(ctx, decimal.NewFromInt(200)) != nil {
		t.Error("expected latch to suppress second alert")
	}
	if n.count() != 1 {
		t.Fatalf("delivered %d, want 1", n.count())
	}

	// Dropping back below rearms the latch.
	m.Check(ctx, decimal.NewFromInt(50))
	if m.Status().Latched {
		t.Error("latch should be cleared below threshold")
	}
	if m.Check(ctx, decimal.NewFromInt(120)) == nil {
		t.Error("expected alert after re-crossing")
	}
	if n.count() != 2 {
		t.Errorf("delivered %d, want 2", n.count())
	}
	if obs.outcomes[OutcomeSuppressed] != 1 || obs.outcomes[OutcomeSent] != 2 {
		t.Errorf("outcomes = %v", obs.outcomes)
	}

	m.Reset()
	if m.Status().Latched {
		t.Error("Reset should clear the latch")
	}
}

func TestMonitor_SwallowsTransportErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	n := &recordingNotifier{err: &domain.TransportError{Transport: "smtp", Err: errors.New("connection refused")}}
	obs := &outcomeCounter{}
	m := NewMonitor(mustAlert(t, "10"), n,
		WithMode(ModeOnce),
		WithLogger(zerolog.New(buf)),
		WithObserver(obs),
	)

	msg := m.Check(context.Background(), decimal.NewFromInt(20))
	if msg == nil {
		t.Fatal("alert should still be reported when delivery fails")
	}

	st := m.Status()
	if st.Failed != 1 || !strings.Contains(st.LastDeliveryError, "connection refused") {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.Latched {
		t.Error("failed delivery should not hold the latch")
	}
	if !strings.Contains(buf.String(), "alert_delivery_failed") {
		t.Errorf("expected structured failure event, got: %s", buf.String())
	}
	if obs.outcomes[OutcomeFailed] != 1 {
		t.Errorf("outcomes = %v", obs.outcomes)
	}

	n.err = nil
	if m.Check(context.Background(), decimal.NewFromInt(20)) == nil || n.count() != 1 {
		t.Error("expected redelivery after transport recovers")
	}
}

func TestSMTPNotifier_BuildsMessage(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPConfig{
		Host:     "smtp.example.com",
		Username: "sender@example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("NewSMTPNotifier: %v", err)
	}

	var captured *mail.Msg
	n.send = func(ctx context.Context, m *mail.Msg) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the send context")
		}
		captured = m
		return nil
	}

	a := mustAlert(t, "3000")
	msg, _ := a.Evaluate(decimal.NewFromInt(3500))
	if err := n.Notify(context.Background(), msg); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if captured == nil {
		t.Fatal("expected message to be sent")
	}
	rcpts, err := captured.GetRecipients()
	if err != nil || len(rcpts) != 1 || rcpts[0] != "me@example.com" {
		t.Errorf("recipients = %v, %v", rcpts, err)
	}
	if subj := captured.GetGenHeader(mail.HeaderSubject); len(subj) != 1 || subj[0] != DefaultSubject {
		t.Errorf("subject = %v", subj)
	}

	var out bytes.Buffer
	if _, err := captured.WriteTo(&out); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.Contains(out.String(), "Dear User,") {
		t.Errorf("body missing greeting: %s", out.String())
	}
}

func TestSMTPNotifier_WrapsSendErrors(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Username: "a@example.com", Password: "x"})
	if err != nil {
		t.Fatal(err)
	}
	n.send = func(ctx context.Context, m *mail.Msg) error {
		return errors.New("535 authentication failed")
	}

	msg, _ := mustAlert(t, "1").Evaluate(decimal.NewFromInt(2))
	err = n.Notify(context.Background(), msg)

	var terr *domain.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.Transport != "smtp" {
		t.Errorf("Transport = %q", terr.Transport)
	}
}

func TestSMTPNotifier_RequiresRecipient(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Username: "a@example.com", Password: "x"})
	if err != nil {
		t.Fatal(err)
	}
	var terr *domain.TransportError
	if err := n.Notify(context.Background(), Message{Text: "x"}); !errors.As(err, &terr) {
		t.Errorf("expected TransportError, got %v", err)
	}
}

func TestNewSMTPNotifier_Validation(t *testing.T) {
	if _, err := NewSMTPNotifier(SMTPConfig{Username: "a", Password: "b"}); err == nil {
		t.Error("expected error without host")
	}
	if _, err := NewSMTPNotifier(SMTPConfig{Host: "h"}); err == nil {
		t.Error("expected error without credentials")
	}
}
