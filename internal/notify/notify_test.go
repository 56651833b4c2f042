package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type mockMessageCreator struct {
	lastParams *twilioApi.CreateMessageParams
	err        error
}

func (m *mockMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return &twilioApi.ApiV2010Message{}, nil
}

func TestSendCrisisAlert(t *testing.T) {
	mock := &mockMessageCreator{}
	n := &TwilioNotifier{api: mock, from: "+15550001111", contact: "+15552223333"}

	if err := n.SendCrisisAlert(context.Background(), "s_abc"); err != nil {
		t.Fatalf("SendCrisisAlert failed: %v", err)
	}
	if mock.lastParams == nil {
		t.Fatal("no message created")
	}
	if got := mock.lastParams.To; got == nil || *got != "+15552223333" {
		t.Errorf("to = %v", got)
	}
	if body := mock.lastParams.Body; body == nil || !strings.Contains(*body, "s_abc") {
		t.Errorf("body missing session ID: %v", body)
	}
}

func TestSendCrisisAlertFailure(t *testing.T) {
	mock := &mockMessageCreator{err: errors.New("auth failure")}
	n := &TwilioNotifier{api: mock, from: "+1", contact: "+2"}
	if err := n.SendCrisisAlert(context.Background(), "s_x"); err == nil {
		t.Error("expected error from failed send")
	}
}

func TestNewTwilioNotifierRequiresConfig(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	t.Setenv("TWILIO_SUPPORT_CONTACT", "")
	if _, err := NewTwilioNotifier(); err == nil {
		t.Error("expected error with no credentials")
	}
}

func TestNoopNotifier(t *testing.T) {
	if err := NewNoopNotifier().SendCrisisAlert(context.Background(), "s_x"); err != nil {
		t.Errorf("noop notifier returned error: %v", err)
	}
}
