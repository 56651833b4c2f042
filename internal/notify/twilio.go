// Package notify wraps the Twilio API for SMS crisis alerting.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Opts holds configuration options for the Twilio SMS client.
type Opts struct {
	AccountSID     string
	AuthToken      string
	From           string
	SupportContact string
}

// Option defines a configuration option for the Twilio SMS client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sending phone number.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithSupportContact sets the phone number that receives crisis alerts.
func WithSupportContact(to string) Option {
	return func(o *Opts) { o.SupportContact = to }
}

// messageCreator is the slice of the Twilio SDK we call, extracted for tests.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioNotifier sends crisis alerts as SMS through Twilio.
type TwilioNotifier struct {
	api     messageCreator
	from    string
	contact string
}

// NewTwilioNotifier creates a Twilio-backed notifier. Options fall back to
// the TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER, and
// TWILIO_SUPPORT_CONTACT environment variables.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.SupportContact == "" {
		cfg.SupportContact = os.Getenv("TWILIO_SUPPORT_CONTACT")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"SupportContact_set", cfg.SupportContact != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.SupportContact == "" {
		return nil, fmt.Errorf("from number and support contact must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &TwilioNotifier{
		api:     client.Api,
		from:    cfg.From,
		contact: cfg.SupportContact,
	}, nil
}

// SendCrisisAlert sends one SMS to the support contact. The body carries the
// session ID and a timestamp, nothing about the user or their messages.
func (n *TwilioNotifier) SendCrisisAlert(ctx context.Context, sessionID string) error {
	body := fmt.Sprintf("Crisis language detected in tapping session %s at %s. Please review.",
		sessionID, time.Now().UTC().Format(time.RFC3339))

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.contact)
	params.SetFrom(n.from)
	params.SetBody(body)

	if _, err := n.api.CreateMessage(params); err != nil {
		slog.Error("TwilioNotifier.SendCrisisAlert failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to send crisis alert for session %s: %w", sessionID, err)
	}
	slog.Info("TwilioNotifier.SendCrisisAlert sent", "sessionID", sessionID)
	return nil
}
