package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/vantaloop/VantaLoop/internal/util"
)

// messageCreator is the part of the Twilio REST API used to send SMS.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Opts holds Twilio configuration.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option configures the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// TwilioClient sends SMS through the Twilio REST API.
type TwilioClient struct {
	api  messageCreator
	from string
}

var _ Sender = (*TwilioClient)(nil)

// NewTwilioClient creates a TwilioClient. Account SID, auth token and sender
// number are all required.
func NewTwilioClient(opts ...Option) (*TwilioClient, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("messaging: account SID and auth token must be provided")
	}
	from, err := CanonicalizeRecipient(cfg.FromNumber)
	if err != nil {
		return nil, fmt.Errorf("messaging: from number: %w", err)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioClient{api: client.Api, from: from}, nil
}

// SendMessage sends body to the canonicalized recipient.
func (c *TwilioClient) SendMessage(ctx context.Context, to string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	canonicalTo, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(canonicalTo)
	params.SetFrom(c.from)
	params.SetBody(body)

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioClient.SendMessage failed", "to", util.MaskPhone(canonicalTo), "error", err)
		return fmt.Errorf("messaging: send to %s: %w", util.MaskPhone(canonicalTo), err)
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("TwilioClient.SendMessage: message sent", "to", util.MaskPhone(canonicalTo), "sid", sid)
	return nil
}

// SentMessage records one message accepted by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// MockClient is an in-memory Sender for tests and local runs without Twilio.
type MockClient struct {
	mu   sync.Mutex
	sent []SentMessage
	// Err, when set, is returned from every SendMessage call.
	Err error
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the messages sent so far.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
