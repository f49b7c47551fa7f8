package messaging

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

func TestCanonicalizeRecipient(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "+15551234567", false},
		{"15551234567", "+15551234567", false},
		{"+447700900123", "+447700900123", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizeRecipient(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRecipient) {
				t.Errorf("CanonicalizeRecipient(%q) error = %v, want ErrInvalidRecipient", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("CanonicalizeRecipient(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestCanonicalizeRecipient_ErrorMasksNumber(t *testing.T) {
	_, err := CanonicalizeRecipient("(123) 45")
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("error = %v, want ErrInvalidRecipient", err)
	}
	if strings.Contains(err.Error(), "12345") {
		t.Errorf("error %q exposes the full number", err)
	}
	if !strings.Contains(err.Error(), "*2345") {
		t.Errorf("error %q should carry the masked number", err)
	}
}

func TestCanonicalizeRecipients(t *testing.T) {
	got := CanonicalizeRecipients([]string{"+1 555 123 4567", "bad", "15551234567", "+44 7700 900123"})
	want := []string{"+15551234567", "+447700900123"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CanonicalizeRecipients = %v, want %v", got, want)
	}
}

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioClient_SendMessage(t *testing.T) {
	fc := &fakeCreator{}
	c := &TwilioClient{api: fc, from: "+15550000000"}
	if err := c.SendMessage(context.Background(), "1 (555) 123-4567", "Weekly digest"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(fc.params) != 1 {
		t.Fatalf("expected one CreateMessage call, got %d", len(fc.params))
	}
	p := fc.params[0]
	if *p.To != "+15551234567" || *p.From != "+15550000000" || *p.Body != "Weekly digest" {
		t.Errorf("unexpected params to=%s from=%s body=%s", *p.To, *p.From, *p.Body)
	}
}

func TestTwilioClient_SendMessageErrors(t *testing.T) {
	fc := &fakeCreator{err: errors.New("21211 invalid number")}
	c := &TwilioClient{api: fc, from: "+15550000000"}
	if err := c.SendMessage(context.Background(), "+15551234567", "x"); err == nil {
		t.Error("expected API error to propagate")
	}
	if err := c.SendMessage(context.Background(), "12", "x"); !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("expected ErrInvalidRecipient, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.SendMessage(ctx, "+15551234567", "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewTwilioClient_Validation(t *testing.T) {
	if _, err := NewTwilioClient(WithAccountSID("AC1")); err == nil {
		t.Error("expected error without auth token")
	}
	if _, err := NewTwilioClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewTwilioClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromNumber("+1 555 000 0000"))
	if err != nil {
		t.Fatalf("NewTwilioClient: %v", err)
	}
	if c.from != "+15550000000" {
		t.Errorf("from = %q", c.from)
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	_ = m.SendMessage(context.Background(), "+1555", "hi")
	if got := m.Sent(); len(got) != 1 || got[0].Body != "hi" {
		t.Errorf("Sent = %+v", got)
	}
	m.Err = errors.New("down")
	if err := m.SendMessage(context.Background(), "+1555", "hi"); err == nil {
		t.Error("expected configured error")
	}
}
