package webhook

import (
	"fmt"
	"html"
	"log/slog"

	"github.com/twilio/twilio-go/twiml"
)

// fallbackEnvelope is rendered once at startup so a reply can always be sent,
// even if rendering the real reply fails.
var fallbackEnvelope string

func init() {
	var err error
	fallbackEnvelope, err = renderMessage(DefaultErrorReply)
	if err != nil {
		fallbackEnvelope = `<?xml version="1.0" encoding="UTF-8"?><Response><Message>` +
			html.EscapeString(DefaultErrorReply) + `</Message></Response>`
	}
}

func renderMessage(text string) (string, error) {
	doc, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: text}})
	if err != nil {
		return "", fmt.Errorf("render twiml: %w", err)
	}
	return doc, nil
}

// RenderReply wraps text in a TwiML <Response><Message> envelope. Empty text
// and render failures produce the pre-rendered apology envelope.
func RenderReply(text string) string {
	if text == "" {
		return fallbackEnvelope
	}
	doc, err := renderMessage(text)
	if err != nil {
		slog.Error("webhook.RenderReply: falling back to static envelope", "error", err)
		return fallbackEnvelope
	}
	return doc
}
