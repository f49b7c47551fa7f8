// Package messaging delivers outbound SMS for VantaLoop.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/vantaloop/VantaLoop/internal/util"
)

// MinRecipientDigits is the shortest phone number accepted after canonicalization.
const MinRecipientDigits = 6

// ErrInvalidRecipient is returned for recipients that cannot be canonicalized.
var ErrInvalidRecipient = errors.New("messaging: invalid recipient")

var nonDigits = regexp.MustCompile(`\D`)

// Sender sends a single text message.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// CanonicalizeRecipient strips everything but digits and returns the number in
// E.164 form with a leading "+".
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient cannot be empty", ErrInvalidRecipient)
	}
	digits := nonDigits.ReplaceAllString(recipient, "")
	if digits == "" {
		return "", fmt.Errorf("%w: no digits found in %q", ErrInvalidRecipient, util.MaskPhone(recipient))
	}
	if len(digits) < MinRecipientDigits {
		return "", fmt.Errorf("%w: %q is too short (minimum %d digits required)", ErrInvalidRecipient, util.MaskPhone(digits), MinRecipientDigits)
	}
	canonical := "+" + digits
	if canonical != recipient {
		slog.Debug("messaging.CanonicalizeRecipient: recipient canonicalized", "canonical", util.MaskPhone(canonical))
	}
	return canonical, nil
}

// CanonicalizeRecipients canonicalizes each recipient, dropping duplicates and
// logging the ones that are invalid.
func CanonicalizeRecipients(recipients []string) []string {
	seen := make(map[string]bool, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		c, err := CanonicalizeRecipient(r)
		if err != nil {
			slog.Warn("messaging.CanonicalizeRecipients: skipping recipient", "error", err)
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
