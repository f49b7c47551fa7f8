// Package util provides small helpers shared across VantaLoop components.
package util

import "strings"

// MaskPhone hides all but the last four characters of a phone number for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
