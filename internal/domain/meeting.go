// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxMeetingIDLen = 64

var (
	ErrMeetingIDEmpty   = errors.New("meeting id empty")
	ErrMeetingIDTooLong = errors.New("meeting id too long")
)

// MeetingID identifies one call; every participant of the call
// initializes its relay connection with the same id.
type MeetingID string

// ParseMeetingID validates the raw id from an init frame.
func ParseMeetingID(raw string) (MeetingID, error) {
	if raw == "" {
		return "", ErrMeetingIDEmpty
	}
	if len(raw) > MaxMeetingIDLen {
		return "", ErrMeetingIDTooLong
	}
	return MeetingID(raw), nil
}
