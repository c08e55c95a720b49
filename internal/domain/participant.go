package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxSpeakerLen = 64

var ErrSpeakerTooLong = errors.New("speaker name too long")

// Participant is one connected member of a call.
type Participant struct {
	ID      string `json:"id"`
	Speaker string `json:"speaker"`
}

// NewParticipant avoids raw literals in adapters and keeps construction
// obvious. An empty id gets a generated one; an empty speaker falls back
// to a guest label derived from the id.
func NewParticipant(id, speaker string) (*Participant, error) {
	if len(speaker) > MaxSpeakerLen {
		return nil, ErrSpeakerTooLong
	}
	if id == "" {
		id = uuid.NewString()
	}
	if speaker == "" {
		label := id
		if len(label) > 8 {
			label = label[:8]
		}
		speaker = "guest-" + label
	}
	return &Participant{ID: id, Speaker: speaker}, nil
}
