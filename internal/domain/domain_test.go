package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMeetingID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "valid", raw: "room-1"},
		{name: "empty", raw: "", wantErr: ErrMeetingIDEmpty},
		{name: "too long", raw: strings.Repeat("x", MaxMeetingIDLen+1), wantErr: ErrMeetingIDTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseMeetingID(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, MeetingID(tt.raw), id)
		})
	}
}

func TestNewParticipant(t *testing.T) {
	p, err := NewParticipant("", "Dr.Lee")
	require.NoError(t, err)
	assert.Equal(t, "Dr.Lee", p.Speaker)
	assert.NotEmpty(t, p.ID)
}

func TestNewParticipant_KeepsProvidedID(t *testing.T) {
	p, err := NewParticipant("tok-1234", "Dr.Lee")
	require.NoError(t, err)
	assert.Equal(t, "tok-1234", p.ID)
}

func TestNewParticipant_GuestFallback(t *testing.T) {
	p, err := NewParticipant("", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.Speaker, "guest-"))

	p, err = NewParticipant("tok", "")
	require.NoError(t, err)
	assert.Equal(t, "guest-tok", p.Speaker)
}

func TestNewParticipant_TooLong(t *testing.T) {
	_, err := NewParticipant("", strings.Repeat("x", MaxSpeakerLen+1))
	assert.ErrorIs(t, err, ErrSpeakerTooLong)
}
