package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YavorPtv/MedLink/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		binary   bool
		wantKind Kind
	}{
		{
			name:     "init frame",
			data:     []byte(`{"sessionId":"room-1","speaker":"Dr.Lee"}`),
			wantKind: KindInit,
		},
		{
			name:     "init frame without speaker",
			data:     []byte(`{"sessionId":"room-1"}`),
			wantKind: KindInit,
		},
		{
			name:     "chat frame",
			data:     []byte(`{"action":"chat-message","meetingId":"room-1","senderId":"u1","senderName":"Alice","text":"hi","timestamp":"t1"}`),
			wantKind: KindChat,
		},
		{
			name:     "unrecognized json object",
			data:     []byte(`{"action":"wave"}`),
			wantKind: KindUnknown,
		},
		{
			name:     "empty sessionId is not init",
			data:     []byte(`{"sessionId":""}`),
			wantKind: KindUnknown,
		},
		{
			name:     "binary audio chunk",
			data:     []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00, 0x01},
			binary:   true,
			wantKind: KindAudio,
		},
		{
			name:     "text that is not json",
			data:     []byte("not json at all"),
			wantKind: KindAudio,
		},
		{
			name:     "json array is audio",
			data:     []byte(`[1,2,3]`),
			binary:   true,
			wantKind: KindAudio,
		},
		{
			name:     "truncated json is audio",
			data:     []byte(`{"sessionId":"room`),
			wantKind: KindAudio,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.data, tt.binary)
			assert.Equal(t, tt.wantKind, f.Kind)
		})
	}
}

func TestClassify_InitPayload(t *testing.T) {
	f := Classify([]byte(`{"sessionId":"room-1","speaker":"Dr.Lee"}`), false)
	require.Equal(t, KindInit, f.Kind)
	require.NotNil(t, f.Init)
	assert.Equal(t, "room-1", f.Init.SessionID)
	assert.Equal(t, "Dr.Lee", f.Init.Speaker)
}

func TestClassify_ChatPayload(t *testing.T) {
	f := Classify([]byte(`{"action":"chat-message","meetingId":"room-1","senderId":"u1","senderName":"Alice","text":"hi","timestamp":"t1"}`), false)
	require.Equal(t, KindChat, f.Kind)
	require.NotNil(t, f.Chat)
	assert.Equal(t, "room-1", f.Chat.MeetingID)
	assert.Equal(t, "Alice", f.Chat.SenderName)
	assert.Equal(t, "hi", f.Chat.Text)
}

func TestClassify_AudioPreservesPayload(t *testing.T) {
	chunk := []byte{0x00, 0x01, 0x02, 0x03}
	f := Classify(chunk, true)
	require.Equal(t, KindAudio, f.Kind)
	assert.Equal(t, chunk, f.Audio)
}

func TestEncodeTranscript(t *testing.T) {
	b, err := EncodeTranscript(domain.TranscriptEvent{
		Speaker:   "Dr.Lee",
		Text:      "hello there",
		IsPartial: false,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"speaker":"Dr.Lee","transcript":"hello there","isPartial":false}`, string(b))
}

func TestEncodeChat(t *testing.T) {
	b, err := EncodeChat(domain.ChatMessage{
		MeetingID:  "room-1",
		SenderID:   "u1",
		SenderName: "Alice",
		Text:       "hi",
		Timestamp:  "t1",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat-message","meetingId":"room-1","senderId":"u1","senderName":"Alice","text":"hi","timestamp":"t1"}`, string(b))
}

func TestEncodeError(t *testing.T) {
	assert.JSONEq(t, `{"error":"init required"}`, string(EncodeError("init required")))
}
