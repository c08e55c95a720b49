package domain

// ChatMessage is relayed between the members of a call, never stored.
// Field names match the browser client's wire format.
type ChatMessage struct {
	MeetingID  string `json:"meetingId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  string `json:"timestamp"`
}

// TranscriptEvent is one recognized utterance, partial or final.
// Partials are revisable; a final is immutable and emitted exactly once.
type TranscriptEvent struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"transcript"`
	IsPartial bool   `json:"isPartial"`
}
