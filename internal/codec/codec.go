// Package codec classifies inbound relay frames and encodes outbound events.
//
// The browser client multiplexes everything over one WebSocket: JSON control
// and chat messages plus opaque binary audio chunks. There is no framing
// discriminator on the wire, so classification is by content: a payload that
// parses as a JSON object is control or chat, anything else is audio. A binary
// audio chunk that happens to parse as a JSON object would be misclassified;
// this is a known limitation kept for wire compatibility with the client.
package codec

import (
	"bytes"
	"encoding/json"

	"github.com/YavorPtv/MedLink/internal/domain"
)

// Kind tells the session how to route one inbound frame.
type Kind int

const (
	KindAudio Kind = iota
	KindInit
	KindChat
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindInit:
		return "init"
	case KindChat:
		return "chat"
	default:
		return "unknown"
	}
}

// Init is the first frame a participant must send.
type Init struct {
	SessionID string `json:"sessionId"`
	Speaker   string `json:"speaker,omitempty"`
}

// Frame is one classified inbound message.
type Frame struct {
	Kind  Kind
	Init  *Init
	Chat  *domain.ChatMessage
	Audio []byte
}

const actionChat = "chat-message"

// probe pulls out just enough fields to classify a JSON payload.
type probe struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
}

// Classify sniffs one raw inbound message. The binary flag reflects the
// transport's message type: binary payloads are sniffed as-is, text frames
// are trimmed first. Either way the final word belongs to the parse
// attempt, since some clients send JSON control frames on binary messages.
func Classify(data []byte, binary bool) Frame {
	trimmed := data
	if !binary {
		trimmed = bytes.TrimSpace(data)
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Frame{Kind: KindAudio, Audio: data}
	}

	var p probe
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Frame{Kind: KindAudio, Audio: data}
	}

	switch {
	case p.Action == actionChat:
		var msg domain.ChatMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return Frame{Kind: KindUnknown}
		}
		return Frame{Kind: KindChat, Chat: &msg}
	case p.SessionID != "":
		var init Init
		if err := json.Unmarshal(trimmed, &init); err != nil {
			return Frame{Kind: KindUnknown}
		}
		return Frame{Kind: KindInit, Init: &init}
	default:
		return Frame{Kind: KindUnknown}
	}
}

// EncodeTranscript renders an outbound transcript line.
func EncodeTranscript(ev domain.TranscriptEvent) ([]byte, error) {
	return json.Marshal(ev)
}

type outboundChat struct {
	Type string `json:"type"`
	domain.ChatMessage
}

// EncodeChat renders an outbound chat relay frame.
func EncodeChat(msg domain.ChatMessage) ([]byte, error) {
	return json.Marshal(outboundChat{Type: actionChat, ChatMessage: msg})
}

// EncodeError renders the single error frame sent before closing a connection.
func EncodeError(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}
