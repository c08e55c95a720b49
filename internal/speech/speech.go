// Package speech streams decoded audio to an external recognizer and
// yields partial/final transcript events as they arrive.
package speech

import "context"

// Event is one recognition update. UtteranceID groups the partials and
// the final of a single utterance; a final for an id is emitted once and
// never revised.
type Event struct {
	Speaker     string
	Text        string
	IsPartial   bool
	UtteranceID string
}

// Config binds one recognition stream to a participant.
type Config struct {
	LanguageCode string
	SampleRateHz int
	Speaker      string
}

// Stream is one live recognition session. It is not restartable; a new
// session requires a new Stream.
type Stream interface {
	// SendAudio forwards one decoded PCM chunk. Chunks are pushed as
	// soon as they are available, no batching.
	SendAudio(chunk []byte) error
	// Events yields transcript events in arrival order. The channel is
	// closed when the service ends the stream; check Err afterwards.
	Events() <-chan Event
	Close() error
	Err() error
}

// Recognizer opens recognition streams.
type Recognizer interface {
	Start(ctx context.Context, cfg Config) (Stream, error)
}
