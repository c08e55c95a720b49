package speech

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/rs/zerolog/log"
)

// TranscribeRecognizer drives AWS Transcribe streaming. One instance is
// shared by all sessions; each Start opens an independent stream.
type TranscribeRecognizer struct {
	client *transcribestreaming.Client
}

func NewTranscribeRecognizer(ctx context.Context, region string) (*TranscribeRecognizer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &TranscribeRecognizer{client: transcribestreaming.NewFromConfig(awsCfg)}, nil
}

func (r *TranscribeRecognizer) Start(ctx context.Context, cfg Config) (Stream, error) {
	out, err := r.client.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(cfg.LanguageCode),
		MediaEncoding:        types.MediaEncodingPcm,
		MediaSampleRateHertz: aws.Int32(int32(cfg.SampleRateHz)),
	})
	if err != nil {
		return nil, fmt.Errorf("start stream transcription: %w", err)
	}

	s := &transcribeStream{
		ctx:     ctx,
		es:      out.GetStream(),
		events:  make(chan Event, 16),
		speaker: cfg.Speaker,
	}
	go s.readLoop()
	return s, nil
}

type transcribeStream struct {
	ctx     context.Context
	es      *transcribestreaming.StartStreamTranscriptionEventStream
	events  chan Event
	speaker string

	mu  sync.Mutex
	err error
}

func (s *transcribeStream) SendAudio(chunk []byte) error {
	// The SDK serializes asynchronously, so hand it its own copy.
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	err := s.es.Send(s.ctx, &types.AudioStreamMemberAudioEvent{
		Value: types.AudioEvent{AudioChunk: buf},
	})
	if err != nil {
		err = fmt.Errorf("send audio: %w", err)
		s.setErr(err)
	}
	return err
}

func (s *transcribeStream) Events() <-chan Event { return s.events }

func (s *transcribeStream) Close() error {
	return s.es.Close()
}

func (s *transcribeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *transcribeStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// readLoop converts service results into Events. Transcribe revises a
// result in place while IsPartial is true and marks the last revision
// final, keyed by ResultId.
func (s *transcribeStream) readLoop() {
	defer close(s.events)

	for raw := range s.es.Events() {
		te, ok := raw.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok {
			continue
		}
		if te.Value.Transcript == nil {
			continue
		}
		for _, result := range te.Value.Transcript.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			text := aws.ToString(result.Alternatives[0].Transcript)
			if text == "" {
				continue
			}
			s.events <- Event{
				Speaker:     s.speaker,
				Text:        text,
				IsPartial:   result.IsPartial,
				UtteranceID: aws.ToString(result.ResultId),
			}
		}
	}

	if err := s.es.Err(); err != nil {
		s.setErr(fmt.Errorf("transcribe stream: %w", err))
		log.Warn().Err(err).Str("module", "speech").Str("speaker", s.speaker).Msg("recognition stream failed")
	}
}
