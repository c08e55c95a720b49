package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/YavorPtv/MedLink/internal/codec"
	"github.com/YavorPtv/MedLink/internal/domain"
	"github.com/YavorPtv/MedLink/internal/metrics"
	"github.com/YavorPtv/MedLink/internal/room"
	"github.com/YavorPtv/MedLink/internal/speech"
)

// State is the session lifecycle. The only transitions are
// AwaitingInit -> Active -> Closed and AwaitingInit -> Closed.
type State int

const (
	StateAwaitingInit State = iota
	StateActive
	StateClosed
)

// Conn is an indirection over *websocket.Conn to ease testing.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Transcoder is the session-facing side of the audio decoding pipeline.
type Transcoder interface {
	Start(ctx context.Context) error
	Feed(chunk []byte) error
	Output() <-chan []byte
	Close() error
	Err() error
}

const writeWait = 5 * time.Second

// Params wires one Session to its collaborators.
type Params struct {
	ID            string
	Conn          Conn
	Registry      *room.Registry
	Recognizer    speech.Recognizer
	NewTranscoder func() Transcoder
	Metrics       *metrics.Metrics

	// ClientToken is the browser's stable participant token; it becomes
	// the chat sender id when the client provides none. Empty for
	// clients without the cookie.
	ClientToken string

	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	LanguageCode string
	SampleRateHz int
}

// Session owns one participant's connection for its whole lifetime: the
// init handshake, frame demultiplexing, the transcoder -> recognizer
// pipeline, and teardown. Nothing else may touch its resources.
type Session struct {
	id   string
	conn Conn
	p    Params

	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	meetingID   domain.MeetingID
	participant *domain.Participant
	lastFinal   string

	transcoder Transcoder
	stream     speech.Stream

	closeOnce sync.Once
	failOnce  sync.Once
}

func NewSession(p Params) *Session {
	if p.SendBuffer <= 0 {
		p.SendBuffer = 64
	}
	return &Session{
		id:   p.ID,
		conn: p.Conn,
		p:    p,
		send: make(chan []byte, p.SendBuffer),
	}
}

// ID implements room.Member.
func (s *Session) ID() string { return s.id }

// Deliver implements room.Member: broadcast payloads are queued onto the
// session's single outbound writer, preserving FIFO order with the
// session's own frames.
func (s *Session) Deliver(payload []byte) error {
	return s.trySend(payload)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run services the connection until it closes. It must be called exactly
// once and blocks for the session's lifetime.
func (s *Session) Run(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.writePump()

	s.readLoop()
	s.teardown()
	s.wg.Wait()
}

// readLoop pulls frames off the wire and dispatches by classified kind.
// It is the sole reader, so session state transitions are serialized.
func (s *Session) readLoop() {
	if s.p.ReadLimit > 0 {
		s.conn.SetReadLimit(s.p.ReadLimit)
	}
	pongWait := s.pongWait()
	if pongWait > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "relay").Str("sid", s.id).Msg("read loop done")
			return
		}
		frame := codec.Classify(data, mt == websocket.BinaryMessage)
		s.countFrame(frame.Kind)
		if !s.dispatch(frame) {
			return
		}
	}
}

// dispatch routes one inbound frame; false means the session must close.
func (s *Session) dispatch(frame codec.Frame) bool {
	switch s.State() {
	case StateAwaitingInit:
		if frame.Kind != codec.KindInit {
			log.Warn().Str("module", "relay").Str("sid", s.id).Str("kind", frame.Kind.String()).Msg("frame before init")
			s.fail("session not initialized", true)
			return false
		}
		if err := s.handleInit(frame.Init); err != nil {
			s.fail(err.Error(), true)
			return false
		}
		return true

	case StateActive:
		switch frame.Kind {
		case codec.KindChat:
			s.handleChat(*frame.Chat)
		case codec.KindAudio:
			s.handleAudio(frame.Audio)
		case codec.KindInit, codec.KindUnknown:
			// Re-inits and unrecognized control objects are ignored.
			log.Debug().Str("module", "relay").Str("sid", s.id).Str("kind", frame.Kind.String()).Msg("ignoring frame")
		}
		return true

	default:
		return false
	}
}

// handleInit performs the one legal AwaitingInit transition: bind the
// meeting, spin up the audio pipeline, then join the room.
func (s *Session) handleInit(init *codec.Init) error {
	meetingID, err := domain.ParseMeetingID(init.SessionID)
	if err != nil {
		return err
	}
	participant, err := domain.NewParticipant(s.p.ClientToken, init.Speaker)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.meetingID = meetingID
	s.participant = participant
	s.mu.Unlock()

	transcoder := s.p.NewTranscoder()
	if err := transcoder.Start(s.ctx); err != nil {
		return err
	}
	s.transcoder = transcoder

	stream, err := s.p.Recognizer.Start(s.ctx, speech.Config{
		LanguageCode: s.p.LanguageCode,
		SampleRateHz: s.p.SampleRateHz,
		Speaker:      participant.Speaker,
	})
	if err != nil {
		_ = transcoder.Close()
		return err
	}
	s.stream = stream

	// Active only once the whole pipeline is up, and in the room only
	// once Active: a session never receives room traffic before it can
	// legally be written to.
	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()
	s.p.Registry.Join(meetingID, s)
	log.Info().Str("module", "relay").Str("sid", s.id).Str("meeting", string(meetingID)).Str("speaker", participant.Speaker).Msg("session active")

	s.wg.Add(2)
	go s.bridgeLoop()
	go s.eventLoop()
	return nil
}

// bridgeLoop pumps decoded PCM from the transcoder into the recognizer.
func (s *Session) bridgeLoop() {
	defer s.wg.Done()
	for chunk := range s.transcoder.Output() {
		if err := s.stream.SendAudio(chunk); err != nil {
			s.failPipeline(err)
			return
		}
	}
	if err := s.transcoder.Err(); err != nil {
		s.failPipeline(err)
	}
}

// eventLoop forwards transcript events to the speaker and fans finals
// out to the rest of the room.
func (s *Session) eventLoop() {
	defer s.wg.Done()
	for ev := range s.stream.Events() {
		s.handleTranscript(ev)
	}
	if err := s.stream.Err(); err != nil {
		s.failPipeline(err)
	}
}

func (s *Session) handleTranscript(ev speech.Event) {
	s.mu.Lock()
	if ev.IsPartial && ev.UtteranceID != "" && ev.UtteranceID == s.lastFinal {
		// Stale revision of an utterance already finalized.
		s.mu.Unlock()
		return
	}
	if !ev.IsPartial {
		s.lastFinal = ev.UtteranceID
	}
	meetingID := s.meetingID
	s.mu.Unlock()

	payload, err := codec.EncodeTranscript(domain.TranscriptEvent{
		Speaker:   ev.Speaker,
		Text:      ev.Text,
		IsPartial: ev.IsPartial,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Str("sid", s.id).Msg("encode transcript")
		return
	}

	// The speaker always sees their own events, partials included.
	if err := s.trySend(payload); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("sid", s.id).Msg("transcript to own connection dropped")
	}
	s.countTranscript(ev.IsPartial)

	if !ev.IsPartial {
		res := s.p.Registry.Broadcast(meetingID, payload, s.id)
		s.countBroadcast(res)
	}
}

func (s *Session) handleChat(msg domain.ChatMessage) {
	s.mu.Lock()
	meetingID := s.meetingID
	participant := s.participant
	s.mu.Unlock()

	msg.MeetingID = string(meetingID)
	if msg.SenderID == "" {
		msg.SenderID = participant.ID
	}
	if msg.SenderName == "" {
		msg.SenderName = participant.Speaker
	}

	payload, err := codec.EncodeChat(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Str("sid", s.id).Msg("encode chat")
		return
	}
	// Sender is excluded: the originating client echoes locally.
	res := s.p.Registry.Broadcast(meetingID, payload, s.id)
	s.countBroadcast(res)
}

func (s *Session) handleAudio(chunk []byte) {
	if s.p.Metrics != nil {
		s.p.Metrics.AudioBytesTotal.Add(float64(len(chunk)))
	}
	if err := s.transcoder.Feed(chunk); err != nil {
		s.failPipeline(err)
	}
}

// fail sends the single error frame and schedules teardown. protocol
// distinguishes ProtocolError from PipelineError for metrics only; both
// are terminal for this session and this session alone.
func (s *Session) fail(msg string, protocol bool) {
	s.failOnce.Do(func() {
		if s.State() == StateClosed {
			return
		}
		if s.p.Metrics != nil {
			if protocol {
				s.p.Metrics.ProtocolErrors.Inc()
			} else {
				s.p.Metrics.PipelineErrors.Inc()
			}
		}
		_ = s.trySend(codec.EncodeError(msg))
		// Closing the transport unblocks the read loop, which owns the
		// teardown sequence.
		go s.teardown()
	})
}

func (s *Session) failPipeline(err error) {
	log.Error().Err(err).Str("module", "relay").Str("sid", s.id).Msg("pipeline failure")
	s.fail("transcription pipeline failed", false)
}

// teardown is the ordered, best-effort close sequence: stop the decode
// pipeline, close the recognition stream, leave the room, drop the
// connection. Every step runs regardless of earlier failures.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		if s.transcoder != nil {
			if err := s.transcoder.Close(); err != nil {
				log.Warn().Err(err).Str("module", "relay").Str("sid", s.id).Msg("transcoder close")
			}
		}
		if s.stream != nil {
			if err := s.stream.Close(); err != nil {
				log.Warn().Err(err).Str("module", "relay").Str("sid", s.id).Msg("recognition stream close")
			}
		}
		s.p.Registry.Leave(s)

		// Cancel last: the write pump flushes queued frames (including a
		// pending error frame) before closing the connection.
		s.cancel()
		log.Info().Str("module", "relay").Str("sid", s.id).Msg("session closed")
	})
}

// writePump is the single writer on the connection; everything outbound
// funnels through the send channel, so the session's own frames stay in
// FIFO order. On shutdown it flushes what is queued, then closes.
func (s *Session) writePump() {
	defer s.wg.Done()
	defer s.conn.Close()

	var ticker *time.Ticker
	var pings <-chan time.Time
	if s.p.PingPeriod > 0 {
		ticker = time.NewTicker(s.p.PingPeriod)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case <-s.ctx.Done():
			s.flush()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-s.send:
			if !s.write(data) {
				return
			}
		case <-pings:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) flush() {
	for {
		select {
		case data := <-s.send:
			if !s.write(data) {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(data []byte) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Str("module", "relay").Str("sid", s.id).Msg("write failed")
		return false
	}
	return true
}

func (s *Session) trySend(data []byte) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (s *Session) pongWait() time.Duration {
	if s.p.PingPeriod <= 0 {
		return 0
	}
	return s.p.PingPeriod * 10 / 9
}

func (s *Session) countFrame(kind codec.Kind) {
	if s.p.Metrics != nil {
		s.p.Metrics.FramesTotal.WithLabelValues(kind.String()).Inc()
	}
}

func (s *Session) countTranscript(partial bool) {
	if s.p.Metrics == nil {
		return
	}
	if partial {
		s.p.Metrics.Transcripts.WithLabelValues("partial").Inc()
	} else {
		s.p.Metrics.Transcripts.WithLabelValues("final").Inc()
	}
}

func (s *Session) countBroadcast(res room.DeliveryResult) {
	if s.p.Metrics == nil {
		return
	}
	s.p.Metrics.Broadcasts.Inc()
	if res.Failed > 0 {
		s.p.Metrics.DeliveryErrors.Add(float64(res.Failed))
	}
}
