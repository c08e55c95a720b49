// Package transcode converts the browser's compressed capture stream into
// raw PCM by piping it through one ffmpeg process per session.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("transcoder closed")

const (
	readChunkSize       = 4096
	defaultDrainTimeout = 3 * time.Second
)

type Config struct {
	BinaryPath   string
	SampleRate   int
	Channels     int
	DrainTimeout time.Duration
}

// Transcoder owns one decoding subprocess. Feed writes compressed chunks
// to its stdin; Output yields decoded PCM as it becomes available. A
// Transcoder is single-use: once closed or crashed, create a new one.
type Transcoder struct {
	cfg   Config
	stdin io.WriteCloser
	out   chan []byte
	done  chan struct{}
	quit  chan struct{}

	mu     sync.Mutex
	err    error
	closed bool

	closeOnce sync.Once

	// newCmd is swapped out by tests to run a stand-in process.
	newCmd func(ctx context.Context) *exec.Cmd
	cmd    *exec.Cmd
}

func New(cfg Config) *Transcoder {
	if cfg.DrainTimeout <= 0 {
		// A zero timeout would kill the subprocess before it can drain.
		cfg.DrainTimeout = defaultDrainTimeout
	}
	t := &Transcoder{
		cfg:  cfg,
		out:  make(chan []byte, 16),
		done: make(chan struct{}),
		quit: make(chan struct{}),
	}
	t.newCmd = func(ctx context.Context) *exec.Cmd {
		return exec.CommandContext(ctx, cfg.BinaryPath,
			"-hide_banner", "-loglevel", "error",
			"-i", "pipe:0",
			"-f", "s16le",
			"-ar", strconv.Itoa(cfg.SampleRate),
			"-ac", strconv.Itoa(cfg.Channels),
			"pipe:1",
		)
	}
	return t
}

// Start spawns the subprocess and begins pumping its stdout into Output.
func (t *Transcoder) Start(ctx context.Context) error {
	cmd := t.newCmd(ctx)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("transcoder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transcoder stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("transcoder spawn: %w", err)
	}
	t.cmd = cmd
	t.stdin = stdin

	go t.readLoop(stdout)
	return nil
}

// readLoop drains subprocess stdout until EOF, then reaps the process.
// Output is closed last so the consumer observes every decoded byte
// before learning the stream ended.
func (t *Transcoder) readLoop(stdout io.Reader) {
	defer close(t.done)
	defer close(t.out)

	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case t.out <- chunk:
			case <-t.quit:
				// consumer is gone; keep draining to reach EOF
			}
		}
		if err != nil {
			break
		}
	}

	if err := t.cmd.Wait(); err != nil {
		t.setErr(fmt.Errorf("transcoder exited: %w", err))
		log.Warn().Err(err).Str("module", "transcode").Msg("subprocess exited abnormally")
	}
}

// Feed writes one compressed chunk to the subprocess.
func (t *Transcoder) Feed(chunk []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	if _, err := t.stdin.Write(chunk); err != nil {
		err = fmt.Errorf("transcoder feed: %w", err)
		t.setErr(err)
		return err
	}
	return nil
}

// Output yields decoded PCM chunks. The channel is closed when the
// subprocess exits, cleanly or not; check Err afterwards.
func (t *Transcoder) Output() <-chan []byte { return t.out }

// Close stops the input side and lets the subprocess drain, bounded by
// the configured drain timeout, after which the process is killed.
func (t *Transcoder) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		if t.stdin != nil {
			_ = t.stdin.Close()
		}
		if t.cmd == nil {
			close(t.quit)
			close(t.done)
			close(t.out)
			return
		}

		select {
		case <-t.done:
			close(t.quit)
		case <-time.After(t.cfg.DrainTimeout):
			log.Warn().Str("module", "transcode").Dur("timeout", t.cfg.DrainTimeout).Msg("drain timeout, killing subprocess")
			close(t.quit)
			_ = t.cmd.Process.Kill()
			<-t.done
		}
	})
	return t.Err()
}

// Err reports the first fatal subprocess error, if any.
func (t *Transcoder) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Transcoder) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}
