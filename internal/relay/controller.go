package relay

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/YavorPtv/MedLink/internal/config"
	"github.com/YavorPtv/MedLink/internal/metrics"
	"github.com/YavorPtv/MedLink/internal/room"
	"github.com/YavorPtv/MedLink/internal/speech"
	"github.com/YavorPtv/MedLink/internal/transcode"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller accepts relay connections and hands each one to a fresh
// Session. It owns no per-session state.
type Controller struct {
	cfg        *config.Config
	registry   *room.Registry
	recognizer speech.Recognizer
	metrics    *metrics.Metrics
}

func NewController(cfg *config.Config, registry *room.Registry, recognizer speech.Recognizer, m *metrics.Metrics) *Controller {
	return &Controller{
		cfg:        cfg,
		registry:   registry,
		recognizer: recognizer,
		metrics:    m,
	}
}

// Registry exposes the room registry for read-only stats endpoints.
func (ctl *Controller) Registry() *room.Registry { return ctl.registry }

// HandleWS upgrades the request and services the session until the
// connection closes.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("ws upgrade")
		return
	}

	sid := uuid.NewString()
	log.Info().Str("module", "relay").Str("sid", sid).Str("remote", c.ClientIP()).Msg("new relay connection")

	if ctl.metrics != nil {
		ctl.metrics.SessionsTotal.Inc()
		ctl.metrics.SessionsActive.Inc()
		defer ctl.metrics.SessionsActive.Dec()
	}

	sess := NewSession(Params{
		ID:         sid,
		Conn:       ws,
		Registry:   ctl.registry,
		Recognizer: ctl.recognizer,
		NewTranscoder: func() Transcoder {
			return transcode.New(transcode.Config{
				BinaryPath:   ctl.cfg.Transcode.BinaryPath,
				SampleRate:   ctl.cfg.Transcode.SampleRate,
				Channels:     ctl.cfg.Transcode.Channels,
				DrainTimeout: ctl.cfg.Transcode.DrainTimeout,
			})
		},
		Metrics:      ctl.metrics,
		ClientToken:  c.GetString("client_token"),
		ReadLimit:    ctl.cfg.ReadLimit,
		PingPeriod:   ctl.cfg.PingPeriod,
		SendBuffer:   ctl.cfg.SendBuffer,
		LanguageCode: ctl.cfg.Speech.LanguageCode,
		SampleRateHz: ctl.cfg.Transcode.SampleRate,
	})
	sess.Run(ctx)
}
