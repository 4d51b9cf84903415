// Package transport carries judge jobs in and results out over websockets.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codejudge/internal/common/http/middleware"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/service"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"
)

const (
	defaultWriteWait       = 10 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultMaxMessageBytes = 512 << 10
	defaultMaxCodeBytes    = 64 << 10

	detailMissingFields = "Missing lang, code, or problemId"
	detailBadJSON       = "Could not parse JSON"
	detailQueueFull     = "The judge queue is full. Try again later."
	detailUnavailable   = "The judge is not accepting jobs right now."
)

// Config controls websocket connections.
type Config struct {
	WriteWait       time.Duration `yaml:"writeWait"`
	PongWait        time.Duration `yaml:"pongWait"`
	PingPeriod      time.Duration `yaml:"pingPeriod"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes"`
	MaxCodeBytes    int           `yaml:"maxCodeBytes"`
	// AllowedOrigins restricts browser origins. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Enqueuer accepts jobs without blocking.
type Enqueuer interface {
	Enqueue(job service.Job) error
}

// Handler upgrades authenticated requests and feeds their messages to the queue.
type Handler struct {
	cfg      Config
	queue    Enqueuer
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler.
func NewHandler(cfg Config, queue Enqueuer) *Handler {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	h := &Handler{cfg: cfg, queue: queue}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Register mounts the websocket endpoint. guards run in order before the
// upgrade; the first one is expected to authenticate.
func (h *Handler) Register(r gin.IRoutes, guards ...gin.HandlerFunc) {
	handlers := append(append([]gin.HandlerFunc{}, guards...), h.ServeWS)
	r.GET("/ws", handlers...)
}

// ServeWS runs one connection until the client leaves. Jobs already queued
// for the connection observe the closed sink and skip their remaining work.
func (h *Handler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	logger.Info(ctx, "client connected")

	sink := newWSSink(conn, h.cfg.WriteWait)
	defer sink.markClosed()
	done := make(chan struct{})
	defer close(done)
	go h.keepalive(sink, done)

	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn(ctx, "websocket read failed", zap.Error(err))
			}
			logger.Info(ctx, "client disconnected")
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		req, detail := h.decode(data)
		if detail != "" {
			_ = sink.Send(ctx, model.FatalMessage{Error: model.FatalInvalidMessage, Detail: detail})
			continue
		}
		job := service.Job{UserID: userID, Lang: req.Lang, Code: req.Code, ProblemID: req.ProblemID, Sink: sink}
		if err := h.queue.Enqueue(job); err != nil {
			logger.Warn(ctx, "enqueue job failed", zap.Error(err))
			if appErr.Is(err, appErr.JudgeQueueFull) {
				_ = sink.Send(ctx, model.FatalMessage{Error: model.FatalQueueFull, Detail: detailQueueFull})
			} else {
				_ = sink.Send(ctx, model.FatalMessage{Error: model.FatalInternal, Detail: detailUnavailable})
			}
			continue
		}
		logger.Info(ctx, "job queued", zap.String("lang", req.Lang), zap.String("problem_id", req.ProblemID))
	}
}

// decode parses a job message. A non-empty detail describes why it was rejected.
func (h *Handler) decode(data []byte) (model.SubmitRequest, string) {
	var req model.SubmitRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, detailBadJSON
	}
	req.Lang = strings.TrimSpace(req.Lang)
	req.ProblemID = strings.TrimSpace(req.ProblemID)
	if req.Lang == "" || req.ProblemID == "" || strings.TrimSpace(req.Code) == "" {
		return req, detailMissingFields
	}
	if len(req.Code) > h.cfg.MaxCodeBytes {
		return req, fmt.Sprintf("Code exceeds %d bytes", h.cfg.MaxCodeBytes)
	}
	return req, ""
}

func (h *Handler) keepalive(sink *wsSink, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sink.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return middleware.OriginAllowed(origin, h.cfg.AllowedOrigins)
}
