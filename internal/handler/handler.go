// Package handler exposes the check-in service over HTTP.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"checkin/internal/auth"
	"checkin/internal/board"
	"checkin/internal/quiz"
	"checkin/internal/roster"
	"checkin/internal/session"
)

// Options wires a Handler.
type Options struct {
	Log        *zap.SugaredLogger
	Issuer     auth.Issuer
	Flows      *quiz.Registry
	Sessions   session.Provider
	Roster     *roster.Service
	Board      *board.Service
	Typewriter quiz.Typewriter
	Metrics    *Metrics

	Batch        int
	PublicURL    string
	BoardRefresh time.Duration
	// WaitTimeout caps GET /v1/join?wait=1.
	WaitTimeout time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	Options
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
}

// New builds a Handler.
func New(opts Options) *Handler {
	if opts.Batch < 1 {
		opts.Batch = 1
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 15 * time.Second
	}
	return &Handler{
		Options: opts,
		log:     opts.Log.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origins are enforced by the CORS layer
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1", h.Metrics.Instrument())
	v1.POST("/sessions", h.createSession)
	v1.GET("/board", h.getBoard)
	v1.GET("/board/ws", h.streamBoard)

	s := v1.Group("", auth.RequireSession(h.Issuer))
	s.POST("/join", h.startJoin)
	s.GET("/join", h.getJoin)
	s.POST("/join/name", h.submitName)
	s.POST("/join/answer", h.answer)
	s.POST("/join/retry", h.retry)
	s.GET("/join/prompt", h.streamPrompt)
	s.GET("/me", h.me)
	s.POST("/me/leave", h.leave)

	admin := v1.Group("/admin")
	admin.GET("/teams", h.listTeams)
	admin.POST("/teams", h.createTeam)
	admin.GET("/teams/:id", h.getTeam)
	admin.PATCH("/teams/:id", h.updateTeam)
	admin.DELETE("/teams/:id", h.deleteTeam)
	admin.GET("/participants", h.listParticipants)
	admin.GET("/participants/:id", h.getParticipant)
	admin.PATCH("/participants/:id", h.moveParticipant)
	admin.DELETE("/participants/:id", h.deleteParticipant)
	admin.GET("/summary", h.summary)

	r.GET("/qr.png", h.qr)
}

// batchParam reads ?batch=, falling back to the configured batch.
func (h *Handler) batchParam(c *gin.Context) (int, error) {
	v := c.Query("batch")
	if v == "" {
		return h.Batch, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, invalid("batch must be a positive integer")
	}
	return n, nil
}
