package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"checkin/internal/auth"
	"checkin/internal/roster"
	"checkin/internal/session"
)

type memberView struct {
	roster.Participant
	RegisteredAgo string `json:"registered_ago"`
}

func viewOf(p roster.Participant) memberView {
	return memberView{Participant: p, RegisteredAgo: humanize.Time(p.RegisteredAt)}
}

// me returns the participant stored in the session with their team and
// teammates.
func (h *Handler) me(c *gin.Context) {
	ctx := c.Request.Context()
	store := h.Sessions.For(auth.SessionID(c))
	id, ok, err := session.LoadIdentity(ctx, store)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !ok {
		h.writeError(c, roster.ErrNotFound)
		return
	}

	p, err := h.Roster.GetParticipant(ctx, id.ID)
	if errors.Is(err, roster.ErrNotFound) {
		if cerr := session.ClearIdentity(ctx, store); cerr != nil {
			h.log.Warnw("session clear failed", "error", cerr)
		}
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	team, err := h.Roster.TeamByName(ctx, p.Batch, p.Team)
	if err != nil && !errors.Is(err, roster.ErrNotFound) {
		h.writeError(c, err)
		return
	}
	members, err := h.Roster.ListParticipants(ctx, p.Batch, p.Team)
	if err != nil {
		h.writeError(c, err)
		return
	}
	views := make([]memberView, 0, len(members))
	for _, m := range members {
		views = append(views, viewOf(m))
	}
	if team.Name == "" {
		team = roster.Team{Name: p.Team, Batch: p.Batch}
	}

	c.JSON(http.StatusOK, gin.H{
		"participant": viewOf(p),
		"team":        team,
		"teammates":   views,
	})
}

// leave forgets the participant of this session and restarts the flow.
func (h *Handler) leave(c *gin.Context) {
	sid := auth.SessionID(c)
	if err := session.ClearIdentity(c.Request.Context(), h.Sessions.For(sid)); err != nil {
		h.writeError(c, err)
		return
	}
	h.Flows.Reset(sid)
	c.Status(http.StatusNoContent)
}

func (h *Handler) getBoard(c *gin.Context) {
	batch, err := h.batchParam(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	b, err := h.Board.Get(c.Request.Context(), batch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) streamBoard(c *gin.Context) {
	batch, err := h.batchParam(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already replied
		h.log.Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	if err := h.Board.Stream(c.Request.Context(), conn, batch, h.BoardRefresh); err != nil {
		h.log.Debugw("board stream ended", "batch", batch, "error", err)
	}
}

// qr renders the public join URL as a PNG QR code.
func (h *Handler) qr(c *gin.Context) {
	size := 256
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 1024 {
			h.writeError(c, invalid("size must be between 64 and 1024"))
			return
		}
		size = n
	}
	png, err := qrcode.Encode(h.PublicURL, qrcode.Medium, size)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}
