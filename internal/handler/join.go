package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin/internal/auth"
	"checkin/internal/quiz"
)

// createSession issues a session token. A caller that still holds a valid
// token keeps its session id and gets a fresh expiry.
func (h *Handler) createSession(c *gin.Context) {
	var (
		s   auth.Session
		err error
	)
	if tok := auth.TokenFrom(c); tok != "" {
		if claims, perr := h.Issuer.Parse(tok); perr == nil {
			s, err = h.Issuer.IssueFor(claims.SessionID())
		}
	}
	if s.Token == "" && err == nil {
		s, err = h.Issuer.Issue()
	}
	if err != nil {
		h.log.Errorw("session issue failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, s.Token, int(h.Issuer.TTL.Seconds()), "/", "", gin.Mode() == gin.ReleaseMode, true)
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) flow(c *gin.Context) *quiz.Flow {
	return h.Flows.Get(auth.SessionID(c))
}

func (h *Handler) writeSnapshot(c *gin.Context, s quiz.Snapshot, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.Metrics.step(s.State)
	c.JSON(http.StatusOK, s)
}

func (h *Handler) startJoin(c *gin.Context) {
	s, err := h.flow(c).Start(c.Request.Context())
	h.writeSnapshot(c, s, err)
}

// getJoin returns the flow state. With ?wait=1 it holds the request until
// the loading phase is over.
func (h *Handler) getJoin(c *gin.Context) {
	f := h.flow(c)
	if c.Query("wait") == "" || c.Query("wait") == "0" {
		c.JSON(http.StatusOK, f.Snapshot())
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.WaitTimeout)
	defer cancel()
	s, err := f.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		// still loading; the client polls again
		c.JSON(http.StatusAccepted, s)
		return
	}
	h.writeSnapshot(c, s, err)
}

func (h *Handler) submitName(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalid(err.Error()))
		return
	}
	s, err := h.flow(c).SubmitName(c.Request.Context(), req.Name)
	h.writeSnapshot(c, s, err)
}

func (h *Handler) answer(c *gin.Context) {
	var req struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalid(err.Error()))
		return
	}
	s, err := h.flow(c).Answer(c.Request.Context(), req.Value)
	h.writeSnapshot(c, s, err)
}

func (h *Handler) retry(c *gin.Context) {
	s, err := h.flow(c).Retry(c.Request.Context())
	h.writeSnapshot(c, s, err)
}

// streamPrompt types the current prompt out as server-sent events: one
// "frame" event per revealed prefix, then "done" carrying the state.
func (h *Handler) streamPrompt(c *gin.Context) {
	snap := h.flow(c).Snapshot()
	frames := h.Typewriter.Stream(c.Request.Context(), snap.Prompt)
	c.Header("Cache-Control", "no-cache")
	c.Stream(func(io.Writer) bool {
		frame, ok := <-frames
		if !ok {
			c.SSEvent("done", string(snap.State))
			return false
		}
		c.SSEvent("frame", frame)
		return true
	})
}
