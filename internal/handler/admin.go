package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin/internal/roster"
)

func (h *Handler) listTeams(c *gin.Context) {
	batch, err := h.batchParam(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	teams, err := h.Roster.ListTeams(c.Request.Context(), batch, c.Query("include_inactive") == "true")
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams})
}

func (h *Handler) getTeam(c *gin.Context) {
	t, err := h.Roster.GetTeam(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) createTeam(c *gin.Context) {
	var req roster.TeamCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalid(err.Error()))
		return
	}
	if req.Batch == 0 {
		req.Batch = h.Batch
	}
	t, err := h.Roster.CreateTeam(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) updateTeam(c *gin.Context) {
	var req roster.TeamUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalid(err.Error()))
		return
	}
	t, err := h.Roster.UpdateTeam(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) deleteTeam(c *gin.Context) {
	if err := h.Roster.DeleteTeam(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listParticipants(c *gin.Context) {
	batch, err := h.batchParam(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ps, err := h.Roster.ListParticipants(c.Request.Context(), batch, c.Query("team"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": ps})
}

func (h *Handler) getParticipant(c *gin.Context) {
	p, err := h.Roster.GetParticipant(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// moveParticipant accepts {"team": "..."}; the team is the only mutable
// field.
func (h *Handler) moveParticipant(c *gin.Context) {
	var req struct {
		Team string `json:"team" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalid(err.Error()))
		return
	}
	p, err := h.Roster.MoveParticipant(c.Request.Context(), c.Param("id"), req.Team)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteParticipant(c *gin.Context) {
	if err := h.Roster.DeleteParticipant(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) summary(c *gin.Context) {
	batch, err := h.batchParam(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	sum, err := h.Roster.Summary(c.Request.Context(), batch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch, "teams": sum})
}
