package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin/internal/quiz"
	"checkin/internal/roster"
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", roster.ErrInvalidArgument, msg)
}

// writeError maps domain errors to a status code and a JSON body.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, roster.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, roster.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, roster.ErrTeamExists):
		status, code = http.StatusConflict, "team_exists"
	case errors.Is(err, roster.ErrTeamInactive):
		status, code = http.StatusUnprocessableEntity, "team_inactive"
	case errors.Is(err, quiz.ErrBusy):
		status, code = http.StatusConflict, "busy"
	case errors.Is(err, quiz.ErrWrongState):
		status, code = http.StatusConflict, "wrong_state"
	case errors.Is(err, roster.ErrNoTeamsAvailable):
		status, code = http.StatusServiceUnavailable, "no_teams_available"
	case errors.Is(err, roster.ErrLookupFailed):
		status, code = http.StatusServiceUnavailable, "lookup_failed"
	case errors.Is(err, roster.ErrParticipantCreateFailed):
		status, code = http.StatusServiceUnavailable, "create_failed"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Errorw("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}
