package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/slot-coordinator/internal/backend"
	"github.com/BruksfildServices01/slot-coordinator/internal/httperr"
	"github.com/BruksfildServices01/slot-coordinator/internal/scheduling"
)

var businessStatus = map[string]int{
	httperr.CodeMissingToken:         http.StatusUnauthorized,
	httperr.CodeMissingUser:          http.StatusUnauthorized,
	httperr.CodeSchedulingInProgress: http.StatusConflict,
	httperr.CodeSlotUnavailable:      http.StatusConflict,
	httperr.CodeNoActiveLock:         http.StatusConflict,
	httperr.CodeNoConflict:           http.StatusConflict,
	httperr.CodeAlreadyConfirmed:     http.StatusConflict,
}

// writeError maps scheduling failures to the API error body.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, scheduling.ErrConflictPending) {
		httperr.Conflict(c, "conflict_pending", "You already hold another time slot. Keep it or switch.")
		return
	}

	if code, ok := httperr.AsBusiness(err); ok {
		status, found := businessStatus[code]
		if !found {
			status = http.StatusBadRequest
		}
		httperr.Write(c, status, code, httperr.Message(code))
		return
	}

	if _, ok := backend.AsConflict(err); ok {
		httperr.Conflict(c, "existing_lock", backend.UserMessage(err, "You already hold another time slot."))
		return
	}

	if _, ok := backend.AsAPIError(err); ok {
		httperr.BadGateway(c, "backend_error", backend.UserMessage(err, "The scheduling service rejected the request."))
		return
	}

	httperr.Internal(c, "internal_error", "Something went wrong.")
}
