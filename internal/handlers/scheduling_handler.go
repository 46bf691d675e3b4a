package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/slot-coordinator/internal/httperr"
	"github.com/BruksfildServices01/slot-coordinator/internal/httpresp"
	"github.com/BruksfildServices01/slot-coordinator/internal/notify"
	"github.com/BruksfildServices01/slot-coordinator/internal/scheduling"
)

// Coordinator is the scheduling session behind the page.
type Coordinator interface {
	Snapshot() scheduling.State
	SelectStaff(ctx context.Context, staffID string) error
	SelectDate(ctx context.Context, date string) error
	Refresh()
	SelectSlot(ctx context.Context, timeSlot string) error
	SetReason(reason string)
	CancelLock(ctx context.Context) error
	Confirm(ctx context.Context, reason string) error
	ResolveConflict(ctx context.Context, override bool) error
	RefreshSlotCounts(ctx context.Context, dates []string) (map[string]*int, error)
}

// ======================================================
// HANDLER
// ======================================================

type SchedulingHandler struct {
	coord Coordinator
	feed  *notify.Feed
}

func NewSchedulingHandler(coord Coordinator, feed *notify.Feed) *SchedulingHandler {
	return &SchedulingHandler{coord: coord, feed: feed}
}

// ======================================================
// REQUESTS / RESPONSES
// ======================================================

type SelectStaffRequest struct {
	StaffID string `json:"staff_id" binding:"required"`
}

type SelectDateRequest struct {
	Date string `json:"date" binding:"required"`
}

type SelectSlotRequest struct {
	TimeSlot string `json:"time_slot" binding:"required"`
	Reason   string `json:"reason"`
}

type ConfirmRequest struct {
	Reason string `json:"reason"`
}

type ResolveConflictRequest struct {
	Override *bool `json:"override" binding:"required"`
}

type StateResponse struct {
	scheduling.State
	Notifications []notify.Notification `json:"notifications"`
}

type SlotCountsResponse struct {
	Counts map[string]*int `json:"counts"`
}

// opContext lets a started lock sequence finish after the page disconnects.
func opContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (h *SchedulingHandler) state() StateResponse {
	resp := StateResponse{State: h.coord.Snapshot()}
	if h.feed != nil {
		resp.Notifications = h.feed.Recent()
	}
	return resp
}

// ======================================================
// READS
// ======================================================

func (h *SchedulingHandler) GetState(c *gin.Context) {
	httpresp.OK(c, h.state())
}

func (h *SchedulingHandler) Notifications(c *gin.Context) {
	var items []notify.Notification
	if h.feed != nil {
		items = h.feed.Recent()
	}
	httpresp.List(c, items)
}

func (h *SchedulingHandler) SlotCounts(c *gin.Context) {
	var dates []string
	for _, d := range strings.Split(c.Query("dates"), ",") {
		if d = strings.TrimSpace(d); d != "" {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		httperr.BadRequest(c, httperr.CodeMissingDate, "Pass one or more dates.")
		return
	}

	counts, err := h.coord.RefreshSlotCounts(c.Request.Context(), dates)
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, SlotCountsResponse{Counts: counts})
}

// ======================================================
// SELECTION
// ======================================================

func (h *SchedulingHandler) SelectStaff(c *gin.Context) {
	var req SelectStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "staff_id is required.")
		return
	}

	if err := h.coord.SelectStaff(opContext(c), req.StaffID); err != nil {
		writeError(c, err)
		return
	}
	httpresp.Accepted(c, h.state())
}

func (h *SchedulingHandler) SelectDate(c *gin.Context) {
	var req SelectDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "date is required.")
		return
	}

	if err := h.coord.SelectDate(opContext(c), req.Date); err != nil {
		writeError(c, err)
		return
	}
	// The fetch is debounced; the page polls state for the result.
	httpresp.Accepted(c, h.state())
}

func (h *SchedulingHandler) Refresh(c *gin.Context) {
	h.coord.Refresh()
	httpresp.Accepted(c, h.state())
}

func (h *SchedulingHandler) SelectSlot(c *gin.Context) {
	var req SelectSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "time_slot is required.")
		return
	}
	if req.Reason != "" {
		h.coord.SetReason(req.Reason)
	}

	if err := h.coord.SelectSlot(opContext(c), req.TimeSlot); err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, h.state())
}

// ======================================================
// LOCK LIFECYCLE
// ======================================================

func (h *SchedulingHandler) CancelLock(c *gin.Context) {
	if err := h.coord.CancelLock(opContext(c)); err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, h.state())
}

func (h *SchedulingHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "Invalid body.")
		return
	}

	if err := h.coord.Confirm(opContext(c), req.Reason); err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, h.state())
}

func (h *SchedulingHandler) ResolveConflict(c *gin.Context) {
	var req ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "override is required.")
		return
	}

	if err := h.coord.ResolveConflict(opContext(c), *req.Override); err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, h.state())
}
