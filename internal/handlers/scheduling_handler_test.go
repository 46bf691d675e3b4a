package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BruksfildServices01/slot-coordinator/internal/backend"
	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
	"github.com/BruksfildServices01/slot-coordinator/internal/httperr"
	"github.com/BruksfildServices01/slot-coordinator/internal/notify"
	"github.com/BruksfildServices01/slot-coordinator/internal/scheduling"
)

type fakeCoordinator struct {
	state     scheduling.State
	err       error
	calls     []string
	reason    string
	override  *bool
	slot      string
	countsFor []string
}

func (f *fakeCoordinator) Snapshot() scheduling.State { return f.state }

func (f *fakeCoordinator) SelectStaff(_ context.Context, staffID string) error {
	f.calls = append(f.calls, "staff:"+staffID)
	return f.err
}

func (f *fakeCoordinator) SelectDate(_ context.Context, date string) error {
	f.calls = append(f.calls, "date:"+date)
	return f.err
}

func (f *fakeCoordinator) Refresh() { f.calls = append(f.calls, "refresh") }

func (f *fakeCoordinator) SelectSlot(_ context.Context, timeSlot string) error {
	f.slot = timeSlot
	f.calls = append(f.calls, "slot")
	return f.err
}

func (f *fakeCoordinator) SetReason(reason string) { f.reason = reason }

func (f *fakeCoordinator) CancelLock(context.Context) error {
	f.calls = append(f.calls, "cancel")
	return f.err
}

func (f *fakeCoordinator) Confirm(_ context.Context, reason string) error {
	f.reason = reason
	f.calls = append(f.calls, "confirm")
	return f.err
}

func (f *fakeCoordinator) ResolveConflict(_ context.Context, override bool) error {
	f.override = &override
	f.calls = append(f.calls, "resolve")
	return f.err
}

func (f *fakeCoordinator) RefreshSlotCounts(_ context.Context, dates []string) (map[string]*int, error) {
	f.countsFor = dates
	n := 4
	out := map[string]*int{}
	for _, d := range dates {
		out[d] = &n
	}
	return out, f.err
}

func newTestRouter(coord Coordinator, feed *notify.Feed) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewSchedulingHandler(coord, feed)

	r.GET("/api/state", h.GetState)
	r.GET("/api/notifications", h.Notifications)
	r.GET("/api/slot-counts", h.SlotCounts)
	r.POST("/api/staff", h.SelectStaff)
	r.POST("/api/date", h.SelectDate)
	r.POST("/api/refresh", h.Refresh)
	r.POST("/api/slot", h.SelectSlot)
	r.POST("/api/lock/cancel", h.CancelLock)
	r.POST("/api/confirm", h.Confirm)
	r.POST("/api/conflict/resolve", h.ResolveConflict)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httperr.HTTPError {
	t.Helper()
	var e httperr.HTTPError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestGetStateIncludesNotifications(t *testing.T) {
	feed := notify.NewFeed(5)
	feed.Success("Time slot held.")
	coord := &fakeCoordinator{state: scheduling.State{
		Session: scheduling.Session{SessionID: "s-1", State: domain.StateLocked, AppointmentID: "appt-1"},
	}}
	r := newTestRouter(coord, feed)

	w := do(r, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	session := body["session"].(map[string]any)
	assert.Equal(t, "appt-1", session["appointmentId"])
	assert.Equal(t, "locked", session["state"])
	assert.Len(t, body["notifications"], 1)
}

func TestSelectSlotPassesReason(t *testing.T) {
	coord := &fakeCoordinator{}
	r := newTestRouter(coord, nil)

	w := do(r, http.MethodPost, "/api/slot", `{"time_slot":"09:00 - 09:30","reason":"Follow-up"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "09:00 - 09:30", coord.slot)
	assert.Equal(t, "Follow-up", coord.reason)

	w = do(r, http.MethodPost, "/api/slot", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).Code)
}

func TestSelectionIsAccepted(t *testing.T) {
	coord := &fakeCoordinator{}
	r := newTestRouter(coord, nil)

	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/api/staff", `{"staff_id":"staff-1"}`).Code)
	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/api/date", `{"date":"2030-01-15"}`).Code)
	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/api/refresh", "").Code)
	assert.Equal(t, []string{"staff:staff-1", "date:2030-01-15", "refresh"}, coord.calls)
}

func TestBusinessErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{httperr.ErrBusiness(httperr.CodeSchedulingInProgress), http.StatusConflict, httperr.CodeSchedulingInProgress},
		{httperr.ErrBusiness(httperr.CodeMissingReason), http.StatusBadRequest, httperr.CodeMissingReason},
		{httperr.ErrBusiness(httperr.CodeMissingToken), http.StatusUnauthorized, httperr.CodeMissingToken},
		{scheduling.ErrConflictPending, http.StatusConflict, "conflict_pending"},
		{&backend.APIError{Op: "confirm", Status: 400, Code: 400, Message: "Lock expired"}, http.StatusBadGateway, "backend_error"},
		{context.DeadlineExceeded, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		coord := &fakeCoordinator{err: tc.err}
		r := newTestRouter(coord, nil)

		w := do(r, http.MethodPost, "/api/confirm", `{"reason":"Check-up"}`)
		assert.Equal(t, tc.status, w.Code, tc.code)
		assert.Equal(t, tc.code, decodeError(t, w).Code)
	}
}

func TestBackendMessageIsShown(t *testing.T) {
	coord := &fakeCoordinator{err: &backend.APIError{Op: "cancel", Status: 404, Code: 404, Message: "Lock not found"}}
	r := newTestRouter(coord, nil)

	w := do(r, http.MethodPost, "/api/lock/cancel", "")
	assert.Equal(t, "Lock not found", decodeError(t, w).Message)
}

func TestResolveConflictRequiresChoice(t *testing.T) {
	coord := &fakeCoordinator{}
	r := newTestRouter(coord, nil)

	w := do(r, http.MethodPost, "/api/conflict/resolve", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, coord.override)

	w = do(r, http.MethodPost, "/api/conflict/resolve", `{"override":false}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, coord.override)
	assert.False(t, *coord.override)
}

func TestSlotCounts(t *testing.T) {
	coord := &fakeCoordinator{}
	r := newTestRouter(coord, nil)

	w := do(r, http.MethodGet, "/api/slot-counts?dates=2030-01-15,%202030-01-16", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"2030-01-15", "2030-01-16"}, coord.countsFor)

	var body SlotCountsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Counts["2030-01-16"])
	assert.Equal(t, 4, *body.Counts["2030-01-16"])

	w = do(r, http.MethodGet, "/api/slot-counts", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationsList(t *testing.T) {
	feed := notify.NewFeed(5)
	feed.Error("Could not hold this time slot.")
	r := newTestRouter(&fakeCoordinator{}, feed)

	w := do(r, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
	assert.Contains(t, w.Body.String(), "Could not hold this time slot.")
}
