package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Observe, when set, receives the latency of every call.
	Observe func(op, status string, seconds float64)
}

// Client calls the appointment REST backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	observe    func(op, status string, seconds float64)
}

var _ domain.Backend = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger.With(zap.String("component", "backend")),
		observe:    cfg.Observe,
	}, nil
}

type envelope struct {
	IsSuccess *bool           `json:"isSuccess"`
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

type conflictData struct {
	ExistingAppointmentID string `json:"existingAppointmentId"`
}

// ======================================================
// AVAILABILITY
// ======================================================

func (c *Client) GetAvailableTimeSlots(ctx context.Context, staffID, date, token string) (*domain.Availability, error) {
	q := url.Values{"staffId": {staffID}, "date": {date}}
	data, err := c.invoke(ctx, "get available slots", http.MethodGet, "/api/appointments/available-slots", q, nil, token)
	if err != nil {
		return nil, err
	}

	var out domain.Availability
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("get available slots: decode: %w", err)
	}
	return &out, nil
}

func (c *Client) GetAvailableSlotCount(ctx context.Context, staffID, date, token string) (int, error) {
	q := url.Values{"staffId": {staffID}, "date": {date}}
	data, err := c.invoke(ctx, "get slot count", http.MethodGet, "/api/appointments/available-slot-count", q, nil, token)
	if err != nil {
		return 0, err
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, fmt.Errorf("get slot count: decode: %w", err)
	}
	return n, nil
}

// ======================================================
// LOCKING
// ======================================================

func (c *Client) ValidateAppointmentRequest(ctx context.Context, req domain.Request, token string) error {
	_, err := c.invoke(ctx, "validate appointment", http.MethodPost, "/api/appointments/validate", nil, req, token)
	return err
}

func (c *Client) ScheduleAppointment(ctx context.Context, req domain.Request, token string) (*domain.Lock, error) {
	data, err := c.invoke(ctx, "schedule appointment", http.MethodPost, "/api/appointments", nil, req, token)
	if err != nil {
		return nil, err
	}

	var lock domain.Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("schedule appointment: decode: %w", err)
	}
	if lock.ID == "" {
		return nil, errors.New("schedule appointment: response has no lock id")
	}
	return &lock, nil
}

func (c *Client) CancelPreviousLockedAppointment(ctx context.Context, sessionID, token string) error {
	body := map[string]string{"sessionId": sessionID}
	_, err := c.invoke(ctx, "cancel previous lock", http.MethodPost, "/api/appointments/cancel-previous-locked", nil, body, token)
	return err
}

func (c *Client) CancelExpiredLockedAppointment(ctx context.Context, appointmentID, token string) error {
	path := "/api/appointments/" + url.PathEscape(appointmentID) + "/cancel-expired-lock"
	_, err := c.invoke(ctx, "release lock", http.MethodPost, path, nil, nil, token)
	return err
}

// ======================================================
// CONFIRMATION
// ======================================================

func (c *Client) ConfirmAppointment(ctx context.Context, appointmentID, token, reason string) error {
	path := "/api/appointments/" + url.PathEscape(appointmentID) + "/confirm"
	body := map[string]string{"reason": reason}
	_, err := c.invoke(ctx, "confirm appointment", http.MethodPost, path, nil, body, token)
	return err
}

// ======================================================
// LOOKUPS
// ======================================================

func (c *Client) GetAppointment(ctx context.Context, id, token string) (*domain.Appointment, error) {
	data, err := c.invoke(ctx, "get appointment", http.MethodGet, "/api/appointments/"+url.PathEscape(id), nil, nil, token)
	if err != nil {
		return nil, err
	}

	var ap domain.Appointment
	if err := json.Unmarshal(data, &ap); err != nil {
		return nil, fmt.Errorf("get appointment: decode: %w", err)
	}
	return &ap, nil
}

func (c *Client) GetHealthcareStaffByID(ctx context.Context, id, token string) (*domain.Staff, error) {
	data, err := c.invoke(ctx, "get staff", http.MethodGet, "/api/healthcare-staff/"+url.PathEscape(id), nil, nil, token)
	if err != nil {
		return nil, err
	}

	var st domain.Staff
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("get staff: decode: %w", err)
	}
	return &st, nil
}

// ======================================================
// TRANSPORT
// ======================================================

// invoke performs one call and returns the payload. Enveloped responses are
// unwrapped; a bare JSON body is returned as is.
func (c *Client) invoke(ctx context.Context, op, method, path string, query url.Values, body any, token string) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(op, "transport_error", start)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}

	c.logger.Debug("backend call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	var env envelope
	enveloped := len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &env) == nil && env.IsSuccess != nil

	ok2xx := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.record(op, strconv.Itoa(resp.StatusCode), start)
	if enveloped && *env.IsSuccess && ok2xx {
		return env.Data, nil
	}
	if !enveloped && ok2xx {
		return raw, nil
	}

	message := env.Message
	if !enveloped {
		message = strings.TrimSpace(string(raw))
	}
	if isConflict(resp.StatusCode, env.Code, message) {
		var cd conflictData
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &cd)
		}
		return nil, &ConflictError{Op: op, ExistingAppointmentID: cd.ExistingAppointmentID, Message: message}
	}
	return nil, &APIError{Op: op, Status: resp.StatusCode, Code: env.Code, Message: message}
}

func (c *Client) record(op, status string, start time.Time) {
	if c.observe != nil {
		c.observe(op, status, time.Since(start).Seconds())
	}
}
