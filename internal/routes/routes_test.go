package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BruksfildServices01/slot-coordinator/internal/config"
	"github.com/BruksfildServices01/slot-coordinator/internal/scheduling"
)

type idleCoordinator struct{}

func (idleCoordinator) Snapshot() scheduling.State                  { return scheduling.State{} }
func (idleCoordinator) SelectStaff(context.Context, string) error   { return nil }
func (idleCoordinator) SelectDate(context.Context, string) error    { return nil }
func (idleCoordinator) Refresh()                                    {}
func (idleCoordinator) SelectSlot(context.Context, string) error    { return nil }
func (idleCoordinator) SetReason(string)                            {}
func (idleCoordinator) CancelLock(context.Context) error            { return nil }
func (idleCoordinator) Confirm(context.Context, string) error       { return nil }
func (idleCoordinator) ResolveConflict(context.Context, bool) error { return nil }
func (idleCoordinator) RefreshSlotCounts(context.Context, []string) (map[string]*int, error) {
	return map[string]*int{}, nil
}

func newEngine(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, cfg, Deps{
		Coordinator: idleCoordinator{},
		UserID:      "user-1",
		SessionID:   "session-1",
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})
	return r
}

func bearer(t *testing.T, secret, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + s
}

func TestPublicRoutes(t *testing.T) {
	r := newEngine(&config.Config{JWTSecret: "secret", APIRate: 100, APIBurst: 100})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "session-1")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# metrics")
}

func TestAPIRequiresActingUser(t *testing.T) {
	r := newEngine(&config.Config{JWTSecret: "secret", APIRate: 100, APIBurst: 100})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Authorization", bearer(t, "secret", "user-1"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRateLimited(t *testing.T) {
	r := newEngine(&config.Config{JWTSecret: "secret", APIRate: 1, APIBurst: 1})
	token := bearer(t, "secret", "user-1")

	var last int
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
		req.Header.Set("Authorization", token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
