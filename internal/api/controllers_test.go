package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"dca-core/internal/engine"
	"dca-core/internal/events"
	"dca-core/internal/monitor"
	"dca-core/internal/state"
	"dca-core/internal/strategy"
	"dca-core/pkg/db"
)

type fakeEngine struct {
	startErr  error
	stopErr   error
	planErr   error
	plan      strategy.PlanResult
	rootState state.BotRootState

	lastStartSide state.Side
	lastStartCfg  *state.StrategyConfig
	aiEnabled     bool
}

func (f *fakeEngine) StartSide(_ context.Context, side state.Side, cfg *state.StrategyConfig) error {
	f.lastStartSide = side
	f.lastStartCfg = cfg
	return f.startErr
}
func (f *fakeEngine) StopSide(context.Context, state.Side) error { return f.stopErr }
func (f *fakeEngine) UpdateSideConfig(context.Context, state.Side, strategy.ConfigPatch) error {
	return nil
}
func (f *fakeEngine) ResetCycle(context.Context, state.Side) error { return nil }
func (f *fakeEngine) ToggleAI(_ context.Context, enable bool) error {
	f.aiEnabled = enable
	return nil
}
func (f *fakeEngine) UpdateAIConfig(context.Context, engine.AIConfigPatch) error { return nil }
func (f *fakeEngine) GetState(context.Context) state.BotRootState               { return f.rootState }
func (f *fakeEngine) GetPlan(context.Context, state.Side) (strategy.PlanResult, error) {
	return f.plan, f.planErr
}
func (f *fakeEngine) GetOpenOrders(context.Context) ([]db.Order, error)        { return nil, nil }
func (f *fakeEngine) GetRecentOrders(context.Context, int) ([]db.Order, error) { return nil, nil }
func (f *fakeEngine) GetRecentFills(context.Context, int) ([]db.Fill, error)   { return nil, nil }
func (f *fakeEngine) GetBalances(context.Context) map[string]state.Balance {
	return map[string]state.Balance{"USDT": {Free: 1000}}
}
func (f *fakeEngine) GetSystemStatus(context.Context) *engine.SystemStatus {
	return &engine.SystemStatus{BotName: "test-bot", Symbol: "BTCUSDT", DryRun: true}
}

func newTestAPIServer(t *testing.T, svc engine.Service) (*httptest.Server, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	server := NewServer(events.NewBus(), database, svc, monitor.NewSystemMetrics(), "test-secret")
	httpServer := httptest.NewServer(server.Router)

	cleanup := func() {
		httpServer.Close()
		_ = database.Close()
	}
	return httpServer, cleanup
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func registerAndLogin(t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()
	var regResp struct {
		UserID string `json:"user_id"`
	}
	status := doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/register", "", map[string]string{
		"email":    "tester@example.com",
		"password": "StrongPass123!",
	}, &regResp)
	if status != http.StatusCreated {
		t.Fatalf("register status=%d resp=%+v", status, regResp)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	status = doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/login", "", map[string]string{
		"email":    "tester@example.com",
		"password": "StrongPass123!",
	}, &loginResp)
	if status != http.StatusOK || loginResp.Token == "" {
		t.Fatalf("login failed status=%d resp=%+v", status, loginResp)
	}
	return loginResp.Token
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &fakeEngine{})
	defer cleanup()

	status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/state", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestSystemStatusIsPublic(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &fakeEngine{})
	defer cleanup()

	var resp struct {
		BotName string `json:"bot_name"`
		DryRun  bool   `json:"dry_run"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/system/status", "", nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.BotName != "test-bot" || !resp.DryRun {
		t.Fatalf("unexpected status payload: %+v", resp)
	}
}

func TestStartSideWithConfig(t *testing.T) {
	svc := &fakeEngine{}
	ts, cleanup := newTestAPIServer(t, svc)
	defer cleanup()

	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	payload := map[string]any{
		"config": map[string]any{
			"amountBase":     100.0,
			"purchaseStep":   10.0,
			"priceVar":       1.0,
			"sizeVar":        10.0,
			"triggerPercent": 2.0,
		},
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/strategy/long/start", token, payload, nil)
	if status != http.StatusOK {
		t.Fatalf("start status=%d", status)
	}
	if svc.lastStartSide != state.SideLong {
		t.Fatalf("expected LONG start, got %q", svc.lastStartSide)
	}
	if svc.lastStartCfg == nil || svc.lastStartCfg.AmountBase != 100 {
		t.Fatalf("config not forwarded: %+v", svc.lastStartCfg)
	}
}

func TestStartSideWithoutBodyUsesPersistedConfig(t *testing.T) {
	svc := &fakeEngine{}
	ts, cleanup := newTestAPIServer(t, svc)
	defer cleanup()

	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/strategy/short/start", token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("start status=%d", status)
	}
	if svc.lastStartCfg != nil {
		t.Fatalf("expected nil config, got %+v", svc.lastStartCfg)
	}
}

func TestStartUnknownSideIs404(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &fakeEngine{})
	defer cleanup()

	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/strategy/sideways/start", token, nil, &resp)
	if status != http.StatusNotFound || resp.Code != "UNKNOWN_SIDE" {
		t.Fatalf("expected 404 UNKNOWN_SIDE, got status=%d code=%s", status, resp.Code)
	}
}

func TestStartRunningSideConflicts(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &fakeEngine{startErr: strategy.ErrAlreadyRunning})
	defer cleanup()

	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/strategy/long/start", token, nil, &resp)
	if status != http.StatusConflict || resp.Code != "ALREADY_RUNNING" {
		t.Fatalf("expected 409 ALREADY_RUNNING, got status=%d code=%s", status, resp.Code)
	}
}

func TestGetPlanWithoutPriceIs503(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &fakeEngine{planErr: strategy.ErrNoPrice})
	defer cleanup()

	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/plan/long", token, nil, &resp)
	if status != http.StatusServiceUnavailable || resp.Code != "NO_PRICE" {
		t.Fatalf("expected 503 NO_PRICE, got status=%d code=%s", status, resp.Code)
	}
}

func TestGetPlanReturnsLadder(t *testing.T) {
	svc := &fakeEngine{plan: strategy.PlanResult{OrderCount: 5, CoveragePrice: 96.1, TargetPrice: 102}}
	ts, cleanup := newTestAPIServer(t, svc)
	defer cleanup()

	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	var resp strategy.PlanResult
	status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/plan/short", token, nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("plan status=%d", status)
	}
	if resp.OrderCount != 5 || resp.TargetPrice != 102 {
		t.Fatalf("unexpected plan: %+v", resp)
	}
}

func TestToggleAIRequiresEnabledFlag(t *testing.T) {
	svc := &fakeEngine{}
	ts, cleanup := newTestAPIServer(t, svc)
	defer cleanup()

	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/ai/toggle", token, map[string]any{}, &resp)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/ai/toggle", token, map[string]any{"enabled": true}, nil)
	if status != http.StatusOK {
		t.Fatalf("toggle status=%d", status)
	}
	if !svc.aiEnabled {
		t.Fatalf("toggle did not reach the engine")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &fakeEngine{})
	defer cleanup()

	client := ts.Client()
	registerAndLogin(t, client, ts.URL)

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"email":    "tester@example.com",
		"password": "wrong-password",
	}, &resp)
	if status != http.StatusUnauthorized || resp.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected 401 INVALID_CREDENTIALS, got status=%d code=%s", status, resp.Code)
	}
}
