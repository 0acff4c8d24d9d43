package localapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/MJE43/flip-go/internal/game"
	"github.com/MJE43/flip-go/internal/history"
	"github.com/MJE43/flip-go/internal/house"
	"github.com/MJE43/flip-go/internal/house/housetest"
	"github.com/MJE43/flip-go/internal/metrics"
	"github.com/MJE43/flip-go/internal/session"
)

func testServer(t *testing.T, fake *housetest.Fake, token string) (http.Handler, *game.Client, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	g := game.New(game.Deps{Gateway: fake, Metrics: m, Logger: zaptest.NewLogger(t)})
	srv := New(g, Options{Token: token, Metrics: m, Logger: zaptest.NewLogger(t)})
	return srv.Routes(), g, m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) session.View {
	t.Helper()
	var v session.View
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return body.Error.Code
}

func TestHealthEndpoint(t *testing.T) {
	h, _, _ := testServer(t, housetest.New(10), "")
	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"disconnected"`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestTokenRequired(t *testing.T) {
	h, _, _ := testServer(t, housetest.New(10), "secret")

	if w := do(t, h, http.MethodGet, "/api/v1/state", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set(TokenHeader, "secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}

	if w := do(t, h, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health must not require a token, got %d", w.Code)
	}
}

func TestPlayFlow(t *testing.T) {
	fake := housetest.New(10).WithAccount(0)
	fake.Settle = func(call housetest.PlayCall) (house.Settlement, error) {
		return house.Settlement{ResultIndex: 1}, nil
	}
	h, g, m := testServer(t, fake, "")

	if w := do(t, h, http.MethodPost, "/api/v1/play/heads", ""); w.Code != http.StatusConflict || errorCode(t, w) != "NOT_CONNECTED" {
		t.Fatalf("play while disconnected: got %d", w.Code)
	}

	w := do(t, h, http.MethodPost, "/api/v1/connect", "")
	if w.Code != http.StatusOK {
		t.Fatalf("connect: %d %s", w.Code, w.Body.String())
	}
	if v := decodeView(t, w); v.Phase != session.PhaseReady {
		t.Fatalf("expected ready, got %s", v.Phase)
	}

	w = do(t, h, http.MethodPut, "/api/v1/wager", `{"amount": 6}`)
	if v := decodeView(t, w); v.WagerValid || v.CanPlay {
		t.Fatalf("6 must exceed half of max payout 10: %+v", v)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/play/tails", ""); w.Code != http.StatusConflict || errorCode(t, w) != "INVALID_WAGER" {
		t.Fatalf("invalid wager play: got %d", w.Code)
	}

	do(t, h, http.MethodPut, "/api/v1/wager", `{"amount": 0.5}`)
	w = do(t, h, http.MethodPost, "/api/v1/play/tails?wait=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("play: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		ResultIndex int  `json:"resultIndex"`
		Won         bool `json:"won"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ResultIndex != 1 || !out.Won {
		t.Errorf("unexpected outcome %+v", out)
	}

	w = do(t, h, http.MethodPost, "/api/v1/play/heads", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("async play: %d %s", w.Code, w.Body.String())
	}
	g.Wait()

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/v1/play/{selection}", "202")); got != 1 {
		t.Errorf("request counter: got %v", got)
	}
}

func TestPlayRejectsUnknownSelection(t *testing.T) {
	h, _, _ := testServer(t, housetest.New(10), "")
	if w := do(t, h, http.MethodPost, "/api/v1/play/edge", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestSecondPlayConflicts(t *testing.T) {
	fake := housetest.New(10).WithAccount(0)
	h, g, _ := testServer(t, fake, "")
	do(t, h, http.MethodPost, "/api/v1/connect", "")
	do(t, h, http.MethodPut, "/api/v1/wager", `{"amount": 1}`)

	if w := do(t, h, http.MethodPost, "/api/v1/play/heads", ""); w.Code != http.StatusAccepted {
		t.Fatalf("first play: %d", w.Code)
	}
	w := do(t, h, http.MethodPost, "/api/v1/play/heads", "")
	if w.Code != http.StatusConflict || errorCode(t, w) != "PLAY_IN_FLIGHT" {
		t.Fatalf("second play: expected 409 PLAY_IN_FLIGHT, got %d", w.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fake.LastHandle() == nil {
		if time.Now().After(deadline) {
			t.Fatal("play never reached the gateway")
		}
		time.Sleep(5 * time.Millisecond)
	}
	fake.LastHandle().Resolve(0)
	g.Wait()
}

func TestWagerValidation(t *testing.T) {
	h, _, _ := testServer(t, housetest.New(10), "")
	for _, body := range []string{`{}`, `{"amount":"x"}`, `not json`, `{"amount":1,"extra":true}`} {
		if w := do(t, h, http.MethodPut, "/api/v1/wager", body); w.Code != http.StatusUnprocessableEntity {
			t.Errorf("body %s: expected 422, got %d", body, w.Code)
		}
	}
}

func TestAccountLifecycle(t *testing.T) {
	fake := housetest.New(10)
	h, _, _ := testServer(t, fake, "")

	if w := do(t, h, http.MethodPost, "/api/v1/account", ""); w.Code != http.StatusConflict {
		t.Fatalf("create while disconnected: %d", w.Code)
	}
	do(t, h, http.MethodPost, "/api/v1/connect", "")

	w := do(t, h, http.MethodPost, "/api/v1/account", "")
	if v := decodeView(t, w); v.Phase != session.PhaseReady {
		t.Fatalf("expected ready after create, got %s", v.Phase)
	}

	if w := do(t, h, http.MethodPost, "/api/v1/account/withdraw", ""); errorCode(t, w) != "NOTHING_TO_CLAIM" {
		t.Errorf("withdraw with empty balance should be refused")
	}

	if w := do(t, h, http.MethodDelete, "/api/v1/account", ""); w.Code != http.StatusPreconditionRequired {
		t.Fatalf("close without confirm: expected 428, got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/account", `{"confirm": false}`); w.Code != http.StatusPreconditionRequired {
		t.Fatalf("close with confirm=false: expected 428, got %d", w.Code)
	}
	if fake.Calls("close") != 0 {
		t.Fatal("unconfirmed close reached the gateway")
	}
	w = do(t, h, http.MethodDelete, "/api/v1/account", `{"confirm": true}`)
	if v := decodeView(t, w); v.Phase != session.PhaseConnectedNoAccount {
		t.Fatalf("expected no account after close, got %s", v.Phase)
	}

	w = do(t, h, http.MethodGet, "/api/v1/debug/user", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status"`) {
		t.Errorf("debug user: %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/api/v1/disconnect", "")
	if v := decodeView(t, w); v.Phase != session.PhaseDisconnected {
		t.Errorf("expected disconnected, got %s", v.Phase)
	}
}

func TestGatewayFailureIsBadGateway(t *testing.T) {
	fake := housetest.New(10)
	fake.ConnectErr = &house.HTTPError{StatusCode: 503}
	h, _, _ := testServer(t, fake, "")

	w := do(t, h, http.MethodPost, "/api/v1/connect", "")
	if w.Code != http.StatusBadGateway || errorCode(t, w) != "GATEWAY_ERROR" {
		t.Errorf("expected 502 GATEWAY_ERROR, got %d", w.Code)
	}
}

func TestPlaysWithoutHistory(t *testing.T) {
	h, _, _ := testServer(t, housetest.New(10), "")
	w := do(t, h, http.MethodGet, "/api/v1/plays?limit=5", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":0`) {
		t.Errorf("plays: %d %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := testServer(t, housetest.New(10), "")
	do(t, h, http.MethodGet, "/health", "")
	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "flip_http_requests_total") {
		t.Errorf("metrics: %d", w.Code)
	}
}

func TestHistoryRoutes(t *testing.T) {
	ctx := context.Background()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatal(err)
	}
	oldID, err := store.StartSession(ctx, "creator-1")
	if err != nil {
		t.Fatal(err)
	}
	rec, err := history.NewSessionRecorder(ctx, store, "creator-1")
	if err != nil {
		t.Fatal(err)
	}

	fake := housetest.New(10).WithAccount(0)
	fake.Settle = func(call housetest.PlayCall) (house.Settlement, error) {
		return house.Settlement{ResultIndex: 0}, nil
	}
	g := game.New(game.Deps{Gateway: fake, Recorder: rec, History: store, SessionID: rec.SessionID(), Logger: zaptest.NewLogger(t)})
	h := New(g, Options{Logger: zaptest.NewLogger(t)}).Routes()

	do(t, h, http.MethodPost, "/api/v1/connect", "")
	do(t, h, http.MethodPut, "/api/v1/wager", `{"amount": 0.5}`)
	if w := do(t, h, http.MethodPost, "/api/v1/play/heads?wait=true", ""); w.Code != http.StatusOK {
		t.Fatalf("play: %d %s", w.Code, w.Body.String())
	}

	w := do(t, h, http.MethodGet, "/api/v1/summary", "")
	var sum history.Summary
	if err := json.NewDecoder(w.Body).Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if sum.Plays != 1 || sum.Wins != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}

	w = do(t, h, http.MethodGet, "/api/v1/sessions/current", "")
	var sess history.Session
	if err := json.NewDecoder(w.Body).Decode(&sess); err != nil {
		t.Fatal(err)
	}
	if sess.ID != rec.SessionID() {
		t.Errorf("current session: got %q", sess.ID)
	}

	w = do(t, h, http.MethodGet, "/api/v1/sessions/current/plays?perPage=5", "")
	var page history.PlaysPage
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.TotalCount != 1 || page.PerPage != 5 {
		t.Errorf("unexpected page %+v", page)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/sessions/nope/plays", ""); w.Code != http.StatusNotFound || errorCode(t, w) != "NOT_FOUND" {
		t.Errorf("unknown session: got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/sessions/"+rec.SessionID(), ""); w.Code != http.StatusConflict || errorCode(t, w) != "SESSION_ACTIVE" {
		t.Errorf("deleting the recording session: got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/sessions/"+oldID, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete old session: got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/sessions/"+oldID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d", w.Code)
	}
}
