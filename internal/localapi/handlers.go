package localapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MJE43/flip-go/internal/account"
	"github.com/MJE43/flip-go/internal/game"
	"github.com/MJE43/flip-go/internal/history"
	"github.com/MJE43/flip-go/internal/house"
	"github.com/MJE43/flip-go/internal/play"
	"github.com/MJE43/flip-go/internal/session"
	"github.com/MJE43/flip-go/internal/wager"
)

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"phase":  s.game.View().Phase,
	})
}

// GET /api/v1/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.game.View())
}

type wagerRequest struct {
	Amount *float64 `json:"amount"`
}

// PUT /api/v1/wager
func (s *Server) handleSetWager(w http.ResponseWriter, r *http.Request) {
	var req wagerRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || req.Amount == nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", `body must be {"amount": <number>}`)
		return
	}
	writeJSON(w, http.StatusOK, s.game.SetWager(*req.Amount))
}

type outcomeResponse struct {
	play.Outcome
	Error string `json:"error,omitempty"`
}

// POST /api/v1/play/{selection}[?wait=true]
//
// Without wait the play is accepted with 202 and settles in the background.
// With wait the response carries the outcome.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	sel, err := wager.ParseSelection(chi.URLParam(r, "selection"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SELECTION", err.Error())
		return
	}

	ch, err := s.game.Submit(r.Context(), sel)
	if err != nil {
		s.writeOpError(w, "play", err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"accepted": true,
			"state":    s.game.View(),
		})
		return
	}

	select {
	case out := <-ch:
		resp := outcomeResponse{Outcome: out}
		status := http.StatusOK
		if out.Err != nil {
			resp.Error = out.Err.Error()
			status = http.StatusBadGateway
		}
		writeJSON(w, status, resp)
	case <-r.Context().Done():
		// The play keeps running; the client can poll /state.
		writeError(w, http.StatusGatewayTimeout, "PENDING", "play still settling")
	}
}

func (s *Server) lifecycle(op string, fn func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			s.writeOpError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, s.game.View())
	}
}

// POST /api/v1/connect
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(account.OpConnect, s.game.Connect)(w, r)
}

// POST /api/v1/disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(account.OpDisconnect, s.game.Disconnect)(w, r)
}

// POST /api/v1/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(account.OpRefresh, s.game.Refresh)(w, r)
}

// POST /api/v1/account
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(account.OpCreate, s.game.CreateAccount)(w, r)
}

// POST /api/v1/account/withdraw
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(account.OpWithdraw, s.game.Withdraw)(w, r)
}

type closeRequest struct {
	Confirm bool `json:"confirm"`
}

// DELETE /api/v1/account with {"confirm": true}
func (s *Server) handleCloseAccount(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid JSON")
			return
		}
	}
	confirm := account.ConfirmFunc(func(context.Context, string) (bool, error) {
		return req.Confirm, nil
	})
	s.lifecycle(account.OpClose, func(ctx context.Context) error {
		return s.game.CloseAccount(ctx, confirm)
	})(w, r)
}

// GET /api/v1/plays?limit=N
func (s *Server) handlePlays(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(qInt(r, "limit", 10), 1, 200)
	plays, err := s.game.RecentPlays(r.Context(), limit)
	if err != nil {
		s.log.Error("list plays failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "failed to list plays")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plays": plays,
		"count": len(plays),
	})
}

// GET /api/v1/summary
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.game.Summary(r.Context())
	if err != nil {
		s.writeOpError(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GET /api/v1/sessions/current
func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.game.CurrentSession(r.Context())
	if err != nil {
		s.writeOpError(w, "current_session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GET /api/v1/sessions/{id}/plays?page=N&perPage=M
func (s *Server) handleSessionPlays(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "current" {
		id = ""
	}
	page := qInt(r, "page", 1)
	perPage := clampInt(qInt(r, "perPage", 50), 1, 200)

	res, err := s.game.SessionPlays(r.Context(), id, page, perPage)
	if err != nil {
		s.writeOpError(w, "session_plays", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DELETE /api/v1/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.game.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeOpError(w, "delete_session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/debug/user
func (s *Server) handleDebugUser(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.DebugUser(r.Context())
	if err != nil {
		s.writeOpError(w, "debug_user", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// writeOpError maps session, account and gateway errors to HTTP responses.
func (s *Server) writeOpError(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("operation failed", zap.String("op", op), zap.Error(err))
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	var authErr *house.AuthError
	switch {
	case errors.Is(err, session.ErrPlayInFlight):
		return http.StatusConflict, "PLAY_IN_FLIGHT"
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusConflict, "NOT_CONNECTED"
	case errors.Is(err, session.ErrAlreadyConnected):
		return http.StatusConflict, "ALREADY_CONNECTED"
	case errors.Is(err, session.ErrNoAccount):
		return http.StatusConflict, "NO_ACCOUNT"
	case errors.Is(err, session.ErrAccountExists):
		return http.StatusConflict, "ACCOUNT_EXISTS"
	case errors.Is(err, session.ErrNothingToClaim):
		return http.StatusConflict, "NOTHING_TO_CLAIM"
	case errors.Is(err, session.ErrInvalidWager):
		return http.StatusConflict, "INVALID_WAGER"
	case errors.Is(err, session.ErrInvalidSelection):
		return http.StatusBadRequest, "INVALID_SELECTION"
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, game.ErrNoHistory):
		return http.StatusNotFound, "NO_HISTORY"
	case errors.Is(err, game.ErrSessionActive):
		return http.StatusConflict, "SESSION_ACTIVE"
	case errors.Is(err, account.ErrNotConfirmed):
		return http.StatusPreconditionRequired, "CONFIRMATION_REQUIRED"
	case errors.As(err, &authErr):
		return http.StatusBadGateway, "GATEWAY_AUTH"
	default:
		return http.StatusBadGateway, "GATEWAY_ERROR"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	})
}

func qInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
