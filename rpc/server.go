// Package rpc exposes the farming ledger over HTTP. Read endpoints are open;
// mutating endpoints are serialized so the engine sees the single-writer
// execution model it was built for, and administrative endpoints additionally
// require the configured bearer token.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"yieldfarm/ledger"
	"yieldfarm/native/farming"
	"yieldfarm/observability"
)

// Authorizer evaluates whether an incoming request may use the admin surface.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// Server wires the registry and engine into an HTTP handler.
type Server struct {
	registry *farming.Registry
	engine   *farming.Engine
	logger   *slog.Logger
	auth     Authorizer
	limiter  *RateLimiter

	// writeMu serializes mutating operations; overlapping calls would trip
	// the engine's re-entrancy guard instead of queueing.
	writeMu sync.Mutex
	nowFn   func() uint64
}

// New constructs the server. logger may be nil, in which case the default
// slog logger is used.
func New(registry *farming.Registry, engine *farming.Engine, logger *slog.Logger, auth Authorizer, limiter *RateLimiter) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry: registry,
		engine:   engine,
		logger:   logger,
		auth:     auth,
		limiter:  limiter,
		nowFn:    func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetNowFunc overrides the time source. Intended for tests.
func (s *Server) SetNowFunc(now func() uint64) {
	if now == nil {
		s.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	s.nowFn = now
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.limiter != nil {
		r.Use(s.limiter.Middleware())
	}
	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pools", s.handleListPools)
		r.Get("/pools/count", s.handleCountPools)
		r.Get("/pools/{poolID}", s.handleGetPool)
		r.Get("/pools/{poolID}/snapshot", s.handleSnapshot)
		r.Get("/pools/{poolID}/rewards/{address}", s.handlePendingRewards)
		r.Get("/pools/{poolID}/positions/{address}", s.handlePosition)

		r.Post("/pools/{poolID}/stake", s.handleStake)
		r.Post("/pools/{poolID}/withdraw", s.handleWithdraw)
		r.Post("/pools/{poolID}/claim", s.handleClaim)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/pools", s.handleCreatePool)
			r.Put("/pools/{poolID}/rate", s.handleUpdateRate)
			r.Post("/emergency-withdraw", s.handleEmergencyWithdraw)
			r.Put("/authority", s.handleTransferAuthority)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	ids, err := s.registry.ListActivePools()
	if err != nil {
		s.writeError(w, r, "list_pools", err)
		return
	}
	encoded := make([]string, 0, len(ids))
	for _, id := range ids {
		encoded = append(encoded, id.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": encoded})
}

func (s *Server) handleCountPools(w http.ResponseWriter, r *http.Request) {
	count, err := s.registry.CountActivePools()
	if err != nil {
		s.writeError(w, r, "count_pools", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

type poolPayload struct {
	ID                  string `json:"id"`
	StakeToken          string `json:"stakeToken"`
	TotalStaked         string `json:"totalStaked"`
	RewardRatePerSecond string `json:"rewardRatePerSecond"`
	LastUpdate          uint64 `json:"lastUpdate"`
	AccRewardPerShare   string `json:"accRewardPerShare"`
	Active              bool   `json:"active"`
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	pool, err := s.registry.GetPool(id)
	if err != nil {
		s.writeError(w, r, "get_pool", err)
		return
	}
	writeJSON(w, http.StatusOK, poolPayload{
		ID:                  pool.ID.String(),
		StakeToken:          pool.StakeToken,
		TotalStaked:         pool.TotalStaked.String(),
		RewardRatePerSecond: pool.RewardRatePerSecond.String(),
		LastUpdate:          pool.LastUpdate,
		AccRewardPerShare:   pool.AccRewardPerShare.String(),
		Active:              pool.Active,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	snapshot, err := s.registry.Snapshot(id)
	if err != nil {
		s.writeError(w, r, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"snapshot": "0x" + hex.EncodeToString(snapshot)})
}

func (s *Server) handlePendingRewards(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	user, ok := s.address(w, r)
	if !ok {
		return
	}
	pending, err := s.engine.PendingRewards(id, user, s.nowFn())
	if err != nil {
		s.writeError(w, r, "pending_rewards", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pending": pending.String()})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	user, ok := s.address(w, r)
	if !ok {
		return
	}
	position, err := s.engine.Position(id, user)
	if err != nil {
		s.writeError(w, r, "position", err)
		return
	}
	userHash := farming.UserHash(user, id)
	writeJSON(w, http.StatusOK, map[string]any{
		"stakedAmount": position.StakedAmount.String(),
		"rewardDebt":   position.RewardDebt.String(),
		"lastClaim":    position.LastClaim,
		"userHash":     "0x" + hex.EncodeToString(userHash[:]),
	})
}

type stakeRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	s.handleMovement(w, r, "stake", s.engine.Stake)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleMovement(w, r, "withdraw", s.engine.Withdraw)
}

func (s *Server) handleMovement(w http.ResponseWriter, r *http.Request, operation string, apply func([20]byte, farming.PoolID, *big.Int, uint64) error) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "malformed request body")
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		s.badRequest(w, "malformed user address")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.badRequest(w, "malformed amount")
		return
	}

	start := time.Now()
	s.writeMu.Lock()
	err = apply(user, id, amount, s.nowFn())
	s.writeMu.Unlock()
	s.observe(operation, start, err)
	if err != nil {
		s.writeError(w, r, operation, err)
		return
	}
	if pool, err := s.registry.GetPool(id); err == nil {
		observability.Farming().SetTotalStaked(id.String(), pool.TotalStaked)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type claimRequest struct {
	User string `json:"user"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "malformed request body")
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		s.badRequest(w, "malformed user address")
		return
	}

	start := time.Now()
	s.writeMu.Lock()
	paid, err := s.engine.ClaimRewards(user, id, s.nowFn())
	s.writeMu.Unlock()
	s.observe("claim", start, err)
	if err != nil {
		s.writeError(w, r, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"paid": paid.String()})
}

type createPoolRequest struct {
	Caller     string `json:"caller"`
	StakeToken string `json:"stakeToken"`
	RewardRate string `json:"rewardRatePerSecond"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "malformed request body")
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.badRequest(w, "malformed caller address")
		return
	}
	rate, err := parseAmount(req.RewardRate)
	if err != nil {
		s.badRequest(w, "malformed reward rate")
		return
	}

	start := time.Now()
	s.writeMu.Lock()
	id, err := s.registry.CreatePool(caller, req.StakeToken, rate, s.nowFn(), farming.PoolSalt)
	s.writeMu.Unlock()
	s.observe("create_pool", start, err)
	if err != nil {
		s.writeError(w, r, "create_pool", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"poolId": id.String()})
}

type updateRateRequest struct {
	Caller     string `json:"caller"`
	RewardRate string `json:"rewardRatePerSecond"`
}

func (s *Server) handleUpdateRate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var req updateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "malformed request body")
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.badRequest(w, "malformed caller address")
		return
	}
	rate, err := parseAmount(req.RewardRate)
	if err != nil {
		s.badRequest(w, "malformed reward rate")
		return
	}

	start := time.Now()
	s.writeMu.Lock()
	err = s.registry.UpdateRewardRate(caller, id, rate, s.nowFn())
	s.writeMu.Unlock()
	s.observe("update_rate", start, err)
	if err != nil {
		s.writeError(w, r, "update_rate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type emergencyWithdrawRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req emergencyWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "malformed request body")
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.badRequest(w, "malformed caller address")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.badRequest(w, "malformed amount")
		return
	}

	start := time.Now()
	s.writeMu.Lock()
	err = s.engine.EmergencyWithdraw(caller, req.Token, amount)
	s.writeMu.Unlock()
	s.observe("emergency_withdraw", start, err)
	if err != nil {
		s.writeError(w, r, "emergency_withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type transferAuthorityRequest struct {
	Caller string `json:"caller"`
	Next   string `json:"next"`
}

func (s *Server) handleTransferAuthority(w http.ResponseWriter, r *http.Request) {
	var req transferAuthorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "malformed request body")
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.badRequest(w, "malformed caller address")
		return
	}
	next, err := parseAddress(req.Next)
	if err != nil {
		s.badRequest(w, "malformed next address")
		return
	}

	start := time.Now()
	s.writeMu.Lock()
	err = s.registry.TransferAuthority(caller, next)
	s.writeMu.Unlock()
	s.observe("transfer_authority", start, err)
	if err != nil {
		s.writeError(w, r, "transfer_authority", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			writeJSON(w, http.StatusForbidden, errorPayload{Error: "admin surface disabled"})
			return
		}
		if err := s.auth.Authorize(r); err != nil {
			writeJSON(w, http.StatusUnauthorized, errorPayload{Error: "authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) observe(operation string, start time.Time, err error) {
	metrics := observability.Farming()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordOperation(operation, outcome)
	metrics.ObserveLatency(operation, time.Since(start).Seconds())
}

func (s *Server) poolID(w http.ResponseWriter, r *http.Request) (farming.PoolID, bool) {
	id, err := farming.ParsePoolID(chi.URLParam(r, "poolID"))
	if err != nil {
		s.badRequest(w, "malformed pool id")
		return farming.PoolID{}, false
	}
	return id, true
}

func (s *Server) address(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.badRequest(w, "malformed address")
		return [20]byte{}, false
	}
	return addr, true
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorPayload{Error: message})
}

type errorPayload struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("operation failed", "operation", operation, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("operation rejected", "operation", operation, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorPayload{Error: err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, farming.ErrInvalidToken),
		errors.Is(err, farming.ErrInvalidPoolID),
		errors.Is(err, farming.ErrZeroRate),
		errors.Is(err, farming.ErrRateTooLarge),
		errors.Is(err, farming.ErrZeroAmount):
		return http.StatusBadRequest
	case errors.Is(err, farming.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, farming.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, farming.ErrPoolExists),
		errors.Is(err, farming.ErrPoolInactive),
		errors.Is(err, farming.ErrInsufficientStake),
		errors.Is(err, farming.ErrNoRewards):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, farming.ErrTransferFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, farming.ErrReentrantCall):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	if len(decoded) != len(addr) {
		return addr, errors.New("address must be 20 bytes")
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("amount must be a base-10 integer")
	}
	return value, nil
}
