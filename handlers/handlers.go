package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ve-ledger/bank"
	"ve-ledger/ledger"
	"ve-ledger/logger"
)

// Handler contains the HTTP handlers for the vote-escrow ledger API
type Handler struct {
	Ledger *ledger.Ledger
	Bank   bank.TokenBankInterface
}

// NewHandler creates and returns a new Handler instance
func NewHandler(l *ledger.Ledger, b bank.TokenBankInterface) *Handler {
	return &Handler{Ledger: l, Bank: b}
}

type createLockRequest struct {
	Account  string `json:"account"`
	Amount   uint64 `json:"amount"`
	Duration uint64 `json:"duration"` // seconds
}

type extendAmountRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

type extendTimeRequest struct {
	Account string `json:"account"`
	Delta   uint64 `json:"delta"` // seconds
}

type accountRequest struct {
	Account string `json:"account"`
}

type blacklistRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

type depositRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps ledger errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrLockDoesNotExist):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrLockAlreadyExists),
		errors.Is(err, ledger.ErrLockExpired),
		errors.Is(err, ledger.ErrLockNotExpired):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrAccountBlacklisted):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInvalidDuration),
		errors.Is(err, ledger.ErrEmptyBatch),
		errors.Is(err, ledger.ErrBothLists),
		errors.Is(err, ledger.ErrReservedAccount),
		errors.Is(err, ledger.ErrZeroAmount),
		errors.Is(err, ledger.ErrAmountOverflow),
		errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Logger.Error("Failed to decode request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Invalid request payload",
		})
		return false
	}
	return true
}

// queryPeriod resolves the requested period from ?period= or ?time=,
// defaulting to the current period
func (h *Handler) queryPeriod(r *http.Request) (uint64, error) {
	if p := r.URL.Query().Get("period"); p != "" {
		return strconv.ParseUint(p, 10, 64)
	}
	clock := h.Ledger.Clock()
	if t := r.URL.Query().Get("time"); t != "" {
		ts, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, err
		}
		return clock.ToPeriod(ts), nil
	}
	return clock.ToPeriod(time.Now().Unix()), nil
}

// CreateLock handles POST requests to stake tokens for a fixed duration
func (h *Handler) CreateLock(w http.ResponseWriter, r *http.Request) {
	var req createLockRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Ledger.CreateLock(req.Account, req.Amount, req.Duration); err != nil {
		logger.Logger.Error("Failed to create lock", zap.String("account", req.Account), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Lock created successfully",
		"account": req.Account,
	})
}

// ExtendLockAmount handles POST requests to add principal to a live lock
func (h *Handler) ExtendLockAmount(w http.ResponseWriter, r *http.Request) {
	var req extendAmountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Ledger.ExtendLockAmount(req.Account, req.Amount); err != nil {
		logger.Logger.Error("Failed to extend lock amount", zap.String("account", req.Account), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Lock amount extended",
		"account": req.Account,
	})
}

// ExtendLockTime handles POST requests to push a lock's end further out
func (h *Handler) ExtendLockTime(w http.ResponseWriter, r *http.Request) {
	var req extendTimeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Ledger.ExtendLockTime(req.Account, req.Delta); err != nil {
		logger.Logger.Error("Failed to extend lock time", zap.String("account", req.Account), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Lock time extended",
		"account": req.Account,
	})
}

// Withdraw handles POST requests to reclaim an expired lock's principal
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Ledger.Withdraw(req.Account); err != nil {
		logger.Logger.Error("Failed to withdraw", zap.String("account", req.Account), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Lock withdrawn",
		"account": req.Account,
	})
}

// UpdateBlacklist handles POST requests to add or remove blacklist members
func (h *Handler) UpdateBlacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Ledger.UpdateBlacklist(req.Add, req.Remove); err != nil {
		logger.Logger.Error("Failed to update blacklist", zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Blacklist updated",
		"added":   len(req.Add),
		"removed": len(req.Remove),
	})
}

// GetLock handles GET requests for an account's lock record
func (h *Handler) GetLock(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	lock, err := h.Ledger.LockInfo(account)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"lock":    lock,
	})
}

// GetVotingPower handles GET requests for an account's voting power at a
// period, a time, or now
func (h *Handler) GetVotingPower(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	period, err := h.queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	power, err := h.Ledger.VotingPowerAtPeriod(account, period)
	if err != nil {
		logger.Logger.Error("Failed to query voting power", zap.String("account", account), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"period":  period,
		"power":   power,
	})
}

// GetTotalVotingPower handles GET requests for aggregate voting power
func (h *Handler) GetTotalVotingPower(w http.ResponseWriter, r *http.Request) {
	period, err := h.queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	power, err := h.Ledger.TotalVotingPowerAtPeriod(period)
	if err != nil {
		logger.Logger.Error("Failed to query total voting power", zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period": period,
		"power":  power,
	})
}

// GetLockedBalance handles GET requests for point-in-time staked principal
func (h *Handler) GetLockedBalance(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	period, err := h.queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := h.Ledger.LockedBalanceAt(account, period)
	if err != nil {
		logger.Logger.Error("Failed to query locked balance", zap.String("account", account), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"period":  period,
		"amount":  amount,
	})
}

// GetBlacklist handles GET requests for a page of blacklist members
func (h *Handler) GetBlacklist(w http.ResponseWriter, r *http.Request) {
	startAfter := r.URL.Query().Get("start_after")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		limit = v
	}
	accounts, err := h.Ledger.BlacklistedAccounts(startAfter, limit)
	if err != nil {
		logger.Logger.Error("Failed to list blacklist", zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
	})
}

// CheckBlacklist handles GET requests checking membership for a
// comma-separated list of accounts
func (h *Handler) CheckBlacklist(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("accounts")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "accounts query parameter is required",
		})
		return
	}
	result, err := h.Ledger.IsBlacklisted(strings.Split(raw, ","))
	if err != nil {
		logger.Logger.Error("Failed to check blacklist", zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"blacklisted": result,
	})
}

// Deposit handles POST requests crediting tokens to an account balance
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Bank.Deposit(req.Account, req.Amount); err != nil {
		logger.Logger.Error("Failed to deposit", zap.String("account", req.Account), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Deposit credited",
		"account": req.Account,
		"amount":  req.Amount,
	})
}

// GetBalance handles GET requests for an account's free token balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	balance, err := h.Bank.Balance(account)
	if err != nil {
		logger.Logger.Error("Failed to query balance", zap.String("account", account), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"balance": balance,
	})
}
