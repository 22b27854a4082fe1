package routers

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ve-ledger/handlers"
)

// RegisterRoutes sets up all the HTTP routes for the vote-escrow ledger
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Stakes tokens for a fixed duration and starts voting-power accrual
	r.HandleFunc("/locks", h.CreateLock).Methods("POST")

	// Adds principal to a live lock, boosting only the added amount
	r.HandleFunc("/locks/extend-amount", h.ExtendLockAmount).Methods("POST")

	// Pushes a live lock's end period further out
	r.HandleFunc("/locks/extend-time", h.ExtendLockTime).Methods("POST")

	// Returns the principal of a fully decayed lock
	r.HandleFunc("/locks/withdraw", h.Withdraw).Methods("POST")

	// Retrieves an account's lock record
	r.HandleFunc("/locks/{account}", h.GetLock).Methods("GET")

	// Adds and removes blacklist members
	r.HandleFunc("/blacklist", h.UpdateBlacklist).Methods("POST")

	// Checks blacklist membership for a list of accounts
	r.HandleFunc("/blacklist/check", h.CheckBlacklist).Methods("GET")

	// Pages through blacklist members
	r.HandleFunc("/blacklist", h.GetBlacklist).Methods("GET")

	// Aggregate voting power at a period, a time, or now
	r.HandleFunc("/total-voting-power", h.GetTotalVotingPower).Methods("GET")

	// An account's voting power at a period, a time, or now
	r.HandleFunc("/voting-power/{account}", h.GetVotingPower).Methods("GET")

	// An account's staked principal at a point in time, independent of decay
	r.HandleFunc("/locked-balance/{account}", h.GetLockedBalance).Methods("GET")

	// Token custody collaborator surface
	r.HandleFunc("/bank/deposit", h.Deposit).Methods("POST")
	r.HandleFunc("/bank/balance/{account}", h.GetBalance).Methods("GET")

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
