package bank

import (
	"encoding/json"
	"errors"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"ve-ledger/db"
)

// ErrInsufficientFunds rejects a transfer exceeding the source balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

const (
	balancePrefix = "balance:"
	escrowKey     = "bank:escrow_pool"
)

// TokenBankInterface is the token custody surface: account balances plus an
// escrow pool holding every locked principal.
type TokenBankInterface interface {
	TransferIn(account string, amount uint64) error
	TransferOut(account string, amount uint64) error
	Deposit(account string, amount uint64) error
	Balance(account string) (uint64, error)
	EscrowBalance() (uint64, error)
}

// LevelBank implements TokenBankInterface over LevelDB
type LevelBank struct {
	db  *db.LevelDB
	mux sync.Mutex
}

// NewLevelBank creates a bank over the given LevelDB instance
func NewLevelBank(db *db.LevelDB) *LevelBank {
	return &LevelBank{db: db}
}

func (b *LevelBank) getUint(key []byte) (uint64, error) {
	data, err := b.db.Get(key)
	if err == db.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(err, "get balance")
	}
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, pkgerrors.Wrap(err, "decode balance")
	}
	return v, nil
}

func (b *LevelBank) putUint(key []byte, v uint64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.db.Put(key, data)
}

// Deposit credits freshly supplied tokens to an account
func (b *LevelBank) Deposit(account string, amount uint64) error {
	b.mux.Lock()
	defer b.mux.Unlock()

	key := []byte(balancePrefix + account)
	bal, err := b.getUint(key)
	if err != nil {
		return err
	}
	return b.putUint(key, bal+amount)
}

// TransferIn moves amount from the account balance into the escrow pool
func (b *LevelBank) TransferIn(account string, amount uint64) error {
	b.mux.Lock()
	defer b.mux.Unlock()

	key := []byte(balancePrefix + account)
	bal, err := b.getUint(key)
	if err != nil {
		return err
	}
	if bal < amount {
		return ErrInsufficientFunds
	}
	pool, err := b.getUint([]byte(escrowKey))
	if err != nil {
		return err
	}
	if err := b.putUint(key, bal-amount); err != nil {
		return err
	}
	return b.putUint([]byte(escrowKey), pool+amount)
}

// TransferOut moves amount from the escrow pool back to the account balance
func (b *LevelBank) TransferOut(account string, amount uint64) error {
	b.mux.Lock()
	defer b.mux.Unlock()

	pool, err := b.getUint([]byte(escrowKey))
	if err != nil {
		return err
	}
	if pool < amount {
		return ErrInsufficientFunds
	}
	key := []byte(balancePrefix + account)
	bal, err := b.getUint(key)
	if err != nil {
		return err
	}
	if err := b.putUint([]byte(escrowKey), pool-amount); err != nil {
		return err
	}
	return b.putUint(key, bal+amount)
}

// Balance returns the free balance of an account
func (b *LevelBank) Balance(account string) (uint64, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.getUint([]byte(balancePrefix + account))
}

// EscrowBalance returns the total principal held in escrow
func (b *LevelBank) EscrowBalance() (uint64, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.getUint([]byte(escrowKey))
}
