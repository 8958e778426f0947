package match

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Position is one account's holding in a single asset. Balance is the
// spendable amount, Locked the amount reserved by resting orders. Both are
// always non-negative; transfers fail rather than clamp.
type Position struct {
	Balance decimal.Decimal `json:"balance"`
	Locked  decimal.Decimal `json:"locked"`
}

// Deposit credits the spendable balance.
func (p *Position) Deposit(amount decimal.Decimal) {
	p.Balance = p.Balance.Add(amount)
}

// Lock moves amount from the spendable balance into the locked bucket.
func (p *Position) Lock(amount decimal.Decimal) error {
	if amount.GreaterThan(p.Balance) {
		return fmt.Errorf("lock %s with balance %s: %w", amount, p.Balance, ErrInsufficientBalance)
	}
	p.Balance = p.Balance.Sub(amount)
	p.Locked = p.Locked.Add(amount)
	return nil
}

// Unlock moves amount from the locked bucket back to the spendable balance.
func (p *Position) Unlock(amount decimal.Decimal) error {
	if amount.GreaterThan(p.Locked) {
		return fmt.Errorf("unlock %s with locked %s: %w", amount, p.Locked, ErrInsufficientBalance)
	}
	p.Locked = p.Locked.Sub(amount)
	p.Balance = p.Balance.Add(amount)
	return nil
}

// SpendLocked consumes amount from the locked bucket during settlement.
// This is the only operation besides Deposit that changes Balance+Locked.
func (p *Position) SpendLocked(amount decimal.Decimal) error {
	if amount.GreaterThan(p.Locked) {
		return fmt.Errorf("spend %s with locked %s: %w", amount, p.Locked, ErrInsufficientBalance)
	}
	p.Locked = p.Locked.Sub(amount)
	return nil
}

// Total returns Balance+Locked.
func (p *Position) Total() decimal.Decimal {
	return p.Balance.Add(p.Locked)
}

// Account holds one trader's positions keyed by asset.
type Account struct {
	ID        uint64               `json:"account_id"`
	Positions map[string]*Position `json:"positions"`
}

// NewAccount creates an account with no positions.
func NewAccount(id uint64) *Account {
	return &Account{
		ID:        id,
		Positions: make(map[string]*Position),
	}
}

// Position returns the account's position in asset, creating a zero
// position on first use.
func (a *Account) Position(asset string) *Position {
	pos, ok := a.Positions[asset]
	if !ok {
		pos = &Position{}
		a.Positions[asset] = pos
	}
	return pos
}

// AccountRepository is the keyed account lookup table. Like all engine
// state it is owned by the engine thread.
type AccountRepository struct {
	accounts map[uint64]*Account
}

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[uint64]*Account),
	}
}

// Get returns the account with the given ID.
func (r *AccountRepository) Get(id uint64) (*Account, bool) {
	acct, ok := r.accounts[id]
	return acct, ok
}

// GetOrCreate returns the account with the given ID, creating it if absent.
// Deposits are the only path that creates accounts.
func (r *AccountRepository) GetOrCreate(id uint64) *Account {
	acct, ok := r.accounts[id]
	if !ok {
		acct = NewAccount(id)
		r.accounts[id] = acct
	}
	return acct
}

// Len returns the number of accounts.
func (r *AccountRepository) Len() int {
	return len(r.accounts)
}

// All returns every account sorted by ID, for deterministic snapshots.
func (r *AccountRepository) All() []*Account {
	accounts := make([]*Account, 0, len(r.accounts))
	for _, acct := range r.accounts {
		accounts = append(accounts, acct)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

// LoadAll replaces the repository content from a snapshot.
func (r *AccountRepository) LoadAll(accounts []*Account) {
	r.accounts = make(map[uint64]*Account, len(accounts))
	for _, acct := range accounts {
		if acct.Positions == nil {
			acct.Positions = make(map[string]*Position)
		}
		r.accounts[acct.ID] = acct
	}
}
