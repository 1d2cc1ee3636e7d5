package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"merkledrop/core/events"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: invalid amount")
	ErrZeroAddress         = errors.New("bank: zero address")

	errNilState = errors.New("bank: state not configured")
)

// Port moves tokens between accounts and the vault of the module holding the
// port. Pull takes tokens from an account into the vault, Push pays out of it.
type Port interface {
	Pull(token, from common.Address, amount *big.Int) error
	Push(token, to common.Address, amount *big.Int) error
}

type balanceState interface {
	Balance(token, owner common.Address) (*big.Int, error)
	SetBalance(token, owner common.Address, amount *big.Int) error
}

// VaultAddress derives the account that custodies funds for module.
func VaultAddress(module string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("vault:" + module)))
}

// Ledger is the Port implementation backed by ledger state. Balance changes
// land in the same state overlay as the caller's bookkeeping.
type Ledger struct {
	module  string
	vault   common.Address
	state   balanceState
	emitter events.Emitter
}

// NewLedger returns a ledger whose vault belongs to module.
func NewLedger(module string) *Ledger {
	return &Ledger{
		module:  module,
		vault:   VaultAddress(module),
		emitter: events.NoopEmitter{},
	}
}

func (l *Ledger) SetState(state balanceState) { l.state = state }

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) Module() string { return l.module }

func (l *Ledger) Vault() common.Address { return l.vault }

func (l *Ledger) Pull(token, from common.Address, amount *big.Int) error {
	return l.Transfer(token, from, l.vault, amount)
}

func (l *Ledger) Push(token, to common.Address, amount *big.Int) error {
	return l.Transfer(token, l.vault, to, amount)
}

// Transfer moves amount of token from one account to another. A zero amount
// is a no-op.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if token == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := l.state.Balance(token, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := l.state.Balance(token, to)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(token, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.state.SetBalance(token, to, new(big.Int).Add(toBal, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Token: token, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Credit mints amount of token to owner. Used for genesis balances.
func (l *Ledger) Credit(token, owner common.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if token == (common.Address{}) || owner == (common.Address{}) {
		return ErrZeroAddress
	}
	current, err := l.state.Balance(token, owner)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(token, owner, new(big.Int).Add(current, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Token: token, To: owner, Amount: new(big.Int).Set(amount)})
	return nil
}

func (l *Ledger) BalanceOf(token, owner common.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	return l.state.Balance(token, owner)
}
