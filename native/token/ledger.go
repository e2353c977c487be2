// Package token implements the fungible token ledgers the farm takes custody
// through: balances, allowances and authority-gated minting over the state
// journal.
package token

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"epkfarm/core/events"
	"epkfarm/core/state"
	"epkfarm/crypto"
	nativecommon "epkfarm/native/common"
)

var (
	ErrNilState         = errors.New("token: state not configured")
	ErrInvalidAmount    = errors.New("token: amount must be positive")
	ErrNegativeAmount   = errors.New("token: amount must not be negative")
	ErrUnknownToken     = errors.New("token: not registered")
	ErrMintUnauthorized = errors.New("token: caller is not the mint authority")
	ErrZeroAddress      = errors.New("token: zero address")

	ErrInsufficientBalance   = nativecommon.ErrInsufficientBalance
	ErrInsufficientAllowance = nativecommon.ErrInsufficientAllowance
)

// Ledger is a single token's view over the state journal. Writes only become
// durable when the owning journal commits.
type Ledger struct {
	state   *state.Manager
	symbol  string
	emitter events.Emitter
}

// NewLedger binds symbol's ledger to the journal. The token must already be
// registered.
func NewLedger(manager *state.Manager, symbol string, emitter events.Emitter) (*Ledger, error) {
	if manager == nil {
		return nil, ErrNilState
	}
	meta, err := manager.Token(symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Ledger{state: manager, symbol: meta.Symbol, emitter: emitter}, nil
}

// Symbol returns the normalised token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// BalanceOf returns addr's balance.
func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	return l.state.Balance(addr.Bytes(), l.symbol)
}

// Allowance returns how much spender may still pull from owner.
func (l *Ledger) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	return l.state.Allowance(owner.Bytes(), spender.Bytes(), l.symbol)
}

// Approve overwrites spender's allowance over owner's balance. A zero amount
// revokes it.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if owner.IsZero() || spender.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if err := l.state.SetAllowance(owner.Bytes(), spender.Bytes(), l.symbol, amount); err != nil {
		return err
	}
	l.emitter.Emit(events.Approval{
		Asset:   l.symbol,
		Owner:   owner.Raw(),
		Spender: spender.Raw(),
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBal, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from, fromBal, l.symbol, amount)
	}
	if from.Equal(to) {
		l.emitTransfer(from, to, amount)
		return nil
	}
	toBal, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(from.Bytes(), l.symbol, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.state.SetBalance(to.Bytes(), l.symbol, new(big.Int).Add(toBal, amount)); err != nil {
		return err
	}
	l.emitTransfer(from, to, amount)
	return nil
}

// TransferFrom lets spender move amount out of owner's balance, consuming the
// allowance owner granted it.
func (l *Ledger) TransferFrom(spender, owner, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	allowance, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s %s, needs %s", ErrInsufficientAllowance, owner, allowance, l.symbol, amount)
	}
	if err := l.Transfer(owner, to, amount); err != nil {
		return err
	}
	return l.state.SetAllowance(owner.Bytes(), spender.Bytes(), l.symbol, new(big.Int).Sub(allowance, amount))
}

// Mint creates amount new tokens for to. Only the registered mint authority
// may mint.
func (l *Ledger) Mint(authority, to crypto.Address, amount *big.Int) error {
	if to.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	meta, err := l.state.Token(l.symbol)
	if err != nil {
		return err
	}
	if meta == nil || len(meta.MintAuthority) == 0 || !bytes.Equal(meta.MintAuthority, authority.Bytes()) {
		return ErrMintUnauthorized
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(to.Bytes(), l.symbol, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	total, err := l.state.AdjustTokenSupply(l.symbol, amount)
	if err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{
		Token:  l.symbol,
		Total:  total,
		Delta:  new(big.Int).Set(amount),
		Reason: events.SupplyReasonMint,
	})
	l.emitTransfer(crypto.Address{}, to, amount)
	return nil
}

func (l *Ledger) emitTransfer(from, to crypto.Address, amount *big.Int) {
	evt := events.Transfer{Asset: l.symbol, Amount: new(big.Int).Set(amount)}
	if !from.IsZero() {
		evt.From = from.Raw()
	}
	evt.To = to.Raw()
	l.emitter.Emit(evt)
}
