package genesis

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"epkfarm/core/state"
	"epkfarm/storage"
)

// ErrAlreadyInitialised reports that the database already carries a token
// registry, so the genesis file was not applied.
var ErrAlreadyInitialised = errors.New("genesis: state already initialised")

// Apply writes the genesis ledger into db in a single commit. Token
// registration, allocations and approvals are applied in sorted order so two
// nodes given the same file produce identical state.
func Apply(spec *Spec, db storage.Database) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return fmt.Errorf("database must not be nil")
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	manager := state.NewManager(db)
	existing, err := manager.TokenList()
	if err != nil {
		return fmt.Errorf("load token registry: %w", err)
	}
	if len(existing) > 0 {
		return ErrAlreadyInitialised
	}

	// 1) Tokens (sorted)
	tokens := append([]TokenSpec(nil), spec.Tokens...)
	sort.Slice(tokens, func(i, j int) bool {
		return normalizeSymbol(tokens[i].Symbol) < normalizeSymbol(tokens[j].Symbol)
	})
	for i := range tokens {
		token := &tokens[i]
		symbol := normalizeSymbol(token.Symbol)
		if err := manager.RegisterToken(symbol, strings.TrimSpace(token.Name), token.Decimals); err != nil {
			manager.Discard()
			return fmt.Errorf("register token %q: %w", symbol, err)
		}
		if strings.TrimSpace(token.MintAuthority) != "" {
			addr, err := ParseAccountRef(token.MintAuthority)
			if err != nil {
				manager.Discard()
				return fmt.Errorf("token %q mintAuthority: %w", symbol, err)
			}
			if err := manager.SetTokenMintAuthority(symbol, addr.Bytes()); err != nil {
				manager.Discard()
				return fmt.Errorf("token %q: %w", symbol, err)
			}
		}
	}

	// 2) Allocations (outer: accounts sorted; inner: symbols sorted)
	accounts := make([]string, 0, len(spec.Alloc))
	for account := range spec.Alloc {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		addr, err := ParseAccountRef(account)
		if err != nil {
			manager.Discard()
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		balances := spec.Alloc[account]
		symbols := make([]string, 0, len(balances))
		for symbol := range balances {
			symbols = append(symbols, symbol)
		}
		sort.Slice(symbols, func(i, j int) bool {
			return normalizeSymbol(symbols[i]) < normalizeSymbol(symbols[j])
		})
		for _, symbol := range symbols {
			amount, err := parseAmountString(balances[symbol])
			if err != nil {
				manager.Discard()
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
			if amount.Sign() == 0 {
				continue
			}
			if err := manager.SetBalance(addr.Bytes(), symbol, amount); err != nil {
				manager.Discard()
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
			if _, err := manager.AdjustTokenSupply(symbol, amount); err != nil {
				manager.Discard()
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
		}
	}

	// 3) Approvals (file order; later entries overwrite earlier ones)
	for i, approval := range spec.Approvals {
		owner, err := ParseAccountRef(approval.Owner)
		if err != nil {
			manager.Discard()
			return fmt.Errorf("approvals[%d].owner: %w", i, err)
		}
		spender, err := ParseAccountRef(approval.Spender)
		if err != nil {
			manager.Discard()
			return fmt.Errorf("approvals[%d].spender: %w", i, err)
		}
		amount, err := parseAmountString(approval.Amount)
		if err != nil {
			manager.Discard()
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
		if err := manager.SetAllowance(owner.Bytes(), spender.Bytes(), approval.Token, amount); err != nil {
			manager.Discard()
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
	}

	if err := manager.Commit(); err != nil {
		return fmt.Errorf("commit genesis state: %w", err)
	}
	return nil
}

// LoadAndApply is LoadSpec followed by Apply. An already initialised
// database is not an error; the returned flag reports whether the file was
// applied.
func LoadAndApply(path string, db storage.Database) (bool, error) {
	spec, err := LoadSpec(path)
	if err != nil {
		return false, err
	}
	if err := Apply(spec, db); err != nil {
		if errors.Is(err, ErrAlreadyInitialised) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
