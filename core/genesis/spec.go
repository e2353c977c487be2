package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec describes the initial ledger of a farm node: the registered tokens,
// opening balances and standing approvals.
type Spec struct {
	Tokens    []TokenSpec                  `yaml:"tokens"`
	Alloc     map[string]map[string]string `yaml:"alloc"` // account -> token -> amount
	Approvals []ApprovalSpec               `yaml:"approvals"`
}

type TokenSpec struct {
	Symbol        string `yaml:"symbol"`
	Name          string `yaml:"name"`
	Decimals      uint8  `yaml:"decimals"`
	MintAuthority string `yaml:"mintAuthority,omitempty"`
}

type ApprovalSpec struct {
	Token   string `yaml:"token"`
	Owner   string `yaml:"owner"`
	Spender string `yaml:"spender"`
	Amount  string `yaml:"amount"`
}

// LoadSpec reads and validates a YAML genesis file. Unknown fields are
// rejected.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates an in-memory genesis document.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if len(s.Tokens) == 0 {
		return fmt.Errorf("tokens: at least one token must be defined")
	}

	tokenSymbols := make(map[string]struct{}, len(s.Tokens))
	for i := range s.Tokens {
		if err := s.Tokens[i].validate(); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		key := normalizeSymbol(s.Tokens[i].Symbol)
		if _, exists := tokenSymbols[key]; exists {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, s.Tokens[i].Symbol)
		}
		tokenSymbols[key] = struct{}{}
	}

	accounts := make([]string, 0, len(s.Alloc))
	for account := range s.Alloc {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	seenAccounts := make(map[string]string, len(accounts))
	for _, account := range accounts {
		addr, err := ParseAccountRef(account)
		if err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		if prev, dup := seenAccounts[string(addr.Bytes())]; dup {
			return fmt.Errorf("alloc[%q]: same account as %q", account, prev)
		}
		seenAccounts[string(addr.Bytes())] = account

		seen := make(map[string]struct{}, len(s.Alloc[account]))
		for symbol, amount := range s.Alloc[account] {
			symKey := normalizeSymbol(symbol)
			if _, exists := tokenSymbols[symKey]; !exists {
				return fmt.Errorf("alloc[%q][%q]: undefined token", account, symbol)
			}
			if _, dup := seen[symKey]; dup {
				return fmt.Errorf("alloc[%q]: duplicate token %q", account, symbol)
			}
			seen[symKey] = struct{}{}
			if _, err := parseAmountString(amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
		}
	}

	for i, approval := range s.Approvals {
		if _, exists := tokenSymbols[normalizeSymbol(approval.Token)]; !exists {
			return fmt.Errorf("approvals[%d]: undefined token %q", i, approval.Token)
		}
		if _, err := ParseAccountRef(approval.Owner); err != nil {
			return fmt.Errorf("approvals[%d].owner: %w", i, err)
		}
		if _, err := ParseAccountRef(approval.Spender); err != nil {
			return fmt.Errorf("approvals[%d].spender: %w", i, err)
		}
		if _, err := parseAmountString(approval.Amount); err != nil {
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
	}
	return nil
}

func (t *TokenSpec) validate() error {
	symbol := normalizeSymbol(t.Symbol)
	if symbol == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name must be provided")
	}
	if t.Decimals > 36 {
		return fmt.Errorf("decimals must be <= 36")
	}
	if strings.TrimSpace(t.MintAuthority) != "" {
		if _, err := ParseAccountRef(t.MintAuthority); err != nil {
			return fmt.Errorf("mintAuthority: %w", err)
		}
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
