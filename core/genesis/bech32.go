package genesis

import (
	"fmt"
	"strings"

	"epkfarm/crypto"
)

const (
	labelPrefix  = "label:"
	modulePrefix = "module:"
)

// ParseBech32Account decodes an epk or epkmod address.
func ParseBech32Account(addr string) (crypto.Address, error) {
	parsed, err := crypto.DecodeAddress(strings.TrimSpace(addr))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("decode bech32 account: %w", err)
	}
	switch parsed.Prefix() {
	case crypto.EPKPrefix, crypto.ModulePrefix:
		return parsed, nil
	default:
		return crypto.Address{}, fmt.Errorf("decode bech32 account: unsupported hrp %q", parsed.Prefix())
	}
}

// ParseAccountRef resolves a genesis account reference. Besides plain bech32
// addresses it accepts "label:<name>" for devnet accounts and "module:<name>"
// for native module custody accounts.
func ParseAccountRef(ref string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(trimmed, labelPrefix):
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, labelPrefix))
		if name == "" {
			return crypto.Address{}, fmt.Errorf("account %q: empty label", ref)
		}
		return crypto.DeriveAddress(name), nil
	case strings.HasPrefix(trimmed, modulePrefix):
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, modulePrefix))
		if name == "" {
			return crypto.Address{}, fmt.Errorf("account %q: empty module name", ref)
		}
		return crypto.ModuleAddress(name), nil
	case trimmed == "":
		return crypto.Address{}, fmt.Errorf("account must be provided")
	default:
		return ParseBech32Account(trimmed)
	}
}
