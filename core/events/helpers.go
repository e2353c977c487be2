package events

import (
	"math/big"
	"strconv"
	"strings"

	"epkfarm/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatHeight(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func zeroAddress(addr [20]byte) bool {
	for _, b := range addr {
		if b != 0 {
			return false
		}
	}
	return true
}

func formatAccount(addr [20]byte) string {
	if zeroAddress(addr) {
		return ""
	}
	return crypto.MustNewAddress(crypto.EPKPrefix, addr[:]).String()
}

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}
