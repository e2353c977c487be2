package genesis

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"epkfarm/core/state"
	"epkfarm/crypto"
	"epkfarm/storage"
)

const devnetGenesis = `
tokens:
  - symbol: lp
    name: EPK-ETH LP
    decimals: 18
    mintAuthority: "label:minter"
  - symbol: EPK
    name: Epik
    decimals: 18
    mintAuthority: "label:minter"
alloc:
  "label:funder":
    EPK: "1000000000000000000000"
  "label:alice":
    LP: "100"
    epk: "0"
approvals:
  - token: EPK
    owner: "label:funder"
    spender: "module:farm"
    amount: "500"
`

func writeGenesis(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAndApplyGenesis(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	applied, err := LoadAndApply(writeGenesis(t, devnetGenesis), db)
	require.NoError(t, err)
	require.True(t, applied)

	manager := state.NewManager(db)
	symbols, err := manager.TokenList()
	require.NoError(t, err)
	require.Equal(t, []string{"EPK", "LP"}, symbols)

	meta, err := manager.Token("lp")
	require.NoError(t, err)
	require.Equal(t, "EPK-ETH LP", meta.Name)
	require.Equal(t, crypto.DeriveAddress("minter").Bytes(), meta.MintAuthority)

	funder := crypto.DeriveAddress("funder")
	balance, err := manager.Balance(funder.Bytes(), "EPK")
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("1000000000000000000000", 10)
	require.Zero(t, balance.Cmp(want))

	supply, err := manager.TokenSupply("EPK")
	require.NoError(t, err)
	require.Zero(t, supply.Cmp(want))

	lp, err := manager.Balance(crypto.DeriveAddress("alice").Bytes(), "LP")
	require.NoError(t, err)
	require.Zero(t, lp.Cmp(big.NewInt(100)))

	allowance, err := manager.Allowance(funder.Bytes(), crypto.ModuleAddress("farm").Bytes(), "EPK")
	require.NoError(t, err)
	require.Zero(t, allowance.Cmp(big.NewInt(500)))
}

func TestApplyIsSkippedOnInitialisedState(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	path := writeGenesis(t, devnetGenesis)

	_, err := LoadAndApply(path, db)
	require.NoError(t, err)
	keys := db.Len()

	applied, err := LoadAndApply(path, db)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, keys, db.Len())

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	require.ErrorIs(t, Apply(spec, db), ErrAlreadyInitialised)
}

func TestParseSpecRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "tokens:\n  - {symbol: A, name: A, decimals: 1}\nvalidators: []\n",
		"no tokens":       "alloc: {}\n",
		"duplicate token": "tokens:\n  - {symbol: A, name: A}\n  - {symbol: a, name: B}\n",
		"missing name":    "tokens:\n  - {symbol: A}\n",
		"undefined token": "tokens:\n  - {symbol: A, name: A}\nalloc:\n  \"label:x\": {B: \"1\"}\n",
		"bad amount":      "tokens:\n  - {symbol: A, name: A}\nalloc:\n  \"label:x\": {A: \"1.5\"}\n",
		"negative amount": "tokens:\n  - {symbol: A, name: A}\nalloc:\n  \"label:x\": {A: \"-1\"}\n",
		"bad account":     "tokens:\n  - {symbol: A, name: A}\nalloc:\n  \"nhb1qqqq\": {A: \"1\"}\n",
		"empty label":     "tokens:\n  - {symbol: A, name: A}\nalloc:\n  \"label:\": {A: \"1\"}\n",
		"bad approval":    "tokens:\n  - {symbol: A, name: A}\napprovals:\n  - {token: B, owner: \"label:x\", spender: \"module:farm\", amount: \"1\"}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSpec([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestParseSpecRejectsAliasedAccounts(t *testing.T) {
	alice := crypto.DeriveAddress("alice").String()
	body := "tokens:\n  - {symbol: A, name: A}\nalloc:\n  \"label:alice\": {A: \"1\"}\n  \"" + alice + "\": {A: \"2\"}\n"
	_, err := ParseSpec([]byte(body))
	require.ErrorContains(t, err, "same account")
}

func TestParseAccountRef(t *testing.T) {
	alice := crypto.DeriveAddress("alice")

	got, err := ParseAccountRef("label:alice")
	require.NoError(t, err)
	require.True(t, got.Equal(alice))

	got, err = ParseAccountRef(" " + alice.String() + " ")
	require.NoError(t, err)
	require.True(t, got.Equal(alice))

	got, err = ParseAccountRef("module:farm")
	require.NoError(t, err)
	require.True(t, got.Equal(crypto.ModuleAddress("farm")))
	require.Equal(t, crypto.ModulePrefix, got.Prefix())

	_, err = ParseAccountRef("")
	require.Error(t, err)

	foreign := crypto.NewAddress(crypto.AddressPrefix("cosmos"), alice.Bytes()).String()
	_, err = ParseBech32Account(foreign)
	require.ErrorContains(t, err, "unsupported hrp")
}
