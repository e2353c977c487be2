package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"epkfarm/core/genesis"
)

func TestDevnetGenesisIsValid(t *testing.T) {
	spec, err := genesis.LoadSpec("genesis.devnet.yaml")
	require.NoError(t, err)
	require.Len(t, spec.Tokens, 2)
}
