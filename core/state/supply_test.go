package state

import (
	"math/big"
	"testing"

	"epkfarm/storage"
)

func TestAdjustTokenSupply(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	manager := NewManager(db)

	total, err := manager.TokenSupply("EPK")
	if err != nil {
		t.Fatalf("initial supply: %v", err)
	}
	if total.Sign() != 0 {
		t.Fatalf("expected zero supply, got %s", total)
	}

	updated, err := manager.AdjustTokenSupply("epk", big.NewInt(1000))
	if err != nil {
		t.Fatalf("adjust supply: %v", err)
	}
	if updated.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected supply after mint: %s", updated)
	}

	updated, err = manager.AdjustTokenSupply("EPK", big.NewInt(-250))
	if err != nil {
		t.Fatalf("burn supply: %v", err)
	}
	if updated.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("unexpected supply after burn: %s", updated)
	}

	if _, err = manager.AdjustTokenSupply("EPK", big.NewInt(-1000)); err == nil {
		t.Fatalf("expected underflow protection")
	}
}
