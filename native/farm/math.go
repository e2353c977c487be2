package farm

import (
	"math/big"

	"github.com/holiman/uint256"
)

// fixedPointScale is the 1e18 precision applied to AccRewardPerShare.
var fixedPointScale = uint256.NewInt(1_000_000_000_000_000_000)

// FixedPointScale returns a copy of the accumulator precision as a big.Int.
func FixedPointScale() *big.Int {
	return fixedPointScale.ToBig()
}

// toWord converts a non-negative amount into a 256-bit word. Values that do
// not fit, and negative values, fail closed.
func toWord(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrOverflow
	}
	word, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	return word, nil
}

func checkedAdd(a, b *big.Int) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	y, err := toWord(b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return sum.ToBig(), nil
}

func checkedSub(a, b *big.Int) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	y, err := toWord(b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrOverflow
	}
	return diff.ToBig(), nil
}

func checkedMulUint64(a *big.Int, n uint64) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(x, uint256.NewInt(n))
	if overflow {
		return nil, ErrOverflow
	}
	return product.ToBig(), nil
}

// mulDivFloor computes floor(a*b/d) with a 512-bit intermediate product so the
// multiplication never loses precision. Only a quotient that does not fit in
// 256 bits is rejected.
func mulDivFloor(a, b, d *big.Int) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	y, err := toWord(b)
	if err != nil {
		return nil, err
	}
	z, err := toWord(d)
	if err != nil {
		return nil, err
	}
	if z.IsZero() {
		return nil, ErrOverflow
	}
	quotient, overflow := new(uint256.Int).MulDivOverflow(x, y, z)
	if overflow {
		return nil, ErrOverflow
	}
	return quotient.ToBig(), nil
}

// divModUint64 splits a into floor(a/n) and the remainder.
func divModUint64(a *big.Int, n uint64) (*big.Int, *big.Int, error) {
	if n == 0 {
		return nil, nil, ErrOverflow
	}
	x, err := toWord(a)
	if err != nil {
		return nil, nil, err
	}
	divisor := uint256.NewInt(n)
	quotient := new(uint256.Int).Div(x, divisor)
	remainder := new(uint256.Int).Mod(x, divisor)
	return quotient.ToBig(), remainder.ToBig(), nil
}
