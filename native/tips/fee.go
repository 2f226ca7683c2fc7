package tips

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var feeScale = uint256.NewInt(FeeScale)

// Split divides a gross amount into the protocol fee and the net payout:
// fee = floor(gross * rate / FeeScale), net = gross - fee. Arithmetic runs on
// 256-bit words; gross values or products that do not fit are rejected with
// ErrArithmeticOverflow rather than wrapped.
func Split(gross *big.Int, rate uint64) (fee *big.Int, net *big.Int, err error) {
	if gross == nil || gross.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: gross %v", ErrZeroAmount, gross)
	}
	if rate > FeeScale {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrInvalidFeeRate, rate, FeeScale)
	}
	amount, overflow := uint256.FromBig(gross)
	if overflow {
		return nil, nil, fmt.Errorf("%w: gross exceeds 256 bits", ErrArithmeticOverflow)
	}
	product, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(rate))
	if overflow {
		return nil, nil, fmt.Errorf("%w: %s * %d", ErrArithmeticOverflow, gross, rate)
	}
	feeWord := new(uint256.Int).Div(product, feeScale)
	netWord := new(uint256.Int).Sub(amount, feeWord)
	return feeWord.ToBig(), netWord.ToBig(), nil
}
