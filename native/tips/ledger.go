package tips

import (
	"math/big"
)

type ledgerState interface {
	TipsLedgerBalance() (*big.Int, error)
	TipsLedgerBalancePut(amount *big.Int) error
}

// ledger tracks fees owed to the protocol. Only the engine reaches it, and
// only while holding the engine lock.
type ledger struct {
	state ledgerState
}

func (l ledger) balance() (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	amount, err := l.state.TipsLedgerBalance()
	if err != nil {
		return nil, err
	}
	return newBigInt(amount), nil
}

// credit adds amount to the withdrawable pool and returns the new balance.
func (l ledger) credit(amount *big.Int) (*big.Int, error) {
	current, err := l.balance()
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return current, nil
	}
	updated := new(big.Int).Add(current, amount)
	if err := l.state.TipsLedgerBalancePut(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// debitAll zeroes the pool and returns what it held.
func (l ledger) debitAll() (*big.Int, error) {
	current, err := l.balance()
	if err != nil {
		return nil, err
	}
	if current.Sign() == 0 {
		return current, nil
	}
	if err := l.state.TipsLedgerBalancePut(big.NewInt(0)); err != nil {
		return nil, err
	}
	return current, nil
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
