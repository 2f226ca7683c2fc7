package state

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vwtips/native/tips"
)

type storedTipsConfig struct {
	InitializedVersion    uint64
	ImplementationVersion uint64
	PriceFeed             common.Address
	FeeRate               uint64
	Admin                 common.Address
}

// TipsConfig loads the tips contract configuration. The boolean reports
// whether a configuration has been written.
func (m *Manager) TipsConfig() (*tips.Config, bool, error) {
	var stored storedTipsConfig
	ok, err := m.KVGet(tipsConfigKeyBytes, &stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: load tips config: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &tips.Config{
		InitializedVersion:    stored.InitializedVersion,
		ImplementationVersion: stored.ImplementationVersion,
		PriceFeed:             stored.PriceFeed,
		FeeRate:               stored.FeeRate,
		Admin:                 stored.Admin,
	}, true, nil
}

// TipsConfigPut persists the tips contract configuration.
func (m *Manager) TipsConfigPut(cfg *tips.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: tips config must not be nil")
	}
	return m.KVPut(tipsConfigKeyBytes, storedTipsConfig{
		InitializedVersion:    cfg.InitializedVersion,
		ImplementationVersion: cfg.ImplementationVersion,
		PriceFeed:             cfg.PriceFeed,
		FeeRate:               cfg.FeeRate,
		Admin:                 cfg.Admin,
	})
}

// TipsLedgerBalance returns the fee balance available for withdrawal.
func (m *Manager) TipsLedgerBalance() (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(tipsLedgerKeyBytes, amount)
	if err != nil {
		return nil, fmt.Errorf("state: load tips ledger: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// TipsLedgerBalancePut stores the fee balance available for withdrawal.
func (m *Manager) TipsLedgerBalancePut(amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative tips ledger balance")
	}
	return m.KVPut(tipsLedgerKeyBytes, amount)
}

// TipsRoleMembers returns the accounts holding role in the tips contract.
func (m *Manager) TipsRoleMembers(role common.Hash) ([]common.Address, error) {
	return m.RoleMembers(tipsRoleScope, role)
}

// TipsRoleMembersPut replaces the accounts holding role in the tips contract.
func (m *Manager) TipsRoleMembersPut(role common.Hash, members []common.Address) error {
	return m.SetRoleMembers(tipsRoleScope, role, members)
}

// TipsSequence returns the last issued event sequence number.
func (m *Manager) TipsSequence() (uint64, error) {
	var seq uint64
	if _, err := m.KVGet(tipsSequenceKeyBytes, &seq); err != nil {
		return 0, fmt.Errorf("state: load tips sequence: %w", err)
	}
	return seq, nil
}

// TipsNextSequence increments and returns the event sequence number. The
// first value issued is 1.
func (m *Manager) TipsNextSequence() (uint64, error) {
	seq, err := m.TipsSequence()
	if err != nil {
		return 0, err
	}
	if seq == math.MaxUint64 {
		return 0, fmt.Errorf("state: tips sequence exhausted")
	}
	seq++
	if err := m.KVPut(tipsSequenceKeyBytes, seq); err != nil {
		return 0, err
	}
	return seq, nil
}
