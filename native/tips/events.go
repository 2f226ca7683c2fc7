package tips

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"vwtips/core/types"
)

const (
	// EventTypeInitialized is emitted once when the contract is initialized.
	EventTypeInitialized = "tips.initialized"
	// EventTypeTip is emitted for every completed tip.
	EventTypeTip = "tips.tip"
	// EventTypeWithdrawal is emitted when accumulated fees are withdrawn.
	EventTypeWithdrawal = "tips.withdrawal"
	// EventTypeRoleGranted is emitted when an account gains a role.
	EventTypeRoleGranted = "tips.role.granted"
	// EventTypeRoleRevoked is emitted when an account loses a role.
	EventTypeRoleRevoked = "tips.role.revoked"
	// EventTypeUpgraded is emitted when the implementation version changes.
	EventTypeUpgraded = "tips.upgraded"
)

// InitializedEvent records the one-time initialization.
type InitializedEvent struct {
	Version   uint64
	PriceFeed common.Address
	FeeRate   uint64
	Admin     common.Address
	Sequence  uint64
}

func (InitializedEvent) EventType() string { return EventTypeInitialized }

func (e InitializedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeInitialized,
		Attributes: map[string]string{
			"version":   formatUint(e.Version),
			"priceFeed": hexAddr(e.PriceFeed),
			"feeRate":   formatUint(e.FeeRate),
			"admin":     hexAddr(e.Admin),
			"sequence":  formatUint(e.Sequence),
		},
	}
}

// TipEvent records a completed tip.
type TipEvent struct {
	Sender         common.Address
	Recipient      common.Address
	Gross          *big.Int
	Fee            *big.Int
	Net            *big.Int
	ReferenceValue *big.Int
	Rate           *big.Int
	Sequence       uint64
}

func (TipEvent) EventType() string { return EventTypeTip }

func (e TipEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeTip,
		Attributes: map[string]string{
			"sender":         hexAddr(e.Sender),
			"recipient":      hexAddr(e.Recipient),
			"gross":          formatAmount(e.Gross),
			"fee":            formatAmount(e.Fee),
			"net":            formatAmount(e.Net),
			"referenceValue": formatAmount(e.ReferenceValue),
			"rate":           formatAmount(e.Rate),
			"sequence":       formatUint(e.Sequence),
		},
	}
}

// WithdrawalEvent records a drain of the fee ledger.
type WithdrawalEvent struct {
	Caller      common.Address
	Destination common.Address
	Amount      *big.Int
	Sequence    uint64
}

func (WithdrawalEvent) EventType() string { return EventTypeWithdrawal }

func (e WithdrawalEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawal,
		Attributes: map[string]string{
			"caller":      hexAddr(e.Caller),
			"destination": hexAddr(e.Destination),
			"amount":      formatAmount(e.Amount),
			"sequence":    formatUint(e.Sequence),
		},
	}
}

// RoleGrantedEvent records a new role membership.
type RoleGrantedEvent struct {
	Role     common.Hash
	Account  common.Address
	Sender   common.Address
	Sequence uint64
}

func (RoleGrantedEvent) EventType() string { return EventTypeRoleGranted }

func (e RoleGrantedEvent) Event() *types.Event {
	return roleEvent(EventTypeRoleGranted, e.Role, e.Account, e.Sender, e.Sequence)
}

// RoleRevokedEvent records a removed role membership.
type RoleRevokedEvent struct {
	Role     common.Hash
	Account  common.Address
	Sender   common.Address
	Sequence uint64
}

func (RoleRevokedEvent) EventType() string { return EventTypeRoleRevoked }

func (e RoleRevokedEvent) Event() *types.Event {
	return roleEvent(EventTypeRoleRevoked, e.Role, e.Account, e.Sender, e.Sequence)
}

// UpgradedEvent records an implementation version change.
type UpgradedEvent struct {
	From     uint64
	To       uint64
	Caller   common.Address
	Sequence uint64
}

func (UpgradedEvent) EventType() string { return EventTypeUpgraded }

func (e UpgradedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeUpgraded,
		Attributes: map[string]string{
			"from":     formatUint(e.From),
			"to":       formatUint(e.To),
			"caller":   hexAddr(e.Caller),
			"sequence": formatUint(e.Sequence),
		},
	}
}

func roleEvent(kind string, role common.Hash, account, sender common.Address, seq uint64) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"role":     role.Hex(),
			"account":  hexAddr(account),
			"sender":   hexAddr(sender),
			"sequence": formatUint(seq),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
