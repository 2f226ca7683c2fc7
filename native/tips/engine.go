package tips

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"vwtips/core/events"
)

const (
	OpInitialize = "initialize"
	OpTip        = "tip"
	OpWithdraw   = "withdraw"
	OpGrantRole  = "grant_role"
	OpRevokeRole = "revoke_role"
	OpRenounce   = "renounce_role"
	OpUpgrade    = "upgrade"
)

type engineState interface {
	AccessState
	ledgerState
	TipsConfig() (*Config, bool, error)
	TipsConfigPut(cfg *Config) error
	TipsNextSequence() (uint64, error)
	Balance(addr common.Address) (*big.Int, error)
	SetBalance(addr common.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Observer receives the outcome of every state-changing operation.
type Observer interface {
	ObserveOperation(op string, err error)
}

// Engine is the Tips contract: it validates payments, splits fees, keeps the
// fee ledger and guards withdrawal behind DefaultAdminRole.
//
// Every state-changing call holds the engine lock and runs inside a state
// snapshot. A failing call reverts all of its writes and emits nothing.
type Engine struct {
	mu       sync.Mutex
	state    engineState
	access   *AccessRegistry
	ledger   ledger
	oracle   *PriceFeedAdapter
	emitter  events.Emitter
	observer Observer
	self     common.Address
}

// NewEngine constructs a tips engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
	e.access = NewAccessRegistry(state)
	e.ledger = ledger{state: state}
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPriceFeed configures the adapter consulted on every tip.
func (e *Engine) SetPriceFeed(adapter *PriceFeedAdapter) {
	e.mu.Lock()
	e.oracle = adapter
	e.mu.Unlock()
}

// SetObserver configures the operation observer (e.g. metrics).
func (e *Engine) SetObserver(observer Observer) {
	e.mu.Lock()
	e.observer = observer
	e.mu.Unlock()
}

// SetContractAddress configures the account that custodies collected fees.
func (e *Engine) SetContractAddress(addr common.Address) {
	e.mu.Lock()
	e.self = addr
	e.mu.Unlock()
}

// ContractAddress returns the account that custodies collected fees.
func (e *Engine) ContractAddress() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.self
}

// operation buffers events until the surrounding call commits.
type operation struct {
	engine  *Engine
	pending []events.Event
}

func (op *operation) sequence() (uint64, error) {
	return op.engine.state.TipsNextSequence()
}

func (op *operation) emit(evt events.Event) {
	op.pending = append(op.pending, evt)
}

// execute runs fn atomically. Callers must hold e.mu.
func (e *Engine) execute(name string, fn func(op *operation) error) error {
	if e.state == nil {
		return errNilState
	}
	snap := e.state.Snapshot()
	op := &operation{engine: e}
	err := fn(op)
	if err == nil {
		err = e.checkSolvency()
	}
	if err != nil {
		e.state.RevertToSnapshot(snap)
		e.observe(name, err)
		return err
	}
	for _, evt := range op.pending {
		e.emitter.Emit(evt)
	}
	e.observe(name, nil)
	return nil
}

func (e *Engine) observe(name string, err error) {
	if e.observer != nil {
		e.observer.ObserveOperation(name, err)
	}
}

// checkSolvency enforces ledger <= custodied balance once initialized.
func (e *Engine) checkSolvency() error {
	cfg, ok, err := e.state.TipsConfig()
	if err != nil {
		return err
	}
	if !ok || !cfg.Initialized() || e.self == (common.Address{}) {
		return nil
	}
	owed, err := e.ledger.balance()
	if err != nil {
		return err
	}
	held, err := e.state.Balance(e.self)
	if err != nil {
		return err
	}
	if owed.Cmp(held) > 0 {
		return fmt.Errorf("%w: owed %s held %s", ErrLedgerInsolvent, owed, held)
	}
	return nil
}

func (e *Engine) config() (*Config, error) {
	if e.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := e.state.TipsConfig()
	if err != nil {
		return nil, err
	}
	if !ok || !cfg.Initialized() {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

func (e *Engine) transfer(from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := e.state.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, hexAddr(from), fromBal, amount)
	}
	if err := e.state.SetBalance(from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	toBal, err := e.state.Balance(to)
	if err != nil {
		return err
	}
	return e.state.SetBalance(to, new(big.Int).Add(toBal, amount))
}

// Initialize wires the price feed and fee rate and makes caller the first
// admin. It succeeds exactly once per deployment; later implementation
// versions never repeat it.
func (e *Engine) Initialize(caller, priceFeed common.Address) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execute(OpInitialize, func(op *operation) error {
		existing, ok, err := e.state.TipsConfig()
		if err != nil {
			return err
		}
		if ok && existing.Initialized() {
			return ErrAlreadyInitialized
		}
		if priceFeed == (common.Address{}) {
			return ErrInvalidPriceFeed
		}
		if caller == (common.Address{}) {
			return fmt.Errorf("%w: zero caller", ErrInvalidAccount)
		}
		cfg := &Config{
			InitializedVersion:    InitializerVersion,
			ImplementationVersion: InitializerVersion,
			PriceFeed:             priceFeed,
			FeeRate:               DefaultFeeRate,
			Admin:                 caller,
		}
		if err := e.state.TipsConfigPut(cfg); err != nil {
			return err
		}
		if err := e.state.TipsLedgerBalancePut(big.NewInt(0)); err != nil {
			return err
		}
		if _, err := e.access.grant(DefaultAdminRole, caller); err != nil {
			return err
		}
		seq, err := op.sequence()
		if err != nil {
			return err
		}
		op.emit(InitializedEvent{Version: cfg.InitializedVersion, PriceFeed: priceFeed, FeeRate: cfg.FeeRate, Admin: caller, Sequence: seq})
		seq, err = op.sequence()
		if err != nil {
			return err
		}
		op.emit(RoleGrantedEvent{Role: DefaultAdminRole, Account: caller, Sender: caller, Sequence: seq})
		return nil
	})
}

// Tip moves amount from sender: the fee stays with the contract and is
// credited to the ledger, the rest goes to recipient.
func (e *Engine) Tip(ctx context.Context, sender, recipient common.Address, amount *big.Int) (*Receipt, error) {
	if e == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var receipt *Receipt
	err := e.execute(OpTip, func(op *operation) error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if recipient == (common.Address{}) {
			return ErrInvalidRecipient
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrZeroAmount
		}
		if e.self == (common.Address{}) {
			return ErrContractAddressNotSet
		}
		if recipient == e.self {
			return fmt.Errorf("%w: recipient is the contract", ErrInvalidRecipient)
		}
		rate, err := e.oracle.CurrentRate(ctx, cfg.PriceFeed)
		if err != nil {
			return err
		}
		fee, net, err := Split(amount, cfg.FeeRate)
		if err != nil {
			return err
		}
		if err := e.transfer(sender, e.self, amount); err != nil {
			return err
		}
		if err := e.transfer(e.self, recipient, net); err != nil {
			return err
		}
		if _, err := e.ledger.credit(fee); err != nil {
			return err
		}
		seq, err := op.sequence()
		if err != nil {
			return err
		}
		reference := rate.Convert(amount)
		receipt = &Receipt{
			Sender:         sender,
			Recipient:      recipient,
			Gross:          newBigInt(amount),
			Fee:            fee,
			Net:            net,
			ReferenceValue: reference,
			Rate:           rate,
			Sequence:       seq,
		}
		op.emit(TipEvent{
			Sender:         sender,
			Recipient:      recipient,
			Gross:          newBigInt(amount),
			Fee:            newBigInt(fee),
			Net:            newBigInt(net),
			ReferenceValue: newBigInt(reference),
			Rate:           newBigInt(rate.Value),
			Sequence:       seq,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Withdraw transfers the entire fee ledger to destination. Only holders of
// DefaultAdminRole may call it, and an empty ledger is an error rather than a
// silent no-op.
func (e *Engine) Withdraw(caller, destination common.Address) (*Withdrawal, error) {
	if e == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var result *Withdrawal
	err := e.execute(OpWithdraw, func(op *operation) error {
		if _, err := e.config(); err != nil {
			return err
		}
		if err := e.access.CheckRole(DefaultAdminRole, caller); err != nil {
			return err
		}
		if destination == (common.Address{}) {
			return ErrInvalidRecipient
		}
		if e.self == (common.Address{}) {
			return ErrContractAddressNotSet
		}
		if destination == e.self {
			return fmt.Errorf("%w: destination is the contract", ErrInvalidRecipient)
		}
		amount, err := e.ledger.debitAll()
		if err != nil {
			return err
		}
		if amount.Sign() == 0 {
			return ErrNothingToWithdraw
		}
		if err := e.transfer(e.self, destination, amount); err != nil {
			if errors.Is(err, ErrInsufficientFunds) {
				return fmt.Errorf("%w: %v", ErrLedgerInsolvent, err)
			}
			return err
		}
		seq, err := op.sequence()
		if err != nil {
			return err
		}
		result = &Withdrawal{Caller: caller, Destination: destination, Amount: newBigInt(amount), Sequence: seq}
		op.emit(WithdrawalEvent{Caller: caller, Destination: destination, Amount: newBigInt(amount), Sequence: seq})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GrantRole adds account to role. caller must hold the role's admin role.
func (e *Engine) GrantRole(caller common.Address, role common.Hash, account common.Address) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execute(OpGrantRole, func(op *operation) error {
		if _, err := e.config(); err != nil {
			return err
		}
		changed, err := e.access.Grant(caller, role, account)
		if err != nil || !changed {
			return err
		}
		seq, err := op.sequence()
		if err != nil {
			return err
		}
		op.emit(RoleGrantedEvent{Role: role, Account: account, Sender: caller, Sequence: seq})
		return nil
	})
}

// RevokeRole removes account from role. caller must hold the role's admin
// role, and the last DefaultAdminRole holder cannot be removed.
func (e *Engine) RevokeRole(caller common.Address, role common.Hash, account common.Address) error {
	return e.removeRole(OpRevokeRole, caller, role, account, false)
}

// RenounceRole removes the caller's own membership of role.
func (e *Engine) RenounceRole(caller common.Address, role common.Hash, account common.Address) error {
	return e.removeRole(OpRenounce, caller, role, account, true)
}

func (e *Engine) removeRole(name string, caller common.Address, role common.Hash, account common.Address, renounce bool) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execute(name, func(op *operation) error {
		if _, err := e.config(); err != nil {
			return err
		}
		var (
			changed bool
			err     error
		)
		if renounce {
			changed, err = e.access.Renounce(caller, role, account)
		} else {
			changed, err = e.access.Revoke(caller, role, account)
		}
		if err != nil || !changed {
			return err
		}
		seq, err := op.sequence()
		if err != nil {
			return err
		}
		op.emit(RoleRevokedEvent{Role: role, Account: account, Sender: caller, Sequence: seq})
		return nil
	})
}

// Upgrade records a new implementation version. Initialization state (feed,
// fee rate, roles, ledger) is left untouched.
func (e *Engine) Upgrade(caller common.Address, version uint64) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execute(OpUpgrade, func(op *operation) error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if err := e.access.CheckRole(DefaultAdminRole, caller); err != nil {
			return err
		}
		if version <= cfg.ImplementationVersion {
			return fmt.Errorf("%w: have %d, got %d", ErrInvalidUpgrade, cfg.ImplementationVersion, version)
		}
		from := cfg.ImplementationVersion
		updated := cfg.Clone()
		updated.ImplementationVersion = version
		if err := e.state.TipsConfigPut(updated); err != nil {
			return err
		}
		seq, err := op.sequence()
		if err != nil {
			return err
		}
		op.emit(UpgradedEvent{From: from, To: version, Caller: caller, Sequence: seq})
		return nil
	})
}

// Config returns a copy of the stored configuration.
func (e *Engine) Config() (*Config, error) {
	if e == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

// PriceFeedAddress returns the oracle address set by Initialize.
func (e *Engine) PriceFeedAddress() (common.Address, error) {
	cfg, err := e.Config()
	if err != nil {
		return common.Address{}, err
	}
	return cfg.PriceFeed, nil
}

// FeeRate returns the configured fee rate in FeeScale units.
func (e *Engine) FeeRate() (uint64, error) {
	cfg, err := e.Config()
	if err != nil {
		return 0, err
	}
	return cfg.FeeRate, nil
}

// FeeScale returns the fixed-point denominator of the fee rate.
func (e *Engine) FeeScale() uint64 { return FeeScale }

// Version returns the current implementation version.
func (e *Engine) Version() (uint64, error) {
	cfg, err := e.Config()
	if err != nil {
		return 0, err
	}
	return cfg.ImplementationVersion, nil
}

// LedgerBalance returns the withdrawable fee balance.
func (e *Engine) LedgerBalance() (*big.Int, error) {
	if e == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	return e.ledger.balance()
}

// HasRole reports whether account holds role.
func (e *Engine) HasRole(role common.Hash, account common.Address) (bool, error) {
	if e == nil {
		return false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.access == nil {
		return false, errNilState
	}
	return e.access.HasRole(role, account)
}

// RoleMembers returns the accounts holding role.
func (e *Engine) RoleMembers(role common.Hash) ([]common.Address, error) {
	if e == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.access == nil {
		return nil, errNilState
	}
	return e.access.Members(role)
}

// CurrentRate queries the configured price feed without touching state.
func (e *Engine) CurrentRate(ctx context.Context) (ConversionRate, error) {
	cfg, err := e.Config()
	if err != nil {
		return ConversionRate{}, err
	}
	e.mu.Lock()
	oracle := e.oracle
	e.mu.Unlock()
	return oracle.CurrentRate(ctx, cfg.PriceFeed)
}
