package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vwtips/config"
	"vwtips/core/events"
	"vwtips/core/state"
	"vwtips/deploy"
	"vwtips/native/tips"
	"vwtips/observability"
	"vwtips/observability/logging"
	"vwtips/observability/metrics"
	"vwtips/storage"
)

// Runtime bundles the persisted contract state for one network.
type Runtime struct {
	Config  *config.Config
	Network config.NetworkConfig
	State   *state.Manager
	Engine  *tips.Engine
	Record  *deploy.Record
	Feed    *tips.ManualFeed

	closers []func()
	logger  *slog.Logger
	pending *events.Buffer
	sink    events.Emitter
}

// Open loads state from the configured data directory and wires the engine to
// the network's price feed. A missing deployment record is not an error; the
// engine then has no contract address until Deploy runs.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	network, err := cfg.Active()
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(cfg.StateBackend, cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", cfg.StatePath(), err)
	}
	rt := &Runtime{
		Config:  cfg,
		Network: network,
		logger:  logger,
		pending: &events.Buffer{},
		sink:    events.Multi{logging.EventLogger(logger), observability.Events()},
	}
	rt.closers = append(rt.closers, func() { _ = db.Close() })

	rt.State = state.NewManager(db)
	if err := state.EnsureStateVersion(rt.State, false); err != nil {
		rt.Close()
		return nil, err
	}

	feed, err := rt.openFeed(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	adapter := tips.NewPriceFeedAdapter(feed, cfg.Oracle.Decimals, time.Duration(cfg.Oracle.MaxAgeSeconds)*time.Second)

	rt.Engine = tips.NewEngine()
	rt.Engine.SetState(rt.State)
	rt.Engine.SetPriceFeed(adapter)
	rt.Engine.SetObserver(metrics.Tips())
	rt.Engine.SetEmitter(rt.pending)

	record, err := deploy.Load(cfg.DeploymentPath())
	switch {
	case err == nil:
		rt.Record = record
		rt.Engine.SetContractAddress(record.Address)
	case errors.Is(err, deploy.ErrNoRecord):
	default:
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) openFeed(ctx context.Context) (tips.PriceFeed, error) {
	if rt.Network.RPCURL == "" {
		value, err := rt.Config.Oracle.ManualValue()
		if err != nil {
			return nil, err
		}
		manual := tips.NewManualFeed()
		manual.Set(common.HexToAddress(rt.Network.PriceFeed), value, time.Now())
		manual.SetLive(time.Now)
		rt.Feed = manual
		rt.logger.Info("using manual price feed", slog.String("network", rt.Config.Network))
		return manual, nil
	}
	rt.logger.Info("dialing price feed",
		slog.String("network", rt.Config.Network),
		logging.MaskField("rpcUrl", rt.Network.RPCURL))
	feed, client, err := tips.DialEVMFeed(ctx, rt.Network.RPCURL)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, client.Close)
	decimals, err := feed.Decimals(ctx, common.HexToAddress(rt.Network.PriceFeed))
	if err != nil {
		rt.logger.Warn("price feed decimals unavailable", slog.Any("error", err))
	} else if decimals != rt.Config.Oracle.Decimals {
		rt.logger.Warn("price feed decimals differ from configuration",
			slog.Int("feed", int(decimals)), slog.Int("configured", int(rt.Config.Oracle.Decimals)))
	}
	return feed, nil
}

// PriceFeed returns the configured feed address of the active network.
func (rt *Runtime) PriceFeed() common.Address {
	return common.HexToAddress(rt.Network.PriceFeed)
}

// Commit persists pending state, then releases the events of the committed
// calls and publishes the ledger gauge. Events of a failed commit are dropped.
func (rt *Runtime) Commit() error {
	keys := rt.State.Pending()
	if err := rt.State.Commit(); err != nil {
		if n := rt.pending.Drop(); n > 0 {
			rt.logger.Warn("events dropped after failed commit", slog.Int("count", n), slog.Any("error", err))
		}
		return err
	}
	sent := rt.pending.Flush(rt.sink)
	rt.logger.Debug("state committed", slog.Int("keys", keys), slog.Int("events", sent))
	if ledger, err := rt.State.TipsLedgerBalance(); err == nil {
		metrics.Tips().SetLedger(ledger)
	}
	return nil
}

// Close releases the database and RPC clients.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// Deploy initializes the contract on behalf of deployer and writes the
// deployment record.
func (rt *Runtime) Deploy(deployer, contractAddr common.Address, feed common.Address, now time.Time) (*deploy.Record, error) {
	if rt.Record != nil {
		return nil, fmt.Errorf("%w: recorded at %s", tips.ErrAlreadyInitialized, rt.Record.Address.Hex())
	}
	rt.Engine.SetContractAddress(contractAddr)
	if err := rt.Engine.Initialize(deployer, feed); err != nil {
		rt.Discard()
		return nil, err
	}
	if err := rt.State.SetStateVersion(state.StateVersion); err != nil {
		rt.Discard()
		return nil, err
	}
	if err := rt.Commit(); err != nil {
		return nil, err
	}
	cfg, err := rt.Engine.Config()
	if err != nil {
		return nil, err
	}
	record := deploy.NewRecord(rt.Config.Network, rt.Network.ChainID, contractAddr, deployer, feed, cfg.FeeRate, cfg.ImplementationVersion, now)
	if err := deploy.Save(rt.Config.DeploymentPath(), record); err != nil {
		return nil, err
	}
	rt.Record = record
	return record, nil
}

// Upgrade bumps the implementation version and rewrites the record.
func (rt *Runtime) Upgrade(caller common.Address, version uint64, now time.Time) (*deploy.Record, error) {
	if rt.Record == nil {
		return nil, deploy.ErrNoRecord
	}
	if err := rt.Engine.Upgrade(caller, version); err != nil {
		rt.Discard()
		return nil, err
	}
	if err := rt.Commit(); err != nil {
		return nil, err
	}
	rt.Record.MarkUpgraded(version, now)
	if err := deploy.Save(rt.Config.DeploymentPath(), rt.Record); err != nil {
		return nil, err
	}
	return rt.Record, nil
}

// Fund credits amount to account. Only the local network has a faucet.
func (rt *Runtime) Fund(account common.Address, amount *big.Int) (*big.Int, error) {
	if rt.Config.Network != config.NetworkLocalhost {
		return nil, fmt.Errorf("fund is only available on %s", config.NetworkLocalhost)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, tips.ErrZeroAmount
	}
	current, err := rt.State.Balance(account)
	if err != nil {
		return nil, err
	}
	updated := new(big.Int).Add(current, amount)
	if err := rt.State.SetBalance(account, updated); err != nil {
		return nil, err
	}
	if err := rt.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// Discard drops uncommitted state together with the events it produced.
func (rt *Runtime) Discard() {
	keys := rt.State.Pending()
	rt.State.Discard()
	dropped := rt.pending.Drop()
	if keys > 0 || dropped > 0 {
		rt.logger.Debug("state discarded", slog.Int("keys", keys), slog.Int("events", dropped))
	}
}

// Apply commits after a successful engine call and discards otherwise.
func (rt *Runtime) Apply(err error) error {
	if err != nil {
		rt.Discard()
		return err
	}
	return rt.Commit()
}
