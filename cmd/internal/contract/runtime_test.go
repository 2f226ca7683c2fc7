package contract

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"vwtips/config"
	"vwtips/core/events"
	"vwtips/deploy"
	"vwtips/native/tips"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DeploymentsDir = filepath.Join(dir, "deployments")
	return cfg
}

func TestRuntimeDeployAndReopen(t *testing.T) {
	cfg := testConfig(t)
	deployer := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	contractAddr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	sender := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	recipient := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	rt, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, rt.Feed)
	record, err := rt.Deploy(deployer, contractAddr, rt.PriceFeed(), time.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(1337), record.ChainID)

	_, err = rt.Fund(sender, big.NewInt(10_000))
	require.NoError(t, err)
	_, err = rt.Engine.Tip(context.Background(), sender, recipient, big.NewInt(1_000))
	require.NoError(t, rt.Apply(err))

	_, err = rt.Engine.Tip(context.Background(), sender, recipient, big.NewInt(1_000_000))
	require.ErrorIs(t, rt.Apply(err), tips.ErrInsufficientFunds)
	rt.Close()

	reopened, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, contractAddr, reopened.Engine.ContractAddress())
	ledger, err := reopened.Engine.LedgerBalance()
	require.NoError(t, err)
	require.Equal(t, "10", ledger.String())

	_, err = reopened.Deploy(deployer, contractAddr, reopened.PriceFeed(), time.Now())
	require.ErrorIs(t, err, tips.ErrAlreadyInitialized)

	upgraded, err := reopened.Upgrade(deployer, 2, time.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(2), upgraded.Version)
	stored, err := deploy.Load(cfg.DeploymentPath())
	require.NoError(t, err)
	require.Equal(t, uint64(2), stored.Version)
}

func TestRuntimeFundOnlyOnLocalhost(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer rt.Close()
	rt.Config.Network = config.NetworkTestnet
	_, err = rt.Fund(common.HexToAddress("0x01"), big.NewInt(1))
	require.Error(t, err)
}

func TestRuntimeUpgradeWithoutDeployment(t *testing.T) {
	rt, err := Open(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer rt.Close()
	_, err = rt.Upgrade(common.HexToAddress("0x01"), 2, time.Now())
	require.ErrorIs(t, err, deploy.ErrNoRecord)
}

func TestRuntimeBoltBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.StateBackend = "bolt"
	deployer := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	rt, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	_, err = rt.Deploy(deployer, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), rt.PriceFeed(), time.Now())
	require.NoError(t, err)
	rt.Close()

	reopened, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()
	admin, err := reopened.Engine.HasRole(tips.DefaultAdminRole, deployer)
	require.NoError(t, err)
	require.True(t, admin)
}

func TestRuntimeManualFeedStaysFresh(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	opened := time.Now()
	first, err := rt.Feed.LatestAnswer(context.Background(), rt.PriceFeed())
	require.NoError(t, err)
	require.False(t, first.UpdatedAt.Before(opened))

	later := time.Now()
	second, err := rt.Feed.LatestAnswer(context.Background(), rt.PriceFeed())
	require.NoError(t, err)
	require.False(t, second.UpdatedAt.Before(later))
	require.Equal(t, first.RoundID.String(), second.RoundID.String())
}

func TestRuntimeEventsFollowCommit(t *testing.T) {
	cfg := testConfig(t)
	deployer := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	sender := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	recipient := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	rt, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer rt.Close()
	rec := &events.Recorder{}
	rt.sink = rec

	_, err = rt.Deploy(deployer, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), rt.PriceFeed(), time.Now())
	require.NoError(t, err)
	require.Len(t, rec.Events(), 2)
	rec.Reset()

	_, err = rt.Fund(sender, big.NewInt(10_000))
	require.NoError(t, err)
	_, err = rt.Engine.Tip(context.Background(), sender, recipient, big.NewInt(1_000))
	require.NoError(t, err)
	require.Empty(t, rec.Events())
	require.NoError(t, rt.Apply(nil))
	require.Len(t, rec.Events(), 1)
	require.Equal(t, tips.EventTypeTip, rec.Events()[0].EventType())
	rec.Reset()

	_, err = rt.Engine.Tip(context.Background(), sender, recipient, big.NewInt(1_000))
	require.NoError(t, err)
	require.Positive(t, rt.State.Pending())
	require.Error(t, rt.Apply(errors.New("signer rejected")))
	require.Zero(t, rt.State.Pending())
	require.NoError(t, rt.Commit())
	require.Empty(t, rec.Events())
	balance, err := rt.State.Balance(recipient)
	require.NoError(t, err)
	require.Equal(t, "990", balance.String())
}
