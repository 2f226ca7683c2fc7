package state

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vwtips/native/tips"
)

func TestTipsConfigRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, ok, err := mgr.TipsConfig(); err != nil || ok {
		t.Fatalf("expected no config: ok=%v err=%v", ok, err)
	}
	cfg := &tips.Config{
		InitializedVersion:    1,
		ImplementationVersion: 2,
		PriceFeed:             common.HexToAddress("0xfeed"),
		FeeRate:               tips.DefaultFeeRate,
		Admin:                 common.HexToAddress("0xad"),
	}
	if err := mgr.TipsConfigPut(cfg); err != nil {
		t.Fatalf("put config: %v", err)
	}
	loaded, ok, err := mgr.TipsConfig()
	if err != nil || !ok {
		t.Fatalf("load config: ok=%v err=%v", ok, err)
	}
	if *loaded != *cfg {
		t.Fatalf("config mismatch: %+v vs %+v", loaded, cfg)
	}
	if err := mgr.TipsConfigPut(nil); err == nil {
		t.Fatalf("expected nil config to be rejected")
	}
}

func TestTipsLedgerBalance(t *testing.T) {
	mgr, _ := newTestManager(t)
	bal, err := mgr.TipsLedgerBalance()
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if bal.Sign() != 0 {
		t.Fatalf("expected empty ledger, got %s", bal)
	}
	if err := mgr.TipsLedgerBalancePut(big.NewInt(250)); err != nil {
		t.Fatalf("put ledger: %v", err)
	}
	bal, _ = mgr.TipsLedgerBalance()
	if bal.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected ledger %s", bal)
	}
	if err := mgr.TipsLedgerBalancePut(big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative ledger to be rejected")
	}
}

func TestTipsSequenceMonotonic(t *testing.T) {
	mgr, _ := newTestManager(t)
	var last uint64
	for i := 0; i < 5; i++ {
		seq, err := mgr.TipsNextSequence()
		if err != nil {
			t.Fatalf("next sequence: %v", err)
		}
		if seq != last+1 {
			t.Fatalf("expected %d, got %d", last+1, seq)
		}
		last = seq
	}
	current, err := mgr.TipsSequence()
	if err != nil || current != 5 {
		t.Fatalf("unexpected sequence %d err=%v", current, err)
	}
}

func TestTipsRoleScope(t *testing.T) {
	mgr, _ := newTestManager(t)
	admin := common.HexToAddress("0xad")
	if err := mgr.TipsRoleMembersPut(tips.DefaultAdminRole, []common.Address{admin}); err != nil {
		t.Fatalf("put members: %v", err)
	}
	scoped, err := mgr.RoleMembers(tipsRoleScope, tips.DefaultAdminRole)
	if err != nil || len(scoped) != 1 || scoped[0] != admin {
		t.Fatalf("expected admin membership under tips scope, got %v err=%v", scoped, err)
	}
	members, err := mgr.TipsRoleMembers(tips.DefaultAdminRole)
	if err != nil || len(members) != 1 || members[0] != admin {
		t.Fatalf("unexpected members %v err=%v", members, err)
	}
}

func TestTipsEngineOnManager(t *testing.T) {
	mgr, _ := newTestManager(t)
	admin := common.HexToAddress("0xad")
	sender := common.HexToAddress("0x5e")
	recipient := common.HexToAddress("0x7e")
	self := common.HexToAddress("0xc0")
	feedAddr := common.HexToAddress("0xfeed")

	feed := tips.NewManualFeed()
	feed.Set(feedAddr, big.NewInt(200000000000), time.Now())
	engine := tips.NewEngine()
	engine.SetState(mgr)
	engine.SetContractAddress(self)
	engine.SetPriceFeed(tips.NewPriceFeedAdapter(feed, tips.DefaultFeedDecimals, 0))

	if err := mgr.SetBalance(sender, big.NewInt(1000)); err != nil {
		t.Fatalf("fund sender: %v", err)
	}
	if err := engine.Initialize(admin, feedAddr); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := engine.Tip(context.Background(), sender, recipient, big.NewInt(1000)); err != nil {
		t.Fatalf("tip: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	ledger, _ := mgr.TipsLedgerBalance()
	held, _ := mgr.Balance(self)
	if ledger.Cmp(big.NewInt(10)) != 0 || held.Cmp(ledger) != 0 {
		t.Fatalf("unexpected ledger=%s held=%s", ledger, held)
	}
	got, _ := mgr.Balance(recipient)
	if got.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("unexpected recipient balance %s", got)
	}
}
