package state

var (
	tipsConfigKeyBytes   = []byte("tips/config")
	tipsLedgerKeyBytes   = []byte("tips/ledger/balance")
	tipsSequenceKeyBytes = []byte("tips/sequence")
	tipsRoleScope        = "tips"
)
