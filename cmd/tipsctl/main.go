package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vwtips/cmd/internal/contract"
	"vwtips/cmd/internal/passphrase"
	"vwtips/config"
	"vwtips/crypto"
	"vwtips/native/tips"
	"vwtips/observability/logging"
	telemetry "vwtips/observability/otel"
	"vwtips/rpc"
)

const (
	defaultConfig  = "./tips.toml"
	defaultPassEnv = "TIPS_KEYSTORE_PASS"
)

var nowFn = time.Now

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	name    string
	summary string
	run     func(env *cmdEnv, args []string) error
}

var commands = []command{
	{"keygen", "create an encrypted signer keystore", runKeygen},
	{"deploy", "initialize the contract and write the deployment record", runDeploy},
	{"upgrade", "bump the implementation version", runUpgrade},
	{"fund", "credit native balance to an account (localhost only)", runFund},
	{"tip", "send a tip from the signer", runTip},
	{"withdraw", "withdraw accumulated fees (admin only)", runWithdraw},
	{"grant-role", "grant a role to an account", runGrantRole},
	{"revoke-role", "revoke a role from an account", runRevokeRole},
	{"renounce-role", "renounce one of the signer's roles", runRenounceRole},
	{"status", "print contract configuration and ledger", runStatus},
	{"balance", "print the native balance of an account", runBalance},
	{"rate", "print the current price feed answer", runRate},
}

type cmdEnv struct {
	stdout  io.Writer
	stderr  io.Writer
	flags   *flag.FlagSet
	config  *string
	keyPath *string
	passEnv *string
	logger  *slog.Logger

	stopTelemetry telemetry.ShutdownFunc
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}
	name := args[0]
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		env := &cmdEnv{
			stdout:  stdout,
			stderr:  stderr,
			flags:   fs,
			config:  fs.String("config", defaultConfig, "path to the tips config file"),
			keyPath: fs.String("keystore", "", "signer keystore file (defaults to the network private key or SignerKeystorePath)"),
			passEnv: fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase"),
		}
		err := cmd.run(env, args[1:])
		env.flushTelemetry()
		if err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	usage(stderr)
	return 1
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tipsctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", cmd.name, cmd.summary)
	}
}

func (e *cmdEnv) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*e.config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e.logger = logging.Setup("tipsctl", cfg.Network, logging.Output{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Writer:     e.stderr,
	})
	if cfg.Telemetry.Enabled && e.stopTelemetry == nil {
		stop, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "tipsctl",
			Environment: cfg.Network,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		e.stopTelemetry = stop
	}
	return cfg, nil
}

// flushTelemetry pushes the command's counters before the process exits.
func (e *cmdEnv) flushTelemetry() {
	if e.stopTelemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.stopTelemetry(ctx); err != nil && e.logger != nil {
		e.logger.Warn("telemetry flush failed", slog.Any("error", err))
	}
	e.stopTelemetry = nil
}

func (e *cmdEnv) open(ctx context.Context) (*contract.Runtime, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	return contract.Open(ctx, cfg, e.logger)
}

// signer resolves the key that authorizes the command.
func (e *cmdEnv) signer(rt *contract.Runtime) (*crypto.PrivateKey, error) {
	path := strings.TrimSpace(*e.keyPath)
	if path == "" && strings.TrimSpace(rt.Network.PrivateKey) != "" {
		key, err := crypto.PrivateKeyFromHex(rt.Network.PrivateKey)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("signer loaded from environment", logging.MaskField("privateKey", rt.Network.PrivateKey))
		return key, nil
	}
	if path == "" {
		path = strings.TrimSpace(rt.Config.SignerKeystorePath)
	}
	if path == "" {
		return nil, fmt.Errorf("no signer: pass --keystore, set SignerKeystorePath, or export the network private key")
	}
	pass, err := passphrase.NewSource(*e.passEnv, "signer keystore").Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func (e *cmdEnv) printJSON(v interface{}) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAddress(name, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func runKeygen(env *cmdEnv, args []string) error {
	out := env.flags.String("out", "", "output keystore path")
	light := env.flags.Bool("light", false, "use light scrypt parameters (local testing only)")
	if err := env.flags.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return fmt.Errorf("--out is required")
	}
	pass, err := passphrase.NewSource(*env.passEnv, "new keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	params := crypto.StandardKeystore
	if *light {
		params = crypto.LightKeystore
	}
	if err := crypto.SaveToKeystore(*out, key, pass, params); err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "Keystore written to %s for %s\n", *out, key.Address().Hex())
	return nil
}

func runDeploy(env *cmdEnv, args []string) error {
	feedFlag := env.flags.String("feed", "", "price feed address (defaults to the network's configured feed)")
	if err := env.flags.Parse(args); err != nil {
		return err
	}
	ctx := context.Background()
	rt, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	feed := rt.PriceFeed()
	if *feedFlag != "" {
		if feed, err = parseAddress("feed", *feedFlag); err != nil {
			return err
		}
	}
	key, err := env.signer(rt)
	if err != nil {
		return err
	}
	deployer := key.Address()
	record, err := rt.Deploy(deployer, crypto.ContractAddress(deployer, 0), feed, nowFn())
	if err != nil {
		return err
	}
	env.logger.Info("contract deployed",
		slog.String("network", record.Network),
		slog.String("address", record.Address.Hex()),
		slog.String("deploymentId", record.DeploymentID.String()))
	fmt.Fprintf(env.stdout, "Tips deployed to: %s\n", record.Address.Hex())
	fmt.Fprintf(env.stdout, "Record: %s\n", rt.Config.DeploymentPath())
	return nil
}

func runUpgrade(env *cmdEnv, args []string) error {
	version := env.flags.Uint64("version", 0, "new implementation version (defaults to current+1)")
	if err := env.flags.Parse(args); err != nil {
		return err
	}
	rt, err := env.open(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()
	key, err := env.signer(rt)
	if err != nil {
		return err
	}
	target := *version
	if target == 0 {
		current, err := rt.Engine.Version()
		if err != nil {
			return err
		}
		target = current + 1
	}
	record, err := rt.Upgrade(key.Address(), target, nowFn())
	if err != nil {
		rt.Discard()
		return err
	}
	fmt.Fprintf(env.stdout, "Tips at %s upgraded to version %d\n", record.Address.Hex(), record.Version)
	return nil
}

func runFund(env *cmdEnv, args []string) error {
	to := env.flags.String("to", "", "account to credit")
	amountFlag := env.flags.String("amount", "", "amount in wei")
	if err := env.flags.Parse(args); err != nil {
		return err
	}
	account, err := parseAddress("to", *to)
	if err != nil {
		return err
	}
	amount, err := parseAmount(*amountFlag)
	if err != nil {
		return err
	}
	rt, err := env.open(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()
	balance, err := rt.Fund(account, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "%s balance: %s\n", account.Hex(), balance)
	return nil
}

func runTip(env *cmdEnv, args []string) error {
	to := env.flags.String("to", "", "recipient address")
	amountFlag := env.flags.String("amount", "", "gross amount in wei")
	timeout := env.flags.Duration("timeout", 15*time.Second, "price feed timeout")
	if err := env.flags.Parse(args); err != nil {
		return err
	}
	recipient, err := parseAddress("recipient", *to)
	if err != nil {
		return err
	}
	amount, err := parseAmount(*amountFlag)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	rt, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	key, err := env.signer(rt)
	if err != nil {
		return err
	}
	receipt, err := rt.Engine.Tip(ctx, key.Address(), recipient, amount)
	if err := rt.Apply(err); err != nil {
		return err
	}
	return env.printJSON(map[string]string{
		"sender":         key.Address().Hex(),
		"recipient":      receipt.Recipient.Hex(),
		"gross":          receipt.Gross.String(),
		"fee":            receipt.Fee.String(),
		"net":            receipt.Net.String(),
		"referenceValue": receipt.ReferenceValue.String(),
		"rate":           receipt.Rate.String(),
		"sequence":       fmt.Sprintf("%d", receipt.Sequence),
	})
}

func runWithdraw(env *cmdEnv, args []string) error {
	to := env.flags.String("to", "", "destination (defaults to the signer)")
	if err := env.flags.Parse(args); err != nil {
		return err
	}
	rt, err := env.open(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()
	key, err := env.signer(rt)
	if err != nil {
		return err
	}
	destination := key.Address()
	if *to != "" {
		if destination, err = parseAddress("destination", *to); err != nil {
			return err
		}
	}
	withdrawal, err := rt.Engine.Withdraw(key.Address(), destination)
	if err := rt.Apply(err); err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "Withdrew %s wei to %s\n", withdrawal.Amount, withdrawal.Destination.Hex())
	return nil
}

type roleAction func(engine *tips.Engine, caller common.Address, role common.Hash, account common.Address) error

func runRoleCommand(env *cmdEnv, args []string, verb string, action roleAction) error {
	roleFlag := env.flags.String("role", "DEFAULT_ADMIN_ROLE", "role identifier (32-byte hex or DEFAULT_ADMIN_ROLE)")
	accountFlag := env.flags.String("account", "", "target account (defaults to the signer)")
	if err := env.flags.Parse(args); err != nil {
		return err
	}
	role, err := rpc.ParseRole(*roleFlag)
	if err != nil {
		return err
	}
	rt, err := env.open(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()
	key, err := env.signer(rt)
	if err != nil {
		return err
	}
	account := key.Address()
	if *accountFlag != "" {
		if account, err = parseAddress("account", *accountFlag); err != nil {
			return err
		}
	}
	if err := rt.Apply(action(rt.Engine, key.Address(), role, account)); err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "%s %s for %s\n", verb, role.Hex(), account.Hex())
	return nil
}

func runGrantRole(env *cmdEnv, args []string) error {
	return runRoleCommand(env, args, "Granted", (*tips.Engine).GrantRole)
}

func runRevokeRole(env *cmdEnv, args []string) error {
	return runRoleCommand(env, args, "Revoked", (*tips.Engine).RevokeRole)
}

func runRenounceRole(env *cmdEnv, args []string) error {
	return runRoleCommand(env, args, "Renounced", (*tips.Engine).RenounceRole)
}

func runStatus(env *cmdEnv, args []string) error {
	if err := env.flags.Parse(args); err != nil {
		return err
	}
	rt, err := env.open(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, err := rt.Engine.Config()
	if err != nil {
		return err
	}
	ledger, err := rt.Engine.LedgerBalance()
	if err != nil {
		return err
	}
	admins, err := rt.Engine.RoleMembers(tips.DefaultAdminRole)
	if err != nil {
		return err
	}
	adminList := make([]string, 0, len(admins))
	for _, admin := range admins {
		adminList = append(adminList, admin.Hex())
	}
	held, err := rt.State.Balance(rt.Engine.ContractAddress())
	if err != nil {
		return err
	}
	return env.printJSON(map[string]interface{}{
		"network":         rt.Config.Network,
		"chainId":         rt.Network.ChainID,
		"address":         rt.Engine.ContractAddress().Hex(),
		"priceFeed":       cfg.PriceFeed.Hex(),
		"feeRate":         cfg.FeeRate,
		"feeScale":        rt.Engine.FeeScale(),
		"version":         cfg.ImplementationVersion,
		"ledgerBalance":   ledger.String(),
		"contractBalance": held.String(),
		"admins":          adminList,
	})
}

func runBalance(env *cmdEnv, args []string) error {
	accountFlag := env.flags.String("account", "", "account to inspect")
	if err := env.flags.Parse(args); err != nil {
		return err
	}
	account, err := parseAddress("account", *accountFlag)
	if err != nil {
		return err
	}
	rt, err := env.open(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()
	balance, err := rt.State.Balance(account)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.stdout, balance.String())
	return nil
}

func runRate(env *cmdEnv, args []string) error {
	timeout := env.flags.Duration("timeout", 15*time.Second, "price feed timeout")
	if err := env.flags.Parse(args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	rt, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	rate, err := rt.Engine.CurrentRate(ctx)
	if err != nil {
		return err
	}
	return env.printJSON(map[string]interface{}{
		"feed":      rate.Feed.Hex(),
		"roundId":   rate.RoundID.String(),
		"value":     rate.Value.String(),
		"decimals":  rate.Decimals,
		"price":     rate.String(),
		"updatedAt": rate.UpdatedAt.UTC().Format(time.RFC3339),
	})
}
