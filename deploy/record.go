package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ErrNoRecord is returned when no deployment exists for a network.
var ErrNoRecord = errors.New("deploy: no deployment record")

// Record describes a deployed Tips contract. It is written next to the
// network's other artifacts so later upgrades and operator commands can
// locate the contract.
type Record struct {
	Address      common.Address `json:"address"`
	Network      string         `json:"network"`
	ChainID      uint64         `json:"chainId"`
	PriceFeed    common.Address `json:"priceFeed"`
	FeeRate      uint64         `json:"feeRate"`
	Version      uint64         `json:"version"`
	DeploymentID uuid.UUID      `json:"deploymentId"`
	Deployer     common.Address `json:"deployer"`
	DeployedAt   time.Time      `json:"deployedAt"`
	UpgradedAt   *time.Time     `json:"upgradedAt,omitempty"`
}

// NewRecord stamps a fresh deployment identifier.
func NewRecord(network string, chainID uint64, address, deployer, priceFeed common.Address, feeRate, version uint64, now time.Time) *Record {
	return &Record{
		Address:      address,
		Network:      network,
		ChainID:      chainID,
		PriceFeed:    priceFeed,
		FeeRate:      feeRate,
		Version:      version,
		DeploymentID: uuid.New(),
		Deployer:     deployer,
		DeployedAt:   now.UTC(),
	}
}

// MarkUpgraded records a new implementation version.
func (r *Record) MarkUpgraded(version uint64, now time.Time) {
	ts := now.UTC()
	r.Version = version
	r.UpgradedAt = &ts
}

// Validate checks the fields required to talk to the contract.
func (r *Record) Validate() error {
	if r == nil {
		return ErrNoRecord
	}
	if r.Address == (common.Address{}) {
		return fmt.Errorf("deploy: record has no address")
	}
	if strings.TrimSpace(r.Network) == "" {
		return fmt.Errorf("deploy: record has no network")
	}
	if r.DeploymentID == uuid.Nil {
		return fmt.Errorf("deploy: record has no deployment id")
	}
	return nil
}

// Save writes the record atomically to path.
func Save(path string, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads the record at path.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrNoRecord, path)
	}
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("deploy: decode %s: %w", path, err)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return &record, nil
}
