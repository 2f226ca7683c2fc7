package state

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"vwtips/storage"
)

// Manager provides journaled read/write access to contract state stored in a
// key/value database. Writes are buffered in memory until Commit flushes them
// through a single storage batch; Snapshot/RevertToSnapshot roll back buffered
// writes so an operation can be undone as a whole.
//
// Manager is not safe for concurrent use.
type Manager struct {
	db      storage.Database
	dirty   map[string]dirtyValue
	journal []journalEntry
}

type dirtyValue struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    dirtyValue
	hadPrev bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]dirtyValue)}
}

var (
	balancePrefix = []byte("balance:")
	rolePrefix    = []byte("role:")
)

func balanceKey(addr common.Address) []byte {
	buf := make([]byte, len(balancePrefix)+common.AddressLength)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], addr.Bytes())
	return ethcrypto.Keccak256(buf)
}

func roleKey(scope string, role common.Hash) []byte {
	buf := make([]byte, 0, len(rolePrefix)+len(scope)+1+common.HashLength)
	buf = append(buf, rolePrefix...)
	buf = append(buf, scope...)
	buf = append(buf, ':')
	buf = append(buf, role.Bytes()...)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state: manager unavailable")
	}
	if entry, ok := m.dirty[string(key)]; ok {
		if entry.deleted {
			return nil, nil
		}
		return entry.value, nil
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (m *Manager) write(key []byte, next dirtyValue) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	k := string(key)
	prev, hadPrev := m.dirty[k]
	m.journal = append(m.journal, journalEntry{key: k, prev: prev, hadPrev: hadPrev})
	m.dirty[k] = next
	return nil
}

func (m *Manager) put(key, value []byte) error {
	return m.write(key, dirtyValue{value: append([]byte(nil), value...)})
}

func (m *Manager) remove(key []byte) error {
	return m.write(key, dirtyValue{deleted: true})
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	if m == nil {
		return 0
	}
	return len(m.journal)
}

// RevertToSnapshot undoes every buffered write made after the snapshot was
// taken. Unknown identifiers are ignored.
func (m *Manager) RevertToSnapshot(id int) {
	if m == nil || id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:id]
}

// Pending reports the number of keys with uncommitted writes.
func (m *Manager) Pending() int {
	if m == nil {
		return 0
	}
	return len(m.dirty)
}

// Commit atomically persists all buffered writes and clears the journal.
func (m *Manager) Commit() error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	if len(m.dirty) == 0 {
		m.journal = nil
		return nil
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := m.db.NewBatch()
	for _, k := range keys {
		entry := m.dirty[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.dirty = make(map[string]dirtyValue)
	m.journal = nil
	return nil
}

// Discard drops every uncommitted write.
func (m *Manager) Discard() {
	if m == nil {
		return
	}
	m.dirty = make(map[string]dirtyValue)
	m.journal = nil
}

// SetBalance stores the native-asset balance for the provided account.
func (m *Manager) SetBalance(addr common.Address, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative balance for %s", addr.Hex())
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.put(balanceKey(addr), encoded)
}

// Balance retrieves the native-asset balance for the provided account.
func (m *Manager) Balance(addr common.Address) (*big.Int, error) {
	data, err := m.get(balanceKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// SetRoleMembers replaces the member list of a role within the given scope.
// The stored list is deduplicated and sorted for determinism; an empty list
// removes the entry.
func (m *Manager) SetRoleMembers(scope string, role common.Hash, members []common.Address) error {
	key := roleKey(scope, role)
	if len(members) == 0 {
		return m.remove(key)
	}
	sorted := make([]common.Address, 0, len(members))
	seen := make(map[common.Address]struct{}, len(members))
	for _, member := range members {
		if _, ok := seen[member]; ok {
			continue
		}
		seen[member] = struct{}{}
		sorted = append(sorted, member)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Bytes(), sorted[j].Bytes()) < 0
	})
	encoded, err := rlp.EncodeToBytes(sorted)
	if err != nil {
		return err
	}
	return m.put(key, encoded)
}

// RoleMembers returns all addresses assigned to the provided role.
func (m *Manager) RoleMembers(scope string, role common.Hash) ([]common.Address, error) {
	data, err := m.get(roleKey(scope, role))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []common.Address{}, nil
	}
	var members []common.Address
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
