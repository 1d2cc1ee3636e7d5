package state

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"merkledrop/storage"
)

var errNilDatabase = errors.New("state: database not configured")

type dirtyEntry struct {
	value   []byte
	deleted bool
}

// Manager is a write-back overlay over a storage.Database. Reads fall
// through to the database unless the key was touched in this overlay;
// writes stay in memory until Commit flushes them as one batch.
type Manager struct {
	db    storage.Database
	dirty map[string]dirtyEntry
}

// NewManager creates a state manager reading from the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]dirtyEntry)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if entry, ok := m.dirty[string(key)]; ok {
		if entry.deleted {
			return nil, nil
		}
		return append([]byte(nil), entry.value...), nil
	}
	if m.db == nil {
		return nil, errNilDatabase
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

func (m *Manager) put(key, value []byte) {
	m.dirty[string(key)] = dirtyEntry{value: append([]byte(nil), value...)}
}

func (m *Manager) del(key []byte) {
	m.dirty[string(key)] = dirtyEntry{deleted: true}
}

// Pending reports the number of keys modified since the last commit.
func (m *Manager) Pending() int { return len(m.dirty) }

// Commit writes every pending change to the database in a single batch and
// resets the overlay. Keys are written in sorted order.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		return nil
	}
	if m.db == nil {
		return errNilDatabase
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, k := range keys {
		entry := m.dirty[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.dirty = make(map[string]dirtyEntry)
	return nil
}

// Discard drops every pending change.
func (m *Manager) Discard() {
	m.dirty = make(map[string]dirtyEntry)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(kvKey(key), encoded)
	return nil
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

// KVDelete removes the value stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.del(kvKey(key))
	return nil
}

// KVHas reports whether a value is stored under key.
func (m *Manager) KVHas(key []byte) (bool, error) {
	return m.KVGet(key, nil)
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := m.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

// writeBigInt stores a non-negative integer; zero deletes the key so empty
// balances do not linger in the database.
func (m *Manager) writeBigInt(key []byte, value *big.Int) error {
	if value == nil || value.Sign() == 0 {
		return m.KVDelete(key)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("state: negative value not allowed")
	}
	return m.KVPut(key, value)
}

func joinKey(prefix []byte, parts ...[]byte) []byte {
	return bytes.Join(append([][]byte{prefix}, parts...), nil)
}
