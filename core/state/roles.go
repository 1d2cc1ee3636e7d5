package state

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

type storedRole struct {
	Admin   [32]byte
	Members [][20]byte
}

func (m *Manager) loadRole(role common.Hash) (*storedRole, error) {
	record := new(storedRole)
	if _, err := m.KVGet(RoleKey(role), record); err != nil {
		return nil, err
	}
	return record, nil
}

func (m *Manager) writeRole(role common.Hash, record *storedRole) error {
	if record.Admin == ([32]byte{}) && len(record.Members) == 0 {
		return m.KVDelete(RoleKey(role))
	}
	return m.KVPut(RoleKey(role), record)
}

// RoleAdmin returns the role that administers role. Unset roles are
// administered by the zero role.
func (m *Manager) RoleAdmin(role common.Hash) (common.Hash, error) {
	record, err := m.loadRole(role)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(record.Admin), nil
}

func (m *Manager) SetRoleAdmin(role, admin common.Hash) error {
	record, err := m.loadRole(role)
	if err != nil {
		return err
	}
	record.Admin = admin
	return m.writeRole(role, record)
}

// RoleMembers returns the members of role in ascending byte order.
func (m *Manager) RoleMembers(role common.Hash) ([]common.Address, error) {
	record, err := m.loadRole(role)
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, len(record.Members))
	for i, member := range record.Members {
		out[i] = common.Address(member)
	}
	return out, nil
}

// AddRoleMember associates account with role. Duplicate assignments are
// ignored while the stored list remains sorted for determinism.
func (m *Manager) AddRoleMember(role common.Hash, account common.Address) error {
	record, err := m.loadRole(role)
	if err != nil {
		return err
	}
	for _, existing := range record.Members {
		if existing == account {
			return nil
		}
	}
	record.Members = append(record.Members, account)
	sort.Slice(record.Members, func(i, j int) bool {
		return bytes.Compare(record.Members[i][:], record.Members[j][:]) < 0
	})
	return m.writeRole(role, record)
}

func (m *Manager) RemoveRoleMember(role common.Hash, account common.Address) error {
	record, err := m.loadRole(role)
	if err != nil {
		return err
	}
	kept := record.Members[:0]
	for _, existing := range record.Members {
		if existing != account {
			kept = append(kept, existing)
		}
	}
	record.Members = kept
	return m.writeRole(role, record)
}
