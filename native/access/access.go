package access

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"merkledrop/core/events"
)

var (
	ErrNotGovernor = errors.New("access: caller is not the governor")
	ErrMissingRole = errors.New("access: account is missing role")
	ErrZeroAddress = errors.New("access: zero address")

	errNilState = errors.New("access: state not configured")
)

var (
	// DefaultAdminRole administers itself and every role without an explicit admin.
	DefaultAdminRole = common.Hash{}
	// AdminRole gates campaign administration.
	AdminRole = common.BytesToHash(ethcrypto.Keccak256([]byte("ADMIN_ROLE")))
)

// Governor authorises a single fixed address.
type Governor struct {
	address common.Address
}

// NewGovernor returns a governor check bound to addr.
func NewGovernor(addr common.Address) (Governor, error) {
	if addr == (common.Address{}) {
		return Governor{}, ErrZeroAddress
	}
	return Governor{address: addr}, nil
}

func (g Governor) Address() common.Address { return g.address }

// Check fails with ErrNotGovernor unless caller is the governor.
func (g Governor) Check(caller common.Address) error {
	if g.address == (common.Address{}) || caller != g.address {
		return ErrNotGovernor
	}
	return nil
}

type roleState interface {
	RoleAdmin(role common.Hash) (common.Hash, error)
	SetRoleAdmin(role, admin common.Hash) error
	RoleMembers(role common.Hash) ([]common.Address, error)
	AddRoleMember(role common.Hash, account common.Address) error
	RemoveRoleMember(role common.Hash, account common.Address) error
}

// Roles is a role registry in which every role is administered by another
// role whose members may grant and revoke it.
type Roles struct {
	state   roleState
	emitter events.Emitter
}

func NewRoles() *Roles {
	return &Roles{emitter: events.NoopEmitter{}}
}

func (r *Roles) SetState(state roleState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op emitter.
func (r *Roles) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Roles) emit(evt events.Event) {
	if r.emitter != nil {
		r.emitter.Emit(evt)
	}
}

// HasRole reports whether account holds role.
func (r *Roles) HasRole(role common.Hash, account common.Address) (bool, error) {
	if r.state == nil {
		return false, errNilState
	}
	members, err := r.state.RoleMembers(role)
	if err != nil {
		return false, err
	}
	for _, member := range members {
		if member == account {
			return true, nil
		}
	}
	return false, nil
}

// GetRoleAdmin returns the role that administers role.
func (r *Roles) GetRoleAdmin(role common.Hash) (common.Hash, error) {
	if r.state == nil {
		return common.Hash{}, errNilState
	}
	return r.state.RoleAdmin(role)
}

// CheckRole fails with ErrMissingRole unless account holds role.
func (r *Roles) CheckRole(role common.Hash, account common.Address) error {
	ok, err := r.HasRole(role, account)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w %s", ErrMissingRole, role.Hex())
	}
	return nil
}

func (r *Roles) checkAdmin(role common.Hash, caller common.Address) error {
	admin, err := r.GetRoleAdmin(role)
	if err != nil {
		return err
	}
	return r.CheckRole(admin, caller)
}

// GrantRole gives role to account. caller must hold the role's admin role.
func (r *Roles) GrantRole(caller common.Address, role common.Hash, account common.Address) error {
	if err := r.checkAdmin(role, caller); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	return r.grant(role, account, caller)
}

// RevokeRole removes role from account. caller must hold the role's admin role.
func (r *Roles) RevokeRole(caller common.Address, role common.Hash, account common.Address) error {
	if err := r.checkAdmin(role, caller); err != nil {
		return err
	}
	return r.revoke(role, account, caller)
}

// RenounceRole removes role from the caller.
func (r *Roles) RenounceRole(caller common.Address, role common.Hash) error {
	if r.state == nil {
		return errNilState
	}
	return r.revoke(role, caller, caller)
}

// Bootstrap installs the initial role hierarchy: superAdmin receives
// DefaultAdminRole, every entry of admins receives AdminRole.
func (r *Roles) Bootstrap(superAdmin common.Address, admins []common.Address) error {
	if r.state == nil {
		return errNilState
	}
	if superAdmin == (common.Address{}) {
		return ErrZeroAddress
	}
	for _, admin := range admins {
		if admin == (common.Address{}) {
			return ErrZeroAddress
		}
	}
	if err := r.state.SetRoleAdmin(DefaultAdminRole, DefaultAdminRole); err != nil {
		return err
	}
	if err := r.state.SetRoleAdmin(AdminRole, DefaultAdminRole); err != nil {
		return err
	}
	if err := r.grant(DefaultAdminRole, superAdmin, common.Address{}); err != nil {
		return err
	}
	for _, admin := range admins {
		if err := r.grant(AdminRole, admin, common.Address{}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Roles) grant(role common.Hash, account, sender common.Address) error {
	ok, err := r.HasRole(role, account)
	if err != nil || ok {
		return err
	}
	if err := r.state.AddRoleMember(role, account); err != nil {
		return err
	}
	r.emit(events.RoleGranted{Role: role, Account: account, Sender: sender})
	return nil
}

func (r *Roles) revoke(role common.Hash, account, sender common.Address) error {
	ok, err := r.HasRole(role, account)
	if err != nil || !ok {
		return err
	}
	if err := r.state.RemoveRoleMember(role, account); err != nil {
		return err
	}
	r.emit(events.RoleRevoked{Role: role, Account: account, Sender: sender})
	return nil
}
