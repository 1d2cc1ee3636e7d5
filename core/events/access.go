package events

import (
	"github.com/ethereum/go-ethereum/common"

	"merkledrop/core/types"
	"merkledrop/crypto"
)

const (
	TypeRoleGranted = "access.role_granted"
	TypeRoleRevoked = "access.role_revoked"
)

type RoleGranted struct {
	Role    common.Hash
	Account common.Address
	Sender  common.Address
}

func (RoleGranted) EventType() string { return TypeRoleGranted }

func (e RoleGranted) Event() *types.Event {
	return roleEvent(TypeRoleGranted, e.Role, e.Account, e.Sender)
}

type RoleRevoked struct {
	Role    common.Hash
	Account common.Address
	Sender  common.Address
}

func (RoleRevoked) EventType() string { return TypeRoleRevoked }

func (e RoleRevoked) Event() *types.Event {
	return roleEvent(TypeRoleRevoked, e.Role, e.Account, e.Sender)
}

func roleEvent(eventType string, role common.Hash, account, sender common.Address) *types.Event {
	attrs := map[string]string{
		"role":    role.Hex(),
		"account": crypto.FormatAddress(account),
	}
	if sender != (common.Address{}) {
		attrs["sender"] = crypto.FormatAddress(sender)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
