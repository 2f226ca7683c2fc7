package tips

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AccessState is the persistence surface used by the access registry.
type AccessState interface {
	TipsRoleMembers(role common.Hash) ([]common.Address, error)
	TipsRoleMembersPut(role common.Hash, members []common.Address) error
}

// AccessRegistry maintains role memberships and guards privileged calls.
// Every role is administered by DefaultAdminRole, which administers itself.
// The registry never lets DefaultAdminRole lose its last member.
type AccessRegistry struct {
	state AccessState
}

// NewAccessRegistry binds a registry to the provided state.
func NewAccessRegistry(state AccessState) *AccessRegistry {
	return &AccessRegistry{state: state}
}

// RoleAdmin returns the role whose holders may grant and revoke role.
func (r *AccessRegistry) RoleAdmin(role common.Hash) common.Hash {
	return DefaultAdminRole
}

// Members returns the accounts currently holding role.
func (r *AccessRegistry) Members(role common.Hash) ([]common.Address, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	return r.state.TipsRoleMembers(role)
}

// HasRole reports whether account holds role.
func (r *AccessRegistry) HasRole(role common.Hash, account common.Address) (bool, error) {
	members, err := r.Members(role)
	if err != nil {
		return false, err
	}
	return containsAddress(members, account), nil
}

// CheckRole returns an *UnauthorizedError when account lacks role.
func (r *AccessRegistry) CheckRole(role common.Hash, account common.Address) error {
	ok, err := r.HasRole(role, account)
	if err != nil {
		return err
	}
	if !ok {
		return &UnauthorizedError{Account: account, Role: role}
	}
	return nil
}

// Grant adds account to role on behalf of caller. The boolean reports whether
// membership changed; granting an existing member is a no-op.
func (r *AccessRegistry) Grant(caller common.Address, role common.Hash, account common.Address) (bool, error) {
	if err := r.CheckRole(r.RoleAdmin(role), caller); err != nil {
		return false, err
	}
	return r.grant(role, account)
}

// Revoke removes account from role on behalf of caller. Revoking a non-member
// is a no-op.
func (r *AccessRegistry) Revoke(caller common.Address, role common.Hash, account common.Address) (bool, error) {
	if err := r.CheckRole(r.RoleAdmin(role), caller); err != nil {
		return false, err
	}
	return r.revoke(role, account)
}

// Renounce removes the caller's own membership of role.
func (r *AccessRegistry) Renounce(caller common.Address, role common.Hash, account common.Address) (bool, error) {
	if caller != account {
		return false, ErrRenounceOthers
	}
	return r.revoke(role, account)
}

func (r *AccessRegistry) grant(role common.Hash, account common.Address) (bool, error) {
	if account == (common.Address{}) {
		return false, fmt.Errorf("%w: zero address", ErrInvalidAccount)
	}
	members, err := r.Members(role)
	if err != nil {
		return false, err
	}
	if containsAddress(members, account) {
		return false, nil
	}
	members = append(members, account)
	if err := r.state.TipsRoleMembersPut(role, members); err != nil {
		return false, err
	}
	return true, nil
}

func (r *AccessRegistry) revoke(role common.Hash, account common.Address) (bool, error) {
	members, err := r.Members(role)
	if err != nil {
		return false, err
	}
	if !containsAddress(members, account) {
		return false, nil
	}
	if role == DefaultAdminRole && len(members) == 1 {
		return false, ErrCannotRemoveLastAdmin
	}
	remaining := make([]common.Address, 0, len(members)-1)
	for _, member := range members {
		if member != account {
			remaining = append(remaining, member)
		}
	}
	if err := r.state.TipsRoleMembersPut(role, remaining); err != nil {
		return false, err
	}
	return true, nil
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, entry := range list {
		if entry == addr {
			return true
		}
	}
	return false
}
