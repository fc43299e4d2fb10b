// Package visibility maps an identity to the query it is allowed to
// run. It is the only place role-based read access is decided.
package visibility

import (
	"fmt"

	"safetrack/internal/directory"
	"safetrack/internal/domain"
	"safetrack/internal/store"
	"safetrack/internal/vocab"
)

// UnknownRoleError is returned for an identity whose role is outside
// the closed role set. It is a programming or data error, never a
// user-facing condition.
type UnknownRoleError struct {
	Role domain.Role
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q", e.Role)
}

// VisibleQuery returns the store query an identity may run. Pure; no
// side effects.
//
// hse sees everything. A manager sees observations routed to their own
// name, provided it is a recognized area manager. An observer sees only
// their own submissions.
func VisibleQuery(ident domain.Identity) (store.QueryDescriptor, error) {
	switch ident.Role {
	case domain.RoleHSE:
		return store.QueryDescriptor{Scope: store.ScopeAll}, nil
	case domain.RoleManager:
		areas := directory.ManagedAreas(ident, vocab.AreaManagers)
		return store.QueryDescriptor{Scope: store.ScopeAreaManagers, AreaManagers: areas}, nil
	case domain.RoleObserver:
		return store.QueryDescriptor{Scope: store.ScopeObserver, ObserverID: ident.ID}, nil
	default:
		return store.QueryDescriptor{}, &UnknownRoleError{Role: ident.Role}
	}
}
