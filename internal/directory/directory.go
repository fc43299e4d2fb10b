// Package directory resolves identities. The service never manages
// accounts itself; the roster comes from configuration.
package directory

import (
	"sort"

	"safetrack/internal/domain"
	"safetrack/internal/store"
)

// Directory looks up identities by id.
type Directory interface {
	// LookupByID returns the identity or store.ErrNotFound.
	LookupByID(id string) (domain.Identity, error)
	// List returns every known identity, ordered by id.
	List() []domain.Identity
}

// Static is a fixed in-process roster.
type Static struct {
	byID  map[string]domain.Identity
	order []string
}

func NewStatic(roster []domain.Identity) *Static {
	s := &Static{byID: map[string]domain.Identity{}}
	for _, id := range roster {
		if _, dup := s.byID[id.ID]; dup {
			continue
		}
		s.byID[id.ID] = id
		s.order = append(s.order, id.ID)
	}
	sort.Strings(s.order)
	return s
}

func (s *Static) LookupByID(id string) (domain.Identity, error) {
	ident, ok := s.byID[id]
	if !ok {
		return domain.Identity{}, store.ErrNotFound
	}
	return ident, nil
}

func (s *Static) List() []domain.Identity {
	out := make([]domain.Identity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// ManagedAreas returns the area-manager names a manager identity covers.
// A manager sees observations for area managers sharing their name; the
// roster keys managers by the same display names the report form uses.
func ManagedAreas(ident domain.Identity, areaManagers []string) []string {
	var out []string
	for _, m := range areaManagers {
		if m == ident.Name {
			out = append(out, m)
		}
	}
	return out
}
