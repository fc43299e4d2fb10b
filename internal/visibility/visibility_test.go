package visibility_test

import (
	"errors"
	"testing"

	"safetrack/internal/domain"
	"safetrack/internal/store"
	"safetrack/internal/visibility"
)

func TestHSESeesEverything(t *testing.T) {
	q, err := visibility.VisibleQuery(domain.Identity{ID: "u-007", Name: "Amina Yusuf", Role: domain.RoleHSE})
	if err != nil {
		t.Fatal(err)
	}
	if q.Scope != store.ScopeAll {
		t.Fatalf("expected all scope, got %s", q.Scope)
	}
}

func TestManagerScopedToOwnArea(t *testing.T) {
	q, err := visibility.VisibleQuery(domain.Identity{ID: "u-004", Name: "Sarah Smith", Role: domain.RoleManager})
	if err != nil {
		t.Fatal(err)
	}
	if q.Scope != store.ScopeAreaManagers {
		t.Fatalf("expected area-managers scope, got %s", q.Scope)
	}
	if len(q.AreaManagers) != 1 || q.AreaManagers[0] != "Sarah Smith" {
		t.Fatalf("manager should be scoped to their own name, got %v", q.AreaManagers)
	}
}

func TestManagerOutsideRecognizedSetSeesNothing(t *testing.T) {
	q, err := visibility.VisibleQuery(domain.Identity{ID: "u-099", Name: "Unknown Manager", Role: domain.RoleManager})
	if err != nil {
		t.Fatal(err)
	}
	if len(q.AreaManagers) != 0 {
		t.Fatalf("unrecognized manager must get an empty area set, got %v", q.AreaManagers)
	}
}

func TestObserverScopedToOwnSubmissions(t *testing.T) {
	q, err := visibility.VisibleQuery(domain.Identity{ID: "u-001", Name: "Emeka Adeyemi", Role: domain.RoleObserver})
	if err != nil {
		t.Fatal(err)
	}
	if q.Scope != store.ScopeObserver || q.ObserverID != "u-001" {
		t.Fatalf("observer scope wrong: %+v", q)
	}
}

func TestUnknownRoleIsFatal(t *testing.T) {
	_, err := visibility.VisibleQuery(domain.Identity{ID: "u-001", Role: domain.Role("auditor")})
	var re *visibility.UnknownRoleError
	if !errors.As(err, &re) {
		t.Fatalf("expected UnknownRoleError, got %v", err)
	}
}
