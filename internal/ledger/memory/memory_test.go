package memory

import (
	"os"
	"path/filepath"
	"testing"

	"sitetakip/internal/ledger"
	"sitetakip/internal/ledger/ledgertest"
)

func TestStoreContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return New() })
}

func TestNewFromFileSeeds(t *testing.T) {
	dir := t.TempDir()

	// No file -> empty store
	s, err := NewFromFile(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("missing seed should not fail: %v", err)
	}
	if orgs, _ := s.ListOrganizations(t.Context()); len(orgs) != 0 {
		t.Fatalf("expected empty store, got %d orgs", len(orgs))
	}

	path := filepath.Join(dir, "seed.json")
	seed := `{"organizations":[{"name":"Lale Apartmanı","monthly_due_amount":"750,50","units":["1","2","3"]}]}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s, err = NewFromFile(path)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	orgs, _ := s.ListOrganizations(t.Context())
	if len(orgs) != 1 || orgs[0].MonthlyDueAmount.Cents != 75050 || orgs[0].TotalUnits != 3 {
		t.Fatalf("unexpected orgs: %+v", orgs)
	}
	units, _ := s.ListUnits(t.Context(), orgs[0].ID)
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}

	if err := os.WriteFile(path, []byte(`{"organizations":[{"name":"x","units":["1","1"]}]}`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewFromFile(path); err == nil {
		t.Fatalf("duplicate unit numbers should fail")
	}
}
